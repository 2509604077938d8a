package backend

import (
	"io"

	"gorm.io/gorm"

	"github.com/datafundament/pandregister/pkg/audit"
	"github.com/datafundament/pandregister/pkg/catalog"
	"github.com/datafundament/pandregister/pkg/csvio"
	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/model"
	"github.com/datafundament/pandregister/pkg/query"
	"github.com/datafundament/pandregister/pkg/sites"
)

type Backend interface {
	// sites
	SaveSite(actor model.Actor, input model.SiteInput) (int, error)
	GetSite(actor model.Actor, pandcode int) (model.SitePayload, error)
	ArchiveSite(actor model.Actor, pandcode int, archived bool) error
	DeleteSite(actor model.Actor, pandcode int) error
	Search(actor model.Actor, params model.SearchParams) (model.SearchResult, error)
	ExportCSV(w io.Writer, actor model.Actor, params model.SearchParams) error
	ImportCSV(actor model.Actor, r io.Reader) (model.ImportResult, error)
	Logs(pandcode *int, page int) (audit.Page, error)

	// catalog
	Properties(staff bool) ([]db.Property, error)
	Services(staff bool) ([]db.ExternalService, error)
	Groups() ([]db.PropertyGroup, error)
	SaveGroup(actor model.Actor, group *db.PropertyGroup) error
	DeleteGroup(actor model.Actor, id uint) error
	SaveProperty(actor model.Actor, prop *db.Property) error
	DeleteProperty(actor model.Actor, id uint) error
	SaveOption(actor model.Actor, option *db.PropertyOption) error
	DeleteOption(actor model.Actor, id uint) error
	SaveService(actor model.Actor, service *db.ExternalService) error
	DeleteService(actor model.Actor, id uint) error

	// auth
	Login(username, password string) (model.LoginResponse, error)
	Logout(token string) error
	VerifySession(token string) (model.Actor, error)
	CreateUser(username, password string, staff bool) error
	StartPurgerDaemon(done <-chan struct{})
}

type backend struct {
	db      *gorm.DB
	catalog *catalog.Store
	sites   *sites.Store
	query   *query.Engine
	csv     *csvio.Engine

	sessionTTLSeconds    int64
	purgeIntervalSeconds int64
}

func NewBackend(database *gorm.DB, sessionTTLSecs, purgeIntervalSecs int64) Backend {
	cat := catalog.NewStore(database)
	sts := sites.NewStore(database, cat)
	qry := query.NewEngine(database, cat)
	return &backend{
		db:                   database,
		catalog:              cat,
		sites:                sts,
		query:                qry,
		csv:                  csvio.NewEngine(cat, sts, qry),
		sessionTTLSeconds:    sessionTTLSecs,
		purgeIntervalSeconds: purgeIntervalSecs,
	}
}

func (b *backend) SaveSite(actor model.Actor, input model.SiteInput) (int, error) {
	return b.sites.Save(actor, input)
}

func (b *backend) GetSite(actor model.Actor, pandcode int) (model.SitePayload, error) {
	return b.sites.Get(actor, pandcode)
}

func (b *backend) ArchiveSite(actor model.Actor, pandcode int, archived bool) error {
	return b.sites.Archive(actor, pandcode, archived)
}

func (b *backend) DeleteSite(actor model.Actor, pandcode int) error {
	return b.sites.Delete(actor, pandcode)
}

func (b *backend) Search(actor model.Actor, params model.SearchParams) (model.SearchResult, error) {
	return b.query.Search(actor, params)
}

func (b *backend) ExportCSV(w io.Writer, actor model.Actor, params model.SearchParams) error {
	return b.csv.Export(w, actor, params)
}

func (b *backend) ImportCSV(actor model.Actor, r io.Reader) (model.ImportResult, error) {
	return b.csv.Import(actor, r)
}

func (b *backend) Logs(pandcode *int, page int) (audit.Page, error) {
	return audit.List(b.db, pandcode, page, 50)
}

func (b *backend) Properties(staff bool) ([]db.Property, error) {
	return b.catalog.Properties(staff)
}

func (b *backend) Services(staff bool) ([]db.ExternalService, error) {
	return b.catalog.Services(staff)
}

func (b *backend) Groups() ([]db.PropertyGroup, error) {
	return b.catalog.Groups()
}

func (b *backend) SaveGroup(actor model.Actor, group *db.PropertyGroup) error {
	return b.catalog.SaveGroup(actor, group)
}

func (b *backend) DeleteGroup(actor model.Actor, id uint) error {
	return b.catalog.DeleteGroup(actor, id)
}

func (b *backend) SaveProperty(actor model.Actor, prop *db.Property) error {
	return b.catalog.SaveProperty(actor, prop)
}

func (b *backend) DeleteProperty(actor model.Actor, id uint) error {
	return b.catalog.DeleteProperty(actor, id)
}

func (b *backend) SaveOption(actor model.Actor, option *db.PropertyOption) error {
	return b.catalog.SaveOption(actor, option)
}

func (b *backend) DeleteOption(actor model.Actor, id uint) error {
	return b.catalog.DeleteOption(actor, id)
}

func (b *backend) SaveService(actor model.Actor, service *db.ExternalService) error {
	return b.catalog.SaveService(actor, service)
}

func (b *backend) DeleteService(actor model.Actor, id uint) error {
	return b.catalog.DeleteService(actor, id)
}
