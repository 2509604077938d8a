package query

import (
	"strings"

	"gorm.io/gorm"

	"github.com/datafundament/pandregister/pkg/catalog"
	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/model"
)

const pageSize = 50

// Engine translates a search parameter bag into a deterministic,
// distinct, ordered list of sites, honoring the caller's visibility.
type Engine struct {
	db      *gorm.DB
	catalog *catalog.Store
}

func NewEngine(dbh *gorm.DB, cat *catalog.Store) *Engine {
	return &Engine{db: dbh, catalog: cat}
}

// Search runs one query. An unknown property name falls back to
// full-text search; anonymous callers only ever match on public data and
// never see archived sites.
func (e *Engine) Search(actor model.Actor, params model.SearchParams) (model.SearchResult, error) {
	counter, err := e.build(actor, params)
	if err != nil {
		return model.SearchResult{}, err
	}
	var total int64
	if err := counter.Distinct("sites.id").Count(&total).Error; err != nil {
		return model.SearchResult{}, err
	}

	query, err := e.build(actor, params)
	if err != nil {
		return model.SearchResult{}, err
	}

	page := params.Page
	if page < 1 {
		page = 1
	}

	var sites []db.Site
	sql := order(query.Distinct("sites.*"), params).
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&sites)
	if sql.Error != nil {
		return model.SearchResult{}, sql.Error
	}

	result := model.SearchResult{
		Total: total,
		Page:  page,
		Pages: int((total + pageSize - 1) / pageSize),
	}
	for _, site := range sites {
		result.Sites = append(result.Sites, model.SiteSummary{
			Pandcode: site.Pandcode,
			Name:     site.Name,
			Archived: site.Archived,
		})
	}
	return result, nil
}

// All returns every matching pandcode in order, without pagination; the
// CSV exporter walks the full result set.
func (e *Engine) All(actor model.Actor, params model.SearchParams) ([]int, error) {
	query, err := e.build(actor, params)
	if err != nil {
		return nil, err
	}

	var sites []db.Site
	sql := order(query.Distinct("sites.*"), params).Find(&sites)
	if sql.Error != nil {
		return nil, sql.Error
	}

	pandcodes := make([]int, 0, len(sites))
	for _, site := range sites {
		pandcodes = append(pandcodes, site.Pandcode)
	}
	return pandcodes, nil
}

func (e *Engine) build(actor model.Actor, params model.SearchParams) (*gorm.DB, error) {
	staff := actor.Staff

	props, err := e.catalog.Properties(staff)
	if err != nil {
		return nil, err
	}
	services, err := e.catalog.Services(staff)
	if err != nil {
		return nil, err
	}

	var prop *db.Property
	for i := range props {
		if props[i].ShortName == params.Property {
			prop = &props[i]
			break
		}
	}
	var service *db.ExternalService
	for i := range services {
		if services[i].ShortName == params.Property {
			service = &services[i]
			break
		}
	}

	term := strings.TrimSpace(params.Search)
	if prop != nil && prop.Kind == model.KindChoice {
		// Choice filters carry their term under the property's own
		// short-name, not under "search".
		term = params.ChoiceTerm()
	}

	query := e.db.Model(&db.Site{})

	switch {
	case params.Property == "naam":
		query = query.Where("LOWER(sites.name) LIKE ?", contains(term))
	case params.Property == "pandcode" && isDigits(term):
		query = query.Where("sites.pandcode = ?", term)
	case prop != nil && prop.Kind == model.KindChoice:
		query = query.Where("sites.id IN (?)", e.choiceMatches(staff, prop.ID, term))
	case prop != nil:
		query = query.Where("sites.id IN (?)", e.valueMatches(staff, &prop.ID, term))
	case service != nil:
		query = query.Where("sites.id IN (?)", e.linkMatches(staff, &service.ID, term))
	default:
		query = query.Where(
			"LOWER(sites.name) LIKE ? OR sites.id IN (?) OR sites.id IN (?) OR sites.id IN (?)",
			contains(term),
			e.valueMatches(staff, nil, term),
			e.linkMatches(staff, nil, term),
			e.optionMatches(staff, term),
		)
	}

	switch params.Archive {
	case "all":
	case "archived":
		query = query.Where("sites.archived = ?", true)
	default:
		query = query.Where("sites.archived = ?", false)
	}
	if !staff {
		query = query.Where("sites.archived = ?", false)
	}

	return query, nil
}

func order(query *gorm.DB, params model.SearchParams) *gorm.DB {
	orderBy := "name"
	if params.OrderBy == "pandcode" {
		orderBy = "pandcode"
	}
	direction := ""
	if params.Order == "desc" {
		direction = " DESC"
	}
	return query.Order("sites." + orderBy + direction).Order("sites.id")
}

// valueMatches selects site ids whose raw data values contain the term,
// optionally narrowed to one property.
func (e *Engine) valueMatches(staff bool, propertyID *uint, term string) *gorm.DB {
	sub := e.db.Model(&db.SiteData{}).Select("site_data.site_id").
		Where("LOWER(site_data.value) LIKE ?", contains(term))
	if propertyID != nil {
		sub = sub.Where("site_data.property_id = ?", *propertyID)
	}
	if !staff {
		sub = sub.Joins("JOIN properties ON properties.id = site_data.property_id").
			Where("properties.public = ?", true)
	}
	return sub
}

// choiceMatches selects site ids holding the exact option text for one
// choice property.
func (e *Engine) choiceMatches(staff bool, propertyID uint, term string) *gorm.DB {
	sub := e.db.Model(&db.SiteData{}).Select("site_data.site_id").
		Joins("JOIN property_options ON property_options.id = site_data.option_id").
		Where("site_data.property_id = ? AND property_options.option = ?", propertyID, term)
	if !staff {
		sub = sub.Joins("JOIN properties ON properties.id = site_data.property_id").
			Where("properties.public = ?", true)
	}
	return sub
}

// optionMatches selects site ids reachable through an option whose text
// contains the term; part of full-text search.
func (e *Engine) optionMatches(staff bool, term string) *gorm.DB {
	sub := e.db.Model(&db.SiteData{}).Select("site_data.site_id").
		Joins("JOIN property_options ON property_options.id = site_data.option_id").
		Where("LOWER(property_options.option) LIKE ?", contains(term))
	if !staff {
		sub = sub.Joins("JOIN properties ON properties.id = site_data.property_id").
			Where("properties.public = ?", true)
	}
	return sub
}

// linkMatches selects site ids whose external codes contain the term,
// optionally narrowed to one service.
func (e *Engine) linkMatches(staff bool, serviceID *uint, term string) *gorm.DB {
	sub := e.db.Model(&db.SiteExternalLink{}).Select("site_external_links.site_id").
		Where("LOWER(site_external_links.code) LIKE ?", contains(term))
	if serviceID != nil {
		sub = sub.Where("site_external_links.service_id = ?", *serviceID)
	}
	if !staff {
		sub = sub.Joins("JOIN external_services ON external_services.id = site_external_links.service_id").
			Where("external_services.public = ?", true)
	}
	return sub
}

func contains(term string) string {
	return "%" + strings.ToLower(term) + "%"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
