package db

import (
	"fmt"
	"time"

	"github.com/datafundament/pandregister/pkg/model"
)

// Site is a physical building entry, identified by pandcode and name.
type Site struct {
	ID         uint       `json:"id" gorm:"primarykey"`
	Pandcode   int        `json:"pandcode" gorm:"uniqueIndex:unique_pandcode"`
	Name       string     `json:"naam" gorm:"uniqueIndex:unique_name;size:100"`
	Archived   bool       `json:"archief"`
	ArchivedAt *time.Time `json:"gearchiveerd_op"`
	CreatedAt  time.Time  `json:"aangemaakt"`
	UpdatedAt  time.Time  `json:"gewijzigd"`

	Data  []SiteData         `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Links []SiteExternalLink `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (Site) TableName() string { return "sites" }

func (s Site) DisplayName() string {
	return fmt.Sprintf("%d, %s", s.Pandcode, s.Name)
}

// PropertyGroup clusters properties in the admin surface and fixes their
// relative order.
type PropertyGroup struct {
	ID    uint   `json:"id" gorm:"primarykey"`
	Name  string `json:"name" gorm:"uniqueIndex:unique_group_name;size:100"`
	Order *int   `json:"order" gorm:"column:sort_order"`
}

func (PropertyGroup) TableName() string { return "property_groups" }

// Property is an admin-defined attribute slot. Kind is immutable after
// creation; Unique maps to column unique_values since "unique" is a
// reserved word in most dialects.
type Property struct {
	ID        uint               `json:"id" gorm:"primarykey"`
	ShortName string             `json:"shortName" gorm:"uniqueIndex:unique_property_name;size:50"`
	Label     string             `json:"label" gorm:"uniqueIndex:unique_property_label;size:100"`
	Kind      model.PropertyKind `json:"kind" gorm:"size:10"`
	Required  bool               `json:"required"`
	Multiple  bool               `json:"multiple"`
	Unique    bool               `json:"unique" gorm:"column:unique_values"`
	Public    bool               `json:"public"`
	Strict    bool               `json:"strict"`
	GroupID   *uint              `json:"groupId"`
	Group     *PropertyGroup     `json:"group,omitempty" gorm:"constraint:OnDelete:SET NULL"`
	Order     *int               `json:"order" gorm:"column:sort_order"`

	Options []PropertyOption `json:"options,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

func (Property) TableName() string { return "properties" }

func (p Property) DisplayName() string {
	return p.Label
}

// PropertyOption is one permissible value of a CHOICE property.
type PropertyOption struct {
	ID         uint   `json:"id" gorm:"primarykey"`
	PropertyID uint   `json:"propertyId" gorm:"uniqueIndex:unique_property_option,priority:1"`
	Option     string `json:"option" gorm:"uniqueIndex:unique_property_option,priority:2;size:100"`

	Property *Property `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (PropertyOption) TableName() string { return "property_options" }

func (o PropertyOption) DisplayName() string {
	if o.Property != nil {
		return fmt.Sprintf("%s: %s", o.Property.Label, o.Option)
	}
	return o.Option
}

// SiteData is the triple store: one row per (site, property) for scalar
// values, one row per (site, property, option) for multi-valued choice
// properties. Exactly one of OptionID and Value is set, or both are null
// for "property exists, value cleared".
type SiteData struct {
	ID         uint    `gorm:"primarykey"`
	SiteID     uint    `gorm:"index:idx_site_property,priority:1"`
	PropertyID uint    `gorm:"index:idx_site_property,priority:2"`
	OptionID   *uint   `gorm:"check:either_field_filled,option_id IS NULL OR value IS NULL"`
	Value      *string `gorm:"size:1024"`

	Option *PropertyOption `gorm:"foreignKey:OptionID;constraint:OnDelete:RESTRICT"`
}

func (SiteData) TableName() string { return "site_data" }

// ExternalService is a named third-party system sites can link into.
type ExternalService struct {
	ID        uint   `json:"id" gorm:"primarykey"`
	Name      string `json:"name" gorm:"uniqueIndex:unique_service_name;size:100"`
	ShortName string `json:"shortName" gorm:"uniqueIndex:unique_service_short_name;size:50"`
	Public    bool   `json:"public"`
	Order     *int   `json:"order" gorm:"column:sort_order"`
}

func (ExternalService) TableName() string { return "external_services" }

func (s ExternalService) DisplayName() string {
	return s.Name
}

// SiteExternalLink holds the per-service identifier of a site; one code
// per (site, service) pairing.
type SiteExternalLink struct {
	ID        uint    `gorm:"primarykey"`
	SiteID    uint    `gorm:"uniqueIndex:unique_site_service,priority:1"`
	ServiceID uint    `gorm:"uniqueIndex:unique_site_service,priority:2"`
	Code      *string `gorm:"size:100"`

	Service *ExternalService `gorm:"foreignKey:ServiceID;constraint:OnDelete:CASCADE"`
}

func (SiteExternalLink) TableName() string { return "site_external_links" }

// Audit actions.
const (
	ActionCreate = "CREATE"
	ActionRead   = "READ"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// LogEntry is one append-only audit record. The target reference is a
// weak (type-name, id) pair so entries survive deletion of their target.
type LogEntry struct {
	ID         uint      `json:"id" gorm:"primarykey"`
	Timestamp  time.Time `json:"timestamp" gorm:"autoCreateTime;index"`
	Actor      *string   `json:"actor" gorm:"size:150"`
	TargetType string    `json:"targetType" gorm:"index:idx_log_target,priority:1;size:50"`
	TargetID   uint      `json:"targetId" gorm:"index:idx_log_target,priority:2"`
	Action     string    `json:"action" gorm:"size:10"`
	ObjectName string    `json:"objectName" gorm:"size:150"`
	Field      *string   `json:"field" gorm:"size:100"`
	Message    string    `json:"message" gorm:"size:1000"`
}

func (LogEntry) TableName() string { return "log_entries" }

// User is a local-login account; production uses OIDC instead.
type User struct {
	ID           uint   `gorm:"primarykey"`
	Username     string `gorm:"uniqueIndex:unique_username;size:150"`
	PasswordHash string
	Staff        bool
	CreatedAt    time.Time
}

// Session is an authenticated browser session for local logins; expired
// rows are removed by the purger daemon.
type Session struct {
	ID        uint      `gorm:"primarykey"`
	Token     string    `gorm:"uniqueIndex:unique_session_token;size:36"`
	UserID    uint
	User      *User     `gorm:"constraint:OnDelete:CASCADE"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}
