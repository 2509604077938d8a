package audit

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/model"
)

// Target type names stored in the log's weak reference. They survive
// deletion of the target and are never dereferenced on read.
const (
	TargetSite     = "Site"
	TargetGroup    = "PropertyGroup"
	TargetProperty = "Property"
	TargetOption   = "PropertyOption"
	TargetService  = "ExternalService"
)

// Dutch display names per target kind, used as the field of CREATE
// entries.
var kindNames = map[string]string{
	TargetSite:     "Locatie",
	TargetGroup:    "Eigenschap groep",
	TargetProperty: "Locatie eigenschap",
	TargetOption:   "Eigenschap optie",
	TargetService:  "Externe koppeling",
}

func write(tx *gorm.DB, actor model.Actor, targetType string, targetID uint, action string, field *string, objectName, message string) error {
	entry := db.LogEntry{
		Actor:      actor.Name(),
		TargetType: targetType,
		TargetID:   targetID,
		Action:     action,
		ObjectName: objectName,
		Field:      field,
		Message:    message,
	}
	return tx.Create(&entry).Error
}

// Created logs the creation of a catalog or data entity.
func Created(tx *gorm.DB, actor model.Actor, targetType string, targetID uint, display string) error {
	kind := kindNames[targetType]
	return write(tx, actor, targetType, targetID, db.ActionCreate, &kind, display,
		fmt.Sprintf("%s is aangemaakt.", display))
}

// Changed logs one tracked attribute changing value.
func Changed(tx *gorm.DB, actor model.Actor, targetType string, targetID uint, display, field, oldValue, newValue string) error {
	return write(tx, actor, targetType, targetID, db.ActionUpdate, &field, display,
		fmt.Sprintf("Waarde was (%s), is gewijzigd naar (%s).", oldValue, newValue))
}

// Deleted logs the removal of an entity.
func Deleted(tx *gorm.DB, actor model.Actor, targetType string, targetID uint, display string) error {
	return write(tx, actor, targetType, targetID, db.ActionDelete, nil, display,
		fmt.Sprintf("%s is verwijderd.", display))
}

// ValueSet logs a site value appearing for the first time. The entry is
// attached to the owning site, with the property label (or service name)
// as the field.
func ValueSet(tx *gorm.DB, actor model.Actor, site db.Site, field, value string) error {
	return write(tx, actor, TargetSite, site.ID, db.ActionUpdate, &field, site.DisplayName(),
		fmt.Sprintf("Waarde (%s) gezet.", value))
}

// ValueChanged logs a site value being replaced.
func ValueChanged(tx *gorm.DB, actor model.Actor, site db.Site, field, oldValue, newValue string) error {
	return write(tx, actor, TargetSite, site.ID, db.ActionUpdate, &field, site.DisplayName(),
		fmt.Sprintf("Waarde was (%s), is gewijzigd naar (%s).", oldValue, newValue))
}

// ValueCleared logs a site value being removed.
func ValueCleared(tx *gorm.DB, actor model.Actor, site db.Site, field, oldValue string) error {
	return write(tx, actor, TargetSite, site.ID, db.ActionUpdate, &field, site.DisplayName(),
		fmt.Sprintf("Waarde (%s) verwijderd.", oldValue))
}

// Page is one page of the audit trail, newest first.
type Page struct {
	Total   int64         `json:"total"`
	Entries []db.LogEntry `json:"entries"`
}

// List returns audit entries newest-first, optionally narrowed to the
// entries of one site.
func List(dbh *gorm.DB, pandcode *int, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	query := dbh.Model(&db.LogEntry{})
	if pandcode != nil {
		var site db.Site
		sql := dbh.Where("pandcode = ?", *pandcode).Limit(1).Find(&site)
		if sql.Error != nil {
			return Page{}, sql.Error
		}
		if site.ID == 0 {
			return Page{}, model.NotFound{Entity: "locatie", Key: fmt.Sprint(*pandcode)}
		}
		query = query.Where("target_type = ? AND target_id = ?", TargetSite, site.ID)
	}

	var result Page
	if err := query.Count(&result.Total).Error; err != nil {
		return Page{}, err
	}

	sql := query.Order("timestamp DESC, id DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&result.Entries)
	return result, sql.Error
}
