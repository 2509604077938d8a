package catalog

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/datafundament/pandregister/pkg/audit"
	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/model"
	"github.com/datafundament/pandregister/pkg/validate"
)

// Store persists the schema itself: property groups, properties with
// their options, and external services. Every mutation runs in one
// transaction together with its order renormalization and audit rows.
type Store struct {
	db *gorm.DB
}

func NewStore(dbh *gorm.DB) *Store {
	return &Store{db: dbh}
}

// catalogOrder sorts properties by group order, then own order, with
// unordered entries last in both scopes.
const catalogOrder = "(property_groups.sort_order IS NULL), property_groups.sort_order, " +
	"(properties.sort_order IS NULL), properties.sort_order, properties.id"

// Properties returns the catalog in presentation order, restricted to
// public entries for non-staff callers. Options and group come
// preloaded.
func (s *Store) Properties(staff bool) ([]db.Property, error) {
	query := s.db.Model(&db.Property{}).
		Joins("LEFT JOIN property_groups ON property_groups.id = properties.group_id").
		Order(catalogOrder).
		Preload("Group").
		Preload("Options", func(tx *gorm.DB) *gorm.DB { return tx.Order("option") })
	if !staff {
		query = query.Where("properties.public = ?", true)
	}

	var props []db.Property
	sql := query.Find(&props)
	return props, sql.Error
}

// Services returns the external services in presentation order,
// restricted to public ones for non-staff callers.
func (s *Store) Services(staff bool) ([]db.ExternalService, error) {
	query := s.db.Model(&db.ExternalService{}).Order(siblingOrder)
	if !staff {
		query = query.Where("public = ?", true)
	}

	var services []db.ExternalService
	sql := query.Find(&services)
	return services, sql.Error
}

func (s *Store) Groups() ([]db.PropertyGroup, error) {
	var groups []db.PropertyGroup
	sql := s.db.Model(&db.PropertyGroup{}).Order(siblingOrder).Find(&groups)
	return groups, sql.Error
}

func (s *Store) GetProperty(id uint) (db.Property, error) {
	var prop db.Property
	sql := s.db.Preload("Group").
		Preload("Options", func(tx *gorm.DB) *gorm.DB { return tx.Order("option") }).
		Limit(1).Find(&prop, id)
	if sql.Error != nil {
		return prop, sql.Error
	}
	if prop.ID == 0 {
		return prop, model.NotFound{Entity: "locatie eigenschap", Key: fmt.Sprint(id)}
	}
	return prop, nil
}

func (s *Store) GetGroup(id uint) (db.PropertyGroup, error) {
	var group db.PropertyGroup
	sql := s.db.Limit(1).Find(&group, id)
	if sql.Error != nil {
		return group, sql.Error
	}
	if group.ID == 0 {
		return group, model.NotFound{Entity: "eigenschap groep", Key: fmt.Sprint(id)}
	}
	return group, nil
}

func (s *Store) GetOption(id uint) (db.PropertyOption, error) {
	var option db.PropertyOption
	sql := s.db.Preload("Property").Limit(1).Find(&option, id)
	if sql.Error != nil {
		return option, sql.Error
	}
	if option.ID == 0 {
		return option, model.NotFound{Entity: "eigenschap optie", Key: fmt.Sprint(id)}
	}
	return option, nil
}

func (s *Store) GetService(id uint) (db.ExternalService, error) {
	var service db.ExternalService
	sql := s.db.Limit(1).Find(&service, id)
	if sql.Error != nil {
		return service, sql.Error
	}
	if service.ID == 0 {
		return service, model.NotFound{Entity: "externe koppeling", Key: fmt.Sprint(id)}
	}
	return service, nil
}

// SaveGroup creates or updates a property group and renormalizes the
// global group ordering.
func (s *Store) SaveGroup(actor model.Actor, group *db.PropertyGroup) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		sql := tx.Model(&db.PropertyGroup{}).Where("name = ? AND id <> ?", group.Name, group.ID).Count(&count)
		if sql.Error != nil {
			return sql.Error
		}
		if count > 0 {
			return model.ConstraintViolation{Constraint: "unique_group_name"}
		}

		created := group.ID == 0
		if err := tx.Save(group).Error; err != nil {
			return err
		}
		if err := renumberGroups(tx, group); err != nil {
			return err
		}
		if err := tx.First(group, group.ID).Error; err != nil {
			return err
		}

		if created {
			return audit.Created(tx, actor, audit.TargetGroup, group.ID, group.Name)
		}
		return nil
	})
}

func (s *Store) DeleteGroup(actor model.Actor, id uint) error {
	group, err := s.GetGroup(id)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		// Grouped properties fall back to the null-group bucket.
		sql := tx.Model(&db.Property{}).Where("group_id = ?", id).Update("group_id", nil)
		if sql.Error != nil {
			return sql.Error
		}
		if err := tx.Delete(&db.PropertyGroup{}, id).Error; err != nil {
			return err
		}
		return audit.Deleted(tx, actor, audit.TargetGroup, id, group.Name)
	})
}

// SaveProperty creates or updates a property. The kind is immutable
// after the first save; ordering is renormalized within the property's
// group.
func (s *Store) SaveProperty(actor model.Actor, prop *db.Property) error {
	if err := validate.ShortName(prop.ShortName); err != nil {
		return model.ValidationErrors{{Field: "short_name", Message: err.Error()}}
	}
	if err := model.IsValidPropertyKind(prop.Kind); err != nil {
		return model.ValidationErrors{{Field: "kind", Message: err.Error()}}
	}
	if prop.Multiple && prop.Kind != model.KindChoice {
		return model.ConstraintViolation{Constraint: "multiple_requires_choice"}
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var old db.Property
		created := prop.ID == 0
		if !created {
			sql := tx.Limit(1).Find(&old, prop.ID)
			if sql.Error != nil {
				return sql.Error
			}
			if old.ID == 0 {
				return model.NotFound{Entity: "locatie eigenschap", Key: fmt.Sprint(prop.ID)}
			}
			if old.Kind != prop.Kind {
				return model.ImmutableField{Field: "kind"}
			}
		}

		var count int64
		sql := tx.Model(&db.Property{}).Where("short_name = ? AND id <> ?", prop.ShortName, prop.ID).Count(&count)
		if sql.Error != nil {
			return sql.Error
		}
		if count > 0 {
			return model.ConstraintViolation{Constraint: "unique_property_name"}
		}
		sql = tx.Model(&db.Property{}).Where("label = ? AND id <> ?", prop.Label, prop.ID).Count(&count)
		if sql.Error != nil {
			return sql.Error
		}
		if count > 0 {
			return model.ConstraintViolation{Constraint: "unique_property_label"}
		}

		if err := tx.Omit("Options", "Group").Save(prop).Error; err != nil {
			return err
		}
		if err := renumberProperties(tx, prop); err != nil {
			return err
		}
		if err := tx.First(prop, prop.ID).Error; err != nil {
			return err
		}

		if created {
			return audit.Created(tx, actor, audit.TargetProperty, prop.ID, prop.Label)
		}
		for _, d := range propertyDiffs(old, *prop) {
			if err := audit.Changed(tx, actor, audit.TargetProperty, prop.ID, prop.Label, d.field, d.old, d.new); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteProperty removes a property together with its options and all
// site data referencing it, logging each removed value on its site.
func (s *Store) DeleteProperty(actor model.Actor, id uint) error {
	prop, err := s.GetProperty(id)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		options := make(map[uint]string, len(prop.Options))
		for _, o := range prop.Options {
			options[o.ID] = o.Option
		}

		var data []db.SiteData
		if err := tx.Where("property_id = ?", id).Find(&data).Error; err != nil {
			return err
		}
		for _, row := range data {
			var site db.Site
			if err := tx.First(&site, row.SiteID).Error; err != nil {
				return err
			}
			value := ""
			if row.OptionID != nil {
				value = options[*row.OptionID]
			} else if row.Value != nil {
				value = *row.Value
			}
			if value == "" {
				continue
			}
			if err := audit.ValueCleared(tx, actor, site, prop.Label, value); err != nil {
				return err
			}
		}
		if err := tx.Where("property_id = ?", id).Delete(&db.SiteData{}).Error; err != nil {
			return err
		}

		for _, o := range prop.Options {
			display := fmt.Sprintf("%s: %s", prop.Label, o.Option)
			if err := audit.Deleted(tx, actor, audit.TargetOption, o.ID, display); err != nil {
				return err
			}
		}
		if err := tx.Where("property_id = ?", id).Delete(&db.PropertyOption{}).Error; err != nil {
			return err
		}

		if err := audit.Deleted(tx, actor, audit.TargetProperty, id, prop.Label); err != nil {
			return err
		}
		return tx.Delete(&db.Property{}, id).Error
	})
}

// SaveOption creates or updates one choice-list entry.
func (s *Store) SaveOption(actor model.Actor, option *db.PropertyOption) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var prop db.Property
		sql := tx.Limit(1).Find(&prop, option.PropertyID)
		if sql.Error != nil {
			return sql.Error
		}
		if prop.ID == 0 {
			return model.NotFound{Entity: "locatie eigenschap", Key: fmt.Sprint(option.PropertyID)}
		}

		var count int64
		sql = tx.Model(&db.PropertyOption{}).
			Where("property_id = ? AND option = ? AND id <> ?", option.PropertyID, option.Option, option.ID).
			Count(&count)
		if sql.Error != nil {
			return sql.Error
		}
		if count > 0 {
			return model.ConstraintViolation{Constraint: "unique_property_option"}
		}

		var old db.PropertyOption
		created := option.ID == 0
		if !created {
			sql = tx.Limit(1).Find(&old, option.ID)
			if sql.Error != nil {
				return sql.Error
			}
			if old.ID == 0 {
				return model.NotFound{Entity: "eigenschap optie", Key: fmt.Sprint(option.ID)}
			}
		}

		if err := tx.Omit("Property").Save(option).Error; err != nil {
			return err
		}

		display := fmt.Sprintf("%s: %s", prop.Label, option.Option)
		if created {
			return audit.Created(tx, actor, audit.TargetOption, option.ID, display)
		}
		if old.Option != option.Option {
			return audit.Changed(tx, actor, audit.TargetOption, option.ID, display, "Optie", old.Option, option.Option)
		}
		return nil
	})
}

// DeleteOption refuses to remove an option that still backs site data;
// callers must clear those references first.
func (s *Store) DeleteOption(actor model.Actor, id uint) error {
	option, err := s.GetOption(id)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		sql := tx.Model(&db.SiteData{}).Where("option_id = ?", id).Count(&count)
		if sql.Error != nil {
			return sql.Error
		}
		if count > 0 {
			return model.ReferencedInUse{Entity: "eigenschap optie"}
		}

		if err := tx.Delete(&db.PropertyOption{}, id).Error; err != nil {
			return err
		}
		return audit.Deleted(tx, actor, audit.TargetOption, id, option.DisplayName())
	})
}

// SaveService creates or updates an external service and renormalizes
// the global service ordering.
func (s *Store) SaveService(actor model.Actor, service *db.ExternalService) error {
	if err := validate.ShortName(service.ShortName); err != nil {
		return model.ValidationErrors{{Field: "short_name", Message: err.Error()}}
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		sql := tx.Model(&db.ExternalService{}).Where("name = ? AND id <> ?", service.Name, service.ID).Count(&count)
		if sql.Error != nil {
			return sql.Error
		}
		if count > 0 {
			return model.ConstraintViolation{Constraint: "unique_service_name"}
		}
		sql = tx.Model(&db.ExternalService{}).Where("short_name = ? AND id <> ?", service.ShortName, service.ID).Count(&count)
		if sql.Error != nil {
			return sql.Error
		}
		if count > 0 {
			return model.ConstraintViolation{Constraint: "unique_service_short_name"}
		}

		var old db.ExternalService
		created := service.ID == 0
		if !created {
			sql = tx.Limit(1).Find(&old, service.ID)
			if sql.Error != nil {
				return sql.Error
			}
			if old.ID == 0 {
				return model.NotFound{Entity: "externe koppeling", Key: fmt.Sprint(service.ID)}
			}
		}

		if err := tx.Save(service).Error; err != nil {
			return err
		}
		if err := renumberServices(tx, service); err != nil {
			return err
		}
		if err := tx.First(service, service.ID).Error; err != nil {
			return err
		}

		if created {
			return audit.Created(tx, actor, audit.TargetService, service.ID, service.Name)
		}
		for _, d := range serviceDiffs(old, *service) {
			if err := audit.Changed(tx, actor, audit.TargetService, service.ID, service.Name, d.field, d.old, d.new); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteService removes a service and every site link referencing it.
func (s *Store) DeleteService(actor model.Actor, id uint) error {
	service, err := s.GetService(id)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("service_id = ?", id).Delete(&db.SiteExternalLink{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&db.ExternalService{}, id).Error; err != nil {
			return err
		}
		return audit.Deleted(tx, actor, audit.TargetService, id, service.Name)
	})
}

type diff struct {
	field string
	old   string
	new   string
}

func propertyDiffs(old, new db.Property) []diff {
	var diffs []diff
	add := func(field, oldValue, newValue string) {
		if oldValue != newValue {
			diffs = append(diffs, diff{field, oldValue, newValue})
		}
	}
	add("Korte naam", old.ShortName, new.ShortName)
	add("Omschrijving", old.Label, new.Label)
	add("Verplicht veld", model.FormatBool(old.Required), model.FormatBool(new.Required))
	add("Meervoudige invoer", model.FormatBool(old.Multiple), model.FormatBool(new.Multiple))
	add("Waarde moet uniek zijn", model.FormatBool(old.Unique), model.FormatBool(new.Unique))
	add("Zichtbaar voor niet ingelogde gebruikers", model.FormatBool(old.Public), model.FormatBool(new.Public))
	return diffs
}

func serviceDiffs(old, new db.ExternalService) []diff {
	var diffs []diff
	add := func(field, oldValue, newValue string) {
		if oldValue != newValue {
			diffs = append(diffs, diff{field, oldValue, newValue})
		}
	}
	add("Externe API", old.Name, new.Name)
	add("Korte naam", old.ShortName, new.ShortName)
	add("Zichtbaar voor niet ingelogde gebruikers", model.FormatBool(old.Public), model.FormatBool(new.Public))
	return diffs
}
