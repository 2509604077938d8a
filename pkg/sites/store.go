package sites

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/datafundament/pandregister/pkg/audit"
	"github.com/datafundament/pandregister/pkg/catalog"
	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/model"
	"github.com/datafundament/pandregister/pkg/validate"
)

// Store persists sites and their attached values. Every save is one
// transaction: validation first, then site fields, then the data rows in
// catalog order, then service links, with audit entries for each change.
type Store struct {
	db      *gorm.DB
	catalog *catalog.Store
}

func NewStore(dbh *gorm.DB, cat *catalog.Store) *Store {
	return &Store{db: dbh, catalog: cat}
}

// Save creates or updates the site identified by the input's pandcode
// and returns the (possibly assigned) pandcode. A missing pandcode means
// a new site with code max+1; the race on that default is resolved by
// the unique constraint, and losers surface ConstraintViolation so the
// caller can retry.
func (s *Store) Save(actor model.Actor, input model.SiteInput) (int, error) {
	props, err := s.catalog.Properties(actor.Staff)
	if err != nil {
		return 0, err
	}
	services, err := s.catalog.Services(actor.Staff)
	if err != nil {
		return 0, err
	}

	var failures model.ValidationErrors
	if input.Name == "" {
		failures = append(failures, model.ValidationFailure{Field: "naam", Message: "Naam is verplicht"})
	}
	for _, prop := range props {
		value, ok := input.Values[prop.ShortName]
		if !ok || !value.IsSet() {
			continue
		}
		if err := validate.Value(prop, optionTexts(prop.Options), value); err != nil {
			failures = append(failures, model.ValidationFailure{Field: prop.ShortName, Message: err.Error()})
		}
	}
	if len(failures) > 0 {
		return 0, failures
	}

	var pandcode int
	err = s.db.Transaction(func(tx *gorm.DB) error {
		site, err := s.resolveSite(tx, input)
		if err != nil {
			return err
		}

		if err := s.checkUniqueValues(tx, site, props, input); err != nil {
			return err
		}

		created := site.ID == 0
		if created {
			if err := tx.Create(&site).Error; err != nil {
				if db.IsUniqueViolation(err) {
					return model.ConstraintViolation{Constraint: "unique_pandcode"}
				}
				return err
			}
			if err := audit.Created(tx, actor, audit.TargetSite, site.ID, site.DisplayName()); err != nil {
				return err
			}
		} else if site.Name != input.Name {
			oldName := site.Name
			site.Name = input.Name
			if err := tx.Model(&db.Site{}).Where("id = ?", site.ID).Update("name", input.Name).Error; err != nil {
				return err
			}
			if err := audit.Changed(tx, actor, audit.TargetSite, site.ID, site.DisplayName(), "Naam", oldName, input.Name); err != nil {
				return err
			}
		}

		changed := false
		for _, prop := range props {
			c, err := s.reconcileData(tx, actor, site, prop, input.Values[prop.ShortName])
			if err != nil {
				return err
			}
			changed = changed || c
		}
		for _, service := range services {
			c, err := s.reconcileLink(tx, actor, site, service, input.Services[service.ShortName])
			if err != nil {
				return err
			}
			changed = changed || c
		}

		// A data or link change modifies the site, even though only
		// attached rows were written.
		if changed && !created {
			if err := tx.Model(&db.Site{}).Where("id = ?", site.ID).Update("updated_at", time.Now()).Error; err != nil {
				return err
			}
		}

		pandcode = site.Pandcode
		return nil
	})
	return pandcode, err
}

// resolveSite finds the existing site for an update, or builds a new one
// with the supplied or next-free pandcode. The name uniqueness check is
// case-insensitive.
func (s *Store) resolveSite(tx *gorm.DB, input model.SiteInput) (db.Site, error) {
	var site db.Site
	if input.Pandcode != nil {
		sql := tx.Where("pandcode = ?", *input.Pandcode).Limit(1).Find(&site)
		if sql.Error != nil {
			return site, sql.Error
		}
	}

	var count int64
	sql := tx.Model(&db.Site{}).Where("LOWER(name) = LOWER(?) AND id <> ?", input.Name, site.ID).Count(&count)
	if sql.Error != nil {
		return site, sql.Error
	}
	if count > 0 {
		return site, model.ConstraintViolation{Constraint: "unique_name"}
	}

	if site.ID != 0 {
		return site, nil
	}

	site = db.Site{Name: input.Name}
	if input.Pandcode != nil {
		site.Pandcode = *input.Pandcode
		return site, nil
	}

	// Default pandcode is max+1. Not serialized; concurrent callers may
	// collide on the unique constraint and retry.
	var next int
	sql = tx.Model(&db.Site{}).Select("COALESCE(MAX(pandcode), 0) + 1").Scan(&next)
	if sql.Error != nil {
		return site, sql.Error
	}
	site.Pandcode = next
	return site, nil
}

// checkUniqueValues enforces unique=true properties: no other site may
// hold the same non-null raw value. Runs inside the transaction, before
// any write.
func (s *Store) checkUniqueValues(tx *gorm.DB, site db.Site, props []db.Property, input model.SiteInput) error {
	var failures model.ValidationErrors
	for _, prop := range props {
		if !prop.Unique || prop.Kind == model.KindChoice {
			continue
		}
		values := input.Values[prop.ShortName].Strings(false)
		if len(values) == 0 || values[0] == "" {
			continue
		}

		var count int64
		sql := tx.Model(&db.SiteData{}).
			Where("property_id = ? AND value = ? AND site_id <> ?", prop.ID, values[0], site.ID).
			Count(&count)
		if sql.Error != nil {
			return sql.Error
		}
		if count > 0 {
			failures = append(failures, model.ValidationFailure{
				Field:   prop.ShortName,
				Message: fmt.Sprintf("Waarde %s bestaat al voor eigenschap %s.", values[0], prop.Label),
			})
		}
	}
	if len(failures) > 0 {
		return failures
	}
	return nil
}

// reconcileData brings the site_data rows of one property in line with
// the input value, touching as few rows as possible so the audit diff
// stays minimal. Returns whether anything was written.
func (s *Store) reconcileData(tx *gorm.DB, actor model.Actor, site db.Site, prop db.Property, value model.FieldValue) (bool, error) {
	if prop.Multiple {
		return s.reconcileMulti(tx, actor, site, prop, value)
	}

	var desired string
	if vs := value.Strings(false); len(vs) > 0 {
		desired = vs[0]
	}

	var row db.SiteData
	sql := tx.Where("site_id = ? AND property_id = ?", site.ID, prop.ID).Limit(1).Find(&row)
	if sql.Error != nil {
		return false, sql.Error
	}

	current := dataValue(row, prop)
	if current == desired {
		return false, nil
	}
	if desired == "" && prop.Required {
		return false, requiredFailure(prop)
	}

	if row.ID == 0 {
		row = db.SiteData{SiteID: site.ID, PropertyID: prop.ID}
		if err := setDataValue(&row, prop, desired); err != nil {
			return false, err
		}
		if err := tx.Create(&row).Error; err != nil {
			return false, err
		}
		return true, audit.ValueSet(tx, actor, site, prop.Label, desired)
	}

	if desired == "" {
		// Keep the row: the property still exists for the site, its
		// value is cleared.
		sql := tx.Model(&db.SiteData{}).Where("id = ?", row.ID).
			Updates(map[string]interface{}{"value": nil, "option_id": nil})
		if sql.Error != nil {
			return false, sql.Error
		}
		return true, audit.ValueCleared(tx, actor, site, prop.Label, current)
	}

	if err := setDataValue(&row, prop, desired); err != nil {
		return false, err
	}
	sql = tx.Model(&db.SiteData{}).Where("id = ?", row.ID).
		Updates(map[string]interface{}{"value": row.Value, "option_id": row.OptionID})
	if sql.Error != nil {
		return false, sql.Error
	}
	return true, audit.ValueChanged(tx, actor, site, prop.Label, current, desired)
}

// reconcileMulti diffs the desired option set against the existing rows:
// stale rows are deleted, missing ones inserted, unchanged ones left
// untouched.
func (s *Store) reconcileMulti(tx *gorm.DB, actor model.Actor, site db.Site, prop db.Property, value model.FieldValue) (bool, error) {
	desired := make(map[string]bool)
	order := value.Strings(true)
	for _, v := range order {
		desired[v] = true
	}

	optionID := make(map[string]uint, len(prop.Options))
	optionText := make(map[uint]string, len(prop.Options))
	for _, o := range prop.Options {
		optionID[o.Option] = o.ID
		optionText[o.ID] = o.Option
	}

	var rows []db.SiteData
	sql := tx.Where("site_id = ? AND property_id = ?", site.ID, prop.ID).Order("id").Find(&rows)
	if sql.Error != nil {
		return false, sql.Error
	}

	if len(order) == 0 && prop.Required {
		for _, row := range rows {
			if row.OptionID != nil && optionText[*row.OptionID] != "" {
				return false, requiredFailure(prop)
			}
		}
	}

	changed := false
	present := make(map[string]bool)
	for _, row := range rows {
		text := ""
		if row.OptionID != nil {
			text = optionText[*row.OptionID]
		}
		if text != "" && desired[text] {
			present[text] = true
			continue
		}
		if err := tx.Delete(&db.SiteData{}, row.ID).Error; err != nil {
			return changed, err
		}
		changed = true
		if text != "" {
			if err := audit.ValueCleared(tx, actor, site, prop.Label, text); err != nil {
				return changed, err
			}
		}
	}

	for _, text := range order {
		if present[text] {
			continue
		}
		present[text] = true
		id := optionID[text]
		row := db.SiteData{SiteID: site.ID, PropertyID: prop.ID, OptionID: &id}
		if err := tx.Create(&row).Error; err != nil {
			return changed, err
		}
		changed = true
		if err := audit.ValueSet(tx, actor, site, prop.Label, text); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

func (s *Store) reconcileLink(tx *gorm.DB, actor model.Actor, site db.Site, service db.ExternalService, code *string) (bool, error) {
	var desired string
	if code != nil {
		desired = *code
	}

	var link db.SiteExternalLink
	sql := tx.Where("site_id = ? AND service_id = ?", site.ID, service.ID).Limit(1).Find(&link)
	if sql.Error != nil {
		return false, sql.Error
	}

	current := ""
	if link.Code != nil {
		current = *link.Code
	}
	if current == desired {
		return false, nil
	}

	if link.ID == 0 {
		if desired == "" {
			return false, nil
		}
		link = db.SiteExternalLink{SiteID: site.ID, ServiceID: service.ID, Code: &desired}
		if err := tx.Create(&link).Error; err != nil {
			return false, err
		}
		return true, audit.ValueSet(tx, actor, site, service.Name, desired)
	}

	if desired == "" {
		sql := tx.Model(&db.SiteExternalLink{}).Where("id = ?", link.ID).Update("code", nil)
		if sql.Error != nil {
			return false, sql.Error
		}
		return true, audit.ValueCleared(tx, actor, site, service.Name, current)
	}

	sql = tx.Model(&db.SiteExternalLink{}).Where("id = ?", link.ID).Update("code", desired)
	if sql.Error != nil {
		return false, sql.Error
	}
	return true, audit.ValueChanged(tx, actor, site, service.Name, current, desired)
}

// requiredFailure rejects the transition of a required property back to
// empty once a value has been stored.
func requiredFailure(prop db.Property) error {
	return model.ValidationErrors{{
		Field:   prop.ShortName,
		Message: fmt.Sprintf("Waarde verplicht voor %s", prop.Label),
	}}
}

// Get returns the flattened payload of one site, keyed by property and
// service short-name. Non-staff callers only see public entries.
func (s *Store) Get(actor model.Actor, pandcode int) (model.SitePayload, error) {
	var payload model.SitePayload

	site, err := s.find(pandcode)
	if err != nil {
		return payload, err
	}

	props, err := s.catalog.Properties(actor.Staff)
	if err != nil {
		return payload, err
	}
	services, err := s.catalog.Services(actor.Staff)
	if err != nil {
		return payload, err
	}

	payload = model.SitePayload{
		Pandcode: site.Pandcode,
		Name:     site.Name,
		Created:  site.CreatedAt,
		Modified: site.UpdatedAt,
		Archived: site.Archived,
		Values:   make(map[string]model.FieldValue, len(props)),
		Services: make(map[string]*string, len(services)),
	}

	var rows []db.SiteData
	sql := s.db.Where("site_id = ?", site.ID).Order("id").Find(&rows)
	if sql.Error != nil {
		return payload, sql.Error
	}
	byProperty := make(map[uint][]db.SiteData)
	for _, row := range rows {
		byProperty[row.PropertyID] = append(byProperty[row.PropertyID], row)
	}

	for _, prop := range props {
		if prop.Multiple {
			var values []string
			for _, row := range byProperty[prop.ID] {
				if v := dataValue(row, prop); v != "" {
					values = append(values, v)
				}
			}
			payload.Values[prop.ShortName] = model.FieldValue{List: values}
			continue
		}

		var value model.FieldValue
		if rows := byProperty[prop.ID]; len(rows) > 0 {
			if v := dataValue(rows[0], prop); v != "" {
				value = model.StringValue(v)
			}
		}
		payload.Values[prop.ShortName] = value
	}

	var links []db.SiteExternalLink
	sql = s.db.Where("site_id = ?", site.ID).Find(&links)
	if sql.Error != nil {
		return payload, sql.Error
	}
	byService := make(map[uint]*string, len(links))
	for _, link := range links {
		byService[link.ServiceID] = link.Code
	}
	for _, service := range services {
		payload.Services[service.ShortName] = byService[service.ID]
	}

	return payload, nil
}

// Archive flips the archived flag; the first transition to archived
// records the archival timestamp.
func (s *Store) Archive(actor model.Actor, pandcode int, archived bool) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var site db.Site
		sql := tx.Where("pandcode = ?", pandcode).Limit(1).Find(&site)
		if sql.Error != nil {
			return sql.Error
		}
		if site.ID == 0 {
			return model.NotFound{Entity: "locatie", Key: fmt.Sprint(pandcode)}
		}
		if site.Archived == archived {
			return nil
		}

		updates := map[string]interface{}{"archived": archived}
		if archived && site.ArchivedAt == nil {
			now := time.Now()
			updates["archived_at"] = now
		}
		if err := tx.Model(&db.Site{}).Where("id = ?", site.ID).Updates(updates).Error; err != nil {
			return err
		}
		return audit.Changed(tx, actor, audit.TargetSite, site.ID, site.DisplayName(),
			"Archief", model.FormatBool(site.Archived), model.FormatBool(archived))
	})
}

// Delete removes a site with its data rows and service links. Sites are
// normally archived instead; true deletion is an admin operation.
func (s *Store) Delete(actor model.Actor, pandcode int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var site db.Site
		sql := tx.Where("pandcode = ?", pandcode).Limit(1).Find(&site)
		if sql.Error != nil {
			return sql.Error
		}
		if site.ID == 0 {
			return model.NotFound{Entity: "locatie", Key: fmt.Sprint(pandcode)}
		}

		if err := tx.Where("site_id = ?", site.ID).Delete(&db.SiteData{}).Error; err != nil {
			return err
		}
		if err := tx.Where("site_id = ?", site.ID).Delete(&db.SiteExternalLink{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&db.Site{}, site.ID).Error; err != nil {
			return err
		}
		return audit.Deleted(tx, actor, audit.TargetSite, site.ID, site.DisplayName())
	})
}

func (s *Store) find(pandcode int) (db.Site, error) {
	var site db.Site
	sql := s.db.Where("pandcode = ?", pandcode).Limit(1).Find(&site)
	if sql.Error != nil {
		return site, sql.Error
	}
	if site.ID == 0 {
		return site, model.NotFound{Entity: "locatie", Key: fmt.Sprint(pandcode)}
	}
	return site, nil
}

func optionTexts(options []db.PropertyOption) []string {
	texts := make([]string, 0, len(options))
	for _, o := range options {
		texts = append(texts, o.Option)
	}
	return texts
}

// dataValue flattens a row back to its text: the option text for choice
// properties, the raw value otherwise.
func dataValue(row db.SiteData, prop db.Property) string {
	if prop.Kind == model.KindChoice {
		if row.OptionID == nil {
			return ""
		}
		for _, o := range prop.Options {
			if o.ID == *row.OptionID {
				return o.Option
			}
		}
		return ""
	}
	if row.Value == nil {
		return ""
	}
	return *row.Value
}

// setDataValue stores a text into the row's proper slot: the option
// reference for choice properties, the raw value column otherwise.
func setDataValue(row *db.SiteData, prop db.Property, value string) error {
	row.Value = nil
	row.OptionID = nil
	if value == "" {
		return nil
	}
	if prop.Kind == model.KindChoice {
		for _, o := range prop.Options {
			if o.Option == value {
				id := o.ID
				row.OptionID = &id
				return nil
			}
		}
		return fmt.Errorf("'%s' is geen geldige invoer voor %s.", value, prop.Label)
	}
	row.Value = &value
	return nil
}
