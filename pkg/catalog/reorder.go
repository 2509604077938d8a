package catalog

import (
	"gorm.io/gorm"

	"github.com/datafundament/pandregister/pkg/db"
)

type sibling struct {
	ID    uint
	Order *int `gorm:"column:sort_order"`
}

// siblingOrder sorts a renumber scope: explicit orders first, then the
// unordered tail, ties resolved by id for determinism.
const siblingOrder = "(sort_order IS NULL), sort_order, id"

// renumber rewrites the order of every sibling in a scope after one of
// them has been saved. Siblings are walked in current order (nulls
// last); the saved instance holds the slot it asked for and everything
// else is packed around it, so the scope always ends up as a gapless
// 1..N permutation. A saved instance without a requested order is
// appended at the end.
func renumber(query *gorm.DB, update func(id uint, order int) error, savedID uint, savedOrder *int) error {
	var rows []sibling
	if err := query.Scan(&rows).Error; err != nil {
		return err
	}

	index := 1
	for _, row := range rows {
		if row.ID == savedID && savedOrder != nil {
			continue
		}
		if savedOrder != nil && index == *savedOrder {
			index++
		}
		if err := update(row.ID, index); err != nil {
			return err
		}
		index++
	}
	return nil
}

func renumberGroups(tx *gorm.DB, saved *db.PropertyGroup) error {
	query := tx.Model(&db.PropertyGroup{}).Select("id, sort_order").Order(siblingOrder)
	return renumber(query, func(id uint, order int) error {
		return tx.Model(&db.PropertyGroup{}).Where("id = ?", id).Update("sort_order", order).Error
	}, saved.ID, saved.Order)
}

// renumberProperties scopes to the saved property's group; properties
// without a group form their own bucket.
func renumberProperties(tx *gorm.DB, saved *db.Property) error {
	query := tx.Model(&db.Property{}).Select("id, sort_order").Order(siblingOrder)
	if saved.GroupID != nil {
		query = query.Where("group_id = ?", *saved.GroupID)
	} else {
		query = query.Where("group_id IS NULL")
	}
	return renumber(query, func(id uint, order int) error {
		return tx.Model(&db.Property{}).Where("id = ?", id).Update("sort_order", order).Error
	}, saved.ID, saved.Order)
}

func renumberServices(tx *gorm.DB, saved *db.ExternalService) error {
	query := tx.Model(&db.ExternalService{}).Select("id, sort_order").Order(siblingOrder)
	return renumber(query, func(id uint, order int) error {
		return tx.Model(&db.ExternalService{}).Where("id = ?", id).Update("sort_order", order).Error
	}, saved.ID, saved.Order)
}
