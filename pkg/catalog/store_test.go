package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/model"
)

var staff = model.Actor{Username: "beheerder", Staff: true}

func testStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	database, err := db.New(context.Background(), "sqlite", ":memory:", &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewStore(database), database
}

func intPtr(i int) *int { return &i }

func TestSavePropertyAssignsRequestedSlot(t *testing.T) {
	store, _ := testStore(t)

	a := &db.Property{ShortName: "eigenschap_a", Label: "A", Kind: model.KindString, Order: intPtr(1)}
	require.NoError(t, store.SaveProperty(staff, a))
	require.Equal(t, 1, *a.Order)

	// B claims slot 1; A shifts to 2.
	b := &db.Property{ShortName: "eigenschap_b", Label: "B", Kind: model.KindString, Order: intPtr(1)}
	require.NoError(t, store.SaveProperty(staff, b))
	require.Equal(t, 1, *b.Order)

	reloaded, err := store.GetProperty(a.ID)
	require.NoError(t, err)
	require.Equal(t, 2, *reloaded.Order)
}

func TestSavePropertyNilOrderGoesLast(t *testing.T) {
	store, _ := testStore(t)

	first := &db.Property{ShortName: "eerste", Label: "Eerste", Kind: model.KindString, Order: intPtr(1)}
	require.NoError(t, store.SaveProperty(staff, first))

	unordered := &db.Property{ShortName: "laatste", Label: "Laatste", Kind: model.KindString}
	require.NoError(t, store.SaveProperty(staff, unordered))

	props, err := store.Properties(true)
	require.NoError(t, err)
	require.Len(t, props, 2)
	require.Equal(t, "eerste", props[0].ShortName)
	require.Equal(t, "laatste", props[1].ShortName)
}

func TestPropertyKindIsImmutable(t *testing.T) {
	store, _ := testStore(t)

	prop := &db.Property{ShortName: "opp", Label: "Oppervlakte", Kind: model.KindNum}
	require.NoError(t, store.SaveProperty(staff, prop))

	prop.Kind = model.KindString
	err := store.SaveProperty(staff, prop)
	require.ErrorAs(t, err, &model.ImmutableField{})
}

func TestMultipleRequiresChoice(t *testing.T) {
	store, _ := testStore(t)

	prop := &db.Property{ShortName: "teams", Label: "Teams", Kind: model.KindString, Multiple: true}
	err := store.SaveProperty(staff, prop)

	var violation model.ConstraintViolation
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "multiple_requires_choice", violation.Constraint)
}

func TestPropertyShortNameFormat(t *testing.T) {
	store, _ := testStore(t)

	prop := &db.Property{ShortName: "Foute Naam", Label: "Fout", Kind: model.KindString}
	err := store.SaveProperty(staff, prop)
	require.ErrorAs(t, err, &model.ValidationErrors{})
}

func TestPropertyShortNameUnique(t *testing.T) {
	store, _ := testStore(t)

	require.NoError(t, store.SaveProperty(staff, &db.Property{
		ShortName: "opp", Label: "Oppervlakte", Kind: model.KindNum,
	}))

	err := store.SaveProperty(staff, &db.Property{
		ShortName: "opp", Label: "Andere", Kind: model.KindNum,
	})
	var violation model.ConstraintViolation
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "unique_property_name", violation.Constraint)
}

func TestPropertiesHidesPrivateFromAnonymous(t *testing.T) {
	store, _ := testStore(t)

	require.NoError(t, store.SaveProperty(staff, &db.Property{
		ShortName: "openbaar", Label: "Openbaar", Kind: model.KindString, Public: true,
	}))
	require.NoError(t, store.SaveProperty(staff, &db.Property{
		ShortName: "intern", Label: "Intern", Kind: model.KindString,
	}))

	all, err := store.Properties(true)
	require.NoError(t, err)
	require.Len(t, all, 2)

	public, err := store.Properties(false)
	require.NoError(t, err)
	require.Len(t, public, 1)
	require.Equal(t, "openbaar", public[0].ShortName)
}

func TestDeleteOptionInUse(t *testing.T) {
	store, database := testStore(t)

	prop := &db.Property{ShortName: "verdieping", Label: "Verdieping", Kind: model.KindChoice}
	require.NoError(t, store.SaveProperty(staff, prop))

	option := &db.PropertyOption{PropertyID: prop.ID, Option: "Eerste"}
	require.NoError(t, store.SaveOption(staff, option))

	site := db.Site{Pandcode: 1, Name: "Stadskantoor"}
	require.NoError(t, database.Create(&site).Error)
	require.NoError(t, database.Create(&db.SiteData{
		SiteID: site.ID, PropertyID: prop.ID, OptionID: &option.ID,
	}).Error)

	err := store.DeleteOption(staff, option.ID)
	require.ErrorAs(t, err, &model.ReferencedInUse{})

	// clearing the reference unblocks the delete
	require.NoError(t, database.Where("option_id = ?", option.ID).Delete(&db.SiteData{}).Error)
	require.NoError(t, store.DeleteOption(staff, option.ID))
}

func TestDuplicateOptionRejected(t *testing.T) {
	store, _ := testStore(t)

	prop := &db.Property{ShortName: "verdieping", Label: "Verdieping", Kind: model.KindChoice}
	require.NoError(t, store.SaveProperty(staff, prop))
	require.NoError(t, store.SaveOption(staff, &db.PropertyOption{PropertyID: prop.ID, Option: "Eerste"}))

	err := store.SaveOption(staff, &db.PropertyOption{PropertyID: prop.ID, Option: "Eerste"})
	var violation model.ConstraintViolation
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "unique_property_option", violation.Constraint)
}

func TestDeleteGroupKeepsProperties(t *testing.T) {
	store, _ := testStore(t)

	group := &db.PropertyGroup{Name: "Gebouw"}
	require.NoError(t, store.SaveGroup(staff, group))

	prop := &db.Property{ShortName: "opp", Label: "Oppervlakte", Kind: model.KindNum, GroupID: &group.ID}
	require.NoError(t, store.SaveProperty(staff, prop))

	require.NoError(t, store.DeleteGroup(staff, group.ID))

	reloaded, err := store.GetProperty(prop.ID)
	require.NoError(t, err)
	require.Nil(t, reloaded.GroupID)
}

func TestGroupOrderingScopesProperties(t *testing.T) {
	store, _ := testStore(t)

	groupB := &db.PropertyGroup{Name: "B groep", Order: intPtr(2)}
	require.NoError(t, store.SaveGroup(staff, groupB))
	groupA := &db.PropertyGroup{Name: "A groep", Order: intPtr(1)}
	require.NoError(t, store.SaveGroup(staff, groupA))

	require.NoError(t, store.SaveProperty(staff, &db.Property{
		ShortName: "in_b", Label: "In B", Kind: model.KindString, GroupID: &groupB.ID, Order: intPtr(1),
	}))
	require.NoError(t, store.SaveProperty(staff, &db.Property{
		ShortName: "in_a", Label: "In A", Kind: model.KindString, GroupID: &groupA.ID, Order: intPtr(1),
	}))
	require.NoError(t, store.SaveProperty(staff, &db.Property{
		ShortName: "los", Label: "Los", Kind: model.KindString,
	}))

	props, err := store.Properties(true)
	require.NoError(t, err)
	require.Len(t, props, 3)
	require.Equal(t, "in_a", props[0].ShortName)
	require.Equal(t, "in_b", props[1].ShortName)
	require.Equal(t, "los", props[2].ShortName)
}

func TestDeletePropertyRemovesOptionsAndData(t *testing.T) {
	store, database := testStore(t)

	prop := &db.Property{ShortName: "verdieping", Label: "Verdieping", Kind: model.KindChoice}
	require.NoError(t, store.SaveProperty(staff, prop))
	option := &db.PropertyOption{PropertyID: prop.ID, Option: "Eerste"}
	require.NoError(t, store.SaveOption(staff, option))

	site := db.Site{Pandcode: 1, Name: "Stadskantoor"}
	require.NoError(t, database.Create(&site).Error)
	require.NoError(t, database.Create(&db.SiteData{
		SiteID: site.ID, PropertyID: prop.ID, OptionID: &option.ID,
	}).Error)

	require.NoError(t, store.DeleteProperty(staff, prop.ID))

	var count int64
	require.NoError(t, database.Model(&db.SiteData{}).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, database.Model(&db.PropertyOption{}).Count(&count).Error)
	require.Zero(t, count)

	_, err := store.GetProperty(prop.ID)
	require.ErrorAs(t, err, &model.NotFound{})
}

func TestPropertyChangesAreAudited(t *testing.T) {
	store, database := testStore(t)

	prop := &db.Property{ShortName: "opp", Label: "Oppervlakte", Kind: model.KindNum}
	require.NoError(t, store.SaveProperty(staff, prop))

	prop.Required = true
	require.NoError(t, store.SaveProperty(staff, prop))

	var entries []db.LogEntry
	require.NoError(t, database.
		Where("target_type = ? AND target_id = ?", "Property", prop.ID).
		Order("id").Find(&entries).Error)
	require.Len(t, entries, 2)
	require.Equal(t, "Oppervlakte is aangemaakt.", entries[0].Message)
	require.Equal(t, "Verplicht veld", *entries[1].Field)
	require.Equal(t, "Waarde was (Nee), is gewijzigd naar (Ja).", entries[1].Message)
	require.Equal(t, "beheerder", *entries[1].Actor)
}
