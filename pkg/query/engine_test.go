package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/datafundament/pandregister/pkg/catalog"
	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/model"
	"github.com/datafundament/pandregister/pkg/sites"
)

var staff = model.Actor{Username: "beheerder", Staff: true}

// testEngine seeds three sites: the Stadskantoor (archived), the
// Bibliotheek and the Depot, with a mix of public and private values.
func testEngine(t *testing.T) *Engine {
	t.Helper()
	database, err := db.New(context.Background(), "sqlite", ":memory:", &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	cat := catalog.NewStore(database)
	require.NoError(t, cat.SaveProperty(staff, &db.Property{
		ShortName: "adres", Label: "Adres", Kind: model.KindString, Public: true,
	}))
	require.NoError(t, cat.SaveProperty(staff, &db.Property{
		ShortName: "beheerder", Label: "Beheerder", Kind: model.KindString,
	}))
	verdieping := &db.Property{ShortName: "verdieping", Label: "Verdieping", Kind: model.KindChoice, Public: true}
	require.NoError(t, cat.SaveProperty(staff, verdieping))
	for _, option := range []string{"Begane grond", "Eerste"} {
		require.NoError(t, cat.SaveOption(staff, &db.PropertyOption{PropertyID: verdieping.ID, Option: option}))
	}
	require.NoError(t, cat.SaveService(staff, &db.ExternalService{
		Name: "BAG", ShortName: "bag", Public: true,
	}))

	store := sites.NewStore(database, cat)
	code := func(s string) *string { return &s }

	one, err := store.Save(staff, model.SiteInput{
		Name: "Stadskantoor",
		Values: map[string]model.FieldValue{
			"adres":      model.StringValue("Spui 70"),
			"beheerder":  model.StringValue("Jansen"),
			"verdieping": model.StringValue("Eerste"),
		},
		Services: map[string]*string{"bag": code("0363777")},
	})
	require.NoError(t, err)
	require.NoError(t, store.Archive(staff, one, true))

	_, err = store.Save(staff, model.SiteInput{
		Name: "Bibliotheek",
		Values: map[string]model.FieldValue{
			"adres":      model.StringValue("Spui 68"),
			"beheerder":  model.StringValue("Pietersen"),
			"verdieping": model.StringValue("Begane grond"),
		},
	})
	require.NoError(t, err)

	_, err = store.Save(staff, model.SiteInput{
		Name:   "Depot",
		Values: map[string]model.FieldValue{"beheerder": model.StringValue("Jansen")},
	})
	require.NoError(t, err)

	return NewEngine(database, cat)
}

func names(result model.SearchResult) []string {
	var out []string
	for _, site := range result.Sites {
		out = append(out, site.Name)
	}
	return out
}

func TestFullTextSearch(t *testing.T) {
	engine := testEngine(t)

	// matches raw values across properties, case-insensitive
	result, err := engine.Search(staff, model.SearchParams{Search: "spui", Archive: "all"})
	require.NoError(t, err)
	require.Equal(t, []string{"Bibliotheek", "Stadskantoor"}, names(result))

	// matches site names
	result, err = engine.Search(staff, model.SearchParams{Search: "depot"})
	require.NoError(t, err)
	require.Equal(t, []string{"Depot"}, names(result))

	// matches option texts
	result, err = engine.Search(staff, model.SearchParams{Search: "begane"})
	require.NoError(t, err)
	require.Equal(t, []string{"Bibliotheek"}, names(result))

	// matches service codes
	result, err = engine.Search(staff, model.SearchParams{Search: "0363777", Archive: "all"})
	require.NoError(t, err)
	require.Equal(t, []string{"Stadskantoor"}, names(result))
}

func TestSearchByName(t *testing.T) {
	engine := testEngine(t)

	result, err := engine.Search(staff, model.SearchParams{Property: "naam", Search: "biblio"})
	require.NoError(t, err)
	require.Equal(t, []string{"Bibliotheek"}, names(result))
}

func TestSearchByPandcode(t *testing.T) {
	engine := testEngine(t)

	result, err := engine.Search(staff, model.SearchParams{
		Property: "pandcode", Search: "1", Archive: "all",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Stadskantoor"}, names(result))

	// non-numeric pandcode terms fall back to full-text
	result, err = engine.Search(staff, model.SearchParams{Property: "pandcode", Search: "depot"})
	require.NoError(t, err)
	require.Equal(t, []string{"Depot"}, names(result))
}

func TestSearchByProperty(t *testing.T) {
	engine := testEngine(t)

	result, err := engine.Search(staff, model.SearchParams{
		Property: "beheerder", Search: "jansen", Archive: "all",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Depot", "Stadskantoor"}, names(result))
}

func TestSearchByService(t *testing.T) {
	engine := testEngine(t)

	result, err := engine.Search(staff, model.SearchParams{
		Property: "bag", Search: "0363", Archive: "all",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Stadskantoor"}, names(result))
}

func TestChoicePropertyMatchesExactOption(t *testing.T) {
	engine := testEngine(t)

	result, err := engine.Search(staff, model.SearchParams{
		Property: "verdieping",
		Extra:    map[string]string{"verdieping": "Begane grond"},
		Archive:  "all",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Bibliotheek"}, names(result))

	// substring of an option text is not an exact match
	result, err = engine.Search(staff, model.SearchParams{
		Property: "verdieping",
		Extra:    map[string]string{"verdieping": "Begane"},
		Archive:  "all",
	})
	require.NoError(t, err)
	require.Empty(t, result.Sites)
}

func TestArchiveFilter(t *testing.T) {
	engine := testEngine(t)

	// default hides archived sites
	result, err := engine.Search(staff, model.SearchParams{})
	require.NoError(t, err)
	require.Equal(t, []string{"Bibliotheek", "Depot"}, names(result))

	result, err = engine.Search(staff, model.SearchParams{Archive: "archived"})
	require.NoError(t, err)
	require.Equal(t, []string{"Stadskantoor"}, names(result))

	result, err = engine.Search(staff, model.SearchParams{Archive: "all"})
	require.NoError(t, err)
	require.Equal(t, []string{"Bibliotheek", "Depot", "Stadskantoor"}, names(result))
	require.EqualValues(t, 3, result.Total)
}

func TestAnonymousVisibility(t *testing.T) {
	engine := testEngine(t)

	// archived sites stay hidden even when asked for
	result, err := engine.Search(model.Anonymous, model.SearchParams{Archive: "all"})
	require.NoError(t, err)
	require.Equal(t, []string{"Bibliotheek", "Depot"}, names(result))

	// private values don't match for anonymous callers
	result, err = engine.Search(model.Anonymous, model.SearchParams{Search: "pietersen"})
	require.NoError(t, err)
	require.Empty(t, result.Sites)

	// public values do
	result, err = engine.Search(model.Anonymous, model.SearchParams{Search: "spui"})
	require.NoError(t, err)
	require.Equal(t, []string{"Bibliotheek"}, names(result))
}

func TestOrdering(t *testing.T) {
	engine := testEngine(t)

	result, err := engine.Search(staff, model.SearchParams{
		Archive: "all", OrderBy: "pandcode", Order: "desc",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Depot", "Bibliotheek", "Stadskantoor"}, names(result))
}

func TestAllReturnsEveryMatch(t *testing.T) {
	engine := testEngine(t)

	pandcodes, err := engine.All(staff, model.SearchParams{Archive: "all", OrderBy: "pandcode"})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, pandcodes)
}

func TestUnknownPropertyFallsBackToFullText(t *testing.T) {
	engine := testEngine(t)

	result, err := engine.Search(staff, model.SearchParams{
		Property: "bestaat_niet", Search: "depot",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Depot"}, names(result))
}
