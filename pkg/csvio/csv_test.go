package csvio

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/datafundament/pandregister/pkg/catalog"
	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/model"
	"github.com/datafundament/pandregister/pkg/query"
	"github.com/datafundament/pandregister/pkg/sites"
)

var staff = model.Actor{Username: "beheerder", Staff: true}

func testEngine(t *testing.T) (*Engine, *sites.Store) {
	t.Helper()
	database, err := db.New(context.Background(), "sqlite", ":memory:", &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	cat := catalog.NewStore(database)
	require.NoError(t, cat.SaveProperty(staff, &db.Property{
		ShortName: "oppervlakte", Label: "Oppervlakte", Kind: model.KindNum,
	}))
	team := &db.Property{ShortName: "team", Label: "Team", Kind: model.KindChoice, Multiple: true}
	require.NoError(t, cat.SaveProperty(staff, team))
	for _, option := range []string{"Team1", "Team2", "Team3"} {
		require.NoError(t, cat.SaveOption(staff, &db.PropertyOption{PropertyID: team.ID, Option: option}))
	}
	require.NoError(t, cat.SaveService(staff, &db.ExternalService{
		Name: "BAG", ShortName: "bag",
	}))

	store := sites.NewStore(database, cat)
	qry := query.NewEngine(database, cat)
	return NewEngine(cat, store, qry), store
}

func TestExportHeaderAndRows(t *testing.T) {
	engine, store := testEngine(t)

	_, err := store.Save(staff, model.SiteInput{
		Name: "Stadskantoor",
		Values: map[string]model.FieldValue{
			"oppervlakte": model.StringValue("2500"),
			"team":        model.ListValue("Team1", "Team2"),
		},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, engine.Export(&buf, staff, model.SearchParams{Archive: "all"}))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\ufeff"), "export must carry a BOM")

	lines := strings.Split(strings.TrimSuffix(strings.TrimPrefix(out, "\ufeff"), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "pandcode;naam;oppervlakte;team;bag;aangemaakt;gewijzigd;archief", lines[0])

	fields := strings.Split(lines[1], ";")
	require.Equal(t, "1", fields[0])
	require.Equal(t, "Stadskantoor", fields[1])
	require.Equal(t, "2500", fields[2])
	require.Equal(t, "Team1|Team2", fields[3])
	require.Equal(t, "", fields[4])
	require.Equal(t, "Nee", fields[7])
}

func TestExportEmptyResultKeepsHeader(t *testing.T) {
	engine, _ := testEngine(t)

	var buf bytes.Buffer
	require.NoError(t, engine.Export(&buf, staff, model.SearchParams{}))

	lines := strings.Split(strings.TrimSuffix(strings.TrimPrefix(buf.String(), "\ufeff"), "\n"), "\n")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "pandcode;naam")
}

func TestImportRoundTrip(t *testing.T) {
	engine, store := testEngine(t)

	_, err := store.Save(staff, model.SiteInput{
		Name: "Stadskantoor",
		Values: map[string]model.FieldValue{
			"oppervlakte": model.StringValue("2500"),
			"team":        model.ListValue("Team1", "Team3"),
		},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, engine.Export(&buf, staff, model.SearchParams{Archive: "all"}))

	// importing into a fresh register reproduces the site
	fresh, freshStore := testEngine(t)
	result, err := fresh.Import(staff, &buf)
	require.NoError(t, err)
	require.Equal(t, 1, result.Added)
	require.Empty(t, result.Warnings)
	require.Empty(t, result.Errors)

	payload, err := freshStore.Get(staff, 1)
	require.NoError(t, err)
	require.Equal(t, "Stadskantoor", payload.Name)
	require.Equal(t, "2500", *payload.Values["oppervlakte"].Scalar)
	require.ElementsMatch(t, []string{"Team1", "Team3"}, payload.Values["team"].List)
}

func TestImportSkipsBadRows(t *testing.T) {
	engine, store := testEngine(t)

	input := "pandcode;naam;oppervlakte\n" +
		";Stadskantoor\n" + // one column short
		";Bibliotheek;800\n" +
		";Depot;100;teveel\n" // one column over

	result, err := engine.Import(staff, strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 1, result.Added)
	require.Len(t, result.Warnings, 2)
	require.Contains(t, result.Warnings[0], "Rij 2 is niet verwerkt want deze mist een kolom")
	require.Contains(t, result.Warnings[1], "Rij 4 is niet verwerkt want deze heeft teveel kolommen")

	payload, err := store.Get(staff, 1)
	require.NoError(t, err)
	require.Equal(t, "Bibliotheek", payload.Name)
	require.Equal(t, "800", *payload.Values["oppervlakte"].Scalar)
}

func TestImportCollectsRowErrors(t *testing.T) {
	engine, _ := testEngine(t)

	input := "pandcode;naam;oppervlakte\n" +
		";Stadskantoor;geen getal\n" +
		";Bibliotheek;800\n"

	result, err := engine.Import(staff, strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 1, result.Added)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "Stadskantoor")
}

func TestImportWarnsOnBadPandcode(t *testing.T) {
	engine, store := testEngine(t)

	input := "pandcode;naam\n" +
		"abc;Stadskantoor\n" +
		";Bibliotheek\n"

	result, err := engine.Import(staff, strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 1, result.Added)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, "Rij 2 is niet verwerkt want de pandcode is ongeldig", result.Warnings[0])

	// the bad row never became a site at max+1
	payload, err := store.Get(staff, 1)
	require.NoError(t, err)
	require.Equal(t, "Bibliotheek", payload.Name)
	_, err = store.Get(staff, 2)
	require.ErrorAs(t, err, &model.NotFound{})
}

func TestImportRejectsWrongSeparator(t *testing.T) {
	engine, _ := testEngine(t)

	_, err := engine.Import(staff, strings.NewReader("pandcode,naam\n1,Stadskantoor\n"))
	require.ErrorAs(t, err, &model.MalformedInput{})
}

func TestImportIgnoresUnknownColumns(t *testing.T) {
	engine, store := testEngine(t)

	input := "pandcode;naam;onbekend\n;Stadskantoor;negeer mij\n"

	result, err := engine.Import(staff, strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 1, result.Added)
	require.ElementsMatch(t, []string{"pandcode", "naam"}, result.Columns)

	payload, err := store.Get(staff, 1)
	require.NoError(t, err)
	require.Equal(t, "Stadskantoor", payload.Name)
}

func TestImportStripsBOM(t *testing.T) {
	engine, _ := testEngine(t)

	input := "\ufeffpandcode;naam\n;Stadskantoor\n"
	result, err := engine.Import(staff, strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 1, result.Added)
	require.Contains(t, result.Columns, "pandcode")
}

func TestFilename(t *testing.T) {
	name := Filename(mustTime(t, "2026-08-29T14:05:00"))
	require.Equal(t, "locaties_export_2026-08-29_14.05.csv", name)
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.ParseInLocation("2006-01-02T15:04:05", value, time.Local)
	require.NoError(t, err)
	return parsed
}
