// Package csvio moves site records in and out of the semicolon-separated
// CSV dialect the register has always spoken: UTF-8 with a BOM, one row
// per site, columns following the catalog order.
package csvio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/maps"

	"github.com/datafundament/pandregister/pkg/catalog"
	"github.com/datafundament/pandregister/pkg/model"
	"github.com/datafundament/pandregister/pkg/query"
	"github.com/datafundament/pandregister/pkg/sites"
)

const (
	separator = ';'
	bom       = "\ufeff"

	dateLayout     = "02-01-2006"
	dateTimeLayout = "02-01-2006 15:04"
	fileLayout     = "2006-01-02_15.04"
)

// Engine reads and writes site CSV files on top of the stores.
type Engine struct {
	catalog *catalog.Store
	sites   *sites.Store
	query   *query.Engine
}

func NewEngine(cat *catalog.Store, sts *sites.Store, qry *query.Engine) *Engine {
	return &Engine{catalog: cat, sites: sts, query: qry}
}

// Filename returns the download name for an export started now.
func Filename(now time.Time) string {
	return "locaties_export_" + now.Format(fileLayout) + ".csv"
}

// Export writes every site matching params, in search order, to w. The
// header row always appears, even for an empty result. Columns follow
// the caller's visibility, so anonymous exports only carry public data.
func (e *Engine) Export(w io.Writer, actor model.Actor, params model.SearchParams) error {
	props, err := e.catalog.Properties(actor.Staff)
	if err != nil {
		return err
	}
	services, err := e.catalog.Services(actor.Staff)
	if err != nil {
		return err
	}
	pandcodes, err := e.query.All(actor, params)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(w, bom); err != nil {
		return err
	}
	out := csv.NewWriter(w)
	out.Comma = separator

	header := []string{"pandcode", "naam"}
	for _, prop := range props {
		header = append(header, prop.ShortName)
	}
	for _, service := range services {
		header = append(header, service.ShortName)
	}
	header = append(header, "aangemaakt", "gewijzigd", "archief")
	if err := out.Write(header); err != nil {
		return err
	}

	for _, pandcode := range pandcodes {
		payload, err := e.sites.Get(actor, pandcode)
		if err != nil {
			return err
		}

		row := []string{strconv.Itoa(payload.Pandcode), payload.Name}
		for _, prop := range props {
			row = append(row, cell(payload.Values[prop.ShortName]))
		}
		for _, service := range services {
			code := payload.Services[service.ShortName]
			if code == nil {
				row = append(row, "")
			} else {
				row = append(row, *code)
			}
		}
		row = append(row,
			payload.Created.Local().Format(dateLayout),
			payload.Modified.Local().Format(dateTimeLayout),
			model.FormatBool(payload.Archived))
		if err := out.Write(row); err != nil {
			return err
		}
	}

	out.Flush()
	return out.Error()
}

// cell flattens a field value for one CSV cell, joining multi-valued
// entries with the pipe separator.
func cell(value model.FieldValue) string {
	if value.List != nil {
		return strings.Join(value.List, "|")
	}
	if value.Scalar == nil {
		return ""
	}
	return *value.Scalar
}

// Import reads a CSV batch and saves each row as a full site submission.
// Rows with the wrong number of columns are skipped with a warning; rows
// the site store rejects are reported but do not stop the batch. Only a
// file that cannot be parsed at all fails outright.
func (e *Engine) Import(actor model.Actor, r io.Reader) (model.ImportResult, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return model.ImportResult{}, err
	}
	raw = bytes.TrimPrefix(raw, []byte(bom))

	firstLine, _, _ := bytes.Cut(raw, []byte("\n"))
	if !bytes.ContainsRune(firstLine, separator) {
		return model.ImportResult{}, model.MalformedInput{
			Reason: "De locaties kunnen niet ingelezen worden. Zorg ervoor dat je ';' als scheidingsteken en UTF-8 als codering gebruikt.",
		}
	}

	in := csv.NewReader(bytes.NewReader(raw))
	in.Comma = separator
	in.FieldsPerRecord = -1

	header, err := in.Read()
	if err != nil {
		return model.ImportResult{}, model.MalformedInput{Reason: err.Error()}
	}

	props, err := e.catalog.Properties(actor.Staff)
	if err != nil {
		return model.ImportResult{}, err
	}
	services, err := e.catalog.Services(actor.Staff)
	if err != nil {
		return model.ImportResult{}, err
	}

	propNames := make(map[string]bool, len(props))
	for _, prop := range props {
		propNames[prop.ShortName] = true
	}
	serviceNames := make(map[string]bool, len(services))
	for _, service := range services {
		serviceNames[service.ShortName] = true
	}

	// position of each usable column in the file
	columns := map[string]int{}
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "pandcode" || name == "naam" || propNames[name] || serviceNames[name] {
			columns[name] = i
		}
	}

	result := model.ImportResult{Columns: maps.Keys(columns)}
	sort.Strings(result.Columns)

	for rowNum := 2; ; rowNum++ {
		record, err := in.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Rij %d is niet verwerkt want deze kan niet gelezen worden", rowNum))
			continue
		}
		if len(record) < len(header) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Rij %d is niet verwerkt want deze mist een kolom", rowNum))
			continue
		}
		if len(record) > len(header) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Rij %d is niet verwerkt want deze heeft teveel kolommen", rowNum))
			continue
		}
		if i, ok := columns["pandcode"]; ok {
			if v := strings.TrimSpace(record[i]); v != "" {
				if _, err := strconv.Atoi(v); err != nil {
					result.Warnings = append(result.Warnings,
						fmt.Sprintf("Rij %d is niet verwerkt want de pandcode is ongeldig", rowNum))
					continue
				}
			}
		}

		input := rowInput(record, columns, propNames, serviceNames)
		if _, err := e.sites.Save(actor, input); err != nil {
			if fatal(err) {
				return result, err
			}
			result.Errors = append(result.Errors,
				fmt.Sprintf("Fout bij het importeren voor locatie %s: %v", input.Name, err))
			continue
		}
		result.Added++
	}

	return result, nil
}

// rowInput assembles the save payload for one record. Every property
// column present in the file is submitted, so an empty cell clears a
// previously stored value, just like an empty form field.
func rowInput(record []string, columns map[string]int, propNames, serviceNames map[string]bool) model.SiteInput {
	input := model.SiteInput{
		Values:   map[string]model.FieldValue{},
		Services: map[string]*string{},
	}
	for name, i := range columns {
		value := strings.TrimSpace(record[i])
		switch {
		case name == "pandcode":
			if code, err := strconv.Atoi(value); err == nil {
				input.Pandcode = &code
			}
		case name == "naam":
			input.Name = value
		case propNames[name]:
			input.Values[name] = model.StringValue(value)
		case serviceNames[name]:
			if value != "" {
				code := value
				input.Services[name] = &code
			}
		}
	}
	return input
}

// fatal reports whether a save error should abort the whole batch
// instead of being recorded against its row.
func fatal(err error) bool {
	var validation model.ValidationErrors
	var constraint model.ConstraintViolation
	var notFound model.NotFound
	return !errors.As(err, &validation) && !errors.As(err, &constraint) && !errors.As(err, &notFound)
}
