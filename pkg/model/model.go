package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PropertyKind is the declared data type of a property.
type PropertyKind string

const (
	KindBool   PropertyKind = "BOOL"
	KindDate   PropertyKind = "DATE"
	KindEmail  PropertyKind = "EMAIL"
	KindGeo    PropertyKind = "GEO"
	KindNum    PropertyKind = "NUM"
	KindMemo   PropertyKind = "MEMO"
	KindPost   PropertyKind = "POST"
	KindString PropertyKind = "STR"
	KindURL    PropertyKind = "URL"
	KindChoice PropertyKind = "CHOICE"
)

var kinds = map[PropertyKind]bool{
	KindBool: true, KindDate: true, KindEmail: true, KindGeo: true,
	KindNum: true, KindMemo: true, KindPost: true, KindString: true,
	KindURL: true, KindChoice: true,
}

func IsValidPropertyKind(k PropertyKind) error {
	if !kinds[k] {
		return fmt.Errorf("%s is not a valid property kind", k)
	}
	return nil
}

// FormatBool renders a boolean with the Dutch literals used across the
// CSV format and the audit log.
func FormatBool(b bool) string {
	if b {
		return "Ja"
	}
	return "Nee"
}

// ParseBool is the inverse of FormatBool.
func ParseBool(s string) bool {
	return s == "Ja"
}

// Actor is the authenticated principal performing an operation. The zero
// value is the anonymous caller: not staff, and recorded as a null actor
// in the audit log.
type Actor struct {
	Username string
	Staff    bool
}

var Anonymous = Actor{}

func (a Actor) IsAnonymous() bool {
	return a.Username == ""
}

// Name returns the actor for audit storage, nil for anonymous callers
// and background jobs such as fixture loading.
func (a Actor) Name() *string {
	if a.IsAnonymous() {
		return nil
	}
	u := a.Username
	return &u
}

// FieldValue carries one property value as supplied by a caller: either
// a scalar string or, for multi-valued choice properties, a list. A
// scalar holding pipe-separated text is accepted for multi-valued input
// as well (the CSV convention).
type FieldValue struct {
	Scalar *string
	List   []string
}

func StringValue(s string) FieldValue {
	return FieldValue{Scalar: &s}
}

func ListValue(vs ...string) FieldValue {
	return FieldValue{List: vs}
}

// IsSet reports whether the caller supplied any value at all.
func (f FieldValue) IsSet() bool {
	return f.Scalar != nil && *f.Scalar != "" || len(f.List) > 0
}

// Strings normalizes the value into a list. Scalars split on the pipe
// separator only when the property is multi-valued.
func (f FieldValue) Strings(multiple bool) []string {
	if f.List != nil {
		return f.List
	}
	if f.Scalar == nil || *f.Scalar == "" {
		return nil
	}
	if multiple {
		return strings.Split(*f.Scalar, "|")
	}
	return []string{*f.Scalar}
}

func (f FieldValue) MarshalJSON() ([]byte, error) {
	if f.List != nil {
		return json.Marshal(f.List)
	}
	return json.Marshal(f.Scalar)
}

func (f *FieldValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = FieldValue{}
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &f.List)
	}
	return json.Unmarshal(data, &f.Scalar)
}

// SiteInput is the idempotent save payload: values and service codes are
// keyed by catalog short-name.
type SiteInput struct {
	Pandcode *int                  `json:"pandcode"`
	Name     string                `json:"naam"`
	Values   map[string]FieldValue `json:"values"`
	Services map[string]*string    `json:"services"`
}

// SitePayload is the flattened read model of one site.
type SitePayload struct {
	Pandcode int                   `json:"pandcode"`
	Name     string                `json:"naam"`
	Created  time.Time             `json:"aangemaakt"`
	Modified time.Time             `json:"gewijzigd"`
	Archived bool                  `json:"archief"`
	Values   map[string]FieldValue `json:"values"`
	Services map[string]*string    `json:"services"`
}

// SearchParams is the parameter bag of the query engine.
type SearchParams struct {
	// Property selects column-targeted search; empty means full-text.
	Property string
	// Search is the term for everything except choice properties, whose
	// term instead arrives under their own short-name in Extra.
	Search  string
	Extra   map[string]string
	Archive string
	OrderBy string
	Order   string
	Page    int
}

// ChoiceTerm returns the search term for a choice property filter.
func (p SearchParams) ChoiceTerm() string {
	return strings.TrimSpace(p.Extra[p.Property])
}

type SiteSummary struct {
	Pandcode int    `json:"pandcode"`
	Name     string `json:"naam"`
	Archived bool   `json:"archief"`
}

type SearchResult struct {
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Pages int           `json:"pages"`
	Sites []SiteSummary `json:"sites"`
}

// LoginResponse carries a freshly minted session token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Username  string    `json:"username"`
	Staff     bool      `json:"staff"`
}

// ImportResult summarizes a CSV import batch.
type ImportResult struct {
	Added    int      `json:"added"`
	Columns  []string `json:"columns"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}
