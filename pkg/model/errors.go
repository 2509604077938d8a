package model

import (
	"fmt"
	"strings"
)

// ValidationFailure reports a single rejected field value.
type ValidationFailure struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationFailure) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ValidationErrors aggregates every failure collected before a save is
// aborted, so a caller sees all offending fields at once.
type ValidationErrors []ValidationFailure

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, f := range v {
		msgs = append(msgs, f.Error())
	}
	return strings.Join(msgs, "; ")
}

// ConstraintViolation is a uniqueness, check or foreign-key violation
// surfaced from the store, named after the violated constraint.
type ConstraintViolation struct {
	Constraint string `json:"constraint"`
}

func (c ConstraintViolation) Error() string {
	return fmt.Sprintf("constraint violated: %s", c.Constraint)
}

// ImmutableField is returned on an attempt to change a field that is
// fixed after creation, such as a property's kind.
type ImmutableField struct {
	Field string `json:"field"`
}

func (i ImmutableField) Error() string {
	return fmt.Sprintf("field %s cannot be changed after creation", i.Field)
}

// ReferencedInUse blocks a delete while restricted references remain.
type ReferencedInUse struct {
	Entity string `json:"entity"`
}

func (r ReferencedInUse) Error() string {
	return fmt.Sprintf("%s is still referenced and cannot be deleted", r.Entity)
}

// NotFound reports a missing entity by kind and lookup key.
type NotFound struct {
	Entity string `json:"entity"`
	Key    string `json:"key"`
}

func (n NotFound) Error() string {
	return fmt.Sprintf("%s %q not found", n.Entity, n.Key)
}

// MalformedInput rejects input that cannot be parsed at all, such as an
// un-sniffable CSV file.
type MalformedInput struct {
	Reason string `json:"reason"`
}

func (m MalformedInput) Error() string {
	return m.Reason
}

// ErrorResponse is the JSON error envelope of the API.
type ErrorResponse struct {
	Status  int                 `json:"status"`
	Message string              `json:"message"`
	Fields  []ValidationFailure `json:"fields,omitempty"`
}
