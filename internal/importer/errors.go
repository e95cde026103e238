package importer

// errors.go defines the import error taxonomy.
//
// Two failure levels exist. Whole-batch aborts (unreadable file, unmapped
// required fields) surface as typed Go errors so callers can render a
// blocking banner and never show partial counts. Everything else is a RowError
// value carried inside the ImportResult: the batch continues and the row is
// counted under failed/skipped as appropriate.

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a per-row diagnostic.
type ErrorKind string

const (
	KindStructural  ErrorKind = "structural"
	KindValidation  ErrorKind = "validation"
	KindDuplicate   ErrorKind = "duplicate"
	KindPersistence ErrorKind = "persistence"
)

// RowError is a single per-row diagnostic. RowNumber is the 1-based physical
// line the offending record starts on (the header row is line 1 in a file
// with no leading blank lines).
type RowError struct {
	RowNumber int       `json:"row_number"`
	Field     string    `json:"field,omitempty"`
	Message   string    `json:"message"`
	Kind      ErrorKind `json:"kind"`
}

func (e RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d, %s: %s", e.RowNumber, e.Field, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.RowNumber, e.Message)
}

// StructuralError is a file-level parsing failure that aborts the whole
// import before any row is processed.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return "structural error: " + e.Reason
}

// errEmptyInput is the StructuralError for a file without a header row and
// at least one data row.
func errEmptyInput() *StructuralError {
	return &StructuralError{Reason: "file must contain a header row and at least one data row"}
}

// MappingError aborts the whole import when the header mapping cannot be
// resolved: either required canonical fields have no mapped header, or an
// explicit override names a canonical key that does not exist.
type MappingError struct {
	MissingRequired []string
	UnknownKeys     []string
}

func (e *MappingError) Error() string {
	var parts []string
	if len(e.MissingRequired) > 0 {
		parts = append(parts, "no column mapped for required fields: "+strings.Join(e.MissingRequired, ", "))
	}
	if len(e.UnknownKeys) > 0 {
		parts = append(parts, "mapping references unknown fields: "+strings.Join(e.UnknownKeys, ", "))
	}
	if len(parts) == 0 {
		return "mapping error"
	}
	return "mapping error: " + strings.Join(parts, "; ")
}
