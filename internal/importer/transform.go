package importer

// transform.go converts a validated row's raw strings into canonical typed
// values. Transformation assumes the row already passed validation; values
// that still fail to parse are carried through as trimmed text rather than
// dropped.

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DuplicateStatus tags a record's duplicate classification.
type DuplicateStatus string

const (
	StatusNew              DuplicateStatus = "new"
	StatusDuplicateInBatch DuplicateStatus = "duplicate_in_batch"
	StatusExistsInStore    DuplicateStatus = "exists_in_store"
)

// CanonicalRecord is a typed member record keyed by canonical field key.
// Values holds string, []string or decimal.Decimal entries; empty source
// fields have no entry. OriginRow is the physical line the record came from.
type CanonicalRecord struct {
	OriginRow int                    `json:"origin_row"`
	Status    DuplicateStatus        `json:"status"`
	Values    map[string]interface{} `json:"values"`
}

// Email returns the record's normalized email, or "" when absent.
func (r *CanonicalRecord) Email() string {
	v, _ := r.Values["email"].(string)
	return v
}

// Text returns a string-typed value by canonical key.
func (r *CanonicalRecord) Text(key string) string {
	v, _ := r.Values[key].(string)
	return v
}

// List returns a list-typed value by canonical key.
func (r *CanonicalRecord) List(key string) []string {
	v, _ := r.Values[key].([]string)
	return v
}

// Decimal returns a numeric value by canonical key; ok is false when absent.
func (r *CanonicalRecord) Decimal(key string) (decimal.Decimal, bool) {
	v, ok := r.Values[key].(decimal.Decimal)
	return v, ok
}

// TransformRow builds a CanonicalRecord from a row that passed validation.
// Unmapped source columns are ignored.
func TransformRow(row Row, mapping *FieldMapping, catalog []CanonicalField) *CanonicalRecord {
	rec := &CanonicalRecord{
		OriginRow: row.Line,
		Values:    make(map[string]interface{}),
	}

	for _, f := range catalog {
		raw, ok := mapping.Value(row, f.Key)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		switch f.Type {
		case FieldEmail:
			rec.Values[f.Key] = NormalizeEmail(raw)
		case FieldPhone:
			rec.Values[f.Key] = FormatPhone(raw)
		case FieldDate:
			if t, err := time.Parse(dateLayout, raw); err == nil {
				rec.Values[f.Key] = t.Format(dateLayout)
			} else {
				rec.Values[f.Key] = raw
			}
		case FieldEnum:
			rec.Values[f.Key] = canonicalEnum(raw, f.EnumValues)
		case FieldList:
			if items := SplitList(raw); len(items) > 0 {
				rec.Values[f.Key] = items
			}
		case FieldNumeric:
			if amount, err := decimal.NewFromString(cleanAmount(raw)); err == nil {
				rec.Values[f.Key] = amount
			}
		default:
			rec.Values[f.Key] = raw
		}
	}

	return rec
}

// NormalizeEmail lowercases and trims an email. All duplicate comparison
// uses this form.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FormatPhone normalizes phone numbers to (XXX) XXX-XXXX for 10-digit
// values, +1 (XXX) XXX-XXXX for 11-digit values with a leading 1, and
// returns the trimmed original otherwise.
func FormatPhone(s string) string {
	digits := digitsOf(s)
	switch {
	case len(digits) == 10:
		return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
	case len(digits) == 11 && digits[0] == '1':
		return "+1 " + fmt.Sprintf("(%s) %s-%s", digits[1:4], digits[4:7], digits[7:])
	default:
		return strings.TrimSpace(s)
	}
}

// SplitList splits a list-valued field on commas and semicolons, trims each
// item and drops empties.
func SplitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var items []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}

// canonicalEnum returns the catalog's casing for an enum value matched
// case-insensitively, falling back to the trimmed input.
func canonicalEnum(value string, allowed []string) string {
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return a
		}
	}
	return strings.TrimSpace(value)
}
