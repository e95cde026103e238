package importer

// validate.go applies per-field business rules to a mapped row.
//
// Rules are derived from the catalog into a declarative table
// (canonical key -> []rule) instead of hand-written conditionals, so the
// rule set is inspectable and tested once. A row with zero errors is
// eligible for transformation; any error excludes the row from commit while
// the batch continues.

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// emailRegex accepts the standard local@domain.tld shape without trying to
// implement full RFC 5322.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// minPhoneDigits is the minimum digit count for a phone value.
const minPhoneDigits = 10

// dateLayout is the only accepted date input format.
const dateLayout = "2006-01-02"

// minDate is the lower bound for date fields; the upper bound is one year
// from the current time.
var minDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// rule checks one non-empty field value. It returns "" when the value is
// acceptable, otherwise a human-readable message.
type rule func(value string) string

// RowValidator validates rows against the resolved mapping and catalog.
type RowValidator struct {
	mapping  *FieldMapping
	required []string
	order    []string          // catalog declaration order, for stable output
	rules    map[string][]rule // canonical key -> rules, applied in order
	labels   map[string]string
}

// NewRowValidator builds the rule table for one import. required lists the
// canonical keys whose values must be non-empty; now anchors the date range
// check so results are stable within a batch.
func NewRowValidator(mapping *FieldMapping, catalog []CanonicalField, required []string, now time.Time) *RowValidator {
	v := &RowValidator{
		mapping:  mapping,
		required: required,
		rules:    make(map[string][]rule, len(catalog)),
		labels:   make(map[string]string, len(catalog)),
	}
	for _, f := range catalog {
		v.order = append(v.order, f.Key)
		v.rules[f.Key] = rulesFor(f, now)
		v.labels[f.Key] = f.Label
	}
	return v
}

// rulesFor derives the rule list for a catalog field.
func rulesFor(f CanonicalField, now time.Time) []rule {
	switch f.Type {
	case FieldEmail:
		return []rule{checkEmail}
	case FieldPhone:
		return []rule{checkPhone}
	case FieldDate:
		max := now.AddDate(1, 0, 0)
		return []rule{checkDate(max)}
	case FieldEnum:
		return []rule{checkEnum(f.EnumValues)}
	case FieldNumeric:
		return []rule{checkAmount}
	default:
		return nil
	}
}

// Validate applies presence and per-field rules to one row. Every error is
// tagged with the row's physical line number and the offending canonical key.
func (v *RowValidator) Validate(row Row) []RowError {
	var errs []RowError

	for _, key := range v.required {
		val, ok := v.mapping.Value(row, key)
		if !ok {
			// Required-field coverage is enforced before rows are processed;
			// an unmapped required key here means the caller skipped that
			// check, so still report it per row.
			errs = append(errs, RowError{
				RowNumber: row.Line,
				Field:     key,
				Kind:      KindValidation,
				Message:   "no column mapped for required field",
			})
			continue
		}
		if strings.TrimSpace(val) == "" {
			errs = append(errs, RowError{
				RowNumber: row.Line,
				Field:     key,
				Kind:      KindValidation,
				Message:   fmt.Sprintf("%s is required", v.labels[key]),
			})
		}
	}

	for _, key := range v.order {
		rules := v.rules[key]
		val, ok := v.mapping.Value(row, key)
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		for _, r := range rules {
			if msg := r(val); msg != "" {
				errs = append(errs, RowError{
					RowNumber: row.Line,
					Field:     key,
					Kind:      KindValidation,
					Message:   msg,
				})
			}
		}
	}

	return errs
}

func checkEmail(value string) string {
	if !emailRegex.MatchString(strings.TrimSpace(value)) {
		return fmt.Sprintf("%q is not a valid email address", value)
	}
	return ""
}

func checkPhone(value string) string {
	if len(digitsOf(value)) < minPhoneDigits {
		return fmt.Sprintf("phone number must contain at least %d digits", minPhoneDigits)
	}
	return ""
}

func checkDate(max time.Time) rule {
	return func(value string) string {
		t, err := time.Parse(dateLayout, value)
		if err != nil {
			return fmt.Sprintf("%q is not a valid date (use YYYY-MM-DD)", value)
		}
		if t.Before(minDate) || t.After(max) {
			return fmt.Sprintf("date %s is out of range", t.Format(dateLayout))
		}
		return ""
	}
}

func checkEnum(allowed []string) rule {
	return func(value string) string {
		for _, a := range allowed {
			if strings.EqualFold(a, value) {
				return ""
			}
		}
		return fmt.Sprintf("value must be one of: %s", strings.Join(allowed, ", "))
	}
}

func checkAmount(value string) string {
	amount, err := decimal.NewFromString(cleanAmount(value))
	if err != nil {
		return fmt.Sprintf("%q is not a valid amount", value)
	}
	if amount.IsNegative() {
		return "amount must not be negative"
	}
	return ""
}

// cleanAmount strips currency symbols, thousands separators and interior
// whitespace from a monetary value.
func cleanAmount(s string) string {
	s = strings.TrimSpace(s)
	for _, sym := range []string{"$", "€", "£", ","} {
		s = strings.ReplaceAll(s, sym, "")
	}
	return strings.TrimSpace(strings.ReplaceAll(s, " ", ""))
}

// digitsOf returns only the decimal digits of a string.
func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
