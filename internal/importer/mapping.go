package importer

// mapping.go resolves arbitrary CSV headers onto the canonical field catalog.
//
// Matching is heuristic but deterministic: headers are normalized (lowercase,
// letters only) and tried against the catalog with three rules of decreasing
// strictness. Explicit caller overrides are merged last and always win.

import (
	"sort"
	"strings"
	"unicode"
)

// FieldMapping is the resolved association of source CSV columns to
// canonical fields for one import. At most one column maps to each canonical
// key.
type FieldMapping struct {
	headers []string       // original header strings, by column
	keys    []string       // canonical key per column, "" when unmapped
	byKey   map[string]int // canonical key -> column index
}

// Headers returns the original header row.
func (m *FieldMapping) Headers() []string { return m.headers }

// KeyFor returns the canonical key mapped to a column, or "" if the column
// is unmapped.
func (m *FieldMapping) KeyFor(col int) string {
	if col < 0 || col >= len(m.keys) {
		return ""
	}
	return m.keys[col]
}

// Column returns the column index mapped to a canonical key.
func (m *FieldMapping) Column(key string) (int, bool) {
	col, ok := m.byKey[key]
	return col, ok
}

// Value extracts the raw value for a canonical key from a row. The second
// return is false when no column is mapped to the key.
func (m *FieldMapping) Value(row Row, key string) (string, bool) {
	col, ok := m.byKey[key]
	if !ok || col >= len(row.Fields) {
		return "", false
	}
	return row.Fields[col], true
}

// Missing returns the required keys that have no mapped column, in the order
// given.
func (m *FieldMapping) Missing(required []string) []string {
	var missing []string
	for _, key := range required {
		if _, ok := m.byKey[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// Pairs returns the mapping as header -> canonical key, for display.
func (m *FieldMapping) Pairs() map[string]string {
	out := make(map[string]string)
	for col, key := range m.keys {
		if key != "" {
			out[m.headers[col]] = key
		}
	}
	return out
}

// NormalizeHeader lowercases a header and strips every non-letter rune, so
// "E-mail Address", "email_address" and "EmailAddress" normalize identically.
func NormalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchHeader guesses which canonical field a single header refers to. It is
// pure: the result depends only on the header text and catalog order. Rules,
// tried in sequence across the whole catalog:
//
//  1. exact normalized match against a field's label or key
//  2. substring containment, either direction, against the normalized label
//  3. exact normalized match against a field's synonyms
//
// Returns false when no rule matches.
func MatchHeader(header string, catalog []CanonicalField) (string, bool) {
	return matchHeader(NormalizeHeader(header), catalog, nil)
}

func matchHeader(norm string, catalog []CanonicalField, claimed map[string]bool) (string, bool) {
	if norm == "" {
		return "", false
	}

	for _, f := range catalog {
		if claimed[f.Key] {
			continue
		}
		if norm == NormalizeHeader(f.Label) || norm == NormalizeHeader(f.Key) {
			return f.Key, true
		}
	}

	for _, f := range catalog {
		if claimed[f.Key] {
			continue
		}
		label := NormalizeHeader(f.Label)
		if label == "" {
			continue
		}
		if strings.Contains(norm, label) || strings.Contains(label, norm) {
			return f.Key, true
		}
	}

	for _, f := range catalog {
		if claimed[f.Key] {
			continue
		}
		for _, syn := range f.Synonyms {
			if norm == NormalizeHeader(syn) {
				return f.Key, true
			}
		}
	}

	return "", false
}

// ResolveMapping derives the field mapping for a header row. Auto-detection
// walks headers in file order; once a canonical key is claimed a later header
// cannot claim it. Explicit overrides (header name -> canonical key) are
// merged last and displace any auto-detected claim for the same key. An
// override naming a canonical key that is not in the catalog is a
// *MappingError. Unmatched headers stay unmapped and are ignored downstream.
func ResolveMapping(headers []string, catalog []CanonicalField, overrides map[string]string) (*FieldMapping, error) {
	m := &FieldMapping{
		headers: headers,
		keys:    make([]string, len(headers)),
		byKey:   make(map[string]int),
	}

	claimed := make(map[string]bool)
	for col, h := range headers {
		key, ok := matchHeader(NormalizeHeader(h), catalog, claimed)
		if !ok {
			continue
		}
		m.keys[col] = key
		m.byKey[key] = col
		claimed[key] = true
	}

	if len(overrides) == 0 {
		return m, nil
	}

	var unknown []string
	for header, key := range overrides {
		if _, ok := fieldByKey(catalog, key); !ok {
			unknown = append(unknown, key)
			continue
		}

		col := findHeaderColumn(headers, header)
		if col < 0 {
			// Override for a header that is not in this file; nothing to bind.
			continue
		}

		// Displace any previous claim of the key or of the column.
		if prev, ok := m.byKey[key]; ok {
			m.keys[prev] = ""
		}
		if old := m.keys[col]; old != "" {
			delete(m.byKey, old)
		}
		m.keys[col] = key
		m.byKey[key] = col
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &MappingError{UnknownKeys: unknown}
	}

	return m, nil
}

// findHeaderColumn locates a header by name, case-insensitively and ignoring
// surrounding whitespace. Returns -1 when absent.
func findHeaderColumn(headers []string, name string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}
