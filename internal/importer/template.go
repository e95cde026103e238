package importer

// template.go produces the downloadable CSV template users fill in before
// uploading. The template's header row uses the catalog labels, so a file
// built from it maps onto every catalog field without overrides.

import (
	"bytes"
	"encoding/csv"
)

// GenerateTemplate renders a two-row CSV: catalog labels followed by one row
// of example values.
func GenerateTemplate(catalog []CanonicalField) []byte {
	labels := make([]string, len(catalog))
	examples := make([]string, len(catalog))
	for i, f := range catalog {
		labels[i] = f.Label
		examples[i] = f.Example
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(labels)
	_ = w.Write(examples)
	w.Flush()
	return buf.Bytes()
}
