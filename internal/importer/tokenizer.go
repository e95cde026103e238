package importer

// tokenizer.go turns raw upload bytes into rows of string fields.
//
// The scanner is hand-rolled rather than built on encoding/csv for two
// reasons: fields outside quotes are trimmed while quoted fields are
// preserved verbatim, and every record keeps the physical line number it
// started on even when quoted fields contain newlines. encoding/csv exposes
// neither. Character set handling (BOMs, UTF-16, Latin-1 fallback) goes
// through golang.org/x/text before scanning.

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Row is one logical CSV record. Line is the 1-based physical line the
// record starts on in the original file.
type Row struct {
	Line   int
	Fields []string
}

// TokenizedFile is the output of Tokenize: a header row, the data rows whose
// field count matches the header, and a structural diagnostic for every data
// row that was dropped because its field count differed.
type TokenizedFile struct {
	Header   Row
	Rows     []Row
	BadRows  []RowError
	Encoding string
}

// Tokenize decodes and scans a member CSV upload. It returns a
// *StructuralError when the file cannot be decoded or holds fewer than two
// non-blank rows; per-row field-count mismatches do not fail the call and are
// reported in BadRows instead.
func Tokenize(data []byte) (*TokenizedFile, error) {
	text, enc, err := decodeText(data)
	if err != nil {
		return nil, &StructuralError{Reason: err.Error()}
	}

	rows := scanRows(text)
	if len(rows) < 2 {
		return nil, errEmptyInput()
	}

	header := rows[0]
	want := len(header.Fields)

	tf := &TokenizedFile{Header: header, Encoding: enc}
	for _, r := range rows[1:] {
		if len(r.Fields) != want {
			tf.BadRows = append(tf.BadRows, RowError{
				RowNumber: r.Line,
				Kind:      KindStructural,
				Message:   fmt.Sprintf("expected %d fields, got %d", want, len(r.Fields)),
			})
			continue
		}
		tf.Rows = append(tf.Rows, r)
	}

	return tf, nil
}

// decodeText detects the upload's character set, strips any BOM, and returns
// UTF-8 text plus the detected encoding name.
func decodeText(data []byte) (string, string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return string(data[3:]), "utf-8-bom", nil

	case bytes.HasPrefix(data, bomUTF16LE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", "", fmt.Errorf("decode UTF-16 LE: %w", err)
		}
		return string(out), "utf-16le", nil

	case bytes.HasPrefix(data, bomUTF16BE):
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", "", fmt.Errorf("decode UTF-16 BE: %w", err)
		}
		return string(out), "utf-16be", nil
	}

	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}

	// Not valid UTF-8 and no BOM: assume Latin-1, which decodes any byte
	// sequence. This matches what spreadsheet exports from older Windows
	// installs produce.
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", fmt.Errorf("decode Latin-1: %w", err)
	}
	return string(out), "latin-1", nil
}

// scanRows splits decoded text into records, skipping blank lines and
// tracking physical line numbers.
func scanRows(text string) []Row {
	var rows []Row
	line := 1
	i := 0

	for i < len(text) {
		startLine := line
		fields, sawQuote, next, nextLine := scanRecord(text, i, line)
		i = next
		line = nextLine

		if !sawQuote && isBlankRecord(fields) {
			continue
		}
		rows = append(rows, Row{Line: startLine, Fields: fields})
	}

	return rows
}

// scanRecord consumes one record starting at offset i. Delimiters are all
// ASCII, so byte-wise scanning is safe on UTF-8 input.
func scanRecord(s string, i, line int) (fields []string, sawQuote bool, next, nextLine int) {
	var field strings.Builder
	inQuotes := false
	fieldQuoted := false

	flush := func() {
		v := field.String()
		if !fieldQuoted {
			v = strings.TrimSpace(v)
		}
		fields = append(fields, v)
		field.Reset()
		fieldQuoted = false
	}

	for i < len(s) {
		c := s[i]

		if inQuotes {
			switch c {
			case '"':
				if i+1 < len(s) && s[i+1] == '"' {
					// Doubled quote is an escaped quote.
					field.WriteByte('"')
					i += 2
					continue
				}
				inQuotes = false
				i++
			case '\r':
				if i+1 < len(s) && s[i+1] == '\n' {
					i++
				}
				field.WriteByte('\n')
				line++
				i++
			case '\n':
				field.WriteByte('\n')
				line++
				i++
			default:
				field.WriteByte(c)
				i++
			}
			continue
		}

		switch c {
		case '"':
			// Whitespace before an opening quote is not part of the field.
			if strings.TrimSpace(field.String()) == "" {
				field.Reset()
			}
			inQuotes = true
			sawQuote = true
			fieldQuoted = true
			i++
		case ',':
			flush()
			i++
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			i++
			line++
			flush()
			return fields, sawQuote, i, line
		case '\n':
			i++
			line++
			flush()
			return fields, sawQuote, i, line
		default:
			field.WriteByte(c)
			i++
		}
	}

	// Unterminated final record (no trailing newline).
	flush()
	return fields, sawQuote, i, line
}

func isBlankRecord(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}
