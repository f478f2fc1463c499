package pipeline

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Parse turns raw CSV file content into an ordered sequence of rows.
//
// The first non-blank line is the header; every following non-blank line is
// a data row, zipped positionally against the header (missing trailing
// fields become empty strings). Field values are trimmed, surrounding double
// quotes are stripped, and literal "true"/"false" (case-insensitive) are
// coerced to booleans.
//
// Known limitation: lines are split on raw commas, so a quoted field that
// contains a comma is split at that comma. This matches the importer's
// historical behavior and is deliberately left unchanged.
//
// Parse does not limit input size; callers enforce their configured
// maximum before handing the bytes over.
func Parse(data []byte) ([]RawRow, error) {
	if len(data) == 0 {
		return nil, &FormatError{Reason: "empty file"}
	}

	data = stripBOM(sanitizeUTF8(data))

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return nil, &FormatError{Reason: "file must contain a header row and at least one data row"}
	}

	headers := splitFields(lines[0])

	rows := make([]RawRow, 0, len(lines)-1)
	for _, line := range lines[1:] {
		fields := splitFields(line)
		row := make(RawRow, len(headers))
		for i, h := range headers {
			raw := ""
			if i < len(fields) {
				raw = fields[i]
			}
			row[h] = coerce(raw)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// splitFields splits a CSV line on commas, trimming whitespace and
// stripping one pair of surrounding double quotes from each field.
func splitFields(line string) []string {
	parts := strings.Split(line, ",")
	fields := make([]string, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) >= 2 && strings.HasPrefix(p, `"`) && strings.HasSuffix(p, `"`) {
			p = strings.TrimSpace(p[1 : len(p)-1])
		}
		fields[i] = p
	}
	return fields
}

// coerce converts literal booleans, leaving everything else a string.
func coerce(raw string) Value {
	switch strings.ToLower(raw) {
	case "true":
		return BoolValue(true)
	case "false":
		return BoolValue(false)
	default:
		return StringValue(raw)
	}
}

// stripBOM removes a leading UTF-8 byte order mark if present.
// Excel on Windows prepends one to exported CSVs.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// sanitizeUTF8 replaces invalid byte sequences with the Unicode
// replacement character so downstream JSON encoding never fails.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
