// Package pipeline implements the bulk import workflow for the admin catalog:
// CSV parsing, remote validation, per-row correction, and final processing.
// This package has no HTTP-server dependencies and can be driven by any frontend.
package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ImportType identifies which kind of records a CSV file contains.
type ImportType string

const (
	ImportProducts ImportType = "products"
	ImportUsers    ImportType = "users"
)

// ParseImportType converts a string to an ImportType.
func ParseImportType(s string) (ImportType, error) {
	switch ImportType(s) {
	case ImportProducts, ImportUsers:
		return ImportType(s), nil
	default:
		return "", fmt.Errorf("unknown import type: %q", s)
	}
}

// ValueKind discriminates the scalar types a CSV cell can hold.
type ValueKind int

const (
	KindString ValueKind = iota
	KindBool
)

// Value is a CSV cell value: either a string or a boolean.
// Cells whose trimmed text equals "true" or "false" (case-insensitive)
// are coerced to booleans at parse time; everything else stays a string.
type Value struct {
	Kind ValueKind
	Str  string
	Bool bool
}

// StringValue creates a string-kinded Value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// BoolValue creates a bool-kinded Value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Text returns the display form of the value.
func (v Value) Text() string {
	if v.Kind == KindBool {
		return strconv.FormatBool(v.Bool)
	}
	return v.Str
}

// MarshalJSON emits the underlying scalar, not the union wrapper,
// so rows cross the wire in the shape the backend expects.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindBool {
		return json.Marshal(v.Bool)
	}
	return json.Marshal(v.Str)
}

// UnmarshalJSON accepts a JSON string or boolean. Any other scalar
// (numbers in sample data, for example) is kept as its literal text.
func (v *Value) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = BoolValue(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = StringValue(s)
		return nil
	}
	*v = StringValue(string(data))
	return nil
}

// RawRow is one parsed CSV data record, keyed by column header.
// Rows are immutable after parsing; corrections operate on copies.
type RawRow map[string]Value

// Clone returns a shallow copy of the row (Values are value types).
func (r RawRow) Clone() RawRow {
	c := make(RawRow, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// ValidRow is a row that passed validation, keyed by its original
// 1-based position in the file's data rows.
type ValidRow struct {
	RowNumber int    `json:"rowNumber"`
	Data      RawRow `json:"data"`
}

// ErrorRow is a row rejected by the validation endpoint, with the
// server-supplied reasons.
type ErrorRow struct {
	RowNumber int      `json:"rowNumber"`
	Data      RawRow   `json:"data"`
	Errors    []string `json:"errors"`
}

// ValidationResult partitions a batch of rows into valid and invalid sets.
//
// Invariants: ValidCount == len(ValidRows), ErrorCount == len(ErrorRows),
// and ValidCount + ErrorCount == TotalRows. Every submitted row number
// appears in exactly one of the two sequences. Row numbers are never
// renumbered, including after a correction promotes a row.
type ValidationResult struct {
	ValidRows  []ValidRow `json:"validRows"`
	ErrorRows  []ErrorRow `json:"errorRows"`
	TotalRows  int        `json:"totalRows"`
	ValidCount int        `json:"validCount"`
	ErrorCount int        `json:"errorCount"`
}

// FailedRecord is a valid row the processing endpoint could not commit.
type FailedRecord struct {
	RowNumber int    `json:"rowNumber"`
	Data      RawRow `json:"data"`
	Error     string `json:"error"`
}

// ProcessResult is the outcome of committing valid rows.
// SuccessCount + FailedCount always equals the number of rows submitted.
type ProcessResult struct {
	SuccessCount int            `json:"successCount"`
	FailedCount  int            `json:"failedCount"`
	Failed       []FailedRecord `json:"failed"`
}

// Stage is the workflow position of an import session.
type Stage string

const (
	StageUpload   Stage = "upload"
	StageValidate Stage = "validate"
	StageProcess  Stage = "process"
	StageComplete Stage = "complete"
)

// Run summarizes a completed import for the history store.
type Run struct {
	ID           string     `json:"id"`
	Type         ImportType `json:"type"`
	FileName     string     `json:"fileName"`
	TotalRows    int        `json:"totalRows"`
	ValidCount   int        `json:"validCount"`
	ErrorCount   int        `json:"errorCount"`
	SuccessCount int        `json:"successCount"`
	FailedCount  int        `json:"failedCount"`
	CompletedAt  time.Time  `json:"completedAt"`
}
