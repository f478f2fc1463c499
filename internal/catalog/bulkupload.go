package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cartloom/bulkimport/internal/pipeline"
)

// validateRequest is the wire shape for batch validation.
type validateRequest struct {
	Type string            `json:"type"`
	Data []pipeline.RawRow `json:"data"`
}

// processRequest is the wire shape for committing valid rows.
type processRequest struct {
	Type      string              `json:"type"`
	ValidRows []pipeline.ValidRow `json:"validRows"`
}

// Validate submits rows to the validation endpoint in a single batch and
// returns the backend's partition into valid and invalid rows. The backend
// is authoritative; no local business-rule checks are applied. Single-row
// re-validation is this same call with a one-element slice.
func (c *Client) Validate(ctx context.Context, typ pipeline.ImportType, rows []pipeline.RawRow) (*pipeline.ValidationResult, error) {
	req := validateRequest{Type: string(typ), Data: rows}
	var res pipeline.ValidationResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/admin/bulk-upload/validate", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Process submits the accumulated valid rows for record creation. Each row
// either becomes a created record or comes back as a per-row failure;
// successCount + failedCount always equals len(rows). The endpoint is not
// idempotent, so callers must invoke it exactly once per confirmed batch.
func (c *Client) Process(ctx context.Context, typ pipeline.ImportType, rows []pipeline.ValidRow) (*pipeline.ProcessResult, error) {
	req := processRequest{Type: string(typ), ValidRows: rows}
	var res pipeline.ProcessResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/admin/bulk-upload/process", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Template describes a downloadable CSV template for an import type.
type Template struct {
	Headers    []string         `json:"headers"`
	SampleData []map[string]any `json:"sampleData"`
	Filename   string           `json:"filename"`
}

// Template fetches the CSV template definition for an import type.
func (c *Client) Template(ctx context.Context, typ pipeline.ImportType) (*Template, error) {
	var res Template
	path := "/api/admin/bulk-upload/template/" + string(typ)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CSV renders the template as downloadable CSV text: one header line
// followed by the sample rows in header order.
func (t *Template) CSV() string {
	var b strings.Builder
	b.WriteString(strings.Join(t.Headers, ","))
	b.WriteString("\n")

	for _, sample := range t.SampleData {
		cells := make([]string, len(t.Headers))
		for i, h := range t.Headers {
			cells[i] = formatCell(sample[h])
		}
		b.WriteString(strings.Join(cells, ","))
		b.WriteString("\n")
	}
	return b.String()
}

// formatCell renders a sample value, quoting it when it contains a comma.
func formatCell(v any) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprintf("%v", v)
	if strings.Contains(s, ",") {
		return `"` + s + `"`
	}
	return s
}
