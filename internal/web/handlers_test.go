package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cartloom/bulkimport/internal/catalog"
	"github.com/cartloom/bulkimport/internal/config"
	"github.com/cartloom/bulkimport/internal/pipeline"
)

// fakeCatalog is an httptest stand-in for the remote catalog backend. It
// validates like the real thing would: rows with an empty name column are
// rejected, everything else passes.
func fakeCatalog(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/admin/bulk-upload/validate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Type string            `json:"type"`
			Data []pipeline.RawRow `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		res := pipeline.ValidationResult{TotalRows: len(req.Data)}
		for i, row := range req.Data {
			if row["name"].Text() == "" {
				res.ErrorRows = append(res.ErrorRows, pipeline.ErrorRow{
					RowNumber: i + 1,
					Data:      row,
					Errors:    []string{"name is required"},
				})
				continue
			}
			res.ValidRows = append(res.ValidRows, pipeline.ValidRow{RowNumber: i + 1, Data: row})
		}
		res.ValidCount = len(res.ValidRows)
		res.ErrorCount = len(res.ErrorRows)
		json.NewEncoder(w).Encode(res)
	})

	mux.HandleFunc("/api/admin/bulk-upload/process", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ValidRows []pipeline.ValidRow `json:"validRows"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(pipeline.ProcessResult{SuccessCount: len(req.ValidRows)})
	})

	mux.HandleFunc("/api/admin/bulk-upload/template/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(catalog.Template{
			Headers:    []string{"name", "price"},
			SampleData: []map[string]any{{"name": "Sample", "price": "9.99"}},
			Filename:   "products-template.csv",
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(backendURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           0,
			RequestTimeout: 30 * time.Second,
		},
		Backend: config.BackendConfig{URL: backendURL, Timeout: 5 * time.Second},
		Upload:  config.UploadConfig{MaxFileSize: 1 << 20, MaxRows: 1000},
		Session: config.SessionConfig{TTL: time.Hour, CleanupInterval: time.Minute},
		Logging: config.LoggingConfig{Level: "error", Format: "text"},
	}
}

func newTestServer(t *testing.T, backendURL string, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := testConfig(backendURL)
	if mutate != nil {
		mutate(cfg)
	}

	client := catalog.New(cfg.Backend.URL, catalog.WithTimeout(cfg.Backend.Timeout))
	service := pipeline.NewService(client, pipeline.Options{
		MaxFileSize: cfg.Upload.MaxFileSize,
		MaxRows:     cfg.Upload.MaxRows,
	})
	return NewServer(service, client, nil, cfg)
}

// uploadRequest builds the multipart form the create and attach endpoints
// expect: a "type" field and a "file" field.
func uploadRequest(t *testing.T, url, typ, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if typ != "" {
		if err := mw.WriteField("type", typ); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func doJSON(t *testing.T, h http.Handler, req *http.Request, wantStatus int, out any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != wantStatus {
		t.Fatalf("%s %s = %d, want %d; body: %s",
			req.Method, req.URL.Path, rec.Code, wantStatus, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response: %v; body: %s", err, rec.Body.String())
		}
	}
}

const workflowCSV = "name,price\nWidget,9.99\n,5.00\nGadget,12.50"

func TestWorkflow_EndToEnd(t *testing.T) {
	backend := fakeCatalog(t)
	srv := newTestServer(t, backend.URL, nil)
	router := srv.Router()

	// Upload: a parseable file lands the session in the validate stage.
	var snap pipeline.Snapshot
	doJSON(t, router, uploadRequest(t, "/api/imports", "products", "products.csv", workflowCSV),
		http.StatusCreated, &snap)
	if snap.ID == "" || snap.Stage != pipeline.StageValidate || snap.TotalRows != 3 {
		t.Fatalf("created snapshot = %+v", snap)
	}
	base := "/api/imports/" + snap.ID

	// Validate the batch: 2 valid, 1 rejected.
	doJSON(t, router, httptest.NewRequest(http.MethodPost, base+"/validate", nil),
		http.StatusOK, &snap)
	if snap.Validation == nil || snap.Validation.ValidCount != 2 || snap.Validation.ErrorCount != 1 {
		t.Fatalf("validation = %+v", snap.Validation)
	}
	if snap.Validation.ErrorRows[0].RowNumber != 2 {
		t.Fatalf("rejected row = %d, want 2", snap.Validation.ErrorRows[0].RowNumber)
	}

	// Correct the rejected row; it is promoted under its original number.
	body := strings.NewReader(`{"name": "Doohickey"}`)
	req := httptest.NewRequest(http.MethodPost, base+"/rows/2", body)
	req.Header.Set("Content-Type", "application/json")
	doJSON(t, router, req, http.StatusOK, &snap)
	if snap.Validation.ValidCount != 3 || snap.Validation.ErrorCount != 0 {
		t.Fatalf("partition after correction = %d/%d, want 3/0",
			snap.Validation.ValidCount, snap.Validation.ErrorCount)
	}

	// Process: all rows commit, the session completes.
	doJSON(t, router, httptest.NewRequest(http.MethodPost, base+"/process", nil),
		http.StatusOK, &snap)
	if snap.Stage != pipeline.StageComplete {
		t.Fatalf("stage = %q, want %q", snap.Stage, pipeline.StageComplete)
	}
	if snap.Process == nil || snap.Process.SuccessCount != 3 {
		t.Fatalf("process result = %+v", snap.Process)
	}

	// A second process attempt conflicts.
	var errRes ErrorResponse
	doJSON(t, router, httptest.NewRequest(http.MethodPost, base+"/process", nil),
		http.StatusConflict, &errRes)
	if errRes.Code != "IMP004" {
		t.Errorf("duplicate process code = %q, want IMP004", errRes.Code)
	}

	// Close, then the session is gone.
	doJSON(t, router, httptest.NewRequest(http.MethodDelete, base+"/", nil),
		http.StatusNoContent, nil)
	doJSON(t, router, httptest.NewRequest(http.MethodGet, base+"/", nil),
		http.StatusNotFound, &errRes)
	if errRes.Code != "IMP001" {
		t.Errorf("missing session code = %q, want IMP001", errRes.Code)
	}
}

func TestBackThenAttach(t *testing.T) {
	backend := fakeCatalog(t)
	srv := newTestServer(t, backend.URL, nil)
	router := srv.Router()

	var snap pipeline.Snapshot
	doJSON(t, router, uploadRequest(t, "/api/imports", "products", "v1.csv", workflowCSV),
		http.StatusCreated, &snap)
	base := "/api/imports/" + snap.ID

	snap = pipeline.Snapshot{}
	doJSON(t, router, httptest.NewRequest(http.MethodPost, base+"/back", nil),
		http.StatusOK, &snap)
	if snap.Stage != pipeline.StageUpload || snap.FileName != "" || snap.TotalRows != 0 {
		t.Fatalf("snapshot after back = %+v", snap)
	}

	doJSON(t, router, uploadRequest(t, base+"/file", "", "v2.csv", "name,price\nWidget,1.00"),
		http.StatusOK, &snap)
	if snap.Stage != pipeline.StageValidate || snap.FileName != "v2.csv" || snap.TotalRows != 1 {
		t.Fatalf("snapshot after attach = %+v", snap)
	}
}

func TestCreateImport_Rejections(t *testing.T) {
	backend := fakeCatalog(t)
	srv := newTestServer(t, backend.URL, nil)
	router := srv.Router()

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing file field",
			req:        uploadRequest(t, "/api/imports", "products", "", ""),
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE004",
		},
		{
			name:       "unknown import type",
			req:        uploadRequest(t, "/api/imports", "vendors", "v.csv", workflowCSV),
			wantStatus: http.StatusBadRequest,
			wantCode:   "IMP007",
		},
		{
			name:       "header-only file",
			req:        uploadRequest(t, "/api/imports", "products", "empty.csv", "name,price\n"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errRes ErrorResponse
			doJSON(t, router, tt.req, tt.wantStatus, &errRes)
			if errRes.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", errRes.Code, tt.wantCode)
			}
		})
	}
}

func TestValidate_BackendDown(t *testing.T) {
	backend := fakeCatalog(t)
	srv := newTestServer(t, backend.URL, nil)
	router := srv.Router()

	var snap pipeline.Snapshot
	doJSON(t, router, uploadRequest(t, "/api/imports", "products", "p.csv", workflowCSV),
		http.StatusCreated, &snap)

	backend.Close()

	var errRes ErrorResponse
	doJSON(t, router, httptest.NewRequest(http.MethodPost, "/api/imports/"+snap.ID+"/validate", nil),
		http.StatusBadGateway, &errRes)
	if errRes.Code != "NET001" {
		t.Errorf("code = %q, want NET001", errRes.Code)
	}

	// The session survives the outage and stays at validate.
	doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/imports/"+snap.ID+"/", nil),
		http.StatusOK, &snap)
	if snap.Stage != pipeline.StageValidate {
		t.Errorf("stage = %q, want %q", snap.Stage, pipeline.StageValidate)
	}
}

func TestEditRow_BadRequests(t *testing.T) {
	backend := fakeCatalog(t)
	srv := newTestServer(t, backend.URL, nil)
	router := srv.Router()

	var snap pipeline.Snapshot
	doJSON(t, router, uploadRequest(t, "/api/imports", "products", "p.csv", workflowCSV),
		http.StatusCreated, &snap)
	base := "/api/imports/" + snap.ID
	doJSON(t, router, httptest.NewRequest(http.MethodPost, base+"/validate", nil),
		http.StatusOK, &snap)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode string
	}{
		{"malformed body", base + "/rows/2", `{"name": `, "IMP010"},
		{"unknown column", base + "/rows/2", `{"bogus": "x"}`, "IMP009"},
		{"row not in error set", base + "/rows/1", `{"name": "x"}`, "IMP008"},
		{"non-numeric row", base + "/rows/abc", `{"name": "x"}`, "IMP008"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			var errRes ErrorResponse
			doJSON(t, router, req, http.StatusBadRequest, &errRes)
			if errRes.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", errRes.Code, tt.wantCode)
			}
		})
	}
}

func TestTemplateDownload(t *testing.T) {
	backend := fakeCatalog(t)
	srv := newTestServer(t, backend.URL, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/template/products", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "products-template.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "name,price\n") {
		t.Errorf("body = %q, want CSV with header line", rec.Body.String())
	}

	var errRes ErrorResponse
	doJSON(t, srv.Router(), httptest.NewRequest(http.MethodGet, "/api/template/vendors", nil),
		http.StatusBadRequest, &errRes)
	if errRes.Code != "IMP007" {
		t.Errorf("code = %q, want IMP007", errRes.Code)
	}
}

func TestHistoryDisabled(t *testing.T) {
	backend := fakeCatalog(t)
	srv := newTestServer(t, backend.URL, nil)

	var errRes ErrorResponse
	doJSON(t, srv.Router(), httptest.NewRequest(http.MethodGet, "/api/history", nil),
		http.StatusNotFound, &errRes)
	if errRes.Code != "HIST001" {
		t.Errorf("code = %q, want HIST001", errRes.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	backend := fakeCatalog(t)
	srv := newTestServer(t, backend.URL, func(cfg *config.Config) {
		cfg.Security.RequireAPIKey = true
		cfg.Security.APIKeys = []string{"valid-key"}
	})
	router := srv.Router()

	var errRes ErrorResponse
	doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/history", nil),
		http.StatusUnauthorized, &errRes)
	if errRes.Code != "AUTH001" {
		t.Errorf("code = %q, want AUTH001", errRes.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	doJSON(t, router, req, http.StatusUnauthorized, &errRes)

	// A valid key passes auth; history is disabled, so 404 proves we got
	// through to the handler.
	req = httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("X-API-Key", "valid-key")
	doJSON(t, router, req, http.StatusNotFound, &errRes)
	if errRes.Code != "HIST001" {
		t.Errorf("code = %q, want HIST001", errRes.Code)
	}

	// Health stays open without a key.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()

	if !rl.allow("10.0.0.1") || !rl.allow("10.0.0.1") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("10.0.0.1") {
		t.Error("third request within the window should be rejected")
	}
	if !rl.allow("10.0.0.2") {
		t.Error("a different IP has its own bucket")
	}

	// An expired window refills the bucket.
	rl.mu.Lock()
	rl.visitors["10.0.0.1"].lastReset = time.Now().Add(-2 * time.Minute)
	rl.mu.Unlock()
	if !rl.allow("10.0.0.1") {
		t.Error("request after the window should pass again")
	}
}

func TestShutdown_StopsRateLimiter(t *testing.T) {
	backend := fakeCatalog(t)
	srv := newTestServer(t, backend.URL, func(cfg *config.Config) {
		cfg.Rate.Enabled = true
		cfg.Rate.RequestsPerMinute = 10
	})

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case <-srv.limiter.done:
	default:
		t.Error("cleanup goroutine still running after Shutdown")
	}

	// Shutdown twice must not panic.
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
}

func TestSecurityHeaders(t *testing.T) {
	backend := fakeCatalog(t)
	srv := newTestServer(t, backend.URL, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}
