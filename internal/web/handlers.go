package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cartloom/bulkimport/internal/pipeline"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateImport starts a new import session from a multipart upload
// with a "type" field and a "file" field. The file is parsed immediately;
// a parse failure creates no session.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	typ, data, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	snap, err := s.service.Start(typ, fileNameFromRequest(r), data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, snap)
}

// handleAttachFile replaces the file of a session sent back to upload.
func (s *Server) handleAttachFile(w http.ResponseWriter, r *http.Request) {
	data, err := s.readUploadFile(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	snap, err := s.service.Attach(chi.URLParam(r, "importID"), fileNameFromRequest(r), data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Get(chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCloseImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Close(chi.URLParam(r, "importID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Validate(r.Context(), chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleEditRow re-validates one corrected error row. The body is a JSON
// object of column name to corrected value.
func (s *Server) handleEditRow(w http.ResponseWriter, r *http.Request) {
	rowNumber, err := strconv.Atoi(chi.URLParam(r, "rowNumber"))
	if err != nil {
		s.respondError(w, r, fmt.Errorf("row not found: invalid row number %q", chi.URLParam(r, "rowNumber")))
		return
	}

	var edits map[string]pipeline.Value
	if err := json.NewDecoder(r.Body).Decode(&edits); err != nil {
		s.respondError(w, r, fmt.Errorf("invalid correction body: %w", err))
		return
	}

	snap, err := s.service.EditRow(r.Context(), chi.URLParam(r, "importID"), rowNumber, edits)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Process(r.Context(), chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Back(chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleTemplate fetches the CSV template from the backend and serves it
// as a downloadable file.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	typ, err := pipeline.ParseImportType(chi.URLParam(r, "importType"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	tmpl, err := s.catalog.Template(r.Context(), typ)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	filename := tmpl.Filename
	if filename == "" {
		filename = string(typ) + "-template.csv"
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	io.WriteString(w, tmpl.CSV())
}

// handleHistory lists recent completed runs.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "history is not enabled",
			Message: "Run history is not enabled on this server",
			Action:  "Set DATABASE_URL to enable import run history",
			Code:    "HIST001",
		})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// readUpload extracts the import type and file bytes from a multipart form.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (pipeline.ImportType, []byte, error) {
	data, err := s.readUploadFile(w, r)
	if err != nil {
		return "", nil, err
	}

	importType, err := pipeline.ParseImportType(r.FormValue("type"))
	if err != nil {
		return "", nil, err
	}
	return importType, data, nil
}

// readUploadFile extracts just the file bytes from a multipart form.
func (s *Server) readUploadFile(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		return nil, &pipeline.FormatError{Reason: "file too large or invalid form"}
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("no file provided")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// fileNameFromRequest returns the uploaded file's name, if any.
func fileNameFromRequest(r *http.Request) string {
	if r.MultipartForm == nil {
		return ""
	}
	if files := r.MultipartForm.File["file"]; len(files) > 0 {
		return files[0].Filename
	}
	return ""
}
