package web

// errors.go provides unified error responses for the API.
//
// Technical errors are logged server-side with the request ID; clients get
// a user-friendly message, a suggested action, and a support code from the
// pipeline's error mapping table.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cartloom/bulkimport/internal/catalog"
	"github.com/cartloom/bulkimport/internal/logging"
	"github.com/cartloom/bulkimport/internal/pipeline"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := errStatus(err)
	userMsg := pipeline.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// errStatus picks the HTTP status for a pipeline or backend error.
func errStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrEditInFlight),
		errors.Is(err, pipeline.ErrProcessing),
		errors.Is(err, pipeline.ErrCompleted):
		return http.StatusConflict
	case pipeline.IsFormatError(err):
		return http.StatusBadRequest
	}

	var apiErr *catalog.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway
	}
	if strings.Contains(err.Error(), "backend unreachable") {
		return http.StatusBadGateway
	}

	switch {
	case errors.Is(err, pipeline.ErrNoValidRows),
		errors.Is(err, pipeline.ErrNotValidated):
		return http.StatusBadRequest
	}

	msg := err.Error()
	if strings.HasPrefix(msg, "cannot ") ||
		strings.Contains(msg, "unknown import type") ||
		strings.Contains(msg, "unknown column") ||
		strings.Contains(msg, "row not found") ||
		strings.Contains(msg, "invalid correction body") ||
		strings.Contains(msg, "no file provided") {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers already sent; nothing to do but log.
		slog.Error("json encode error", "error", err)
	}
}
