package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError represents a non-success HTTP response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = "no error detail"
	}
	return fmt.Sprintf("catalog backend %d: %s", e.StatusCode, msg)
}

// parseAPIError extracts the server-provided message when the body is the
// usual {"error": ...} or {"message": ...} JSON shape.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			apiErr.Message = payload.Error
		} else if payload.Message != "" {
			apiErr.Message = payload.Message
		}
	}
	return apiErr
}
