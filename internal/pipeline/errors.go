package pipeline

import (
	"errors"
	"fmt"
)

// FormatError reports malformed CSV input detected locally, before any
// backend call. It blocks a session from leaving the upload stage.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "invalid csv: " + e.Reason
}

// IsFormatError reports whether err is (or wraps) a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// Session and stage errors. These are expected operator-level failures,
// mapped to user-facing messages at the API boundary.
var (
	ErrSessionNotFound = errors.New("import session not found")
	ErrEditInFlight    = errors.New("another row correction is in flight")
	ErrNoValidRows     = errors.New("no valid rows to process")
	ErrNotValidated    = errors.New("import has not been validated")
	ErrProcessing      = errors.New("processing is already in progress")
	ErrCompleted       = errors.New("import has already been processed")
)

// wrongStageError reports an action invoked outside its allowed stage.
type wrongStageError struct {
	action string
	stage  Stage
}

func (e *wrongStageError) Error() string {
	return fmt.Sprintf("cannot %s in stage %q", e.action, e.stage)
}

func errWrongStage(action string, stage Stage) error {
	return &wrongStageError{action: action, stage: stage}
}
