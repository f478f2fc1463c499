package pipeline

import (
	"sync"
	"time"
)

// WorkflowState is the canonical in-memory state of one import session.
// It is owned by the Service; all mutation goes through Service methods.
type WorkflowState struct {
	Stage      Stage
	Type       ImportType
	FileName   string
	CSVData    []RawRow
	Validation *ValidationResult
	Process    *ProcessResult
}

// Session is one operator's import workflow. The mutex guards state; the
// inFlight flag rejects overlapping backend calls for the same session, so
// two row corrections can never race on the held ValidationResult.
type Session struct {
	ID string

	mu         sync.Mutex
	state      WorkflowState
	inFlight   bool
	createdAt  time.Time
	lastActive time.Time
}

// Snapshot is a point-in-time copy of a session, safe to serialize after
// the session lock is released.
type Snapshot struct {
	ID         string            `json:"id"`
	Stage      Stage             `json:"stage"`
	Type       ImportType        `json:"type"`
	FileName   string            `json:"fileName,omitempty"`
	TotalRows  int               `json:"totalRows"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Process    *ProcessResult    `json:"process,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// snapshot copies the session state. Caller must hold s.mu.
func (s *Session) snapshot() *Snapshot {
	snap := &Snapshot{
		ID:        s.ID,
		Stage:     s.state.Stage,
		Type:      s.state.Type,
		FileName:  s.state.FileName,
		TotalRows: len(s.state.CSVData),
		CreatedAt: s.createdAt,
	}
	if s.state.Validation != nil {
		snap.Validation = s.state.Validation.clone()
	}
	if s.state.Process != nil {
		p := *s.state.Process
		p.Failed = append([]FailedRecord(nil), s.state.Process.Failed...)
		snap.Process = &p
	}
	return snap
}

// clone deep-copies the partition slices so a snapshot cannot observe a
// later promotion mid-marshal.
func (r *ValidationResult) clone() *ValidationResult {
	c := &ValidationResult{
		TotalRows:  r.TotalRows,
		ValidCount: r.ValidCount,
		ErrorCount: r.ErrorCount,
		ValidRows:  append([]ValidRow(nil), r.ValidRows...),
		ErrorRows:  make([]ErrorRow, len(r.ErrorRows)),
	}
	for i, er := range r.ErrorRows {
		er.Errors = append([]string(nil), er.Errors...)
		c.ErrorRows[i] = er
	}
	return c
}

// promote moves the error row with the given number into the valid set,
// preserving its original row number, and adjusts the counts. Returns
// false if the row is not in the error set.
func (r *ValidationResult) promote(rowNumber int, data RawRow) bool {
	for i, er := range r.ErrorRows {
		if er.RowNumber == rowNumber {
			r.ErrorRows = append(r.ErrorRows[:i], r.ErrorRows[i+1:]...)
			r.ValidRows = append(r.ValidRows, ValidRow{RowNumber: rowNumber, Data: data})
			r.ValidCount++
			r.ErrorCount--
			return true
		}
	}
	return false
}

// replaceErrors swaps the error list for a still-invalid row. Old messages
// are discarded, not appended.
func (r *ValidationResult) replaceErrors(rowNumber int, errs []string) bool {
	for i := range r.ErrorRows {
		if r.ErrorRows[i].RowNumber == rowNumber {
			r.ErrorRows[i].Errors = errs
			return true
		}
	}
	return false
}

// errorRow returns the error row with the given number, if present.
func (r *ValidationResult) errorRow(rowNumber int) (ErrorRow, bool) {
	for _, er := range r.ErrorRows {
		if er.RowNumber == rowNumber {
			return er, true
		}
	}
	return ErrorRow{}, false
}
