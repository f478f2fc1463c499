package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Backend is the remote collaborator that owns all business-rule
// validation and record creation. The pipeline performs no local rule
// checks; it only parses and transports.
type Backend interface {
	Validate(ctx context.Context, typ ImportType, rows []RawRow) (*ValidationResult, error)
	Process(ctx context.Context, typ ImportType, rows []ValidRow) (*ProcessResult, error)
}

// RunRecorder persists summaries of completed imports. Recording is
// best-effort; a recorder failure never fails the import itself.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// defaultMaxFileSize caps CSV uploads when no limit is configured (10MB).
const defaultMaxFileSize = 10 * 1024 * 1024

// Options configures a Service.
type Options struct {
	Recorder        RunRecorder // optional
	MaxFileSize     int64       // 0 means the 10MB default
	MaxRows         int         // 0 means unlimited
	SessionTTL      time.Duration
	CleanupInterval time.Duration
}

// Service owns all import sessions and drives them through the workflow
// stages. It is the only code that mutates WorkflowState.
type Service struct {
	backend  Backend
	recorder RunRecorder

	maxFileSize     int64
	maxRows         int
	sessionTTL      time.Duration
	cleanupInterval time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a Service around the given backend.
func NewService(backend Backend, opts Options) *Service {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 2 * time.Hour
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 5 * time.Minute
	}
	return &Service{
		backend:         backend,
		recorder:        opts.Recorder,
		maxFileSize:     opts.MaxFileSize,
		maxRows:         opts.MaxRows,
		sessionTTL:      opts.SessionTTL,
		cleanupInterval: opts.CleanupInterval,
		sessions:        make(map[string]*Session),
	}
}

// StartCleanup launches the background sweep that drops sessions idle
// longer than the TTL. It returns when ctx is cancelled.
func (s *Service) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	cutoff := time.Now().Add(-s.sessionTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.mu.Lock()
		expired := sess.lastActive.Before(cutoff) && !sess.inFlight
		sess.mu.Unlock()
		if expired {
			delete(s.sessions, id)
			slog.Debug("import session expired", "import_id", id)
		}
	}
}

// Start creates a new import session from an uploaded file. The file is
// parsed immediately; on success the session enters the validate stage.
// A parse failure creates no session, leaving the operator at upload.
func (s *Service) Start(typ ImportType, fileName string, data []byte) (*Snapshot, error) {
	rows, err := s.parse(data)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID: uuid.New().String(),
		state: WorkflowState{
			Stage:    StageValidate,
			Type:     typ,
			FileName: fileName,
			CSVData:  rows,
		},
		createdAt:  time.Now(),
		lastActive: time.Now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	slog.Info("import session started",
		"import_id", sess.ID,
		"type", typ,
		"file", fileName,
		"rows", len(rows),
	)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshot(), nil
}

// Attach replaces the file of a session that was sent back to upload.
func (s *Service) Attach(id string, fileName string, data []byte) (*Snapshot, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}

	rows, err := s.parse(data)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state.Stage != StageUpload {
		return nil, errWrongStage("attach a file", sess.state.Stage)
	}

	sess.state.FileName = fileName
	sess.state.CSVData = rows
	sess.state.Stage = StageValidate
	sess.lastActive = time.Now()
	return sess.snapshot(), nil
}

func (s *Service) parse(data []byte) ([]RawRow, error) {
	if int64(len(data)) > s.maxFileSize {
		return nil, &FormatError{Reason: "file too large"}
	}
	rows, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if s.maxRows > 0 && len(rows) > s.maxRows {
		return nil, &FormatError{Reason: fmt.Sprintf("file exceeds the maximum of %d data rows", s.maxRows)}
	}
	return rows, nil
}

// Validate sends the session's parsed rows to the backend in one batch and
// stores the returned partition. A backend failure leaves the session
// exactly as it was so the operator can re-trigger.
func (s *Service) Validate(ctx context.Context, id string) (*Snapshot, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.state.Stage != StageValidate {
		sess.mu.Unlock()
		return nil, errWrongStage("validate", sess.state.Stage)
	}
	if sess.inFlight {
		sess.mu.Unlock()
		return nil, ErrEditInFlight
	}
	sess.inFlight = true
	typ := sess.state.Type
	rows := sess.state.CSVData
	sess.mu.Unlock()

	result, callErr := s.backend.Validate(ctx, typ, rows)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.inFlight = false
	sess.lastActive = time.Now()

	if callErr != nil {
		slog.Warn("batch validation failed", "import_id", id, "error", callErr)
		return nil, callErr
	}

	sess.state.Validation = result
	slog.Info("batch validated",
		"import_id", id,
		"total", result.TotalRows,
		"valid", result.ValidCount,
		"errors", result.ErrorCount,
	)
	return sess.snapshot(), nil
}

// EditRow re-validates a single corrected error row. If the backend now
// accepts it, the row is promoted into the valid set under its original
// row number; otherwise its error list is replaced with the fresh messages
// and the correction buffer is discarded.
func (s *Service) EditRow(ctx context.Context, id string, rowNumber int, edits map[string]Value) (*Snapshot, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if sess.state.Stage != StageValidate {
		sess.mu.Unlock()
		return nil, errWrongStage("correct a row", sess.state.Stage)
	}
	if sess.state.Validation == nil {
		sess.mu.Unlock()
		return nil, ErrNotValidated
	}
	if sess.inFlight {
		sess.mu.Unlock()
		return nil, ErrEditInFlight
	}

	row, ok := sess.state.Validation.errorRow(rowNumber)
	if !ok {
		sess.mu.Unlock()
		return nil, fmt.Errorf("row not found in error set: %d", rowNumber)
	}

	edited := row.Data.Clone()
	for col, val := range edits {
		if _, exists := edited[col]; !exists {
			sess.mu.Unlock()
			return nil, fmt.Errorf("unknown column %q", col)
		}
		edited[col] = val
	}

	sess.inFlight = true
	typ := sess.state.Type
	sess.mu.Unlock()

	result, callErr := s.backend.Validate(ctx, typ, []RawRow{edited})

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.inFlight = false
	sess.lastActive = time.Now()

	if callErr != nil {
		slog.Warn("row re-validation failed", "import_id", id, "row", rowNumber, "error", callErr)
		return nil, callErr
	}

	if result.ValidCount > 0 {
		sess.state.Validation.promote(rowNumber, edited)
		slog.Info("row promoted", "import_id", id, "row", rowNumber)
	} else {
		errs := []string{"row failed validation"}
		if len(result.ErrorRows) > 0 && len(result.ErrorRows[0].Errors) > 0 {
			errs = result.ErrorRows[0].Errors
		}
		sess.state.Validation.replaceErrors(rowNumber, errs)
		slog.Info("row still invalid", "import_id", id, "row", rowNumber, "errors", len(errs))
	}
	return sess.snapshot(), nil
}

// Process commits the accumulated valid rows. Partial per-row failure is
// still completion; only a transport or server fault returns the session
// to the validate stage for an explicit re-trigger. The call is never
// retried automatically because the endpoint is not idempotent.
func (s *Service) Process(ctx context.Context, id string) (*Snapshot, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	switch sess.state.Stage {
	case StageValidate:
	case StageProcess:
		sess.mu.Unlock()
		return nil, ErrProcessing
	case StageComplete:
		sess.mu.Unlock()
		return nil, ErrCompleted
	default:
		sess.mu.Unlock()
		return nil, errWrongStage("process", sess.state.Stage)
	}
	if sess.state.Validation == nil {
		sess.mu.Unlock()
		return nil, ErrNotValidated
	}
	if sess.state.Validation.ValidCount == 0 {
		sess.mu.Unlock()
		return nil, ErrNoValidRows
	}
	if sess.inFlight {
		sess.mu.Unlock()
		return nil, ErrEditInFlight
	}
	sess.inFlight = true
	sess.state.Stage = StageProcess
	typ := sess.state.Type
	validRows := append([]ValidRow(nil), sess.state.Validation.ValidRows...)
	sess.mu.Unlock()

	result, callErr := s.backend.Process(ctx, typ, validRows)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.inFlight = false
	sess.lastActive = time.Now()

	if callErr != nil {
		// Back to validate so the operator can re-trigger explicitly.
		sess.state.Stage = StageValidate
		slog.Warn("processing failed", "import_id", id, "error", callErr)
		return nil, callErr
	}

	sess.state.Process = result
	sess.state.Stage = StageComplete
	slog.Info("import processed",
		"import_id", id,
		"submitted", len(validRows),
		"created", result.SuccessCount,
		"failed", result.FailedCount,
	)

	s.recordRun(ctx, sess)
	return sess.snapshot(), nil
}

// recordRun persists a run summary when a recorder is configured.
// Caller must hold sess.mu.
func (s *Service) recordRun(ctx context.Context, sess *Session) {
	if s.recorder == nil {
		return
	}
	run := Run{
		ID:           sess.ID,
		Type:         sess.state.Type,
		FileName:     sess.state.FileName,
		TotalRows:    sess.state.Validation.TotalRows,
		ValidCount:   sess.state.Validation.ValidCount,
		ErrorCount:   sess.state.Validation.ErrorCount,
		SuccessCount: sess.state.Process.SuccessCount,
		FailedCount:  sess.state.Process.FailedCount,
		CompletedAt:  time.Now(),
	}
	if err := s.recorder.RecordRun(ctx, run); err != nil {
		slog.Warn("failed to record import run", "import_id", sess.ID, "error", err)
	}
}

// Back returns a session from validate to upload, discarding the parsed
// rows and any validation result. It is the only backward transition.
func (s *Service) Back(id string) (*Snapshot, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state.Stage != StageValidate {
		return nil, errWrongStage("go back", sess.state.Stage)
	}
	if sess.inFlight {
		return nil, ErrEditInFlight
	}

	sess.state.Stage = StageUpload
	sess.state.FileName = ""
	sess.state.CSVData = nil
	sess.state.Validation = nil
	sess.lastActive = time.Now()
	return sess.snapshot(), nil
}

// Get returns a snapshot of a session.
func (s *Service) Get(id string) (*Snapshot, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastActive = time.Now()
	return sess.snapshot(), nil
}

// Close discards a session and all of its state.
func (s *Service) Close(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	slog.Info("import session closed", "import_id", id)
	return nil
}

func (s *Service) get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}
