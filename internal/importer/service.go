package importer

// service.go runs imports asynchronously. Start returns an import ID
// immediately; the pipeline executes in a background goroutine while callers
// poll Progress, subscribe to phase updates, or block on Result. Concurrency
// is bounded by an ImportLimiter and each import runs under its own timeout
// context so a stalled store cannot pin a slot forever.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrImportNotFound is returned when an import ID is unknown or has already
// been cleaned up.
var ErrImportNotFound = errors.New("import not found")

// DefaultImportTimeout is the maximum duration for one import operation.
const DefaultImportTimeout = 10 * time.Minute

// cleanupDelay is how long a finished import stays queryable before it is
// dropped from tracking.
const cleanupDelay = 5 * time.Minute

// ProgressUpdate is one progress notification for an active import.
type ProgressUpdate struct {
	ImportID string `json:"import_id"`
	FileName string `json:"file_name"`
	Phase    Phase  `json:"phase"`
	Error    string `json:"error,omitempty"`
}

// Service coordinates asynchronous imports against a single importer.
type Service struct {
	importer *Importer
	limiter  *ImportLimiter
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	imports map[string]*activeImport
}

type activeImport struct {
	ID       string
	FileName string
	Cancel   context.CancelFunc
	Progress ProgressUpdate
	Result   *ImportResult
	Err      error
	Done     chan struct{}

	// ListenerMu guards Progress, Listeners and finished. The background
	// goroutine writes Progress on every phase transition while handlers
	// read it concurrently.
	ListenerMu sync.Mutex
	Listeners  []chan ProgressUpdate
	finished   bool
}

// ServiceConfig bundles the tunables for NewService. Zero values fall back
// to the package defaults.
type ServiceConfig struct {
	MaxConcurrent int
	MaxWaitTime   time.Duration
	Timeout       time.Duration
}

// NewService creates a Service wrapping the given importer.
func NewService(imp *Importer, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultImportTimeout
	}
	return &Service{
		importer: imp,
		limiter:  NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		timeout:  timeout,
		logger:   logger,
		imports:  make(map[string]*activeImport),
	}
}

// Importer exposes the underlying importer for synchronous operations such
// as Analyze.
func (s *Service) Importer() *Importer {
	return s.importer
}

// LimiterStatus reports the current slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// Start begins an asynchronous import and returns its ID immediately.
// Returns ErrTooManyImports if the concurrent limit is reached and no slot
// becomes available within the wait timeout.
func (s *Service) Start(ctx context.Context, fileName string, data []byte, opts Options) (string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	importID := uuid.New().String()

	// The import outlives the HTTP request that started it, so it gets its
	// own context rather than inheriting the caller's.
	importCtx, cancel := context.WithTimeout(context.Background(), s.timeout)

	imp := &activeImport{
		ID:       importID,
		FileName: fileName,
		Cancel:   cancel,
		Progress: ProgressUpdate{
			ImportID: importID,
			FileName: fileName,
			Phase:    PhaseIdle,
		},
		Done:      make(chan struct{}),
		Listeners: make([]chan ProgressUpdate, 0),
	}

	s.mu.Lock()
	s.imports[importID] = imp
	s.mu.Unlock()

	// Process in background with panic recovery to guarantee limiter release.
	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in import",
					"import_id", importID,
					"file", fileName,
					"panic", r,
				)
				imp.Err = fmt.Errorf("internal error: %v", r)
				imp.setPhase(PhaseFailed, imp.Err.Error())
				imp.closeListeners()
				close(imp.Done)
				s.cleanup(importID, cleanupDelay)
			}
		}()
		s.process(importCtx, imp, data, opts)
	}()

	return importID, nil
}

// process runs the pipeline for one active import and records the outcome.
func (s *Service) process(ctx context.Context, imp *activeImport, data []byte, opts Options) {
	opts.Progress = func(p Phase) {
		imp.setPhase(p, "")
	}

	result, err := s.importer.Run(ctx, data, opts)
	imp.Result = result
	imp.Err = err

	switch {
	case err == nil:
		imp.setPhase(PhaseComplete, "")
	case ctx.Err() != nil:
		imp.setPhase(PhaseCancelled, ctx.Err().Error())
		s.logger.Warn("import cancelled", "import_id", imp.ID, "file", imp.FileName)
	default:
		imp.setPhase(PhaseFailed, err.Error())
		s.logger.Error("import failed", "import_id", imp.ID, "file", imp.FileName, "error", err)
	}

	imp.closeListeners()
	close(imp.Done)
	s.cleanup(imp.ID, cleanupDelay)
}

// Subscribe returns a channel that receives progress updates. The channel is
// closed when the import completes.
func (s *Service) Subscribe(importID string) (<-chan ProgressUpdate, error) {
	imp, err := s.lookup(importID)
	if err != nil {
		return nil, err
	}

	ch := make(chan ProgressUpdate, 10)

	imp.ListenerMu.Lock()
	if imp.finished {
		// The import already completed; deliver the terminal snapshot and
		// close so stream consumers terminate instead of waiting forever.
		ch <- imp.Progress
		imp.ListenerMu.Unlock()
		close(ch)
		return ch, nil
	}
	imp.Listeners = append(imp.Listeners, ch)
	// Send current progress immediately
	select {
	case ch <- imp.Progress:
	default:
	}
	imp.ListenerMu.Unlock()

	return ch, nil
}

// Progress returns the current phase without blocking.
func (s *Service) Progress(importID string) (ProgressUpdate, error) {
	imp, err := s.lookup(importID)
	if err != nil {
		return ProgressUpdate{}, err
	}

	imp.ListenerMu.Lock()
	progress := imp.Progress
	imp.ListenerMu.Unlock()
	return progress, nil
}

// Result returns the outcome of an import, blocking until it completes.
// The error is the pipeline's error: a *StructuralError or *MappingError
// when the batch aborted, a context error when cancelled.
func (s *Service) Result(importID string) (*ImportResult, error) {
	imp, err := s.lookup(importID)
	if err != nil {
		return nil, err
	}

	<-imp.Done
	return imp.Result, imp.Err
}

// Cancel cancels an in-progress import.
func (s *Service) Cancel(importID string) error {
	imp, err := s.lookup(importID)
	if err != nil {
		return err
	}
	imp.Cancel()
	return nil
}

// Drain blocks until all active imports complete or the context is
// cancelled. Used for graceful shutdown.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) lookup(importID string) (*activeImport, error) {
	s.mu.RLock()
	imp, ok := s.imports[importID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, importID)
	}
	return imp, nil
}

// cleanup removes the import from tracking after a delay.
func (s *Service) cleanup(importID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.imports, importID)
		s.mu.Unlock()
	})
}

// setPhase records a phase transition and notifies all listeners.
func (imp *activeImport) setPhase(p Phase, errMsg string) {
	imp.Progress.Phase = p
	imp.Progress.Error = errMsg

	imp.ListenerMu.Lock()
	defer imp.ListenerMu.Unlock()
	for _, ch := range imp.Listeners {
		select {
		case ch <- imp.Progress:
		default:
			// Listener is slow, skip this update
		}
	}
}

// closeListeners closes all listener channels and marks the import finished
// so late subscribers get an already-closed channel.
func (imp *activeImport) closeListeners() {
	imp.ListenerMu.Lock()
	defer imp.ListenerMu.Unlock()

	imp.finished = true
	for _, ch := range imp.Listeners {
		close(ch)
	}
	imp.Listeners = nil
}
