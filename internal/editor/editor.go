package editor

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/trafficdeck/trafficdeck/internal/domain"
	"github.com/trafficdeck/trafficdeck/internal/logger"
	"github.com/trafficdeck/trafficdeck/internal/registry"
)

// balanceTolerance is how far the ratio sum may drift from 100 and still
// be submittable.
const balanceTolerance = 0.1

// TrafficWriter submits an edited backend set to the control server.
type TrafficWriter interface {
	UpdateTraffic(ctx context.Context, service string, backends []domain.Backend) error
}

// ValidationError blocks a submission locally; no write-back is attempted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// SessionState tracks the edit dialog lifecycle.
type SessionState int

const (
	SessionOpen SessionState = iota
	SessionSubmitting
	SessionClosed
)

// Editor opens editing sessions over registry records.
type Editor struct {
	registry *registry.Registry
	writer   TrafficWriter
	logger   logger.Logger
}

// New creates an editor reading from reg and writing back through writer.
func New(reg *registry.Registry, writer TrafficWriter, log logger.Logger) *Editor {
	return &Editor{
		registry: reg,
		writer:   writer,
		logger:   log,
	}
}

// Open starts an editing session for one service. The session works on a
// deep copy of the record's backends: nothing the user edits touches the
// registry until the server echoes the change back through an update frame.
func (e *Editor) Open(service string) (*Session, error) {
	rec, ok := e.registry.Get(service)
	if !ok {
		return nil, fmt.Errorf("unknown service %q", service)
	}
	return &Session{
		editor:   e,
		service:  service,
		backends: rec.Backends, // Get already returned a deep copy
		state:    SessionOpen,
	}, nil
}

// Session is one open edit dialog: a working copy of a service's backend
// weights plus the sum-to-100 gate.
type Session struct {
	editor  *Editor
	service string

	mu       sync.Mutex
	backends []domain.Backend
	state    SessionState
}

// Service returns the service being edited.
func (s *Session) Service() string { return s.service }

// Backends returns a copy of the current working set.
func (s *Session) Backends() []domain.Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneBackends(s.backends)
}

// SetRatio updates one backend's weight in the working copy, clamped to
// [0, 100]. The backend is addressed by its key (id, or name when the
// record carries no ids).
func (s *Session) SetRatio(backendKey string, ratio int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionOpen {
		return fmt.Errorf("session for %q is not open", s.service)
	}

	if ratio < 0 {
		ratio = 0
	} else if ratio > 100 {
		ratio = 100
	}

	for i := range s.backends {
		if s.backends[i].Key() == backendKey {
			s.backends[i].Ratio = ratio
			return nil
		}
	}
	return &ValidationError{Reason: fmt.Sprintf("service %q has no backend %q", s.service, backendKey)}
}

// Sum returns the working copy's total ratio.
func (s *Session) Sum() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.RatioSum(s.backends)
}

// Balanced reports whether the working copy satisfies the sum-to-100
// invariant within tolerance.
func (s *Session) Balanced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return balancedLocked(s.backends)
}

func balancedLocked(backends []domain.Backend) bool {
	return math.Abs(float64(domain.RatioSum(backends)-100)) <= balanceTolerance
}

// State returns the session lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Submit validates the working copy and sends it through the write-back
// call. An unbalanced copy is refused with a ValidationError before any
// network traffic. On success the session closes; the registry is left
// alone, since the authoritative state arrives with the server's next
// update frame. On failure the session stays open for a retry or cancel.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.state != SessionOpen {
		s.mu.Unlock()
		return fmt.Errorf("session for %q is not open", s.service)
	}
	if !balancedLocked(s.backends) {
		sum := domain.RatioSum(s.backends)
		s.mu.Unlock()
		return &ValidationError{Reason: fmt.Sprintf("backend ratios must sum to 100, got %d", sum)}
	}
	s.state = SessionSubmitting
	backends := domain.CloneBackends(s.backends)
	s.mu.Unlock()

	err := s.editor.writer.UpdateTraffic(ctx, s.service, backends)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = SessionOpen
		s.editor.logger.Warn("traffic write-back failed",
			logger.String("service", s.service),
			logger.Error(err))
		return fmt.Errorf("traffic update for %q rejected: %w", s.service, err)
	}

	s.state = SessionClosed
	s.editor.logger.Info("traffic edit submitted",
		logger.String("service", s.service),
		logger.Int("backends", len(backends)))
	return nil
}

// Cancel discards the working copy with no further effect.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionOpen {
		s.state = SessionClosed
	}
}
