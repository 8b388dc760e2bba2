package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navpilot/internal/action"
	"github.com/xkilldash9x/navpilot/internal/decision"
	"github.com/xkilldash9x/navpilot/internal/dom"
	"github.com/xkilldash9x/navpilot/internal/observability"
)

// ErrEmptyGoal is returned by Create when the goal is blank.
var ErrEmptyGoal = errors.New("goal must not be empty")

// errUnchanged lets a mutation skip the store write.
var errUnchanged = errors.New("unchanged")

// Manager is the session state machine. Each mutation is a load, modify and
// save under a per-session write lock, so mutations of one session never
// interleave within a process.
type Manager struct {
	store         Store
	logger        *zap.Logger
	metrics       *observability.Metrics
	maxIterations int
	now           func() time.Time
	newID         func() string

	writes *keyedMutex
	ticks  *keyedMutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxIterations sets the ceiling given to new sessions.
func WithMaxIterations(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxIterations = n
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator replaces the uuid generator used for sessions and records.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager returns a Manager backed by store.
func NewManager(store Store, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:         store,
		logger:        logger.Named("session_manager"),
		maxIterations: DefaultMaxIterations,
		now:           time.Now,
		newID:         uuid.NewString,
		writes:        newKeyedMutex(),
		ticks:         newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lock serializes whole planning ticks on one session. It is independent of
// the internal write lock, so the holder may still call mutating methods.
func (m *Manager) Lock(id string) func() {
	return m.ticks.Lock(id)
}

// Create starts a session in PLANNING and returns its id.
func (m *Manager) Create(ctx context.Context, goal, url string) (string, error) {
	if strings.TrimSpace(goal) == "" {
		return "", ErrEmptyGoal
	}
	now := m.now().UTC()
	s := &Session{
		ID:            m.newID(),
		Goal:          goal,
		URL:           url,
		Status:        StatusPlanning,
		Actions:       []ActionRecord{},
		MaxIterations: m.maxIterations,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	m.metrics.SessionCreated()
	m.logger.Debug("Session created", zap.String("session_id", s.ID), zap.String("goal", goal))
	return s.ID, nil
}

// Get returns a copy of the session.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) mutate(ctx context.Context, id string, fn func(*Session) error) error {
	unlock := m.writes.Lock(id)
	defer unlock()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	s.UpdatedAt = m.now().UTC()
	return m.store.Update(ctx, s)
}

// UpdateDOM replaces the stored snapshot. A nil snapshot is ignored.
func (m *Manager) UpdateDOM(ctx context.Context, id string, snap *dom.Snapshot) error {
	if snap == nil {
		return nil
	}
	return m.mutate(ctx, id, func(s *Session) error {
		s.DOM = snap
		if snap.URL != "" {
			s.URL = snap.URL
		}
		return nil
	})
}

// UpdateAnalysis stores the latest initial analysis.
func (m *Manager) UpdateAnalysis(ctx context.Context, id string, a *decision.Analysis) error {
	return m.mutate(ctx, id, func(s *Session) error {
		s.Analysis = a
		return nil
	})
}

// AddAction appends a record and counts it toward the iteration ceiling
// unless it is a scroll.
func (m *Manager) AddAction(ctx context.Context, id string, a action.Action) (ActionRecord, error) {
	var rec ActionRecord
	err := m.mutate(ctx, id, func(s *Session) error {
		rec = ActionRecord{
			ID:        m.newID(),
			Action:    a.Clone(),
			Timestamp: m.now().UTC(),
		}
		s.Actions = append(s.Actions, rec)
		if a.Type != action.KindScroll {
			s.Iteration++
		}
		return nil
	})
	if err != nil {
		return ActionRecord{}, err
	}
	m.metrics.ActionRecorded(string(a.Type))
	return rec, nil
}

// UpdateLastActionResult attaches result to the newest record, replacing any
// earlier result. It does nothing for an empty log.
func (m *Manager) UpdateLastActionResult(ctx context.Context, id string, result *ActionResult) error {
	if result == nil {
		return nil
	}
	return m.mutate(ctx, id, func(s *Session) error {
		last := s.LastRecord()
		if last == nil {
			return errUnchanged
		}
		last.Result = result.clone()
		return nil
	})
}

func (m *Manager) SetStatus(ctx context.Context, id string, status Status) error {
	return m.mutate(ctx, id, func(s *Session) error {
		if s.Status == status {
			return errUnchanged
		}
		s.Status = status
		return nil
	})
}

// IsMaxIterationsReached reports whether the session is at its ceiling.
func (m *Manager) IsMaxIterationsReached(ctx context.Context, id string) (bool, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return s.Iteration >= s.MaxIterations, nil
}

// Complete moves the session to COMPLETED or FAILED.
func (m *Manager) Complete(ctx context.Context, id string, success bool, message string) error {
	status := StatusFailed
	if success {
		status = StatusCompleted
	}
	err := m.mutate(ctx, id, func(s *Session) error {
		now := m.now().UTC()
		s.Status = status
		s.CompletionMessage = message
		s.CompletedAt = &now
		return nil
	})
	if err != nil {
		return err
	}
	m.metrics.SessionFinished(string(status))
	m.logger.Info("Session finished", zap.String("session_id", id), zap.String("status", string(status)))
	return nil
}

// Expire removes sessions created more than maxAge ago.
func (m *Manager) Expire(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := m.now().Add(-maxAge)
	n, err := m.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	m.metrics.SessionsExpired(n)
	if n > 0 {
		m.logger.Info("Expired sessions", zap.Int("count", n), zap.Duration("max_age", maxAge))
	}
	return n, nil
}
