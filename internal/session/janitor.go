package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor runs Manager.Expire on a cron schedule.
type Janitor struct {
	manager *Manager
	maxAge  time.Duration
	cron    *cron.Cron
	logger  *zap.Logger
}

// NewJanitor parses schedule (standard cron or "@every 1h") and returns a
// stopped janitor.
func NewJanitor(manager *Manager, schedule string, maxAge time.Duration, logger *zap.Logger) (*Janitor, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("janitor max age must be positive, got %s", maxAge)
	}
	j := &Janitor{
		manager: manager,
		maxAge:  maxAge,
		logger:  logger.Named("session_janitor"),
	}
	cl := cronLogger{j.logger.Sugar()}
	j.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := j.cron.AddFunc(schedule, j.tick); err != nil {
		return nil, fmt.Errorf("invalid expiry schedule %q: %w", schedule, err)
	}
	return j, nil
}

func (j *Janitor) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("Session expiry failed", zap.Error(err))
	}
}

// RunOnce expires sessions immediately.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	return j.manager.Expire(ctx, j.maxAge)
}

func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep, bounded by ctx.
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
