package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navpilot/api/schemas"
	"github.com/xkilldash9x/navpilot/internal/observability"
	"github.com/xkilldash9x/navpilot/internal/planner"
	"github.com/xkilldash9x/navpilot/internal/session"
)

// Components holds everything a planning process needs and owns their
// shutdown order.
type Components struct {
	Store    session.Store
	Sessions *session.Manager
	Janitor  *session.Janitor
	LLM      schemas.LLMClient
	Planner  *planner.Orchestrator
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	DBPool   *pgxpool.Pool

	shutdownTracing observability.ShutdownFunc
	logger          *zap.Logger
}

// Shutdown releases components in reverse dependency order: the janitor
// first so no expiry runs against a closing store, then the model client,
// the store, the pool and finally the tracer provider.
func (c *Components) Shutdown(ctx context.Context) error {
	logger := c.logger
	if logger == nil {
		logger = observability.GetLogger()
	}
	logger.Debug("Beginning components shutdown sequence.")

	var errs []error
	if c.Janitor != nil {
		if err := c.Janitor.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop janitor: %w", err))
		}
	}
	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close llm client: %w", err))
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session store: %w", err))
		}
	}
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}
	if c.shutdownTracing != nil {
		if err := c.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		logger.Warn("Components shut down with errors.", zap.Error(err))
		return err
	}
	logger.Info("All components shut down successfully.")
	return nil
}
