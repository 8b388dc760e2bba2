package service

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navpilot/api/schemas"
	"github.com/xkilldash9x/navpilot/internal/config"
	"github.com/xkilldash9x/navpilot/internal/llmclient"
	"github.com/xkilldash9x/navpilot/internal/observability"
	"github.com/xkilldash9x/navpilot/internal/planner"
	"github.com/xkilldash9x/navpilot/internal/session"
)

// ComponentFactory builds the component set from configuration. The
// abstraction lets commands be tested without a model provider.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

type concreteFactory struct {
	llm schemas.LLMClient
}

// FactoryOption configures the production factory.
type FactoryOption func(*concreteFactory)

// WithLLMClient bypasses provider construction and uses client instead.
func WithLLMClient(client schemas.LLMClient) FactoryOption {
	return func(f *concreteFactory) { f.llm = client }
}

// NewComponentFactory creates the production factory.
func NewComponentFactory(opts ...FactoryOption) ComponentFactory {
	f := &concreteFactory{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create wires metrics, tracing, the session store, the session manager and
// its janitor, the model client stack and the planner. The janitor is built
// but not started. A failure part way shuts down what was already created.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (_ *Components, err error) {
	components := &Components{logger: logger}
	defer func() {
		if err != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(err))
			_ = components.Shutdown(context.Background())
		}
	}()

	// 1. Metrics
	if mc := cfg.Metrics(); mc.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		components.Registry = reg
		components.Metrics = observability.NewMetrics(reg, mc.Namespace)
		logger.Debug("Metrics registry initialized.")
	}

	// 2. Tracing
	serviceName := cfg.Logger().ServiceName
	if serviceName == "" {
		serviceName = "navpilot"
	}
	shutdown, err := observability.InitTracing(ctx, cfg.Tracing(), serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	components.shutdownTracing = shutdown

	// 3. Session store
	store, pool, err := InitializeSessionStore(ctx, cfg.Session(), logger)
	if err != nil {
		return nil, err
	}
	components.Store = store
	components.DBPool = pool

	// 4. Session manager and janitor
	components.Sessions = session.NewManager(store, logger,
		session.WithMaxIterations(cfg.Planner().MaxIterations),
		session.WithMetrics(components.Metrics),
	)
	janitor, err := session.NewJanitor(components.Sessions, cfg.Session().ExpirySchedule, cfg.Session().MaxAge, logger)
	if err != nil {
		return nil, err
	}
	components.Janitor = janitor

	// 5. Model client
	if f.llm != nil {
		components.LLM = llmclient.NewInstrumentedClient(f.llm, components.Metrics)
	} else {
		client, err := llmclient.NewFromConfig(ctx, cfg.LLM(), logger, components.Metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		components.LLM = client
	}

	// 6. Planner
	orch, err := planner.New(components.Sessions, components.LLM, cfg.Planner(), logger, planner.WithMetrics(components.Metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to create planner: %w", err)
	}
	components.Planner = orch

	logger.Info("All components initialized.", zap.String("session_store", cfg.Session().Store))
	return components, nil
}
