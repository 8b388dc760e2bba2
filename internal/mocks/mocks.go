package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/navpilot/api/schemas"
	"github.com/xkilldash9x/navpilot/internal/config"
	"github.com/xkilldash9x/navpilot/internal/session"
)

// -- Config Mock --

// MockConfig mocks config.Interface.
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Planner() config.PlannerConfig {
	args := m.Called()
	return args.Get(0).(config.PlannerConfig)
}

func (m *MockConfig) Session() config.SessionConfig {
	args := m.Called()
	return args.Get(0).(config.SessionConfig)
}

func (m *MockConfig) LLM() config.LLMRouterConfig {
	args := m.Called()
	return args.Get(0).(config.LLMRouterConfig)
}

func (m *MockConfig) Metrics() config.MetricsConfig {
	args := m.Called()
	return args.Get(0).(config.MetricsConfig)
}

func (m *MockConfig) Tracing() config.TracingConfig {
	args := m.Called()
	return args.Get(0).(config.TracingConfig)
}

func (m *MockConfig) SetPlannerMaxIterations(n int)   { m.Called(n) }
func (m *MockConfig) SetPlannerAssumeComplete(b bool) { m.Called(b) }
func (m *MockConfig) SetSessionStore(s string)        { m.Called(s) }

// -- LLM Client Mock --

// MockLLMClient mocks schemas.LLMClient. A cancelled context short-circuits
// before the expectation is consulted.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Session Store Mock --

// MockStore mocks session.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Create(ctx context.Context, s *session.Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockStore) Get(ctx context.Context, id string) (*session.Session, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*session.Session)
	return s, args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, s *session.Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockStore) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

var (
	_ config.Interface  = (*MockConfig)(nil)
	_ schemas.LLMClient = (*MockLLMClient)(nil)
	_ session.Store     = (*MockStore)(nil)
)
