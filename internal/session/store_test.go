package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/navpilot/internal/action"
	"github.com/xkilldash9x/navpilot/internal/dom"
)

func newTestSession(id string, created time.Time) *Session {
	return &Session{
		ID:            id,
		Goal:          "Click the login button",
		Status:        StatusPlanning,
		Actions:       []ActionRecord{},
		MaxIterations: DefaultMaxIterations,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

// runStoreContract exercises the behavior every Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create and get round trip", func(t *testing.T) {
		store := newStore(t)
		s := newTestSession("s1", base)
		s.DOM = &dom.Snapshot{URL: "https://x.test", Title: "Home"}
		s.Actions = append(s.Actions, ActionRecord{
			ID:        "r1",
			Action:    action.Action{Type: action.KindClick, TargetUID: "b1"},
			Timestamp: base,
		})
		require.NoError(t, store.Create(ctx, s))

		got, err := store.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "Click the login button", got.Goal)
		assert.Equal(t, StatusPlanning, got.Status)
		require.NotNil(t, got.DOM)
		assert.Equal(t, "Home", got.DOM.Title)
		require.Len(t, got.Actions, 1)
		assert.Equal(t, "b1", got.Actions[0].Action.TargetUID)
		assert.True(t, got.CreatedAt.Equal(base))
	})

	t.Run("duplicate create is rejected", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newTestSession("dup", base)))
		assert.ErrorIs(t, store.Create(ctx, newTestSession("dup", base)), ErrSessionExists)
	})

	t.Run("unknown id", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		assert.ErrorIs(t, store.Update(ctx, newTestSession("missing", base)), ErrSessionNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "missing"), ErrSessionNotFound)
	})

	t.Run("update persists changes", func(t *testing.T) {
		store := newStore(t)
		s := newTestSession("s2", base)
		require.NoError(t, store.Create(ctx, s))

		s.Status = StatusExecuting
		s.Iteration = 3
		require.NoError(t, store.Update(ctx, s))

		got, err := store.Get(ctx, "s2")
		require.NoError(t, err)
		assert.Equal(t, StatusExecuting, got.Status)
		assert.Equal(t, 3, got.Iteration)
	})

	t.Run("expiry removes only older sessions and blocks resurrection", func(t *testing.T) {
		store := newStore(t)
		old := newTestSession("old", base.Add(-2*time.Hour))
		fresh := newTestSession("fresh", base)
		require.NoError(t, store.Create(ctx, old))
		require.NoError(t, store.Create(ctx, fresh))

		n, err := store.DeleteOlderThan(ctx, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = store.Get(ctx, "old")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, err = store.Get(ctx, "fresh")
		assert.NoError(t, err)

		old.Iteration = 9
		assert.ErrorIs(t, store.Update(ctx, old), ErrSessionNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newTestSession("gone", base)))
		require.NoError(t, store.Delete(ctx, "gone"))
		_, err := store.Get(ctx, "gone")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("closed store", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Close())
		_, err := store.Get(ctx, "any")
		assert.ErrorIs(t, err, ErrStoreClosed)
		assert.NoError(t, store.Close())
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })

	t.Run("returned sessions are copies", func(t *testing.T) {
		ctx := context.Background()
		store := NewMemoryStore()
		s := newTestSession("c1", time.Now())
		require.NoError(t, store.Create(ctx, s))

		s.Goal = "mutated after create"
		got, err := store.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "Click the login button", got.Goal)

		got.Actions = append(got.Actions, ActionRecord{ID: "x"})
		again, err := store.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Empty(t, again.Actions)
		assert.Equal(t, 1, store.Len())
	})
}

func TestRedisStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return NewRedisStoreFromClient(client, "test:", 0)
	})

	t.Run("keys are namespaced and ttl applied", func(t *testing.T) {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		store := NewRedisStoreFromClient(client, "", time.Hour)
		t.Cleanup(func() { _ = store.Close() })

		require.NoError(t, store.Create(ctx, newTestSession("k1", time.Now())))
		assert.True(t, mr.Exists(defaultRedisPrefix+"data:k1"))
		assert.Equal(t, time.Hour, mr.TTL(defaultRedisPrefix+"data:k1"))

		members, err := mr.ZMembers(defaultRedisPrefix + "created")
		require.NoError(t, err)
		assert.Equal(t, []string{"k1"}, members)
	})

	t.Run("connect fails fast without an address", func(t *testing.T) {
		_, err := NewRedisStore(context.Background(), RedisConfig{})
		assert.Error(t, err)
	})

	t.Run("connect through config", func(t *testing.T) {
		mr := miniredis.RunT(t)
		store, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr(), Prefix: "cfg:"})
		require.NoError(t, err)
		assert.NoError(t, store.Close())
	})
}
