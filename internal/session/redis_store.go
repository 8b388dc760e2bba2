package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "navpilot:session:"

// RedisConfig holds Redis connection settings for the session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key (default "navpilot:session:").
	Prefix string
	// TTL is a safety expiry on each session key; 0 means none. Scheduled
	// expiry via DeleteOlderThan works regardless.
	TTL      time.Duration
	PoolSize int
}

// RedisStore keeps each session as a JSON document plus a sorted-set index of
// creation times used for bulk expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(id string) string { return r.prefix + "data:" + id }
func (r *RedisStore) indexKey() string     { return r.prefix + "created" }

func (r *RedisStore) checkOpen() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrStoreClosed
	}
	return nil
}

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.key(s.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !created {
		return ErrSessionExists
	}

	score := float64(s.CreatedAt.UnixMilli())
	if err := r.client.ZAdd(ctx, r.indexKey(), redis.Z{Score: score, Member: s.ID}).Err(); err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Update(ctx context.Context, s *Session) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	// XX refuses to write a key that expiry already removed.
	updated, err := r.client.SetXX(ctx, r.key(s.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if !updated {
		return ErrSessionNotFound
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, r.key(id))
	pipe.ZRem(ctx, r.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if del.Val() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *RedisStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}

	ids, err := r.client.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
		members[i] = id
	}

	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, r.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(del.Val()), nil
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}
