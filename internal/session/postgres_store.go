package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navpilot/internal/action"
	"github.com/xkilldash9x/navpilot/internal/decision"
	"github.com/xkilldash9x/navpilot/internal/dom"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the tables used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS navpilot_sessions (
    id                 TEXT PRIMARY KEY,
    goal               TEXT NOT NULL,
    url                TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL,
    iteration          INTEGER NOT NULL,
    max_iterations     INTEGER NOT NULL,
    dom                JSONB,
    analysis           JSONB,
    completion_message TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL,
    completed_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS navpilot_sessions_created_at ON navpilot_sessions (created_at);
CREATE TABLE IF NOT EXISTS navpilot_actions (
    id         TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES navpilot_sessions (id) ON DELETE CASCADE,
    seq        INTEGER NOT NULL,
    action     JSONB NOT NULL,
    result     JSONB,
    created_at TIMESTAMPTZ NOT NULL,
    UNIQUE (session_id, seq)
);
`

const (
	sqlInsertSession = `
        INSERT INTO navpilot_sessions (id, goal, url, status, iteration, max_iterations, dom, analysis, completion_message, created_at, updated_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (id) DO NOTHING;
    `
	sqlUpdateSession = `
        UPDATE navpilot_sessions SET
            status = $2,
            iteration = $3,
            max_iterations = $4,
            dom = $5,
            analysis = $6,
            completion_message = $7,
            updated_at = $8,
            completed_at = $9
        WHERE id = $1;
    `
	sqlUpsertAction = `
        INSERT INTO navpilot_actions (id, session_id, seq, action, result, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE SET
            result = EXCLUDED.result;
    `
	sqlSelectSession = `
        SELECT id, goal, url, status, iteration, max_iterations, dom, analysis, completion_message, created_at, updated_at, completed_at
        FROM navpilot_sessions
        WHERE id = $1;
    `
	sqlSelectActions = `
        SELECT id, action, result, created_at
        FROM navpilot_actions
        WHERE session_id = $1
        ORDER BY seq ASC;
    `
	sqlDeleteSession = `DELETE FROM navpilot_sessions WHERE id = $1;`
	sqlDeleteOlder   = `DELETE FROM navpilot_sessions WHERE created_at < $1;`
)

// PostgresStore persists sessions in PostgreSQL. Actions live in their own
// table, keyed by session and sequence number.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgresStore verifies the connection and returns a store.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("pg_session_store"),
	}, nil
}

// Migrate creates the schema if it does not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply session schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Create(ctx context.Context, s *Session) error {
	domJSON, analysisJSON, err := encodeSessionBlobs(s)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer p.rollback(ctx, tx)

	tag, err := tx.Exec(ctx, sqlInsertSession,
		s.ID, s.Goal, s.URL, string(s.Status), s.Iteration, s.MaxIterations,
		domJSON, analysisJSON, s.CompletionMessage,
		s.CreatedAt.UTC(), s.UpdatedAt.UTC(), utcPtr(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionExists
	}
	if err := p.persistActions(ctx, tx, s); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) Update(ctx context.Context, s *Session) error {
	domJSON, analysisJSON, err := encodeSessionBlobs(s)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer p.rollback(ctx, tx)

	tag, err := tx.Exec(ctx, sqlUpdateSession,
		s.ID, string(s.Status), s.Iteration, s.MaxIterations,
		domJSON, analysisJSON, s.CompletionMessage,
		s.UpdatedAt.UTC(), utcPtr(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	if err := p.persistActions(ctx, tx, s); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// persistActions upserts the action log in one batch. Records are append-only,
// so only the result column can change for an existing row.
func (p *PostgresStore) persistActions(ctx context.Context, tx pgx.Tx, s *Session) error {
	if len(s.Actions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, rec := range s.Actions {
		actionJSON, err := json.Marshal(rec.Action)
		if err != nil {
			return fmt.Errorf("failed to encode action %s: %w", rec.ID, err)
		}
		var resultJSON []byte
		if rec.Result != nil {
			if resultJSON, err = json.Marshal(rec.Result); err != nil {
				return fmt.Errorf("failed to encode result %s: %w", rec.ID, err)
			}
		}
		batch.Queue(sqlUpsertAction, rec.ID, s.ID, i, actionJSON, resultJSON, rec.Timestamp.UTC())
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	defer func() {
		_ = br.Close()
	}()

	for i := range s.Actions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to upsert action %s (index %d): %w", s.Actions[i].ID, i, err)
		}
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		s                     Session
		status                string
		domJSON, analysisJSON []byte
		completedAt           *time.Time
	)
	err := p.pool.QueryRow(ctx, sqlSelectSession, id).Scan(
		&s.ID, &s.Goal, &s.URL, &status, &s.Iteration, &s.MaxIterations,
		&domJSON, &analysisJSON, &s.CompletionMessage,
		&s.CreatedAt, &s.UpdatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	s.Status = Status(status)
	s.CompletedAt = completedAt

	if len(domJSON) > 0 {
		var snap dom.Snapshot
		if err := json.Unmarshal(domJSON, &snap); err != nil {
			return nil, fmt.Errorf("failed to decode session snapshot: %w", err)
		}
		s.DOM = &snap
	}
	if len(analysisJSON) > 0 {
		var a decision.Analysis
		if err := json.Unmarshal(analysisJSON, &a); err != nil {
			return nil, fmt.Errorf("failed to decode session analysis: %w", err)
		}
		s.Analysis = &a
	}

	rows, err := p.pool.Query(ctx, sqlSelectActions, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	s.Actions = []ActionRecord{}
	for rows.Next() {
		var (
			rec                    ActionRecord
			actionJSON, resultJSON []byte
		)
		if err := rows.Scan(&rec.ID, &actionJSON, &resultJSON, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan action row: %w", err)
		}
		var a action.Action
		if err := a.UnmarshalJSON(actionJSON); err != nil {
			return nil, fmt.Errorf("failed to decode action %s: %w", rec.ID, err)
		}
		rec.Action = a
		if len(resultJSON) > 0 {
			var r ActionResult
			if err := json.Unmarshal(resultJSON, &r); err != nil {
				return nil, fmt.Errorf("failed to decode result %s: %w", rec.ID, err)
			}
			rec.Result = &r
		}
		s.Actions = append(s.Actions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return &s, nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, sqlDeleteSession, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (p *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, sqlDeleteOlder, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close is a no-op; the pool belongs to the caller.
func (p *PostgresStore) Close() error { return nil }

func (p *PostgresStore) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		p.log.Error("Failed to rollback transaction", zap.Error(err))
	}
}

func encodeSessionBlobs(s *Session) (domJSON, analysisJSON []byte, err error) {
	if s.DOM != nil {
		if domJSON, err = json.Marshal(s.DOM); err != nil {
			return nil, nil, fmt.Errorf("failed to encode session snapshot: %w", err)
		}
	}
	if s.Analysis != nil {
		if analysisJSON, err = json.Marshal(s.Analysis); err != nil {
			return nil, nil, fmt.Errorf("failed to encode session analysis: %w", err)
		}
	}
	return domJSON, analysisJSON, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
