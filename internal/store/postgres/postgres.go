// Package postgres provides a PostgreSQL-backed [store.TurnLog].
//
// Usage:
//
//	log, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer log.Close()
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/kioskvoice/internal/store"
)

const ddlTurns = `
CREATE TABLE IF NOT EXISTS voice_turns (
    id           BIGSERIAL    PRIMARY KEY,
    session_id   TEXT         NOT NULL,
    user_text    TEXT         NOT NULL,
    reply_text   TEXT         NOT NULL DEFAULT '',
    degraded     BOOLEAN      NOT NULL DEFAULT FALSE,
    units        INTEGER      NOT NULL DEFAULT 0,
    played       INTEGER      NOT NULL DEFAULT 0,
    at           TIMESTAMPTZ  NOT NULL DEFAULT now(),
    duration_ns  BIGINT       NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_voice_turns_session_at
    ON voice_turns (session_id, at);
`

var _ store.TurnLog = (*Log)(nil)

// Log writes turns to the voice_turns table. Safe for concurrent use.
type Log struct {
	pool *pgxpool.Pool
}

// New connects to dsn, pings the server and runs [Migrate].
func New(ctx context.Context, dsn string) (*Log, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres turn log: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres turn log: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres turn log: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres turn log: migrate: %w", err)
	}
	return &Log{pool: pool}, nil
}

// Migrate creates the schema if it does not exist. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTurns); err != nil {
		return fmt.Errorf("create voice_turns: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable. Used by /readyz.
func (l *Log) Ping(ctx context.Context) error { return l.pool.Ping(ctx) }

// Close releases the pool.
func (l *Log) Close() { l.pool.Close() }

// Append implements [store.TurnLog].
func (l *Log) Append(ctx context.Context, t store.Turn) error {
	const q = `
		INSERT INTO voice_turns
		    (session_id, user_text, reply_text, degraded, units, played, at, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := l.pool.Exec(ctx, q,
		t.SessionID,
		t.User,
		t.Assistant,
		t.Degraded,
		t.Units,
		t.Played,
		at,
		t.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("postgres turn log: append: %w", err)
	}
	return nil
}

// Recent implements [store.TurnLog].
func (l *Log) Recent(ctx context.Context, sessionID string, n int) ([]store.Turn, error) {
	if n <= 0 {
		n = store.DefaultMemoryCapacity
	}
	const q = `
		SELECT session_id, user_text, reply_text, degraded, units, played, at, duration_ns
		FROM (
		    SELECT * FROM voice_turns
		    WHERE  $1::text = '' OR session_id = $1::text
		    ORDER  BY at DESC, id DESC
		    LIMIT  $2
		) recent
		ORDER BY at, id`

	rows, err := l.pool.Query(ctx, q, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("postgres turn log: recent: %w", err)
	}
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Turn, error) {
		var (
			t          store.Turn
			durationNS int64
		)
		err := row.Scan(&t.SessionID, &t.User, &t.Assistant, &t.Degraded, &t.Units, &t.Played, &t.At, &durationNS)
		t.Duration = time.Duration(durationNS)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres turn log: scan: %w", err)
	}
	return turns, nil
}
