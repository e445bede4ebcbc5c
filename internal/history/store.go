package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateKey is returned when an idempotency key was already recorded.
var ErrDuplicateKey = errors.New("history: idempotency key already recorded")

// Record is one completed (or failed) invocation.
type Record struct {
	IdempotencyKey string    `json:"idempotencyKey"`
	Action         string    `json:"action"`
	Command        string    `json:"command"`
	NodeID         string    `json:"nodeId"`
	Surface        string    `json:"surface,omitempty"`
	OK             bool      `json:"ok"`
	Outcome        string    `json:"outcome"`
	Error          string    `json:"error,omitempty"`
	DurationMs     int64     `json:"durationMs"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Store is a SQLite-backed invocation log. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends r. A key that is already present yields ErrDuplicateKey.
func (s *Store) Record(ctx context.Context, r Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	ok := 0
	if r.OK {
		ok = 1
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO invocations
			(idempotency_key, action, command, node_id, surface, ok, outcome, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.IdempotencyKey, r.Action, r.Command, r.NodeID, r.Surface, ok, r.Outcome, r.Error,
		r.DurationMs, r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: insert invocation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, r.IdempotencyKey)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idempotency_key, action, command, node_id, surface, ok, outcome, error, duration_ms, created_at
		FROM invocations
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			r         Record
			ok        int
			createdAt string
		)
		if err := rows.Scan(&r.IdempotencyKey, &r.Action, &r.Command, &r.NodeID, &r.Surface,
			&ok, &r.Outcome, &r.Error, &r.DurationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan invocation: %w", err)
		}
		r.OK = ok == 1
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate invocations: %w", err)
	}
	return out, nil
}
