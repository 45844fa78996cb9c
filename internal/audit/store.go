// Package audit persists safety-relevant events: access denials, flagged
// injection attempts, and confirmation outcomes. This is the only durable
// state Warden keeps besides credentials; the conversational stores are
// memory-only on purpose.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Event kinds.
const (
	KindAccessDenied     = "access_denied"
	KindInjectionFlagged = "injection_flagged"
	KindConfirmation     = "confirmation"
	KindRateLimited      = "rate_limited"
)

// Confirmation outcomes.
const (
	OutcomeExecuted       = "executed"
	OutcomeExecuteFailed  = "execute_failed"
	OutcomeRejected       = "rejected"
	OutcomeOwnerMismatch  = "owner_mismatch"
	OutcomeExpiredOrStale = "expired_or_stale"
)

// Event is one audit record.
type Event struct {
	ID         string
	Kind       string
	Outcome    string
	Actor      string
	Coordinate string
	Operation  string
	Detail     string
	CreatedAt  time.Time
}

// Store is the SQLite-backed audit log.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the audit database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}

	_, err = db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			outcome TEXT,
			actor TEXT,
			coordinate TEXT,
			operation TEXT,
			detail TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_kind ON audit_events(kind, created_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit_events table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts an event, assigning an ID and timestamp when absent.
// Audit failures are logged but never propagate: losing a record must not
// break the turn that produced it.
func (s *Store) Record(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, kind, outcome, actor, coordinate, operation, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Kind, ev.Outcome, ev.Actor, ev.Coordinate, ev.Operation, ev.Detail, ev.CreatedAt,
	)
	if err != nil {
		log.Error().Err(err).Str("kind", ev.Kind).Msg("audit_record_failed")
	}
}

// Recent returns up to limit events, newest first, optionally filtered by kind.
func (s *Store) Recent(ctx context.Context, kind string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, kind, outcome, actor, coordinate, operation, detail, created_at
		FROM audit_events`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var outcome, actor, coordinate, operation, detail sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Kind, &outcome, &actor, &coordinate, &operation, &detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Outcome = outcome.String
		ev.Actor = actor.String
		ev.Coordinate = coordinate.String
		ev.Operation = operation.String
		ev.Detail = detail.String
		events = append(events, ev)
	}
	return events, rows.Err()
}
