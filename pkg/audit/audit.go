// Package audit records claim lifecycle events into a SQLite trail. Recording
// is best effort: a broken audit database never fails the orchestration path.
package audit

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/axelsure/claimflow/pkg/logger"
)

// Event kinds written by the orchestrator.
const (
	EventClaimCreated     = "claim_created"
	EventStageChanged     = "stage_changed"
	EventMailIngested     = "mail_ingested"
	EventClarifierSent    = "clarifier_sent"
	EventDecisionRecorded = "decision_recorded"
	EventFollowupSent     = "followup_sent"
)

// Event is one audit trail row.
type Event struct {
	ID        int64     `db:"id"`
	ClaimID   string    `db:"claim_id"`
	Kind      string    `db:"kind"`
	Detail    string    `db:"detail"`
	CreatedAt time.Time `db:"created_at"`
}

// Sink accepts audit events.
type Sink interface {
	Record(ctx context.Context, claimID, kind, detail string)
}

// Nop discards events. Used when auditing is disabled.
type Nop struct{}

func (Nop) Record(context.Context, string, string, string) {}

// Recorder writes events to SQLite. Satisfies Sink.
type Recorder struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	claim_id   TEXT NOT NULL,
	kind       TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_claim ON audit_events (claim_id, id);
`

// Open opens or creates the audit database with WAL mode enabled.
func Open(ctx context.Context, dbPath string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create audit directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open audit database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping audit database")
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}
	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create audit schema")
	}
	return &Recorder{db: db}, nil
}

// Close releases the underlying database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Record appends one event. Failures are logged, never returned.
func (r *Recorder) Record(ctx context.Context, claimID, kind, detail string) {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO audit_events (claim_id, kind, detail, created_at) VALUES (?, ?, ?, ?)",
		claimID, kind, detail, time.Now().UTC())
	if err != nil {
		logger.G(ctx).WithError(err).WithFields(map[string]any{
			"claim_id": claimID,
			"kind":     kind,
		}).Warn("failed to record audit event")
	}
}

// List returns the events for a claim in insertion order.
func (r *Recorder) List(ctx context.Context, claimID string) ([]Event, error) {
	var events []Event
	err := r.db.SelectContext(ctx, &events,
		"SELECT id, claim_id, kind, detail, created_at FROM audit_events WHERE claim_id = ? ORDER BY id",
		claimID)
	return events, errors.Wrap(err, "failed to list audit events")
}
