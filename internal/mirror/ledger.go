package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LedgerTable records one row per dataset per run.
const LedgerTable = "update_runs"

// Run statuses.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Run is a ledger entry.
type Run struct {
	ID         uuid.UUID
	Dataset    string
	Target     time.Time
	Status     string
	Fetched    int
	Total      int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

const createLedgerSQL = `
	CREATE TABLE IF NOT EXISTS update_runs (
		run_id      UUID NOT NULL,
		dataset     TEXT NOT NULL,
		target_date DATE NOT NULL,
		status      TEXT NOT NULL,
		fetched     BIGINT NOT NULL DEFAULT 0,
		total       BIGINT NOT NULL DEFAULT 0,
		error       TEXT,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, dataset)
	)
`

// Ledger writes run records.
type Ledger struct {
	db DB
}

// NewLedger creates a Ledger.
func NewLedger(db DB) *Ledger {
	return &Ledger{db: db}
}

// Ensure creates the ledger table.
func (l *Ledger) Ensure(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, createLedgerSQL); err != nil {
		return fmt.Errorf("create %s: %w", LedgerTable, err)
	}
	return nil
}

// Record inserts a run entry.
func (l *Ledger) Record(ctx context.Context, r Run) error {
	var errText *string
	if r.Error != "" {
		errText = &r.Error
	}
	_, err := l.db.Exec(ctx, `
		INSERT INTO update_runs (run_id, dataset, target_date, status, fetched, total, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, dataset) DO NOTHING
	`, r.ID.String(), r.Dataset, r.Target, r.Status, r.Fetched, r.Total, errText, r.StartedAt, r.FinishedAt)
	if err != nil {
		return fmt.Errorf("record run %s/%s: %w", r.ID, r.Dataset, err)
	}
	return nil
}
