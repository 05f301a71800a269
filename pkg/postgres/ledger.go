package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
)

// Ledger statuses.
const (
	StatusIndexed  = "INDEXED"
	StatusFailed   = "FAILED"
	StatusRejected = "REJECTED"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ingested_records (
		source_key  TEXT PRIMARY KEY,
		record_id   BIGINT,
		status      TEXT NOT NULL,
		detail      TEXT NOT NULL DEFAULT '',
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS ingested_records_record_id ON ingested_records (record_id)`,
	`CREATE INDEX IF NOT EXISTS ingested_records_status ON ingested_records (status)`,
}

// Entry is one ledger row. RecordID is -1 for records that never got an id.
type Entry struct {
	Key       string
	RecordID  int64
	Status    string
	Detail    string
	UpdatedAt time.Time
}

// Ledger records ingestion outcomes keyed by source key.
type Ledger struct {
	client *Client
}

func NewLedger(client *Client) *Ledger {
	return &Ledger{client: client}
}

// EnsureSchema creates the ledger table and its indexes.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	return l.client.InTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("creating ledger schema: %w", err)
			}
		}
		return nil
	})
}

// Record upserts the outcome for key. A negative recordID is stored as NULL.
func (l *Ledger) Record(ctx context.Context, key string, recordID int64, status, detail string) error {
	var id sql.NullInt64
	if recordID >= 0 {
		id = sql.NullInt64{Int64: recordID, Valid: true}
	}
	_, err := l.client.DB.ExecContext(ctx,
		`INSERT INTO ingested_records (source_key, record_id, status, detail, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (source_key) DO UPDATE
		 SET record_id = EXCLUDED.record_id, status = EXCLUDED.status,
		     detail = EXCLUDED.detail, updated_at = EXCLUDED.updated_at`,
		key, id, status, detail,
	)
	if err != nil {
		return fmt.Errorf("recording ledger entry %q: %w", key, err)
	}
	return nil
}

// Lookup returns the entry for key, or ErrNotFound.
func (l *Ledger) Lookup(ctx context.Context, key string) (*Entry, error) {
	var (
		e  Entry
		id sql.NullInt64
	)
	err := l.client.DB.QueryRowContext(ctx,
		`SELECT source_key, record_id, status, detail, updated_at
		 FROM ingested_records WHERE source_key = $1`, key,
	).Scan(&e.Key, &id, &e.Status, &e.Detail, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger entry %q: %w", key, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger entry %q: %w", key, err)
	}
	e.RecordID = -1
	if id.Valid {
		e.RecordID = id.Int64
	}
	return &e, nil
}
