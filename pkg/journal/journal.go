// Package journal keeps a durable record of every per-message relay outcome.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeTimeout  = "timeout"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Outcome is one message's terminal state within a batch.
type Outcome struct {
	BatchID   string
	Index     int
	RoomID    string
	Status    string
	TxHash    string
	Reason    string
	Nonce     *uint64
	GasLimit  uint64
	GasUsed   uint64
	CreatedAt time.Time
}

type Journal interface {
	Record(ctx context.Context, o *Outcome) error
	FindByTxHash(ctx context.Context, txHash string) (*Outcome, error)
}

// Nop is used when no database is configured.
type Nop struct{}

func (Nop) Record(ctx context.Context, o *Outcome) error { return nil }

func (Nop) FindByTxHash(ctx context.Context, txHash string) (*Outcome, error) { return nil, nil }

const schema = `
CREATE TABLE IF NOT EXISTS relay_outcomes (
	id          BIGSERIAL PRIMARY KEY,
	batch_id    TEXT        NOT NULL,
	msg_index   INTEGER     NOT NULL,
	room_id     TEXT        NOT NULL,
	status      TEXT        NOT NULL,
	tx_hash     TEXT,
	reason      TEXT,
	nonce       BIGINT,
	gas_limit   BIGINT      NOT NULL DEFAULT 0,
	gas_used    BIGINT      NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS relay_outcomes_tx_hash_idx ON relay_outcomes (tx_hash);
`

type PostgresJournal struct {
	db *pgxpool.Pool
}

func NewPostgresJournal(db *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// EnsureSchema creates the outcome table if it does not exist yet.
func (j *PostgresJournal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure journal schema: %w", err)
	}
	return nil
}

func (j *PostgresJournal) Record(ctx context.Context, o *Outcome) error {
	query := `
		INSERT INTO relay_outcomes (batch_id, msg_index, room_id, status, tx_hash, reason, nonce, gas_limit, gas_used)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
		RETURNING created_at
	`
	var nonce *int64
	if o.Nonce != nil {
		n := int64(*o.Nonce)
		nonce = &n
	}
	err := j.db.QueryRow(ctx, query,
		o.BatchID, o.Index, o.RoomID, o.Status, o.TxHash, o.Reason,
		nonce, int64(o.GasLimit), int64(o.GasUsed),
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// FindByTxHash returns the latest outcome recorded for txHash, or nil.
func (j *PostgresJournal) FindByTxHash(ctx context.Context, txHash string) (*Outcome, error) {
	query := `
		SELECT batch_id, msg_index, room_id, status, COALESCE(tx_hash, ''), COALESCE(reason, ''),
		       nonce, gas_limit, gas_used, created_at
		FROM relay_outcomes
		WHERE tx_hash = $1
		ORDER BY id DESC
		LIMIT 1
	`
	var (
		o        Outcome
		nonce    *int64
		gasLimit int64
		gasUsed  int64
	)
	err := j.db.QueryRow(ctx, query, txHash).Scan(
		&o.BatchID, &o.Index, &o.RoomID, &o.Status, &o.TxHash, &o.Reason,
		&nonce, &gasLimit, &gasUsed, &o.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find outcome: %w", err)
	}
	if nonce != nil {
		n := uint64(*nonce)
		o.Nonce = &n
	}
	o.GasLimit = uint64(gasLimit)
	o.GasUsed = uint64(gasUsed)
	return &o, nil
}
