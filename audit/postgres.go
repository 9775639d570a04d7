package audit

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSink mirrors receipts into Postgres for regulators and offline
// analysis. It is optional; the bbolt store remains the source of
// truth and a nil sink is a no-op.
type PGSink struct {
	pool *pgxpool.Pool
}

// ConnectPG opens a pool against dsn and verifies connectivity.
func ConnectPG(ctx context.Context, dsn string) (*PGSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping postgres: %w", err)
	}
	return &PGSink{pool: pool}, nil
}

// Close releases the pool.
func (p *PGSink) Close() {
	if p != nil {
		p.pool.Close()
	}
}

// InitSchema creates the receipt tables when they do not exist yet.
func (p *PGSink) InitSchema(ctx context.Context) error {
	if p == nil {
		return nil
	}
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS kill_receipts (
			room_id         TEXT        NOT NULL,
			seq             BIGINT      NOT NULL,
			target_id       BIGINT      NOT NULL,
			reward_fp       BIGINT      NOT NULL,
			rules_hash      TEXT        NOT NULL,
			rules_version   INT         NOT NULL,
			seed_commitment TEXT        NOT NULL,
			prev_hash       TEXT        NOT NULL,
			receipt_hash    TEXT        NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (room_id, seq)
		);
		CREATE TABLE IF NOT EXISTS receipt_contributors (
			room_id   TEXT   NOT NULL,
			seq       BIGINT NOT NULL,
			player_id TEXT   NOT NULL,
			amount_fp BIGINT NOT NULL,
			PRIMARY KEY (room_id, seq, player_id),
			FOREIGN KEY (room_id, seq) REFERENCES kill_receipts (room_id, seq)
		);
	`)
	if err != nil {
		return fmt.Errorf("audit: init postgres schema: %w", err)
	}
	return nil
}

// WriteReceipt inserts one receipt and its contributor rows in a single
// transaction. Conflicting inserts are left alone so replayed writes
// after a crash are harmless.
func (p *PGSink) WriteReceipt(ctx context.Context, roomID string, r *Receipt) error {
	if p == nil {
		return nil
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("audit: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	hash := r.Hash()
	_, err = tx.Exec(ctx, `
		INSERT INTO kill_receipts
			(room_id, seq, target_id, reward_fp, rules_hash, rules_version,
			 seed_commitment, prev_hash, receipt_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (room_id, seq) DO NOTHING`,
		roomID, int64(r.Seq), int64(r.TargetID), r.RewardFp,
		hex.EncodeToString(r.RulesHash[:]), int32(r.RulesVersion),
		hex.EncodeToString(r.SeedCommitment[:]), hex.EncodeToString(r.PrevHash[:]),
		hex.EncodeToString(hash[:]))
	if err != nil {
		return fmt.Errorf("audit: insert receipt: %w", err)
	}
	for _, c := range r.Contributors {
		_, err = tx.Exec(ctx, `
			INSERT INTO receipt_contributors (room_id, seq, player_id, amount_fp)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (room_id, seq, player_id) DO NOTHING`,
			roomID, int64(r.Seq), hex.EncodeToString(c.Player[:]), c.AmountFp)
		if err != nil {
			return fmt.Errorf("audit: insert contributor: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("audit: commit receipt: %w", err)
	}
	return nil
}
