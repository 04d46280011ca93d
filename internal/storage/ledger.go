package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"

	"craftedge.io/chatsync/internal/core/domain"
)

// execer lets ledger checks run either on the pool or inside the same
// transaction as the entity write they gate.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// LedgerStore is the Postgres version ledger. One row per entity key,
// holding the last applied version and which path wrote it.
type LedgerStore struct {
	db *PostgresDB
}

func NewLedgerStore(db *PostgresDB) *LedgerStore {
	return &LedgerStore{db: db}
}

// applyStmt implements the monotonic-apply rule in a single statement:
// sequences compare when both sides carry one, timestamps otherwise, and
// ties go to the webhook path (or to a re-apply from the same source).
// Zero rows affected means the incoming version lost.
const applyStmt = `
	INSERT INTO version_ledger (entity_key, source, version_seq, version_at, applied_at)
	VALUES ($1, $2, $3, $4, now())
	ON CONFLICT (entity_key) DO UPDATE SET
	    source = EXCLUDED.source,
	    version_seq = EXCLUDED.version_seq,
	    version_at = EXCLUDED.version_at,
	    applied_at = now()
	WHERE
	    CASE
	        WHEN EXCLUDED.version_seq > 0 AND version_ledger.version_seq > 0
	            THEN EXCLUDED.version_seq > version_ledger.version_seq
	                 OR (EXCLUDED.version_seq = version_ledger.version_seq
	                     AND (EXCLUDED.source = version_ledger.source OR EXCLUDED.source = 'webhook'))
	        ELSE EXCLUDED.version_at > version_ledger.version_at
	             OR (EXCLUDED.version_at = version_ledger.version_at
	                 AND (EXCLUDED.source = version_ledger.source OR EXCLUDED.source = 'webhook'))
	    END
`

func (s *LedgerStore) Apply(ctx context.Context, entityKey string, v domain.Version, source domain.Source) (bool, error) {
	return applyLedger(ctx, s.db, entityKey, v, source)
}

func applyLedger(ctx context.Context, q execer, entityKey string, v domain.Version, source domain.Source) (bool, error) {
	tag, err := q.Exec(ctx, applyStmt, entityKey, string(source), v.Seq, v.At)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
