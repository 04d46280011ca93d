package storage

import (
	"context"
	"time"
)

// LockStore implements the distributed sync lock as rows in a shared
// table with explicit expiry, so any process instance observes lock state
// identically. An expired lock is free for the taking; a live one is not.
type LockStore struct {
	db *PostgresDB
}

func NewLockStore(db *PostgresDB) *LockStore {
	return &LockStore{db: db}
}

func (s *LockStore) Acquire(ctx context.Context, scope, holder string, ttl time.Duration) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO sync_locks (scope, holder, expires_at, acquired_at)
		 VALUES ($1, $2, now() + make_interval(secs => $3), now())
		 ON CONFLICT (scope) DO UPDATE SET
		     holder = EXCLUDED.holder,
		     expires_at = EXCLUDED.expires_at,
		     acquired_at = now()
		 WHERE sync_locks.expires_at < now() OR sync_locks.holder = EXCLUDED.holder`,
		scope, holder, ttl.Seconds(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Renew extends the lock while the holder is alive. It only succeeds for
// the current holder; a lock lost to expiry stays lost.
func (s *LockStore) Renew(ctx context.Context, scope, holder string, ttl time.Duration) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE sync_locks SET expires_at = now() + make_interval(secs => $3)
		 WHERE scope = $1 AND holder = $2 AND expires_at >= now()`,
		scope, holder, ttl.Seconds(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *LockStore) Release(ctx context.Context, scope, holder string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM sync_locks WHERE scope = $1 AND holder = $2`,
		scope, holder,
	)
	return err
}
