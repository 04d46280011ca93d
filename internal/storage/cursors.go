package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"craftedge.io/chatsync/internal/core/domain"
)

// CursorStore persists batch sync progress per scope. External tooling
// treats these rows as opaque.
type CursorStore struct {
	db *PostgresDB
}

func NewCursorStore(db *PostgresDB) *CursorStore {
	return &CursorStore{db: db}
}

const cursorColumns = `scope, task_id, status, page_token, last_external_id, max_date,
	 processed, pages, error_message, started_at, updated_at`

func scanCursor(row pgx.Row) (*domain.SyncCursor, error) {
	var c domain.SyncCursor
	err := row.Scan(
		&c.Scope,
		&c.TaskID,
		&c.Status,
		&c.PageToken,
		&c.LastExternalID,
		&c.MaxDate,
		&c.Processed,
		&c.Pages,
		&c.ErrorMessage,
		&c.StartedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetActive returns the scope's most recent non-terminal cursor, or nil
// when every previous run completed or failed.
func (s *CursorStore) GetActive(ctx context.Context, scope string) (*domain.SyncCursor, error) {
	cursor, err := scanCursor(s.db.QueryRow(ctx,
		`SELECT `+cursorColumns+`
		 FROM sync_cursors
		 WHERE scope = $1 AND status IN ('pending', 'running')
		 ORDER BY started_at DESC
		 LIMIT 1`,
		scope,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

func (s *CursorStore) GetByTaskID(ctx context.Context, taskID string) (*domain.SyncCursor, error) {
	cursor, err := scanCursor(s.db.QueryRow(ctx,
		`SELECT `+cursorColumns+` FROM sync_cursors WHERE task_id = $1`,
		taskID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSyncJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

func (s *CursorStore) Create(ctx context.Context, cursor *domain.SyncCursor) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO sync_cursors
		     (scope, task_id, status, page_token, last_external_id, max_date,
		      processed, pages, error_message, started_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		cursor.Scope,
		cursor.TaskID,
		cursor.Status,
		cursor.PageToken,
		cursor.LastExternalID,
		cursor.MaxDate,
		cursor.Processed,
		cursor.Pages,
		cursor.ErrorMessage,
	)
	return err
}

// Update checkpoints the cursor. updated_at doubles as the heartbeat the
// orchestrator uses to distinguish a live run from a crashed one.
func (s *CursorStore) Update(ctx context.Context, cursor *domain.SyncCursor) error {
	_, err := s.db.Exec(ctx,
		`UPDATE sync_cursors SET
		     status = $2,
		     page_token = $3,
		     last_external_id = $4,
		     processed = $5,
		     pages = $6,
		     error_message = $7,
		     updated_at = now()
		 WHERE task_id = $1`,
		cursor.TaskID,
		cursor.Status,
		cursor.PageToken,
		cursor.LastExternalID,
		cursor.Processed,
		cursor.Pages,
		cursor.ErrorMessage,
	)
	return err
}
