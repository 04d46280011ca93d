package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"craftedge.io/chatsync/internal/core/domain"
)

// DealsStorage is the relational projection of deals, customers and
// business connections. Writes that carry a version are gated by the
// ledger inside the same transaction, so a crash can never record a
// version without its row or the other way around.
type DealsStorage struct {
	db *PostgresDB
}

func NewDealsStorage(db *PostgresDB) *DealsStorage {
	return &DealsStorage{db: db}
}

func (s *DealsStorage) UpsertConnection(ctx context.Context, conn *domain.Connection) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO business_connections
		     (connection_id, user_id, username, first_name, last_name, can_reply, enabled, connected_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		 ON CONFLICT (connection_id)
		 DO UPDATE SET
		     user_id = EXCLUDED.user_id,
		     username = EXCLUDED.username,
		     first_name = EXCLUDED.first_name,
		     last_name = EXCLUDED.last_name,
		     can_reply = EXCLUDED.can_reply,
		     enabled = EXCLUDED.enabled,
		     connected_at = EXCLUDED.connected_at,
		     updated_at = now()`,
		conn.ConnectionID,
		conn.UserID,
		conn.Username,
		conn.FirstName,
		conn.LastName,
		conn.CanReply,
		conn.Enabled,
		conn.ConnectedAt,
	)
	return err
}

func (s *DealsStorage) GetConnection(ctx context.Context, connectionID string) (*domain.Connection, error) {
	var conn domain.Connection
	err := s.db.QueryRow(ctx,
		`SELECT connection_id, user_id, username, first_name, last_name, can_reply, enabled, connected_at, created_at, updated_at
		 FROM business_connections
		 WHERE connection_id = $1`,
		connectionID,
	).Scan(
		&conn.ConnectionID,
		&conn.UserID,
		&conn.Username,
		&conn.FirstName,
		&conn.LastName,
		&conn.CanReply,
		&conn.Enabled,
		&conn.ConnectedAt,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// UpsertCustomer creates the customer on first sighting. Existing profiles
// are left untouched; the batch scan and webhooks may both race on the
// same customer and the first write wins.
func (s *DealsStorage) UpsertCustomer(ctx context.Context, customer *domain.Customer, v domain.Version, source domain.Source) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	applied, err := applyLedger(ctx, tx, domain.CustomerKey(customer.ExternalID), v, source)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, tx.Commit(ctx)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO customers (external_id, name, avatar_url, avatar_key, created_at, updated_at)
		 VALUES ($1, $2, $3, '', now(), now())
		 ON CONFLICT (external_id) DO NOTHING`,
		customer.ExternalID,
		customer.Name,
		customer.AvatarURL,
	)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, tx.Commit(ctx)
}

func (s *DealsStorage) SetCustomerAvatarKey(ctx context.Context, externalID, avatarKey string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE customers SET avatar_key = $2, updated_at = now() WHERE external_id = $1`,
		externalID, avatarKey,
	)
	return err
}

func (s *DealsStorage) GetCustomer(ctx context.Context, externalID string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRow(ctx,
		`SELECT id, external_id, name, avatar_url, avatar_key, created_at, updated_at
		 FROM customers WHERE external_id = $1`,
		externalID,
	).Scan(&c.ID, &c.ExternalID, &c.Name, &c.AvatarURL, &c.AvatarKey, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertDeal writes deal metadata when the ledger accepts the version.
// Sync flags are never touched here; they belong to the gate methods.
func (s *DealsStorage) UpsertDeal(ctx context.Context, deal *domain.Deal, v domain.Version, source domain.Source) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	applied, err := applyLedger(ctx, tx, domain.DealKey(deal.ExternalID), v, source)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO deals
		     (external_id, customer_external_id, owner_user_id, last_message_id, last_message_at,
		      total_messages, customer_synced, last_message_synced, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, false, false, now(), now())
		 ON CONFLICT (external_id)
		 DO UPDATE SET
		     customer_external_id = EXCLUDED.customer_external_id,
		     owner_user_id = CASE WHEN EXCLUDED.owner_user_id > 0 THEN EXCLUDED.owner_user_id ELSE deals.owner_user_id END,
		     last_message_id = GREATEST(deals.last_message_id, EXCLUDED.last_message_id),
		     last_message_at = GREATEST(deals.last_message_at, EXCLUDED.last_message_at),
		     updated_at = now()`,
		deal.ExternalID,
		deal.CustomerExternalID,
		deal.OwnerUserID,
		deal.LastMessageID,
		deal.LastMessageAt,
	)
	if err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

const dealColumns = `id, external_id, customer_external_id, owner_user_id, last_message_id,
	 last_message_at, total_messages, customer_synced, last_message_synced, created_at, updated_at`

func scanDeal(row pgx.Row) (*domain.Deal, error) {
	var d domain.Deal
	err := row.Scan(
		&d.ID,
		&d.ExternalID,
		&d.CustomerExternalID,
		&d.OwnerUserID,
		&d.LastMessageID,
		&d.LastMessageAt,
		&d.TotalMessages,
		&d.CustomerSynced,
		&d.LastMessageSynced,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *DealsStorage) GetDealByExternalID(ctx context.Context, externalID string) (*domain.Deal, error) {
	deal, err := scanDeal(s.db.QueryRow(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE external_id = $1`, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDealNotFound
		}
		return nil, err
	}
	return deal, nil
}

// ListVisibleDeals enforces the read-side gate invariant: no partially
// synced deal is ever returned.
func (s *DealsStorage) ListVisibleDeals(ctx context.Context) ([]domain.Deal, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+dealColumns+`
		 FROM deals
		 WHERE customer_synced AND last_message_synced
		 ORDER BY last_message_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []domain.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}

// markSyncedStmt flips gate flags while reporting, atomically, whether the
// deal just became fully synced. The prev CTE snapshots the flags under
// row lock so two concurrent markers cannot both observe the transition.
const markCustomerSyncedStmt = `
	WITH prev AS (
	    SELECT id, customer_synced, last_message_synced
	    FROM deals WHERE external_id = $1
	    FOR UPDATE
	)
	UPDATE deals d SET customer_synced = true, updated_at = now()
	FROM prev WHERE d.id = prev.id
	RETURNING ` + dealReturning + `,
	    (NOT (prev.customer_synced AND prev.last_message_synced))
	        AND d.customer_synced AND d.last_message_synced`

const markMessageSyncedStmt = `
	WITH prev AS (
	    SELECT id, customer_synced, last_message_synced
	    FROM deals WHERE external_id = $1
	    FOR UPDATE
	)
	UPDATE deals d SET
	    last_message_synced = true,
	    last_message_id = GREATEST(d.last_message_id, $2),
	    last_message_at = GREATEST(d.last_message_at, $3),
	    total_messages = GREATEST(0, d.total_messages + $4),
	    updated_at = now()
	FROM prev WHERE d.id = prev.id
	RETURNING ` + dealReturning + `,
	    (NOT (prev.customer_synced AND prev.last_message_synced))
	        AND d.customer_synced AND d.last_message_synced`

const dealReturning = `d.id, d.external_id, d.customer_external_id, d.owner_user_id, d.last_message_id,
	 d.last_message_at, d.total_messages, d.customer_synced, d.last_message_synced, d.created_at, d.updated_at`

func (s *DealsStorage) MarkCustomerSynced(ctx context.Context, dealExternalID string) (*domain.Deal, bool, error) {
	return s.mark(ctx, markCustomerSyncedStmt, dealExternalID)
}

func (s *DealsStorage) MarkMessageSynced(ctx context.Context, dealExternalID string, lastMessageID int64, lastMessageAt time.Time, delta int) (*domain.Deal, bool, error) {
	return s.mark(ctx, markMessageSyncedStmt, dealExternalID, lastMessageID, lastMessageAt, delta)
}

func (s *DealsStorage) mark(ctx context.Context, stmt string, args ...any) (*domain.Deal, bool, error) {
	var (
		d             domain.Deal
		becameVisible bool
	)
	err := s.db.QueryRow(ctx, stmt, args...).Scan(
		&d.ID,
		&d.ExternalID,
		&d.CustomerExternalID,
		&d.OwnerUserID,
		&d.LastMessageID,
		&d.LastMessageAt,
		&d.TotalMessages,
		&d.CustomerSynced,
		&d.LastMessageSynced,
		&d.CreatedAt,
		&d.UpdatedAt,
		&becameVisible,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, domain.ErrDealNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("mark deal synced: %w", err)
	}
	return &d, becameVisible, nil
}

func (s *DealsStorage) AdjustMessageCount(ctx context.Context, dealExternalID string, delta int) error {
	_, err := s.db.Exec(ctx,
		`UPDATE deals SET total_messages = GREATEST(0, total_messages + $2), updated_at = now()
		 WHERE external_id = $1`,
		dealExternalID, delta,
	)
	return err
}
