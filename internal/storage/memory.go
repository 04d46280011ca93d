package storage

import (
	"context"
	"sync"
	"time"

	"craftedge.io/chatsync/internal/core/domain"
)

// In-memory counterparts of the Postgres stores. They back local
// development without infrastructure and the service-level tests; the
// semantics mirror the SQL implementations.

// MemoryLedger applies the monotonic-apply rule over an in-process map.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]ledgerEntry
}

type ledgerEntry struct {
	version domain.Version
	source  domain.Source
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]ledgerEntry)}
}

func (l *MemoryLedger) Apply(_ context.Context, entityKey string, v domain.Version, source domain.Source) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.entries[entityKey]; ok {
		if !domain.ShouldApply(v, source, prev.version, prev.source) {
			return false, nil
		}
	}
	l.entries[entityKey] = ledgerEntry{version: v, source: source}
	return true, nil
}

// MemoryDealsStorage projects deals, customers and connections into maps,
// with the same gate semantics as the relational store. The ledger is
// checked under the same mutex as the write, matching the transactional
// coupling of the Postgres implementation.
type MemoryDealsStorage struct {
	mu          sync.Mutex
	ledger      *MemoryLedger
	customers   map[string]*domain.Customer
	deals       map[string]*domain.Deal
	connections map[string]*domain.Connection
	nextID      int64
}

func NewMemoryDealsStorage() *MemoryDealsStorage {
	return &MemoryDealsStorage{
		ledger:      NewMemoryLedger(),
		customers:   make(map[string]*domain.Customer),
		deals:       make(map[string]*domain.Deal),
		connections: make(map[string]*domain.Connection),
	}
}

func (s *MemoryDealsStorage) UpsertConnection(_ context.Context, conn *domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *conn
	c.UpdatedAt = time.Now()
	if prev, ok := s.connections[conn.ConnectionID]; ok {
		c.CreatedAt = prev.CreatedAt
	} else {
		c.CreatedAt = c.UpdatedAt
	}
	s.connections[conn.ConnectionID] = &c
	return nil
}

func (s *MemoryDealsStorage) GetConnection(_ context.Context, connectionID string) (*domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[connectionID]
	if !ok {
		return nil, domain.ErrConnectionNotFound
	}
	c := *conn
	return &c, nil
}

func (s *MemoryDealsStorage) UpsertCustomer(ctx context.Context, customer *domain.Customer, v domain.Version, source domain.Source) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied, _ := s.ledger.Apply(ctx, domain.CustomerKey(customer.ExternalID), v, source)
	if !applied {
		return false, nil
	}
	if _, ok := s.customers[customer.ExternalID]; ok {
		return false, nil
	}
	c := *customer
	s.nextID++
	c.ID = s.nextID
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	s.customers[customer.ExternalID] = &c
	return true, nil
}

func (s *MemoryDealsStorage) SetCustomerAvatarKey(_ context.Context, externalID, avatarKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.customers[externalID]; ok {
		c.AvatarKey = avatarKey
		c.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryDealsStorage) GetCustomer(_ context.Context, externalID string) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[externalID]
	if !ok {
		return nil, nil
	}
	clone := *c
	return &clone, nil
}

func (s *MemoryDealsStorage) UpsertDeal(ctx context.Context, deal *domain.Deal, v domain.Version, source domain.Source) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied, _ := s.ledger.Apply(ctx, domain.DealKey(deal.ExternalID), v, source)
	if !applied {
		return false, nil
	}

	existing, ok := s.deals[deal.ExternalID]
	if !ok {
		d := *deal
		s.nextID++
		d.ID = s.nextID
		d.TotalMessages = 0
		d.CustomerSynced = false
		d.LastMessageSynced = false
		d.CreatedAt = time.Now()
		d.UpdatedAt = d.CreatedAt
		s.deals[deal.ExternalID] = &d
		return true, nil
	}

	existing.CustomerExternalID = deal.CustomerExternalID
	if deal.OwnerUserID > 0 {
		existing.OwnerUserID = deal.OwnerUserID
	}
	if deal.LastMessageID > existing.LastMessageID {
		existing.LastMessageID = deal.LastMessageID
	}
	if deal.LastMessageAt.After(existing.LastMessageAt) {
		existing.LastMessageAt = deal.LastMessageAt
	}
	existing.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryDealsStorage) GetDealByExternalID(_ context.Context, externalID string) (*domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[externalID]
	if !ok {
		return nil, domain.ErrDealNotFound
	}
	clone := *d
	return &clone, nil
}

func (s *MemoryDealsStorage) ListVisibleDeals(_ context.Context) ([]domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deals []domain.Deal
	for _, d := range s.deals {
		if d.Visible() {
			deals = append(deals, *d)
		}
	}
	return deals, nil
}

func (s *MemoryDealsStorage) MarkCustomerSynced(_ context.Context, dealExternalID string) (*domain.Deal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[dealExternalID]
	if !ok {
		return nil, false, domain.ErrDealNotFound
	}
	wasVisible := d.Visible()
	d.CustomerSynced = true
	d.UpdatedAt = time.Now()
	clone := *d
	return &clone, !wasVisible && d.Visible(), nil
}

func (s *MemoryDealsStorage) MarkMessageSynced(_ context.Context, dealExternalID string, lastMessageID int64, lastMessageAt time.Time, delta int) (*domain.Deal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[dealExternalID]
	if !ok {
		return nil, false, domain.ErrDealNotFound
	}
	wasVisible := d.Visible()
	d.LastMessageSynced = true
	if lastMessageID > d.LastMessageID {
		d.LastMessageID = lastMessageID
	}
	if lastMessageAt.After(d.LastMessageAt) {
		d.LastMessageAt = lastMessageAt
	}
	d.TotalMessages += delta
	if d.TotalMessages < 0 {
		d.TotalMessages = 0
	}
	d.UpdatedAt = time.Now()
	clone := *d
	return &clone, !wasVisible && d.Visible(), nil
}

func (s *MemoryDealsStorage) AdjustMessageCount(_ context.Context, dealExternalID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.deals[dealExternalID]; ok {
		d.TotalMessages += delta
		if d.TotalMessages < 0 {
			d.TotalMessages = 0
		}
		d.UpdatedAt = time.Now()
	}
	return nil
}

// MemoryLockStore enforces at most one holder per scope with expiry.
type MemoryLockStore struct {
	mu    sync.Mutex
	locks map[string]memoryLock
}

type memoryLock struct {
	holder    string
	expiresAt time.Time
}

func NewMemoryLockStore() *MemoryLockStore {
	return &MemoryLockStore{locks: make(map[string]memoryLock)}
}

func (s *MemoryLockStore) Acquire(_ context.Context, scope, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.locks[scope]; ok && cur.expiresAt.After(time.Now()) && cur.holder != holder {
		return false, nil
	}
	s.locks[scope] = memoryLock{holder: holder, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (s *MemoryLockStore) Renew(_ context.Context, scope, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.locks[scope]
	if !ok || cur.holder != holder || cur.expiresAt.Before(time.Now()) {
		return false, nil
	}
	s.locks[scope] = memoryLock{holder: holder, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (s *MemoryLockStore) Release(_ context.Context, scope, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.locks[scope]; ok && cur.holder == holder {
		delete(s.locks, scope)
	}
	return nil
}

// MemoryCursorStore persists sync cursors in memory, keyed by task id.
type MemoryCursorStore struct {
	mu      sync.Mutex
	cursors map[string]*domain.SyncCursor
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[string]*domain.SyncCursor)}
}

func (s *MemoryCursorStore) GetActive(_ context.Context, scope string) (*domain.SyncCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.SyncCursor
	for _, c := range s.cursors {
		if c.Scope != scope || c.Status.Terminal() {
			continue
		}
		if latest == nil || c.StartedAt.After(latest.StartedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

func (s *MemoryCursorStore) GetByTaskID(_ context.Context, taskID string) (*domain.SyncCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[taskID]
	if !ok {
		return nil, domain.ErrSyncJobNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *MemoryCursorStore) Create(_ context.Context, cursor *domain.SyncCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cursor
	now := time.Now()
	c.StartedAt = now
	c.UpdatedAt = now
	s.cursors[cursor.TaskID] = &c
	return nil
}

func (s *MemoryCursorStore) Update(_ context.Context, cursor *domain.SyncCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.cursors[cursor.TaskID]
	if !ok {
		return domain.ErrSyncJobNotFound
	}
	c := *cursor
	c.StartedAt = stored.StartedAt
	c.UpdatedAt = time.Now()
	s.cursors[cursor.TaskID] = &c
	return nil
}

// All returns every stored cursor, terminal or not.
func (s *MemoryCursorStore) All() []domain.SyncCursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SyncCursor, 0, len(s.cursors))
	for _, c := range s.cursors {
		out = append(out, *c)
	}
	return out
}

// MemoryAvatarStore is the in-memory object store for customer avatars,
// used for local development and tests.
type MemoryAvatarStore struct {
	mu    sync.Mutex
	files map[string][]byte
	types map[string]string
}

func NewMemoryAvatarStore() *MemoryAvatarStore {
	return &MemoryAvatarStore{
		files: make(map[string][]byte),
		types: make(map[string]string),
	}
}

func (s *MemoryAvatarStore) Upload(_ context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = data
	if contentType != "" {
		s.types[key] = contentType
	}
	return key, nil
}

func (s *MemoryAvatarStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[key], nil
}

func (s *MemoryAvatarStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, key)
	delete(s.types, key)
	return nil
}
