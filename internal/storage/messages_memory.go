package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"craftedge.io/chatsync/internal/core/domain"
)

// MemoryMessageStore holds messages in memory. Used for local development
// (MESSAGE_STORE_BACKEND=memory) and in tests; it applies exactly the same
// arbitration rules as the badger store.
type MemoryMessageStore struct {
	mu    sync.Mutex
	deals map[string]map[int64]*messageRecord
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{deals: make(map[string]map[int64]*messageRecord)}
}

func (s *MemoryMessageStore) mutate(dealExternalID string, messageID int64,
	apply func(existing *messageRecord) (*messageRecord, bool)) (bool, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.deals[dealExternalID]
	if byID == nil {
		byID = make(map[int64]*messageRecord)
		s.deals[dealExternalID] = byID
	}

	var existing *messageRecord
	if rec, ok := byID[messageID]; ok {
		clone := *rec
		existing = &clone
	}

	rec, applied := apply(existing)
	if rec != nil {
		byID[messageID] = rec
	}
	return applied, nil
}

func (s *MemoryMessageStore) Append(_ context.Context, msg *domain.Message) (bool, error) {
	return s.mutate(msg.DealExternalID, msg.MessageID, func(existing *messageRecord) (*messageRecord, bool) {
		return applyCreate(existing, msg)
	})
}

func (s *MemoryMessageStore) ApplyEdit(_ context.Context, dealExternalID string, messageID int64, newText string, editedAt time.Time) (bool, error) {
	return s.mutate(dealExternalID, messageID, func(existing *messageRecord) (*messageRecord, bool) {
		return applyEdit(existing, dealExternalID, messageID, newText, editedAt)
	})
}

func (s *MemoryMessageStore) ApplyDelete(_ context.Context, dealExternalID string, messageID int64, deletedAt time.Time) (bool, error) {
	return s.mutate(dealExternalID, messageID, func(existing *messageRecord) (*messageRecord, bool) {
		return applyDelete(existing, dealExternalID, messageID, deletedAt)
	})
}

func (s *MemoryMessageStore) GetMessage(_ context.Context, dealExternalID string, messageID int64) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.deals[dealExternalID][messageID]
	if !ok {
		return nil, nil
	}
	msg := rec.Message
	return &msg, nil
}

func (s *MemoryMessageStore) ListMessages(_ context.Context, dealExternalID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []domain.Message
	for _, rec := range s.deals[dealExternalID] {
		if !rec.Deleted {
			messages = append(messages, rec.Message)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].MessageID < messages[j].MessageID
	})
	return messages, nil
}
