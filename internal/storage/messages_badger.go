package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v3"

	"craftedge.io/chatsync/internal/core/domain"
)

// BadgerMessageStore keeps message bodies in an embedded document store,
// keyed (deal external id, message id). Keys zero-pad the message id so
// the store's key order is ascending message-id order. Each mutation runs
// its monotonic-apply check and the write in one badger transaction.
type BadgerMessageStore struct {
	db *badger.DB
}

func NewBadgerMessageStore(path string) (*BadgerMessageStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open message store: %w", err)
	}
	return &BadgerMessageStore{db: db}, nil
}

func (s *BadgerMessageStore) Close() error {
	return s.db.Close()
}

func messageKey(dealExternalID string, messageID int64) []byte {
	return []byte(fmt.Sprintf("m:%s:%019d", dealExternalID, messageID))
}

func dealPrefix(dealExternalID string) []byte {
	return []byte("m:" + dealExternalID + ":")
}

func (s *BadgerMessageStore) mutate(dealExternalID string, messageID int64,
	apply func(existing *messageRecord) (*messageRecord, bool)) (bool, error) {

	var applied bool
	err := s.db.Update(func(txn *badger.Txn) error {
		key := messageKey(dealExternalID, messageID)

		var existing *messageRecord
		item, err := txn.Get(key)
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				existing = &messageRecord{}
				return json.Unmarshal(val, existing)
			}); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// first sighting of this key
		default:
			return err
		}

		rec, ok := apply(existing)
		applied = ok
		if rec == nil {
			return nil
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return false, fmt.Errorf("message store write: %w", err)
	}
	return applied, nil
}

func (s *BadgerMessageStore) Append(_ context.Context, msg *domain.Message) (bool, error) {
	return s.mutate(msg.DealExternalID, msg.MessageID, func(existing *messageRecord) (*messageRecord, bool) {
		return applyCreate(existing, msg)
	})
}

func (s *BadgerMessageStore) ApplyEdit(_ context.Context, dealExternalID string, messageID int64, newText string, editedAt time.Time) (bool, error) {
	return s.mutate(dealExternalID, messageID, func(existing *messageRecord) (*messageRecord, bool) {
		return applyEdit(existing, dealExternalID, messageID, newText, editedAt)
	})
}

func (s *BadgerMessageStore) ApplyDelete(_ context.Context, dealExternalID string, messageID int64, deletedAt time.Time) (bool, error) {
	return s.mutate(dealExternalID, messageID, func(existing *messageRecord) (*messageRecord, bool) {
		return applyDelete(existing, dealExternalID, messageID, deletedAt)
	})
}

func (s *BadgerMessageStore) GetMessage(_ context.Context, dealExternalID string, messageID int64) (*domain.Message, error) {
	var msg *domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(messageKey(dealExternalID, messageID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var rec messageRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			msg = &rec.Message
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the deal's live messages in ascending message-id
// order. Tombstoned messages never appear.
func (s *BadgerMessageStore) ListMessages(_ context.Context, dealExternalID string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := dealPrefix(dealExternalID)
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				var rec messageRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				if !rec.Deleted {
					messages = append(messages, rec.Message)
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}
