package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v3"
)

// BadgerAvatarStore keeps avatar blobs alongside messages in the embedded
// store, under a separate key prefix.
type BadgerAvatarStore struct {
	db *badger.DB
}

type avatarRecord struct {
	Data        []byte `json:"data"`
	ContentType string `json:"content_type"`
}

// NewBadgerAvatarStore shares the message store's database handle.
func NewBadgerAvatarStore(messages *BadgerMessageStore) *BadgerAvatarStore {
	return &BadgerAvatarStore{db: messages.db}
}

func avatarKey(key string) []byte {
	return []byte("a:" + key)
}

func (s *BadgerAvatarStore) Upload(_ context.Context, key string, data []byte, contentType string) (string, error) {
	rec, err := json.Marshal(avatarRecord{Data: data, ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("encode avatar %s: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(avatarKey(key), rec)
	})
	if err != nil {
		return "", fmt.Errorf("store avatar %s: %w", key, err)
	}
	return key, nil
}

func (s *BadgerAvatarStore) Get(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(avatarKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var rec avatarRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			data = rec.Data
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("avatar %s not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("load avatar %s: %w", key, err)
	}
	return data, nil
}

func (s *BadgerAvatarStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(avatarKey(key))
	})
	if err != nil {
		return fmt.Errorf("delete avatar %s: %w", key, err)
	}
	return nil
}
