// internal/storage/badger.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

const mutePrefix = "mute:"

// BadgerMuteStore keeps mute lists in an embedded badger database, one key per owner.
type BadgerMuteStore struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// OpenBadger opens (or creates) the badger database at path.
func OpenBadger(path string) (*badger.DB, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", path, err)
	}
	return db, nil
}

func NewBadgerMuteStore(db *badger.DB, logger logrus.FieldLogger) *BadgerMuteStore {
	return &BadgerMuteStore{db: db, log: logger.WithField("store", "badger")}
}

func muteKey(owner string) []byte {
	return []byte(mutePrefix + owner)
}

// Load returns owner's mute list, or an empty list if none was ever saved.
func (s *BadgerMuteStore) Load(ctx context.Context, owner string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var muted []string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(muteKey(owner))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &muted)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load mutes for %s: %w", owner, err)
	}
	return muted, nil
}

// Save overwrites owner's mute list.
func (s *BadgerMuteStore) Save(ctx context.Context, owner string, muted []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if muted == nil {
		muted = []string{}
	}

	data, err := json.Marshal(muted)
	if err != nil {
		return fmt.Errorf("marshal mutes for %s: %w", owner, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(muteKey(owner), data)
	})
	if err != nil {
		return fmt.Errorf("save mutes for %s: %w", owner, err)
	}
	s.log.Debugf("saved %d muted names for %s", len(muted), owner)
	return nil
}

// Owners lists every owner with a stored mute list.
func (s *BadgerMuteStore) Owners() ([]string, error) {
	var owners []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(mutePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			owners = append(owners, string(it.Item().Key()[len(mutePrefix):]))
		}
		return nil
	})
	return owners, err
}
