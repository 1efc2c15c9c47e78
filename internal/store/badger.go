package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"VoiceEconomy/internal/model"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes, one byte per record kind.
const (
	prefixMember     = byte(0x01) // member:memberID -> JSON(MemberActivityState)
	prefixLongTerm   = byte(0x02) // longterm:memberID -> JSON(MemberLongTermState)
	prefixController = byte(0x03) // controller:id -> JSON(ActivityController)
)

// BadgerOptions configures the badger-backed store.
type BadgerOptions struct {
	// DataDir is where badger keeps its files. Ignored when InMemory is set.
	DataDir string

	// InMemory runs badger without touching disk. Useful for tests.
	InMemory bool

	// SyncWrites forces fsync after each write.
	SyncWrites bool

	// Verbose keeps badger's own logging on.
	Verbose bool
}

// BadgerStore persists state as JSON values in a BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) the database.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	bo := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		bo = badger.DefaultOptions("").WithInMemory(true)
	}
	bo = bo.WithSyncWrites(opts.SyncWrites)
	if !opts.Verbose {
		bo = bo.WithLogger(nil)
	}

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	if !opts.InMemory {
		log.Printf("[INFO] badger store opened: %s", opts.DataDir)
	}
	return &BadgerStore{db: db}, nil
}

func key(prefix byte, id string) []byte {
	return append([]byte{prefix}, id...)
}

func (s *BadgerStore) put(prefix byte, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(prefix, id), data)
	})
}

func (s *BadgerStore) get(prefix byte, id string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(prefix, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

func (s *BadgerStore) LoadMember(_ context.Context, memberID string) (*model.MemberActivityState, error) {
	var m model.MemberActivityState
	if err := s.get(prefixMember, memberID, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *BadgerStore) SaveMember(_ context.Context, state *model.MemberActivityState) error {
	return s.put(prefixMember, state.MemberID, state)
}

// ListMembers returns every stored member in key order.
func (s *BadgerStore) ListMembers(_ context.Context) ([]*model.MemberActivityState, error) {
	var out []*model.MemberActivityState
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte{prefixMember}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m model.MemberActivityState
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key()[1:], err)
			}
			out = append(out, &m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) LoadLongTerm(_ context.Context, memberID string) (*model.MemberLongTermState, error) {
	var lt model.MemberLongTermState
	if err := s.get(prefixLongTerm, memberID, &lt); err != nil {
		return nil, err
	}
	return &lt, nil
}

func (s *BadgerStore) SaveLongTerm(_ context.Context, state *model.MemberLongTermState) error {
	return s.put(prefixLongTerm, state.MemberID, state)
}

func (s *BadgerStore) LoadController(_ context.Context, id string) (*model.ActivityController, error) {
	var c model.ActivityController
	if err := s.get(prefixController, id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BadgerStore) SaveController(_ context.Context, ctrl *model.ActivityController) error {
	return s.put(prefixController, ctrl.ID, ctrl)
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
