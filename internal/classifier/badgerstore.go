package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

var (
	modelKey  = []byte("model:classifier")
	labelsKey = []byte("model:labels")
)

// BadgerStore keeps both artifacts in a BadgerDB and writes them in a single
// transaction, so readers never observe half of a save.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a BadgerDB at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return NewBadgerStore(db), nil
}

// NewBadgerStore wraps an already open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Load(ctx context.Context) (*Artifacts, error) {
	var a Artifacts
	err := s.db.View(func(txn *badger.Txn) error {
		if err := getJSON(txn, modelKey, &a.Model); err != nil {
			return err
		}
		return getJSON(txn, labelsKey, &a.Labels)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	return &a, nil
}

func (s *BadgerStore) Save(ctx context.Context, a *Artifacts) error {
	model, err := json.Marshal(a.Model)
	if err != nil {
		return &StorageError{Op: "save", Err: fmt.Errorf("encode model: %w", err)}
	}
	labels, err := json.Marshal(a.Labels)
	if err != nil {
		return &StorageError{Op: "save", Err: fmt.Errorf("encode labels: %w", err)}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(modelKey, model); err != nil {
			return fmt.Errorf("set model: %w", err)
		}
		if err := txn.Set(labelsKey, labels); err != nil {
			return fmt.Errorf("set labels: %w", err)
		}
		return nil
	})
	if err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, v); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		return nil
	})
}
