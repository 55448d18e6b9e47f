package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"

	logs "github.com/danmuck/republish/internal/logging"
	"github.com/danmuck/republish/internal/reconcile"
)

var ErrClosed = errors.New("journal: store closed")

const keyPrefix = "outcome:"

// Store keeps every reconcile outcome in badger, keyed by time so iteration is chronological.
type Store struct {
	db     *badger.DB
	seq    atomic.Uint64
	closed atomic.Bool
}

// Open opens (or creates) the journal at path. An empty path keeps the journal in memory.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil).WithValueLogFileSize(1 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("journal: open %q: %w", path, err)
	}
	logs.Debugf("journal.Open path=%q", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func outcomeKey(o reconcile.Outcome, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%08d", keyPrefix, o.At.UnixNano(), seq))
}

// Record implements reconcile.Sink.
func (s *Store) Record(_ context.Context, o reconcile.Outcome) error {
	if s.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	key := outcomeKey(o, s.seq.Add(1))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// List returns up to limit outcomes, newest first. A non-positive limit returns everything.
func (s *Store) List(limit int) ([]reconcile.Outcome, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	out := make([]reconcile.Outcome, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(keyPrefix), 0xFF)
		for it.Seek(seek); it.Valid(); it.Next() {
			if limit > 0 && len(out) >= limit {
				return nil
			}
			var o reconcile.Outcome
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &o)
			}); err != nil {
				return err
			}
			out = append(out, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
