// Open Health Exchange - Wearable Health Data Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthsync

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/healthsync/internal/logging"
	"github.com/tomtom215/healthsync/internal/models"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("checkpoint store is closed")

const keyPrefix = "checkpoint/"

// maxConflictRetries bounds optimistic transaction retries in Advance.
const maxConflictRetries = 3

// Config configures the BadgerDB-backed store.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string `koanf:"path" validate:"required_without=InMemory"`
	// SyncWrites fsyncs every checkpoint write.
	SyncWrites bool `koanf:"sync_writes"`
	InMemory   bool `koanf:"in_memory"`

	// GCInterval is how often the value log is garbage collected. Zero
	// disables the background GC service.
	GCInterval time.Duration `koanf:"gc_interval" validate:"gte=0"`
	// GCRatio is the discard ratio handed to BadgerDB.
	GCRatio float64 `koanf:"gc_ratio" validate:"gte=0,lt=1"`
}

// DefaultConfig returns a durable on-disk configuration.
func DefaultConfig() Config {
	return Config{
		Path:       "/data/checkpoints",
		SyncWrites: true,
		GCInterval: 30 * time.Minute,
		GCRatio:    0.5,
	}
}

// entry is the persisted value.
type entry struct {
	SyncedAt  time.Time `json:"synced_at"`
	UpdatedAt time.Time `json:"updated_at"`
	RunID     string    `json:"run_id,omitempty"`
}

// Store persists the end of the last successfully synced window per
// (user, provider, data type). Only the dispatch layer writes to it.
type Store struct {
	db      *badger.DB
	now     func() time.Time
	gcRatio float64
	mu      sync.RWMutex
	closed  bool
}

// Open opens (or creates) the store.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("checkpoint: path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
	}
	// Checkpoints are tiny; keep the memtable small.
	opts.MemTableSize = 16 << 20
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Checkpoint store opened")
	ratio := cfg.GCRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	return &Store{db: db, now: time.Now, gcRatio: ratio}, nil
}

func key(userID string, provider models.Provider, dt models.DataType) []byte {
	return []byte(prefix(userID, provider) + string(dt))
}

func prefix(userID string, provider models.Provider) string {
	return keyPrefix + url.PathEscape(userID) + "/" + string(provider) + "/"
}

func (s *Store) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// GetLastSync returns the checkpoint for one data type. ok is false when
// the data type has never completed a sync.
func (s *Store) GetLastSync(ctx context.Context, userID string, provider models.Provider, dt models.DataType) (t time.Time, ok bool, err error) {
	if err := s.check(); err != nil {
		return time.Time{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		e, found, err := read(txn, key(userID, provider, dt))
		if err != nil || !found {
			return err
		}
		t, ok = e.SyncedAt, true
		return nil
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get checkpoint %s/%s/%s: %w", userID, provider, dt, err)
	}
	return t, ok, nil
}

// SetLastSync overwrites the checkpoint for one data type.
func (s *Store) SetLastSync(ctx context.Context, userID string, provider models.Provider, dt models.DataType, t time.Time) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return write(txn, key(userID, provider, dt), entry{SyncedAt: t.UTC(), UpdatedAt: s.now().UTC()})
	})
	if err != nil {
		return fmt.Errorf("set checkpoint %s/%s/%s: %w", userID, provider, dt, err)
	}
	return nil
}

// List returns every checkpoint stored for a user and provider.
func (s *Store) List(ctx context.Context, userID string, provider models.Provider) (map[models.DataType]time.Time, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	out := make(map[models.DataType]time.Time)
	p := []byte(prefix(userID, provider))
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var e entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping unreadable checkpoint")
				continue
			}
			dt := strings.TrimPrefix(string(item.Key()), string(p))
			out[models.DataType(dt)] = e.SyncedAt
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list checkpoints %s/%s: %w", userID, provider, err)
	}
	return out, nil
}

// Advance persists the outcome's new checkpoints in one transaction. It
// returns the data types that were advanced.
//
// A checkpoint never moves backwards, and it only moves when the run's
// window covered everything since it: the window must start at or before
// the stored checkpoint, or, when none is stored, come from an initial
// backfill. Realtime and manual windows that leave a gap are published but
// not recorded, so the next incremental sync still fetches the gap.
func (s *Store) Advance(ctx context.Context, outcome models.SyncOutcome) ([]models.DataType, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if len(outcome.NewCheckpoints) == 0 {
		return nil, nil
	}

	var advanced []models.DataType
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		advanced = advanced[:0]
		err = s.db.Update(func(txn *badger.Txn) error {
			for dt, t := range outcome.NewCheckpoints {
				k := key(outcome.UserID, outcome.Provider, dt)
				prev, found, err := read(txn, k)
				if err != nil {
					return err
				}
				if !contiguous(outcome.Strategy, prev, found) || (found && !t.After(prev.SyncedAt)) {
					continue
				}
				if err := write(txn, k, entry{SyncedAt: t.UTC(), UpdatedAt: s.now().UTC(), RunID: outcome.RunID}); err != nil {
					return err
				}
				advanced = append(advanced, dt)
			}
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("advance checkpoints for run %s: %w", outcome.RunID, err)
	}

	logging.Ctx(ctx).Debug().
		Str("user_id", outcome.UserID).
		Str("provider", string(outcome.Provider)).
		Str("kind", string(outcome.Strategy.Kind)).
		Int("advanced", len(advanced)).
		Int("held", len(outcome.NewCheckpoints)-len(advanced)).
		Msg("Checkpoints advanced")
	return advanced, nil
}

func contiguous(plan models.StrategyResult, prev entry, found bool) bool {
	if !found {
		return plan.Kind == models.SyncKindInitial
	}
	return !plan.Window.Start.After(prev.SyncedAt)
}

func read(txn *badger.Txn, k []byte) (entry, bool, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return entry{}, false, nil
	}
	if err != nil {
		return entry{}, false, err
	}
	var e entry
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	}); err != nil {
		return entry{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	return e, true, nil
}

func write(txn *badger.Txn, k []byte, e entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return txn.SetEntry(badger.NewEntry(k, data))
}

// Ping reports whether the store is open and readable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

// RunGC rewrites value log files until BadgerDB reports nothing left to
// reclaim. It is a no-op for in-memory stores.
func (s *Store) RunGC(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	start := time.Now()
	rewrites := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.RunValueLogGC(s.gcRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			break
		}
		if err != nil {
			return fmt.Errorf("checkpoint value log GC: %w", err)
		}
		rewrites++
	}
	logging.Debug().
		Int("rewrites", rewrites).
		Dur("duration", time.Since(start)).
		Msg("Checkpoint value log GC finished")
	return nil
}

// Close closes the underlying database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
