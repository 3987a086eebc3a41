package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/zenswap/escrowd/pkg/escrow"
)

// Store persists open trades and engine state in Pebble so the book
// survives a restart. All writes arrive serialized under the engine lock.
type Store struct {
	db *pebble.DB
}

func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(128 << 20),
		MemTableSize:             64 << 20,
		MaxConcurrentCompactions: func() int { return 3 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}
	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveTrade(t escrow.Trade) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal trade %d: %w", t.ID, err)
	}
	if err := s.db.Set(tradeKey(t.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save trade %d: %w", t.ID, err)
	}
	return nil
}

func (s *Store) DeleteTrade(id uint64) error {
	if err := s.db.Delete(tradeKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete trade %d: %w", id, err)
	}
	return nil
}

// LoadTrades returns every persisted open trade, ascending by ID.
func (s *Store) LoadTrades() ([]escrow.Trade, error) {
	prefix := []byte(prefixTrade)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open trade iterator: %w", err)
	}
	defer iter.Close()

	var trades []escrow.Trade
	for iter.First(); iter.Valid(); iter.Next() {
		var t escrow.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("corrupt trade record %q: %w", iter.Key(), err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func (s *Store) SaveState(st escrow.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.db.Set([]byte(keyState), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// LoadState returns the persisted engine state; ok is false on first run.
func (s *Store) LoadState() (st escrow.State, ok bool, err error) {
	data, closer, err := s.db.Get([]byte(keyState))
	if err == pebble.ErrNotFound {
		return escrow.State{}, false, nil
	}
	if err != nil {
		return escrow.State{}, false, fmt.Errorf("failed to get state: %w", err)
	}
	defer closer.Close()
	if err := json.Unmarshal(data, &st); err != nil {
		return escrow.State{}, false, fmt.Errorf("corrupt state record: %w", err)
	}
	return st, true, nil
}
