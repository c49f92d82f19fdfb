package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/dmxcam/internal/counter"
)

// CounterSlots is the number of slots the counter store exposes.
const CounterSlots = 64

// CounterStore implements counter.Store on the counter_slots table. Writes
// are staged in memory and applied in one transaction on Commit.
type CounterStore struct {
	db *DB

	mu     sync.Mutex
	staged map[int]byte
}

// CounterStore returns the slot store backed by db.
func (db *DB) CounterStore() *CounterStore {
	return &CounterStore{db: db, staged: make(map[int]byte)}
}

var _ counter.Store = (*CounterStore)(nil)

func checkSlot(slot int) error {
	if slot < 0 || slot >= CounterSlots {
		return fmt.Errorf("%w: %d", counter.ErrSlotRange, slot)
	}
	return nil
}

func (s *CounterStore) ReadSlot(slot int) (byte, error) {
	if err := checkSlot(slot); err != nil {
		return 0, err
	}
	s.mu.Lock()
	v, ok := s.staged[slot]
	s.mu.Unlock()
	if ok {
		return v, nil
	}

	var stored int
	err := s.db.QueryRow(`SELECT value FROM counter_slots WHERE slot = ?`, slot).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read slot %d: %w", slot, err)
	}
	return byte(stored), nil
}

func (s *CounterStore) WriteSlot(slot int, v byte) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	s.mu.Lock()
	s.staged[slot] = v
	s.mu.Unlock()
	return nil
}

// Commit writes all staged slots atomically. Staged values are discarded
// whether or not the commit succeeds.
func (s *CounterStore) Commit() error {
	s.mu.Lock()
	staged := s.staged
	s.staged = make(map[int]byte)
	s.mu.Unlock()

	if len(staged) == 0 {
		return nil
	}
	slots := make([]int, 0, len(staged))
	for slot := range staged {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin counter commit: %w", err)
	}
	defer tx.Rollback()

	for _, slot := range slots {
		if _, err := tx.Exec(
			`INSERT INTO counter_slots (slot, value) VALUES (?, ?)
			 ON CONFLICT(slot) DO UPDATE SET value = excluded.value`,
			slot, int(staged[slot]),
		); err != nil {
			return fmt.Errorf("write slot %d: %w", slot, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit counter slots: %w", err)
	}
	return nil
}
