// Package counter keeps the picture sequence number in a small slot-addressed
// persistent store, laid out like an EEPROM.
package counter

import (
	"errors"
	"fmt"
	"sync"
)

// SequenceSlots is the number of byte slots holding the sequence number,
// little endian from slot 0.
const SequenceSlots = 4

// ErrSlotRange is returned for a slot outside the store.
var ErrSlotRange = errors.New("slot out of range")

// Store is byte-addressed persistent memory. Writes are staged until Commit.
type Store interface {
	ReadSlot(slot int) (byte, error)
	WriteSlot(slot int, v byte) error
	Commit() error
}

// Counter reads and persists the picture sequence number.
type Counter struct {
	store Store
}

// New returns a counter over store.
func New(store Store) *Counter {
	return &Counter{store: store}
}

// Value returns the last persisted sequence number.
func (c *Counter) Value() (uint32, error) {
	var v uint32
	for i := 0; i < SequenceSlots; i++ {
		b, err := c.store.ReadSlot(i)
		if err != nil {
			return 0, fmt.Errorf("read counter slot %d: %w", i, err)
		}
		v |= uint32(b) << (8 * i)
	}
	return v, nil
}

// Next returns the value the next stored picture will use.
func (c *Counter) Next() (uint32, error) {
	v, err := c.Value()
	if err != nil {
		return 0, err
	}
	return v + 1, nil
}

// Persist writes v to the slots and commits it.
func (c *Counter) Persist(v uint32) error {
	for i := 0; i < SequenceSlots; i++ {
		if err := c.store.WriteSlot(i, byte(v>>(8*i))); err != nil {
			return fmt.Errorf("write counter slot %d: %w", i, err)
		}
	}
	if err := c.store.Commit(); err != nil {
		return fmt.Errorf("commit counter: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store. Staged writes are discarded when a
// commit fails.
type MemoryStore struct {
	mu        sync.Mutex
	committed []byte
	staged    []byte

	// CommitErr, when set, is returned by the next Commit.
	CommitErr error
	// WriteErr, when set, is returned by every WriteSlot.
	WriteErr error

	Commits int
}

// NewMemoryStore returns a zeroed store with size slots.
func NewMemoryStore(size int) *MemoryStore {
	return &MemoryStore{committed: make([]byte, size), staged: make([]byte, size)}
}

func (m *MemoryStore) ReadSlot(slot int) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot < 0 || slot >= len(m.staged) {
		return 0, fmt.Errorf("%w: %d", ErrSlotRange, slot)
	}
	return m.staged[slot], nil
}

func (m *MemoryStore) WriteSlot(slot int, v byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if slot < 0 || slot >= len(m.staged) {
		return fmt.Errorf("%w: %d", ErrSlotRange, slot)
	}
	m.staged[slot] = v
	return nil
}

func (m *MemoryStore) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommitErr != nil {
		err := m.CommitErr
		m.CommitErr = nil
		copy(m.staged, m.committed)
		return err
	}
	copy(m.committed, m.staged)
	m.Commits++
	return nil
}

// Committed returns a copy of the committed slots.
func (m *MemoryStore) Committed() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.committed...)
}
