package counter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_PersistAndRead(t *testing.T) {
	store := NewMemoryStore(SequenceSlots)
	c := New(store)

	v, err := c.Value()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)

	require.NoError(t, c.Persist(0x01020304))
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, store.Committed())

	v, err = c.Value()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), v)

	next, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020305), next)
}

func TestCounter_CommitFailureRollsBack(t *testing.T) {
	store := NewMemoryStore(SequenceSlots)
	c := New(store)
	require.NoError(t, c.Persist(5))

	store.CommitErr = errors.New("flash worn out")
	err := c.Persist(6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flash worn out")

	v, err := c.Value()
	require.NoError(t, err)
	assert.Equal(t, uint32(5), v)
	assert.Equal(t, 1, store.Commits)
}

func TestCounter_WriteFailure(t *testing.T) {
	store := NewMemoryStore(SequenceSlots)
	store.WriteErr = errors.New("read-only")
	assert.Error(t, New(store).Persist(1))
	assert.Equal(t, 0, store.Commits)
}

func TestMemoryStore_SlotRange(t *testing.T) {
	store := NewMemoryStore(2)
	_, err := store.ReadSlot(2)
	assert.ErrorIs(t, err, ErrSlotRange)
	assert.ErrorIs(t, store.WriteSlot(-1, 0), ErrSlotRange)
	_, err = New(store).Value()
	assert.ErrorIs(t, err, ErrSlotRange)
}
