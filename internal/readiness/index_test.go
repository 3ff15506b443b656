package readiness

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tjamet/go-pollsched/internal/entry"
	"github.com/tjamet/go-pollsched/internal/types"
)

func TestGetOrCreateRespectsCapacity(t *testing.T) {
	ix := NewIndex(1)
	s1, err := ix.GetOrCreate(10)
	require.NoError(t, err)
	require.NotNil(t, s1)

	// Same waitable again must not consume more capacity.
	s1again, err := ix.GetOrCreate(10)
	require.NoError(t, err)
	require.Same(t, s1, s1again)

	_, err = ix.GetOrCreate(20)
	require.ErrorIs(t, err, ErrSlotTableFull)
}

func TestReaderWriterConflict(t *testing.T) {
	ix := NewIndex(0)
	s, err := ix.GetOrCreate(5)
	require.NoError(t, err)

	a := &entry.Entry{}
	b := &entry.Entry{}
	require.True(t, s.SetReader(a, types.FlagRead))
	require.False(t, s.SetReader(b, types.FlagRead), "a second distinct reader must be rejected")
	require.True(t, s.SetReader(a, types.FlagRead), "re-setting the same reader is idempotent")
}

func TestCompactionSwapsWithLast(t *testing.T) {
	ix := NewIndex(0)
	s1, _ := ix.GetOrCreate(1)
	s2, _ := ix.GetOrCreate(2)
	s3, _ := ix.GetOrCreate(3)

	e := &entry.Entry{}
	s1.SetReader(e, types.FlagRead)
	s2.SetReader(e, types.FlagRead)
	s3.SetReader(e, types.FlagRead)

	s2.ClearReader()
	ix.CompactIfEmpty(2)

	require.Equal(t, 2, ix.Len())
	_, ok := ix.Slot(2)
	require.False(t, ok)
	got3, ok := ix.Slot(3)
	require.True(t, ok)
	require.Same(t, s3, got3)
}

func TestClearReaderThenWriterEmptiesSlot(t *testing.T) {
	ix := NewIndex(0)
	s, _ := ix.GetOrCreate(1)
	r, w := &entry.Entry{}, &entry.Entry{}
	s.SetReader(r, types.FlagRead)
	s.SetWriter(w, types.FlagWrite)
	require.False(t, s.Empty())

	s.ClearReader()
	require.False(t, s.Empty())
	s.ClearWriter()
	require.True(t, s.Empty())
}
