package entry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tjamet/go-pollsched/internal/types"
)

func TestPoolRecyclesStorage(t *testing.T) {
	p := NewPool()
	e1 := p.Get()
	e1.Info = 42
	p.Put(e1)

	e2 := p.Get()
	require.Same(t, e1, e2, "expected the pool to recycle the same backing storage")
	require.Zero(t, e2.Info, "recycled entries must be zeroed")
}

func TestRefCountAndOnQueue(t *testing.T) {
	e := NewPool().Get()
	require.False(t, e.OnQueue())
	require.Zero(t, e.RefCount())

	e.SetOnQueue(true)
	e.Ref()
	require.True(t, e.OnQueue())
	require.EqualValues(t, 1, e.RefCount())

	e.Ref()
	require.False(t, e.Unref(), "two refs should not reach zero after one Unref")
	require.True(t, e.Unref(), "second Unref should reach zero")
}

func TestMatchesFourTuple(t *testing.T) {
	fn := func(any) {}
	other := func(any) {}
	data := new(int)

	e := &Entry{
		ClassSet:   types.NewClassSet(types.ClassUI),
		Flags:      types.FlagRead,
		Function:   fn,
		ClientData: data,
		Type:       types.EventDevice,
	}

	require.True(t, e.Matches(e.ClassSet, e.Flags, fn, data, types.EventDevice))
	require.False(t, e.Matches(e.ClassSet, e.Flags, other, data, types.EventDevice), "different function identity must not match")
	require.False(t, e.Matches(e.ClassSet, e.Flags, fn, new(int), types.EventDevice), "different client data identity must not match")
	require.False(t, e.Matches(e.ClassSet, types.FlagWrite, fn, data, types.EventDevice), "different flags must not match")
}
