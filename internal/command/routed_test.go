package command

import (
	"testing"

	"github.com/ehrlich-b/mainmemory/internal/dispatch"
	"github.com/ehrlich-b/mainmemory/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoutedExecutor(t *testing.T, mode dispatch.Mode) *RoutedExecutor {
	t.Helper()
	tbl := table.New(table.Options{
		NParts:       4,
		VolumeBudget: 1 << 20,
		Now:          func() int64 { return 1000 },
	})
	routers := make([]*dispatch.Router, tbl.NParts())
	for i := range routers {
		routers[i] = dispatch.New(mode)
	}
	t.Cleanup(func() {
		for _, r := range routers {
			r.Close()
		}
	})
	return NewRouted(tbl, routers)
}

func TestRoutedStoreAndGetDirect(t *testing.T) {
	r := newRoutedExecutor(t, dispatch.ModeDirect)
	res := r.Store(ModeSet, []byte("k"), []byte("v"), 0, 0, 0)
	require.True(t, res.Stored)

	e, found := r.Get([]byte("k"))
	require.True(t, found)
	assert.Equal(t, "v", string(e.Value()))
	r.Release(e)
}

func TestRoutedStoreAndGetDelegate(t *testing.T) {
	r := newRoutedExecutor(t, dispatch.ModeDelegate)
	res := r.Store(ModeSet, []byte("k"), []byte("v"), 0, 0, 0)
	require.True(t, res.Stored)

	e, found := r.Get([]byte("k"))
	require.True(t, found)
	assert.Equal(t, "v", string(e.Value()))
	r.Release(e)
}

func TestRoutedStoreAndGetCombine(t *testing.T) {
	r := newRoutedExecutor(t, dispatch.ModeCombine)
	res := r.Store(ModeSet, []byte("k"), []byte("v"), 0, 0, 0)
	require.True(t, res.Stored)

	e, found := r.Get([]byte("k"))
	require.True(t, found)
	assert.Equal(t, "v", string(e.Value()))
	r.Release(e)
}

func TestRoutedDeleteAndFlush(t *testing.T) {
	r := newRoutedExecutor(t, dispatch.ModeDirect)
	r.Store(ModeSet, []byte("a"), []byte("1"), 0, 0, 0)
	r.Store(ModeSet, []byte("b"), []byte("2"), 0, 0, 0)

	e, found := r.Delete([]byte("a"))
	require.True(t, found)
	r.Release(e)

	_, found = r.Get([]byte("a"))
	assert.False(t, found)

	r.FlushAll()
	_, found = r.Get([]byte("b"))
	assert.False(t, found)
}
