package blackboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetHas(t *testing.T) {
	bb := New()
	assert.False(t, bb.Has("x"))

	now := time.Now()
	bb.Put("x", Int(42), 7, now, 3, "my-act")

	require.True(t, bb.Has("x"))
	entry, ok := bb.Get("x")
	require.True(t, ok)
	assert.Equal(t, int64(42), entry.Value.I)
	assert.Equal(t, uint64(7), entry.LastWriteTick)
	assert.Equal(t, "my-act", entry.LastWriterName)
}

func TestPutOverwritesProvenance(t *testing.T) {
	bb := New()
	t0 := time.Now()
	t1 := t0.Add(time.Second)

	bb.Put("x", Bool(true), 1, t0, 0, "a")
	bb.Put("x", Bool(false), 2, t1, 1, "b")

	entry, ok := bb.Get("x")
	require.True(t, ok)
	assert.False(t, entry.Value.B)
	assert.Equal(t, uint64(2), entry.LastWriteTick)
	assert.Equal(t, "b", entry.LastWriterName)
}

func TestSnapshotAndClear(t *testing.T) {
	bb := New()
	bb.Put("a", Int(1), 1, time.Now(), 0, "w")
	bb.Put("b", Int(2), 1, time.Now(), 0, "w")

	snap := bb.Snapshot()
	assert.Len(t, snap, 2)

	bb.Clear()
	assert.False(t, bb.Has("a"))
	assert.Empty(t, bb.Snapshot())
}

func TestValueRepr(t *testing.T) {
	assert.Equal(t, "nil", Nil().Repr())
	assert.Equal(t, "#t", Bool(true).Repr())
	assert.Equal(t, "#f", Bool(false).Repr())
	assert.Equal(t, "42", Int(42).Repr())
	assert.Equal(t, "hello", String("hello").Repr())
}
