package obs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceBufferPushAndEvict(t *testing.T) {
	tb := NewTraceBuffer(2)
	tb.Push(TraceEvent{Kind: TickBegin})
	tb.Push(TraceEvent{Kind: NodeEnter})
	tb.Push(TraceEvent{Kind: NodeExit})

	snap := tb.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, NodeEnter, snap[0].Kind)
	assert.Equal(t, NodeExit, snap[1].Kind)
	assert.Equal(t, uint64(2), snap[0].Sequence)
	assert.Equal(t, uint64(3), snap[1].Sequence)
}

func TestTraceBufferZeroCapacityDiscards(t *testing.T) {
	tb := NewTraceBuffer(0)
	tb.Push(TraceEvent{Kind: Warning})
	assert.Equal(t, 0, tb.Size())
}

func TestTraceBufferClear(t *testing.T) {
	tb := NewTraceBuffer(4)
	tb.Push(TraceEvent{Kind: TickBegin})
	tb.Clear()
	assert.Equal(t, 0, tb.Size())
}

func TestTraceEventKindString(t *testing.T) {
	assert.Equal(t, "tick_begin", TickBegin.String())
	assert.Equal(t, "scheduler_cancel", SchedulerCancel.String())
	assert.Equal(t, "unknown", TraceEventKind(250).String())
}
