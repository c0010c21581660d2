// Package obs holds the two observation ring buffers an interpreter run
// feeds: trace events and structured log records. Duration and outcome
// profile counters live in package profile.
package obs

import (
	"sync"
	"time"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/status"
	"github.com/unswei/muesli-bt/pkg/scheduler"
)

// TraceEventKind discriminates the kinds of events a tick can emit.
type TraceEventKind uint8

const (
	TickBegin TraceEventKind = iota
	TickEnd
	NodeEnter
	NodeExit
	BBWrite
	BBRead
	SchedulerSubmit
	SchedulerStart
	SchedulerFinish
	SchedulerCancel
	NodeHalt
	NodePreempt
	Warning
	Error
)

var traceKindNames = map[TraceEventKind]string{
	TickBegin:       "tick_begin",
	TickEnd:         "tick_end",
	NodeEnter:       "node_enter",
	NodeExit:        "node_exit",
	BBWrite:         "bb_write",
	BBRead:          "bb_read",
	SchedulerSubmit: "scheduler_submit",
	SchedulerStart:  "scheduler_start",
	SchedulerFinish: "scheduler_finish",
	SchedulerCancel: "scheduler_cancel",
	NodeHalt:        "node_halt",
	NodePreempt:     "node_preempt",
	Warning:         "warning",
	Error:           "error",
}

// String renders the trace event kind name used in dumps and JSONL exports.
func (k TraceEventKind) String() string {
	if n, ok := traceKindNames[k]; ok {
		return n
	}
	return "unknown"
}

// TraceEvent is one entry in a TraceBuffer.
type TraceEvent struct {
	Kind      TraceEventKind
	Sequence  uint64
	TickIndex uint64
	TS        time.Time

	Node       ast.NodeID
	NodeStatus status.Status
	Duration   time.Duration

	Job   scheduler.JobID
	JobSt scheduler.JobStatus

	Key       string
	ValueRepr string
	Message   string
}

// TraceBuffer is a fixed-capacity ring buffer of trace events. A capacity of
// zero discards every pushed event (used to disable tracing without
// branching call sites).
type TraceBuffer struct {
	mu       sync.Mutex
	capacity int
	events   []TraceEvent
	sequence uint64
}

// NewTraceBuffer constructs a TraceBuffer holding at most capacityEvents.
func NewTraceBuffer(capacityEvents int) *TraceBuffer {
	return &TraceBuffer{capacity: capacityEvents, events: make([]TraceEvent, 0, capacityEvents)}
}

// Push appends ev, assigning it the next sequence number, evicting the
// oldest event if the buffer is full.
func (t *TraceBuffer) Push(ev TraceEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sequence++
	ev.Sequence = t.sequence

	if t.capacity == 0 {
		return
	}
	if len(t.events) == t.capacity {
		t.events = append(t.events[:0], t.events[1:]...)
	}
	t.events = append(t.events, ev)
}

// Snapshot returns a copy of the currently buffered events, oldest first.
func (t *TraceBuffer) Snapshot() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEvent, len(t.events))
	copy(out, t.events)
	return out
}

// Size returns the number of events currently buffered.
func (t *TraceBuffer) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// Capacity returns the configured maximum buffer size.
func (t *TraceBuffer) Capacity() int { return t.capacity }

// Clear empties the buffer without resetting the sequence counter.
func (t *TraceBuffer) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = t.events[:0]
}
