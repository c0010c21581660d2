// Package interpreter ticks a compiled tree against an instance's runtime
// state, dispatching cond/act leaves through a registry.Registry and
// routing plan-action/vla-* leaves to the planner and VLA services held in
// Services. It is the top of the package's dependency stack: every other
// bt/* package is a leaf this one assembles, never the reverse.
package interpreter

import (
	"time"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/blackboard"
	"github.com/unswei/muesli-bt/pkg/bt/instance"
	"github.com/unswei/muesli-bt/pkg/bt/obs"
	"github.com/unswei/muesli-bt/pkg/bt/registry"
	"github.com/unswei/muesli-bt/pkg/planner"
	"github.com/unswei/muesli-bt/pkg/scheduler"
	"github.com/unswei/muesli-bt/pkg/vla"
)

// Services bundles the collaborators a tick may call out to: a scheduler for
// host callback work, the MCTS planner, the VLA inference service, and
// observability overrides. Unlike the reference implementation this package
// generalizes, there is no clock or robot adapter here — per-environment
// sensing and actuation is the concern of pkg/host's EnvAdapter, reached
// through ordinary act leaves rather than baked into the tick context.
type Services struct {
	Scheduler scheduler.Scheduler
	Planner   *planner.Service
	VLA       *vla.Service

	// Trace, when set, receives trace events instead of the instance's own
	// buffer — lets a host fan trace output from many instances into one
	// sink. Logger receives log records; when it is nil, log records are
	// dropped.
	Trace  *obs.TraceBuffer
	Logger obs.LogSink
}

// TickContext is the concrete, in-flight view of one tick passed to every
// cond/act callback. It satisfies registry.TickContext structurally.
type TickContext struct {
	Inst *instance.Instance
	Reg  *registry.Registry
	Svc  *Services

	tickIndex uint64
	now       time.Time
	node      ast.NodeID
}

var _ registry.TickContext = (*TickContext)(nil)

// BBPut writes value to key on the instance's blackboard and emits a
// bb_write trace event naming the write.
func (c *TickContext) BBPut(key string, value blackboard.Value, writerName string) {
	c.Inst.BB.Put(key, value, c.tickIndex, c.now, c.node, writerName)
	emitTrace(c, obs.TraceEvent{Kind: obs.BBWrite, Node: c.node, Key: key, ValueRepr: value.Repr()})
}

// BBGet reads key from the instance's blackboard, emitting a bb_read trace
// event when read tracing is enabled on the instance.
func (c *TickContext) BBGet(key string) (blackboard.Entry, bool) {
	entry, ok := c.Inst.BB.Get(key)
	if c.Inst.ReadTraceEnabled {
		repr := "<missing>"
		if ok {
			repr = entry.Value.Repr()
		}
		emitTrace(c, obs.TraceEvent{Kind: obs.BBRead, Node: c.node, Key: key, ValueRepr: repr})
	}
	return entry, ok
}

// CurrentNode returns the node id presently being ticked.
func (c *TickContext) CurrentNode() ast.NodeID { return c.node }

// TickIndex returns the 1-based index of the tick in progress.
func (c *TickContext) TickIndex() uint64 { return c.tickIndex }

// Now returns the timestamp the current tick began at.
func (c *TickContext) Now() time.Time { return c.now }

// SchedulerEvent records a scheduler lifecycle observation against the
// current tick's trace output, and mirrors it into the log at a severity
// matching the event kind.
func (c *TickContext) SchedulerEvent(kind obs.TraceEventKind, job scheduler.JobID, st scheduler.JobStatus, message string) {
	emitTrace(c, obs.TraceEvent{Kind: kind, Node: c.node, Job: job, JobSt: st, Message: message})

	level := obs.LogDebug
	switch kind {
	case obs.Warning:
		level = obs.LogWarn
	case obs.Error:
		level = obs.LogError
	}
	emitLog(c, level, "scheduler", message)
}

// resolveTraceBuffer prefers a host-wide trace override over the instance's
// own buffer, matching the reference implementation's observability
// indirection.
func resolveTraceBuffer(ctx *TickContext) *obs.TraceBuffer {
	if ctx.Svc != nil && ctx.Svc.Trace != nil {
		return ctx.Svc.Trace
	}
	return ctx.Inst.Trace
}

func emitTrace(ctx *TickContext, ev obs.TraceEvent) {
	if !ctx.Inst.TraceEnabled {
		return
	}
	ev.TickIndex = ctx.tickIndex
	ev.TS = ctx.now
	resolveTraceBuffer(ctx).Push(ev)
}

func emitLog(ctx *TickContext, level obs.LogLevel, category, message string) {
	var sink obs.LogSink
	if ctx.Svc != nil {
		sink = ctx.Svc.Logger
	}
	if sink == nil {
		return
	}
	sink.Write(obs.LogRecord{
		TS:        ctx.now,
		Level:     level,
		TickIndex: ctx.tickIndex,
		Node:      ctx.node,
		Category:  category,
		Message:   message,
	})
}
