// Package instance holds the per-tree runtime state a behavior tree carries
// between ticks: per-node memory slots, the blackboard, profiling counters,
// and the trace buffer. A compiled ast.Definition is immutable and can be
// shared by many instances; the instance is what actually changes tick to
// tick.
package instance

import (
	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/blackboard"
	"github.com/unswei/muesli-bt/pkg/bt/obs"
	"github.com/unswei/muesli-bt/pkg/bt/profile"
)

const defaultTraceCapacity = 4096

// NodeMemory is the scratch state a node keeps across ticks. repeat/retry
// use I0 as a counter; act leaves may stash arbitrary state in Payload
// between ticks (e.g. a pending job handle).
type NodeMemory struct {
	I0      int64
	I1      int64
	B0      bool
	Payload any
}

// Instance is one running (or idle) execution of a compiled tree.
type Instance struct {
	Def            *ast.Definition
	InstanceHandle int64

	Memory             map[ast.NodeID]*NodeMemory
	HaltWarningEmitted map[ast.NodeID]bool

	BB *blackboard.Blackboard

	TickIndex uint64

	TraceEnabled     bool
	ReadTraceEnabled bool

	TreeStats profile.TreeProfileStats
	NodeStats map[ast.NodeID]*profile.NodeProfileStats

	Trace *obs.TraceBuffer
}

// New creates an instance bound to def with the default trace capacity.
func New(def *ast.Definition, instanceHandle int64) *Instance {
	return NewWithTraceCapacity(def, instanceHandle, defaultTraceCapacity)
}

// NewWithTraceCapacity creates an instance with an explicit trace ring
// buffer size.
func NewWithTraceCapacity(def *ast.Definition, instanceHandle int64, traceCapacity int) *Instance {
	return &Instance{
		Def:                def,
		InstanceHandle:     instanceHandle,
		Memory:             make(map[ast.NodeID]*NodeMemory),
		HaltWarningEmitted: make(map[ast.NodeID]bool),
		BB:                 blackboard.New(),
		TraceEnabled:       true,
		ReadTraceEnabled:   false,
		NodeStats:          make(map[ast.NodeID]*profile.NodeProfileStats),
		Trace:              obs.NewTraceBuffer(traceCapacity),
	}
}

// MemoryFor lazily creates and returns the NodeMemory slot for id.
func (inst *Instance) MemoryFor(id ast.NodeID) *NodeMemory {
	mem, ok := inst.Memory[id]
	if !ok {
		mem = &NodeMemory{}
		inst.Memory[id] = mem
	}
	return mem
}

// NodeStatsFor lazily creates and returns the NodeProfileStats slot for a
// node, naming it from the node's leaf name when present.
func (inst *Instance) NodeStatsFor(id ast.NodeID) *profile.NodeProfileStats {
	stats, ok := inst.NodeStats[id]
	if !ok {
		name := ""
		if node, err := inst.Def.Node(id); err == nil {
			name = node.LeafName
		}
		if name == "" {
			name = nodeFallbackName(id)
		}
		stats = &profile.NodeProfileStats{ID: id, Name: name}
		inst.NodeStats[id] = stats
	}
	return stats
}

func nodeFallbackName(id ast.NodeID) string {
	return "node-" + itoa(uint64(id))
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Reset clears per-instance runtime state (memory and blackboard) while
// keeping the bound definition, handle, and accumulated profiling/trace
// history.
func (inst *Instance) Reset() {
	inst.Memory = make(map[ast.NodeID]*NodeMemory)
	inst.BB.Clear()
}
