// Package profile holds duration-histogram-style accumulators used by the
// interpreter (per-node and per-tree timing) and the scheduler (queue delay
// and run time).
package profile

import (
	"time"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
)

// DurationStats accumulates count/last/max/total timing samples against an
// optional per-sample budget.
type DurationStats struct {
	Count          uint64
	Last           time.Duration
	Max            time.Duration
	Total          time.Duration
	OverBudgetCount uint64
}

// Observe records one sample. If budget is positive and sample exceeds it,
// OverBudgetCount is incremented.
func (d *DurationStats) Observe(sample, budget time.Duration) {
	d.Count++
	d.Last = sample
	d.Total += sample
	if sample > d.Max {
		d.Max = sample
	}
	if budget > 0 && sample > budget {
		d.OverBudgetCount++
	}
}

// Mean returns the average sample duration, or zero if no samples were
// observed.
func (d *DurationStats) Mean() time.Duration {
	if d.Count == 0 {
		return 0
	}
	return d.Total / time.Duration(d.Count)
}

// NodeProfileStats accumulates per-node tick timing and outcome counters.
type NodeProfileStats struct {
	ID             ast.NodeID
	Name           string
	TickDuration   DurationStats
	RunningReturns uint64
	SuccessReturns uint64
	FailureReturns uint64
}

// TreeProfileStats accumulates whole-tree tick timing and overrun counters.
type TreeProfileStats struct {
	TickDuration         DurationStats
	TickCount            uint64
	TickOverrunCount     uint64
	ConfiguredTickBudget time.Duration
}

// SchedulerProfileStats accumulates job lifecycle counters and timing for a
// scheduler instance.
type SchedulerProfileStats struct {
	Submitted      uint64
	Started        uint64
	Completed      uint64
	Failed         uint64
	Cancelled      uint64
	QueueOverflow  uint64

	QueueDelay DurationStats
	RunTime    DurationStats
}
