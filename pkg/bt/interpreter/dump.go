package interpreter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/instance"
	"github.com/unswei/muesli-bt/pkg/bt/obs"
	"github.com/unswei/muesli-bt/pkg/scheduler"
)

// DumpStats renders a text summary of tree- and node-level tick timing and
// outcome counters, nodes sorted ascending by id.
func DumpStats(inst *instance.Instance) string {
	var b strings.Builder
	ts := inst.TreeStats
	fmt.Fprintf(&b, "tick_count=%d\n", ts.TickCount)
	fmt.Fprintf(&b, "tick_overrun_count=%d\n", ts.TickOverrunCount)
	fmt.Fprintf(&b, "tick_last_ns=%d\n", ts.TickDuration.Last.Nanoseconds())
	fmt.Fprintf(&b, "tick_max_ns=%d\n", ts.TickDuration.Max.Nanoseconds())
	fmt.Fprintf(&b, "tick_total_ns=%d\n", ts.TickDuration.Total.Nanoseconds())

	ids := make([]ast.NodeID, 0, len(inst.NodeStats))
	for id := range inst.NodeStats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		s := inst.NodeStats[id]
		fmt.Fprintf(&b, "node %d (%s) success=%d failure=%d running=%d last_ns=%d max_ns=%d\n",
			id, s.Name, s.SuccessReturns, s.FailureReturns, s.RunningReturns,
			s.TickDuration.Last.Nanoseconds(), s.TickDuration.Max.Nanoseconds())
	}
	return b.String()
}

// DumpTrace renders one line per buffered trace event, oldest first.
func DumpTrace(inst *instance.Instance) string {
	var b strings.Builder
	for _, ev := range inst.Trace.Snapshot() {
		fmt.Fprintf(&b, "%d kind=%s tick=%d node=%d status=%s",
			ev.Sequence, ev.Kind, ev.TickIndex, ev.Node, ev.NodeStatus)
		if ev.Job != 0 || ev.JobSt != scheduler.JobUnknown {
			fmt.Fprintf(&b, " job=%d job_status=%s", ev.Job, ev.JobSt)
		}
		if ev.Key != "" {
			fmt.Fprintf(&b, " key=%s", ev.Key)
		}
		if ev.ValueRepr != "" {
			fmt.Fprintf(&b, " value=%s", ev.ValueRepr)
		}
		if ev.Message != "" {
			fmt.Fprintf(&b, " msg=%s", ev.Message)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// DumpBlackboard renders one line per blackboard entry, in the unspecified
// order blackboard.Snapshot returns them.
func DumpBlackboard(inst *instance.Instance) string {
	var b strings.Builder
	for _, ke := range inst.BB.Snapshot() {
		fmt.Fprintf(&b, "%s=%s tick=%d writer_node=%d",
			ke.Key, ke.Entry.Value.Repr(), ke.Entry.LastWriteTick, ke.Entry.LastWriterNode)
		if ke.Entry.LastWriterName != "" {
			fmt.Fprintf(&b, " writer_name=%s", ke.Entry.LastWriterName)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// DumpSchedulerStats renders a scheduler's lifecycle counters. sched may be
// nil, rendering an all-zero report, so a host with no scheduler wired can
// still answer dump_scheduler_stats.
func DumpSchedulerStats(sched scheduler.Scheduler) string {
	var stats struct {
		Submitted, Started, Completed, Failed, Cancelled, QueueOverflow uint64
	}
	if sched != nil {
		s := sched.StatsSnapshot()
		stats.Submitted, stats.Started, stats.Completed = s.Submitted, s.Started, s.Completed
		stats.Failed, stats.Cancelled, stats.QueueOverflow = s.Failed, s.Cancelled, s.QueueOverflow
	}
	var b strings.Builder
	fmt.Fprintf(&b, "submitted=%d\n", stats.Submitted)
	fmt.Fprintf(&b, "started=%d\n", stats.Started)
	fmt.Fprintf(&b, "completed=%d\n", stats.Completed)
	fmt.Fprintf(&b, "failed=%d\n", stats.Failed)
	fmt.Fprintf(&b, "cancelled=%d\n", stats.Cancelled)
	fmt.Fprintf(&b, "queue_overflow=%d\n", stats.QueueOverflow)
	return b.String()
}

// DumpLogs renders one line per buffered log record, oldest first.
func DumpLogs(sink *obs.MemoryLogSink) string {
	var b strings.Builder
	if sink == nil {
		return b.String()
	}
	for _, rec := range sink.Snapshot() {
		fmt.Fprintf(&b, "%d ts=%s level=%s tick=%d node=%d category=%s msg=%s\n",
			rec.Sequence, rec.TS.Format("2006-01-02T15:04:05.000Z07:00"), rec.Level, rec.TickIndex, rec.Node, rec.Category, rec.Message)
	}
	return b.String()
}
