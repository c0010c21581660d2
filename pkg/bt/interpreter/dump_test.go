package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/blackboard"
	"github.com/unswei/muesli-bt/pkg/bt/instance"
	"github.com/unswei/muesli-bt/pkg/bt/obs"
	"github.com/unswei/muesli-bt/pkg/bt/registry"
	"github.com/unswei/muesli-bt/pkg/bt/script"
	"github.com/unswei/muesli-bt/pkg/bt/status"
)

func TestDumpStatsIncludesTickAndNodeLines(t *testing.T) {
	reg := registry.New()
	reg.RegisterCondition("ok", func(registry.TickContext, []script.Value) (bool, error) { return true, nil })
	def := defOf(ast.Node{ID: 0, Kind: ast.Cond, LeafName: "ok"})
	inst := instance.New(def, 1)

	_, err := Tick(inst, reg, &Services{})
	require.NoError(t, err)

	out := DumpStats(inst)
	assert.Contains(t, out, "tick_count=1")
	assert.Contains(t, out, "node 0 (ok) success=1")
}

func TestDumpTraceIncludesNodeEnterEvents(t *testing.T) {
	reg := registry.New()
	reg.RegisterCondition("ok", func(registry.TickContext, []script.Value) (bool, error) { return true, nil })
	def := defOf(ast.Node{ID: 0, Kind: ast.Cond, LeafName: "ok"})
	inst := instance.New(def, 1)

	_, err := Tick(inst, reg, &Services{})
	require.NoError(t, err)

	out := DumpTrace(inst)
	assert.Contains(t, out, "kind=node_enter")
	assert.Contains(t, out, "kind=tick_begin")
}

func TestDumpBlackboardIncludesWrittenKeys(t *testing.T) {
	reg := registry.New()
	reg.RegisterAction("writer", func(ctx registry.TickContext, id ast.NodeID, mem *instance.NodeMemory, args []script.Value) (status.Status, error) {
		ctx.BBPut("seen", blackboard.Bool(true), "writer")
		return status.Success, nil
	}, nil)
	def := defOf(ast.Node{ID: 0, Kind: ast.Act, LeafName: "writer"})
	inst := instance.New(def, 1)

	_, err := Tick(inst, reg, &Services{})
	require.NoError(t, err)

	out := DumpBlackboard(inst)
	assert.Contains(t, out, "seen=#t")
	assert.Contains(t, out, "writer_name=writer")
}

func TestDumpSchedulerStatsNilSchedulerIsAllZero(t *testing.T) {
	out := DumpSchedulerStats(nil)
	assert.Contains(t, out, "submitted=0")
	assert.Contains(t, out, "started=0")
	assert.Contains(t, out, "completed=0")
	assert.Contains(t, out, "failed=0")
	assert.Contains(t, out, "cancelled=0")
	assert.Contains(t, out, "queue_overflow=0")
}

func TestDumpLogsRendersBufferedRecords(t *testing.T) {
	sink := obs.NewMemoryLogSink(16)
	sink.Write(obs.LogRecord{Level: obs.LogWarn, Category: "runtime", Message: "tick budget overrun"})

	out := DumpLogs(sink)
	assert.Contains(t, out, "level=warn")
	assert.Contains(t, out, "category=runtime")
	assert.Contains(t, out, "msg=tick budget overrun")
}

func TestDumpLogsNilSinkIsEmpty(t *testing.T) {
	assert.Equal(t, "", DumpLogs(nil))
}
