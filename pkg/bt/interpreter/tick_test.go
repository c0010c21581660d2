package interpreter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/bterrors"
	"github.com/unswei/muesli-bt/pkg/bt/instance"
	"github.com/unswei/muesli-bt/pkg/bt/registry"
	"github.com/unswei/muesli-bt/pkg/bt/script"
	"github.com/unswei/muesli-bt/pkg/bt/status"
)

func defOf(nodes ...ast.Node) *ast.Definition {
	return &ast.Definition{Nodes: nodes, Root: 0}
}

func TestTickSeqStopsOnFirstFailure(t *testing.T) {
	reg := registry.New()
	reg.RegisterCondition("ok", func(registry.TickContext, []script.Value) (bool, error) { return true, nil })
	reg.RegisterCondition("no", func(registry.TickContext, []script.Value) (bool, error) { return false, nil })

	def := defOf(
		ast.Node{ID: 0, Kind: ast.Seq, Children: []ast.NodeID{1, 2}},
		ast.Node{ID: 1, Kind: ast.Cond, LeafName: "no"},
		ast.Node{ID: 2, Kind: ast.Cond, LeafName: "ok"},
	)
	inst := instance.New(def, 1)

	st, err := Tick(inst, reg, &Services{})
	require.NoError(t, err)
	assert.Equal(t, status.Failure, st)

	stats2 := inst.NodeStatsFor(2)
	assert.Equal(t, uint64(0), stats2.SuccessReturns+stats2.FailureReturns)
}

func TestTickSelSucceedsOnFirstSuccess(t *testing.T) {
	reg := registry.New()
	reg.RegisterCondition("no", func(registry.TickContext, []script.Value) (bool, error) { return false, nil })
	reg.RegisterCondition("ok", func(registry.TickContext, []script.Value) (bool, error) { return true, nil })

	def := defOf(
		ast.Node{ID: 0, Kind: ast.Sel, Children: []ast.NodeID{1, 2}},
		ast.Node{ID: 1, Kind: ast.Cond, LeafName: "no"},
		ast.Node{ID: 2, Kind: ast.Cond, LeafName: "ok"},
	)
	inst := instance.New(def, 1)

	st, err := Tick(inst, reg, &Services{})
	require.NoError(t, err)
	assert.Equal(t, status.Success, st)
}

func TestTickInvertFlipsSuccessAndFailure(t *testing.T) {
	reg := registry.New()
	reg.RegisterCondition("ok", func(registry.TickContext, []script.Value) (bool, error) { return true, nil })

	def := defOf(
		ast.Node{ID: 0, Kind: ast.Invert, Children: []ast.NodeID{1}},
		ast.Node{ID: 1, Kind: ast.Cond, LeafName: "ok"},
	)
	inst := instance.New(def, 1)

	st, err := Tick(inst, reg, &Services{})
	require.NoError(t, err)
	assert.Equal(t, status.Failure, st)
}

func TestTickRepeatCountsSuccessesUntilBound(t *testing.T) {
	reg := registry.New()
	reg.RegisterCondition("ok", func(registry.TickContext, []script.Value) (bool, error) { return true, nil })

	def := defOf(
		ast.Node{ID: 0, Kind: ast.Repeat, Children: []ast.NodeID{1}, IntParam: 3},
		ast.Node{ID: 1, Kind: ast.Cond, LeafName: "ok"},
	)
	inst := instance.New(def, 1)

	st, err := Tick(inst, reg, &Services{})
	require.NoError(t, err)
	assert.Equal(t, status.Running, st)

	st, err = Tick(inst, reg, &Services{})
	require.NoError(t, err)
	assert.Equal(t, status.Running, st)

	st, err = Tick(inst, reg, &Services{})
	require.NoError(t, err)
	assert.Equal(t, status.Success, st)
}

func TestTickRetryGivesUpAfterBound(t *testing.T) {
	reg := registry.New()
	reg.RegisterCondition("no", func(registry.TickContext, []script.Value) (bool, error) { return false, nil })

	def := defOf(
		ast.Node{ID: 0, Kind: ast.Retry, Children: []ast.NodeID{1}, IntParam: 2},
		ast.Node{ID: 1, Kind: ast.Cond, LeafName: "no"},
	)
	inst := instance.New(def, 1)

	for i := 0; i < 2; i++ {
		st, err := Tick(inst, reg, &Services{})
		require.NoError(t, err)
		assert.Equal(t, status.Running, st)
	}
	st, err := Tick(inst, reg, &Services{})
	require.NoError(t, err)
	assert.Equal(t, status.Failure, st)
}

func TestTickCondMissingCallbackFails(t *testing.T) {
	reg := registry.New()
	def := defOf(ast.Node{ID: 0, Kind: ast.Cond, LeafName: "nope"})
	inst := instance.New(def, 1)

	st, err := Tick(inst, reg, &Services{})
	require.NoError(t, err)
	assert.Equal(t, status.Failure, st)

	trace := inst.Trace.Snapshot()
	found := false
	for _, ev := range trace {
		if ev.Message == "missing condition callback: nope" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTickConditionPanicIsRecoveredAsFailure(t *testing.T) {
	reg := registry.New()
	reg.RegisterCondition("boom", func(registry.TickContext, []script.Value) (bool, error) {
		panic("kaboom")
	})
	def := defOf(ast.Node{ID: 0, Kind: ast.Cond, LeafName: "boom"})
	inst := instance.New(def, 1)

	st, err := Tick(inst, reg, &Services{})
	require.NoError(t, err)
	assert.Equal(t, status.Failure, st)
}

func TestTickActUsesPersistentMemory(t *testing.T) {
	reg := registry.New()
	reg.RegisterAction("counter", func(ctx registry.TickContext, id ast.NodeID, mem *instance.NodeMemory, args []script.Value) (status.Status, error) {
		mem.I0++
		if mem.I0 >= 2 {
			return status.Success, nil
		}
		return status.Running, nil
	}, nil)

	def := defOf(ast.Node{ID: 0, Kind: ast.Act, LeafName: "counter"})
	inst := instance.New(def, 1)

	st, err := Tick(inst, reg, &Services{})
	require.NoError(t, err)
	assert.Equal(t, status.Running, st)

	st, err = Tick(inst, reg, &Services{})
	require.NoError(t, err)
	assert.Equal(t, status.Success, st)
}

func TestSetTickBudgetMsRejectsNegative(t *testing.T) {
	inst := instance.New(defOf(ast.Node{ID: 0, Kind: ast.Succeed}), 1)
	err := SetTickBudgetMs(inst, -1)
	require.Error(t, err)
	var btErr *bterrors.BTError
	require.ErrorAs(t, err, &btErr)
	assert.Equal(t, bterrors.KindHost, btErr.Kind)
}

func TestSetTickBudgetMsRecordsOverrun(t *testing.T) {
	reg := registry.New()
	reg.RegisterAction("slow", func(ctx registry.TickContext, id ast.NodeID, mem *instance.NodeMemory, args []script.Value) (status.Status, error) {
		time.Sleep(2 * time.Millisecond)
		return status.Success, nil
	}, nil)
	def := defOf(ast.Node{ID: 0, Kind: ast.Act, LeafName: "slow"})
	inst := instance.New(def, 1)
	require.NoError(t, SetTickBudgetMs(inst, 1))

	_, err := Tick(inst, reg, &Services{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), inst.TreeStats.TickOverrunCount)
}

func TestResetClearsMemory(t *testing.T) {
	reg := registry.New()
	reg.RegisterAction("counter", func(ctx registry.TickContext, id ast.NodeID, mem *instance.NodeMemory, args []script.Value) (status.Status, error) {
		mem.I0++
		return status.Running, nil
	}, nil)
	def := defOf(ast.Node{ID: 0, Kind: ast.Act, LeafName: "counter"})
	inst := instance.New(def, 1)

	_, _ = Tick(inst, reg, &Services{})
	Reset(inst)

	assert.Equal(t, int64(0), inst.MemoryFor(0).I0)
}
