package host

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/bterrors"
	"github.com/unswei/muesli-bt/pkg/bt/instance"
	"github.com/unswei/muesli-bt/pkg/bt/obs"
	"github.com/unswei/muesli-bt/pkg/bt/registry"
	"github.com/unswei/muesli-bt/pkg/bt/script"
	"github.com/unswei/muesli-bt/pkg/bt/status"
)

func treeDef() *ast.Definition {
	return &ast.Definition{
		Root: 0,
		Nodes: []ast.Node{
			{ID: 0, Kind: ast.Seq, Children: []ast.NodeID{1, 2}},
			{ID: 1, Kind: ast.Cond, LeafName: "battery-ok"},
			{ID: 2, Kind: ast.Act, LeafName: "approach-target"},
		},
	}
}

func TestHostTickDrivesRegisteredCallbacks(t *testing.T) {
	reg := registry.New()
	reg.RegisterCondition("battery-ok", func(registry.TickContext, []script.Value) (bool, error) {
		return true, nil
	})
	approaches := 0
	reg.RegisterAction("approach-target", func(registry.TickContext, ast.NodeID, *instance.NodeMemory, []script.Value) (status.Status, error) {
		approaches++
		if approaches >= 2 {
			return status.Success, nil
		}
		return status.Running, nil
	}, nil)

	h := New(WithRegistry(reg))
	defHandle := h.StoreDefinition(treeDef())
	instHandle, err := h.CreateInstance(defHandle)
	require.NoError(t, err)

	st, err := h.TickInstance(instHandle)
	require.NoError(t, err)
	assert.Equal(t, status.Running, st)

	st, err = h.TickInstance(instHandle)
	require.NoError(t, err)
	assert.Equal(t, status.Success, st)
}

func TestHostTickFailsWhenConditionFalse(t *testing.T) {
	reg := registry.New()
	reg.RegisterCondition("battery-ok", func(registry.TickContext, []script.Value) (bool, error) {
		return false, nil
	})
	h := New(WithRegistry(reg))
	defHandle := h.StoreDefinition(treeDef())
	instHandle, err := h.CreateInstance(defHandle)
	require.NoError(t, err)

	st, err := h.TickInstance(instHandle)
	require.NoError(t, err)
	assert.Equal(t, status.Failure, st)
}

func TestHostCompileAndTick(t *testing.T) {
	reg := registry.New()
	reg.RegisterCondition("ok", func(registry.TickContext, []script.Value) (bool, error) { return true, nil })
	h := New(WithRegistry(reg))

	defHandle, err := h.Compile(script.List(script.Symbol("cond"), script.Symbol("ok")))
	require.NoError(t, err)

	instHandle, err := h.CreateInstance(defHandle)
	require.NoError(t, err)
	st, err := h.TickInstance(instHandle)
	require.NoError(t, err)
	assert.Equal(t, status.Success, st)
}

func TestHostLoadDSL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.bt")
	require.NoError(t, os.WriteFile(path, []byte("(cond ok)"), 0o644))

	reg := registry.New()
	reg.RegisterCondition("ok", func(registry.TickContext, []script.Value) (bool, error) { return true, nil })
	h := New(WithRegistry(reg))

	defHandle, err := h.LoadDSL(path)
	require.NoError(t, err)
	instHandle, err := h.CreateInstance(defHandle)
	require.NoError(t, err)

	st, err := h.TickInstance(instHandle)
	require.NoError(t, err)
	assert.Equal(t, status.Success, st)
}

func TestHostLoadDSLMissingFile(t *testing.T) {
	h := New()
	_, err := h.LoadDSL(filepath.Join(t.TempDir(), "missing.bt"))
	assert.Error(t, err)
}

func TestCreateInstanceRejectsUnknownDefinitionHandle(t *testing.T) {
	h := New()
	_, err := h.CreateInstance(999)
	require.Error(t, err)
	var btErr *bterrors.BTError
	require.ErrorAs(t, err, &btErr)
	assert.Equal(t, bterrors.KindHost, btErr.Kind)
}

func TestTickResetDumpRejectUnknownInstanceHandle(t *testing.T) {
	h := New()

	_, err := h.TickInstance(999)
	assert.Error(t, err)

	err = h.ResetInstance(999)
	assert.Error(t, err)

	err = h.SetTickBudgetMs(999, 5)
	assert.Error(t, err)

	_, err = h.DumpInstanceStats(999)
	assert.Error(t, err)

	_, err = h.DumpInstanceTrace(999)
	assert.Error(t, err)

	_, err = h.DumpInstanceBlackboard(999)
	assert.Error(t, err)
}

func TestSetTickBudgetMsRejectsNegative(t *testing.T) {
	h := New()
	defHandle := h.StoreDefinition(treeDef())
	instHandle, err := h.CreateInstance(defHandle)
	require.NoError(t, err)

	err = h.SetTickBudgetMs(instHandle, -1)
	require.Error(t, err)
	var btErr *bterrors.BTError
	require.ErrorAs(t, err, &btErr)
	assert.Equal(t, bterrors.KindHost, btErr.Kind)
}

func TestHostSupportsMultipleInstancesOfOneDefinition(t *testing.T) {
	reg := registry.New()
	reg.RegisterCondition("battery-ok", func(registry.TickContext, []script.Value) (bool, error) {
		return true, nil
	})
	reg.RegisterAction("approach-target", func(registry.TickContext, ast.NodeID, *instance.NodeMemory, []script.Value) (status.Status, error) {
		return status.Success, nil
	}, nil)

	h := New(WithRegistry(reg))
	defHandle := h.StoreDefinition(treeDef())

	a, err := h.CreateInstance(defHandle)
	require.NoError(t, err)
	b, err := h.CreateInstance(defHandle)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "each CreateInstance call must mint a distinct handle")

	_, ok := h.FindDefinition(defHandle)
	assert.True(t, ok)
	_, ok = h.FindInstance(a)
	assert.True(t, ok)
	_, ok = h.FindInstance(b)
	assert.True(t, ok)

	stA, err := h.TickInstance(a)
	require.NoError(t, err)
	stB, err := h.TickInstance(b)
	require.NoError(t, err)
	assert.Equal(t, status.Success, stA)
	assert.Equal(t, status.Success, stB)
}

func TestClearAllDiscardsDefinitionsAndInstances(t *testing.T) {
	h := New()
	defHandle := h.StoreDefinition(treeDef())
	instHandle, err := h.CreateInstance(defHandle)
	require.NoError(t, err)

	h.ClearAll()

	_, ok := h.FindDefinition(defHandle)
	assert.False(t, ok)
	_, ok = h.FindInstance(instHandle)
	assert.False(t, ok)
}

func TestClearLogsEmptiesHostLogSink(t *testing.T) {
	h := New()
	h.Logs.Write(obs.LogRecord{Level: obs.LogInfo, Category: "test", Message: "hello"})
	require.Equal(t, 1, h.Logs.Size())

	h.ClearLogs()
	assert.Equal(t, 0, h.Logs.Size())
}

func TestDumpSchedulerStatsWithNoSchedulerWired(t *testing.T) {
	h := New()
	out := h.DumpSchedulerStats()
	assert.Contains(t, out, "submitted=0")
}

func TestDefaultHostInitializesLazily(t *testing.T) {
	SetDefault(nil)
	d := Default()
	require.NotNil(t, d, "Default must lazily initialize a host, per the runtime host's fixed single-instance contract")
	assert.Same(t, d, Default())

	h := New()
	SetDefault(h)
	defer SetDefault(nil)
	assert.Same(t, h, Default())
}
