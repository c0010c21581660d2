package interpreter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/blackboard"
	"github.com/unswei/muesli-bt/pkg/bt/instance"
	"github.com/unswei/muesli-bt/pkg/bt/registry"
	"github.com/unswei/muesli-bt/pkg/bt/status"
	"github.com/unswei/muesli-bt/pkg/planner"
	"github.com/unswei/muesli-bt/pkg/scheduler"
	"github.com/unswei/muesli-bt/pkg/vla"
)

func TestTickPlanActionWritesActionAndStatus(t *testing.T) {
	reg := registry.New()
	def := defOf(ast.Node{ID: 0, Kind: ast.PlanAction, LeafName: "toy-1d", Args: []ast.ArgValue{ast.SymbolArg("pos")}})
	inst := instance.New(def, 1)
	inst.BB.Put("pos", blackboard.Float(0.5), 0, time.Now(), 0, "")

	svc := &Services{Planner: planner.NewService(planner.WithJSONLDisabled())}

	st, err := Tick(inst, reg, svc)
	require.NoError(t, err)
	assert.Contains(t, []status.Status{status.Success, status.Failure}, st)

	_, ok := inst.BB.Get("toy-1d.planner_status")
	assert.True(t, ok)
}

func TestTickPlanActionFailsWithoutService(t *testing.T) {
	reg := registry.New()
	def := defOf(ast.Node{ID: 0, Kind: ast.PlanAction, LeafName: "toy-1d"})
	inst := instance.New(def, 1)

	st, err := Tick(inst, reg, &Services{})
	require.NoError(t, err)
	assert.Equal(t, status.Failure, st)
}

func newVLAServices(t *testing.T) (*Services, *vla.Service) {
	t.Helper()
	sched := scheduler.NewThreadPoolScheduler(2)
	t.Cleanup(sched.Close)
	svc := vla.NewService(sched, vla.WithJSONLDisabled())
	return &Services{VLA: svc}, svc
}

func TestVLARequestWaitRoundTrip(t *testing.T) {
	reg := registry.New()
	svc, _ := newVLAServices(t)

	def := defOf(
		ast.Node{
			ID: 0, Kind: ast.VLARequest, LeafName: "grasp",
			Args: []ast.ArgValue{ast.StringArg("task-1"), ast.StringArg("pick it up"), ast.SymbolArg("pos")},
		},
	)
	inst := instance.New(def, 1)
	inst.BB.Put("pos", blackboard.Float(0.0), 0, time.Now(), 0, "")

	st, err := Tick(inst, reg, svc)
	require.NoError(t, err)
	assert.Equal(t, status.Success, st)

	_, ok := inst.BB.Get("grasp.vla_request_id")
	require.True(t, ok)

	waitDef := defOf(ast.Node{ID: 0, Kind: ast.VLAWait, LeafName: "waiter", Args: []ast.ArgValue{ast.SymbolArg("grasp")}})
	waitInst := instance.New(waitDef, 1)
	waitInst.BB = inst.BB

	deadline := time.Now().Add(2 * time.Second)
	var finalStatus status.Status
	for time.Now().Before(deadline) {
		finalStatus, err = Tick(waitInst, reg, svc)
		require.NoError(t, err)
		if finalStatus != status.Running {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, status.Success, finalStatus)

	_, ok = inst.BB.Get("grasp.vla_result_status")
	assert.True(t, ok)
}

func TestVLACancelNoopWhenNothingPending(t *testing.T) {
	reg := registry.New()
	svc, _ := newVLAServices(t)

	def := defOf(ast.Node{ID: 0, Kind: ast.VLACancel, LeafName: "canceller", Args: []ast.ArgValue{ast.SymbolArg("nothing")}})
	inst := instance.New(def, 1)

	st, err := Tick(inst, reg, svc)
	require.NoError(t, err)
	assert.Equal(t, status.Success, st)
}

func TestVLARequestFailsWithoutService(t *testing.T) {
	reg := registry.New()
	def := defOf(ast.Node{
		ID: 0, Kind: ast.VLARequest, LeafName: "grasp",
		Args: []ast.ArgValue{ast.StringArg("t"), ast.StringArg("i")},
	})
	inst := instance.New(def, 1)

	st, err := Tick(inst, reg, &Services{})
	require.NoError(t, err)
	assert.Equal(t, status.Failure, st)
}
