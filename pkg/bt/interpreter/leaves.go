package interpreter

import (
	"fmt"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/blackboard"
	"github.com/unswei/muesli-bt/pkg/bt/obs"
	"github.com/unswei/muesli-bt/pkg/bt/status"
	"github.com/unswei/muesli-bt/pkg/planner"
	"github.com/unswei/muesli-bt/pkg/vla"
)

// The four leaf kinds below (plan-action, vla-request, vla-wait,
// vla-cancel) have no tick dispatch at all in the reference implementation
// this package generalizes — there they fall through to an unconditional
// failure. Here they are real leaves, each following one blackboard-key
// convention:
//
//   - plan-action writes its chosen action vector to
//     "<leaf-name>.planner_action.<dim>" and its outcome to
//     "<leaf-name>.planner_status".
//   - vla-request writes the job id it submitted to
//     "<leaf-name>.vla_request_id", so a paired vla-wait/vla-cancel leaf can
//     find it by name.
//   - vla-wait polls that job id and, once done, writes the result action to
//     "<request-leaf>.vla_result.<dim>" and its status to
//     "<request-leaf>.vla_result_status".
//   - vla-cancel cancels that job id; it is a no-op success if nothing is
//     pending.
//
// vla-wait and vla-cancel take the paired request leaf's name as their first
// (symbol) argument; vla-request takes a task-id string and an instruction
// string as its first two arguments. plan-action and vla-request take the
// blackboard keys holding the state vector's scalar components as their
// trailing (symbol) arguments; vla-request bounds every action dimension to
// [-1, 1].

func stateVectorFromBB(ctx *TickContext, keys []ast.ArgValue) ([]float64, error) {
	out := make([]float64, 0, len(keys))
	for _, k := range keys {
		if k.Kind != ast.ArgSymbol {
			return nil, fmt.Errorf("expected a blackboard key symbol, got arg kind %d", k.Kind)
		}
		entry, ok := ctx.BBGet(k.Text)
		if !ok {
			return nil, fmt.Errorf("blackboard key %q not set", k.Text)
		}
		switch entry.Value.Kind {
		case blackboard.ValueFloat:
			out = append(out, entry.Value.F)
		case blackboard.ValueInt:
			out = append(out, float64(entry.Value.I))
		default:
			return nil, fmt.Errorf("blackboard key %q is not numeric", k.Text)
		}
	}
	return out, nil
}

func tickPlanAction(node *ast.Node, id ast.NodeID, ctx *TickContext) (status.Status, error) {
	if ctx.Svc == nil || ctx.Svc.Planner == nil {
		emitLeafError(ctx, "planner service not configured")
		return status.Failure, nil
	}

	state, err := stateVectorFromBB(ctx, node.Args)
	if err != nil {
		emitLeafError(ctx, "plan-action: "+err.Error())
		return status.Failure, nil
	}

	req := planner.Request{
		ModelService: node.LeafName,
		State:        planner.Vector(state),
		Config:       planner.DefaultConfig(),
		RunID:        generateRunID(node.LeafName),
		TickIndex:    ctx.tickIndex,
		NodeName:     node.LeafName,
	}
	result := ctx.Svc.Planner.Plan(req)

	mem := ctx.Inst.MemoryFor(id)
	mem.Payload = result

	for i, v := range result.Action {
		ctx.BBPut(fmt.Sprintf("%s.planner_action.%d", node.LeafName, i), blackboard.Float(v), node.LeafName)
	}
	ctx.BBPut(node.LeafName+".planner_status", blackboard.String(result.Status.String()), node.LeafName)

	if result.Status == planner.StatusOK {
		return status.Success, nil
	}
	return status.Failure, nil
}

func tickVLARequest(node *ast.Node, id ast.NodeID, ctx *TickContext) (status.Status, error) {
	if ctx.Svc == nil || ctx.Svc.VLA == nil {
		emitLeafError(ctx, "vla service not configured")
		return status.Failure, nil
	}
	if len(node.Args) < 2 || node.Args[0].Kind != ast.ArgString || node.Args[1].Kind != ast.ArgString {
		emitLeafError(ctx, "vla-request: requires task-id and instruction string arguments")
		return status.Failure, nil
	}

	taskID := node.Args[0].Text
	instruction := node.Args[1].Text
	state, err := stateVectorFromBB(ctx, node.Args[2:])
	if err != nil {
		emitLeafError(ctx, "vla-request: "+err.Error())
		return status.Failure, nil
	}

	bounds := make([]vla.Bound, len(state))
	for i := range bounds {
		bounds[i] = vla.Bound{Lo: -1, Hi: 1}
	}

	req := vla.Request{
		Capability:  node.LeafName,
		TaskID:      taskID,
		Instruction: instruction,
		Observation: vla.Observation{State: state, TimestampMs: ctx.now.UnixMilli()},
		ActionSpace: vla.ActionSpace{Type: "continuous", Dims: int64(len(state)), Bounds: bounds},
		DeadlineMs:  1000,
		Model:       vla.ModelInfo{Name: "rt2-stub", Version: "v1"},
		RunID:       generateRunID(node.LeafName),
		TickIndex:   ctx.tickIndex,
		NodeName:    node.LeafName,
	}

	jobID := ctx.Svc.VLA.Submit(req)

	mem := ctx.Inst.MemoryFor(id)
	mem.Payload = jobID
	ctx.BBPut(node.LeafName+".vla_request_id", blackboard.Int(int64(jobID)), node.LeafName)
	return status.Success, nil
}

func requestLeafArg(node *ast.Node) (string, error) {
	if len(node.Args) < 1 || node.Args[0].Kind != ast.ArgSymbol {
		return "", fmt.Errorf("requires the paired vla-request leaf's name as its first argument")
	}
	return node.Args[0].Text, nil
}

func tickVLAWait(node *ast.Node, ctx *TickContext) (status.Status, error) {
	if ctx.Svc == nil || ctx.Svc.VLA == nil {
		emitLeafError(ctx, "vla service not configured")
		return status.Failure, nil
	}
	requestLeaf, err := requestLeafArg(node)
	if err != nil {
		emitLeafError(ctx, "vla-wait: "+err.Error())
		return status.Failure, nil
	}

	entry, ok := ctx.BBGet(requestLeaf + ".vla_request_id")
	if !ok || entry.Value.Kind != blackboard.ValueInt {
		emitLeafError(ctx, "vla-wait: no pending request for "+requestLeaf)
		return status.Failure, nil
	}
	jobID := vla.JobID(uint64(entry.Value.I))

	poll := ctx.Svc.VLA.Poll(jobID)
	switch poll.Status {
	case vla.JobQueued, vla.JobRunning, vla.JobStreaming:
		return status.Running, nil
	case vla.JobDone:
		if poll.Final != nil {
			ctx.BBPut(requestLeaf+".vla_result_status", blackboard.String(poll.Final.Status.String()), node.LeafName)
			for i, v := range poll.Final.Action.U {
				ctx.BBPut(fmt.Sprintf("%s.vla_result.%d", requestLeaf, i), blackboard.Float(v), node.LeafName)
			}
		}
		return status.Success, nil
	default:
		return status.Failure, nil
	}
}

func tickVLACancel(node *ast.Node, ctx *TickContext) (status.Status, error) {
	if ctx.Svc == nil || ctx.Svc.VLA == nil {
		emitLeafError(ctx, "vla service not configured")
		return status.Failure, nil
	}
	requestLeaf, err := requestLeafArg(node)
	if err != nil {
		emitLeafError(ctx, "vla-cancel: "+err.Error())
		return status.Failure, nil
	}

	entry, ok := ctx.BBGet(requestLeaf + ".vla_request_id")
	if !ok || entry.Value.Kind != blackboard.ValueInt {
		return status.Success, nil
	}
	ctx.Svc.VLA.Cancel(vla.JobID(uint64(entry.Value.I)))
	return status.Success, nil
}

func emitLeafError(ctx *TickContext, message string) {
	emitTrace(ctx, obs.TraceEvent{Kind: obs.Error, Node: ctx.node, Message: message})
	emitLog(ctx, obs.LogError, "runtime", message)
}
