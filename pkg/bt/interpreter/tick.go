package interpreter

import (
	"fmt"
	"time"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/bterrors"
	"github.com/unswei/muesli-bt/pkg/bt/instance"
	"github.com/unswei/muesli-bt/pkg/bt/obs"
	"github.com/unswei/muesli-bt/pkg/bt/registry"
	"github.com/unswei/muesli-bt/pkg/bt/script"
	"github.com/unswei/muesli-bt/pkg/bt/status"
)

// Tick advances inst by one step: it resolves the root node's status,
// recursively ticking children as needed, and accumulates tree-level timing
// and overrun statistics along the way.
func Tick(inst *instance.Instance, reg *registry.Registry, svc *Services) (status.Status, error) {
	if inst.Def == nil {
		return status.Failure, bterrors.New(bterrors.KindHost, "tick: instance has no definition")
	}

	inst.TickIndex++
	ctx := &TickContext{
		Inst:      inst,
		Reg:       reg,
		Svc:       svc,
		tickIndex: inst.TickIndex,
		now:       time.Now(),
		node:      inst.Def.Root,
	}
	emitTrace(ctx, obs.TraceEvent{Kind: obs.TickBegin, Node: inst.Def.Root})

	start := time.Now()
	var final status.Status
	defer func() {
		elapsed := time.Since(start)
		budget := inst.TreeStats.ConfiguredTickBudget
		inst.TreeStats.TickDuration.Observe(elapsed, budget)
		inst.TreeStats.TickCount++
		if budget > 0 && elapsed > budget {
			inst.TreeStats.TickOverrunCount++
			emitTrace(ctx, obs.TraceEvent{Kind: obs.Warning, Node: inst.Def.Root, Message: "tick budget overrun"})
			emitLog(ctx, obs.LogWarn, "runtime", "tick budget overrun")
		}
		emitTrace(ctx, obs.TraceEvent{Kind: obs.TickEnd, Node: inst.Def.Root, NodeStatus: final, Duration: elapsed})
	}()

	st, err := tickNode(inst.Def.Root, ctx)
	final = st
	return st, err
}

// Reset clears per-instance runtime state, preserving accumulated profiling
// and trace history.
func Reset(inst *instance.Instance) {
	inst.Reset()
}

// SetTickBudgetMs configures the per-tick overrun threshold used by Tick's
// tree-level profiling. A negative budget is a host error, not a crash: it
// must be recoverable by the calling script rather than aborting the
// process.
func SetTickBudgetMs(inst *instance.Instance, budgetMs int64) error {
	if budgetMs < 0 {
		return bterrors.Errorf(bterrors.KindHost, "tick budget must be non-negative, got %dms", budgetMs)
	}
	inst.TreeStats.ConfiguredTickBudget = time.Duration(budgetMs) * time.Millisecond
	return nil
}

// tickNode dispatches one node by id, wrapping the call with per-node
// enter/exit trace events and timing/outcome accounting.
func tickNode(id ast.NodeID, ctx *TickContext) (status.Status, error) {
	node, err := ctx.Inst.Def.Node(id)
	if err != nil {
		return status.Failure, err
	}

	prevNode := ctx.node
	ctx.node = id
	emitTrace(ctx, obs.TraceEvent{Kind: obs.NodeEnter, Node: id})

	start := time.Now()
	var final status.Status
	defer func() {
		elapsed := time.Since(start)
		stats := ctx.Inst.NodeStatsFor(id)
		stats.TickDuration.Observe(elapsed, 0)
		switch final {
		case status.Success:
			stats.SuccessReturns++
		case status.Failure:
			stats.FailureReturns++
		case status.Running:
			stats.RunningReturns++
		}
		emitTrace(ctx, obs.TraceEvent{Kind: obs.NodeExit, Node: id, NodeStatus: final, Duration: elapsed})
		ctx.node = prevNode
	}()

	st, dispatchErr := dispatchNode(node, id, ctx)
	final = st
	return st, dispatchErr
}

func dispatchNode(node *ast.Node, id ast.NodeID, ctx *TickContext) (status.Status, error) {
	switch node.Kind {
	case ast.Seq:
		return tickSeq(node, ctx)
	case ast.Sel:
		return tickSel(node, ctx)
	case ast.Invert:
		return tickInvert(node, ctx)
	case ast.Repeat:
		return tickRepeat(node, id, ctx)
	case ast.Retry:
		return tickRetry(node, id, ctx)
	case ast.Cond:
		return tickCond(node, ctx)
	case ast.Act:
		return tickAct(node, id, ctx)
	case ast.Succeed:
		return status.Success, nil
	case ast.Fail:
		return status.Failure, nil
	case ast.Running:
		return status.Running, nil
	case ast.PlanAction:
		return tickPlanAction(node, id, ctx)
	case ast.VLARequest:
		return tickVLARequest(node, id, ctx)
	case ast.VLAWait:
		return tickVLAWait(node, ctx)
	case ast.VLACancel:
		return tickVLACancel(node, ctx)
	default:
		return status.Failure, nil
	}
}

func tickSeq(node *ast.Node, ctx *TickContext) (status.Status, error) {
	for _, child := range node.Children {
		st, err := tickNode(child, ctx)
		if err != nil {
			return st, err
		}
		if st == status.Failure || st == status.Running {
			return st, nil
		}
	}
	return status.Success, nil
}

func tickSel(node *ast.Node, ctx *TickContext) (status.Status, error) {
	for _, child := range node.Children {
		st, err := tickNode(child, ctx)
		if err != nil {
			return st, err
		}
		if st == status.Success || st == status.Running {
			return st, nil
		}
	}
	return status.Failure, nil
}

func tickInvert(node *ast.Node, ctx *TickContext) (status.Status, error) {
	st, err := tickNode(node.Children[0], ctx)
	if err != nil {
		return st, err
	}
	switch st {
	case status.Success:
		return status.Failure, nil
	case status.Failure:
		return status.Success, nil
	default:
		return status.Running, nil
	}
}

func tickRepeat(node *ast.Node, id ast.NodeID, ctx *TickContext) (status.Status, error) {
	mem := ctx.Inst.MemoryFor(id)
	if mem.I0 >= node.IntParam {
		return status.Success, nil
	}
	st, err := tickNode(node.Children[0], ctx)
	if err != nil {
		return st, err
	}
	switch st {
	case status.Failure:
		return status.Failure, nil
	case status.Running:
		return status.Running, nil
	default:
		mem.I0++
		if mem.I0 >= node.IntParam {
			return status.Success, nil
		}
		return status.Running, nil
	}
}

func tickRetry(node *ast.Node, id ast.NodeID, ctx *TickContext) (status.Status, error) {
	mem := ctx.Inst.MemoryFor(id)
	st, err := tickNode(node.Children[0], ctx)
	if err != nil {
		return st, err
	}
	switch st {
	case status.Success:
		mem.I0 = 0
		return status.Success, nil
	case status.Running:
		return status.Running, nil
	default:
		mem.I0++
		if mem.I0 <= node.IntParam {
			return status.Running, nil
		}
		return status.Failure, nil
	}
}

func tickCond(node *ast.Node, ctx *TickContext) (status.Status, error) {
	fn, ok := ctx.Reg.FindCondition(node.LeafName)
	if !ok {
		msg := "missing condition callback: " + node.LeafName
		emitTrace(ctx, obs.TraceEvent{Kind: obs.Error, Node: ctx.node, Message: msg})
		emitLog(ctx, obs.LogError, "runtime", msg)
		return status.Failure, nil
	}

	args := materializeArgs(node.Args)
	result, err := safeCallCondition(fn, ctx, args)
	if err != nil {
		msg := "condition threw: " + err.Error()
		emitTrace(ctx, obs.TraceEvent{Kind: obs.Error, Node: ctx.node, Message: msg})
		emitLog(ctx, obs.LogError, "runtime", msg)
		return status.Failure, nil
	}
	if result {
		return status.Success, nil
	}
	return status.Failure, nil
}

func tickAct(node *ast.Node, id ast.NodeID, ctx *TickContext) (status.Status, error) {
	fn, ok := ctx.Reg.FindAction(node.LeafName)
	if !ok {
		msg := "missing action callback: " + node.LeafName
		emitTrace(ctx, obs.TraceEvent{Kind: obs.Error, Node: ctx.node, Message: msg})
		emitLog(ctx, obs.LogError, "runtime", msg)
		return status.Failure, nil
	}

	mem := ctx.Inst.MemoryFor(id)
	args := materializeArgs(node.Args)
	st, err := safeCallAction(fn, ctx, id, mem, args)
	if err != nil {
		msg := "action threw: " + err.Error()
		emitTrace(ctx, obs.TraceEvent{Kind: obs.Error, Node: ctx.node, Message: msg})
		emitLog(ctx, obs.LogError, "runtime", msg)
		return status.Failure, nil
	}
	return st, nil
}

// safeCallCondition and safeCallAction recover from a callback panic the way
// the reference runtime catches a thrown exception, converting it into an
// error the caller folds into the node's failure + trace/log path.
func safeCallCondition(fn registry.ConditionFn, ctx *TickContext, args []script.Value) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return fn(ctx, args)
}

func safeCallAction(fn registry.ActionFn, ctx *TickContext, id ast.NodeID, mem *instance.NodeMemory, args []script.Value) (st status.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			st = status.Failure
			err = fmt.Errorf("%v", r)
		}
	}()
	return fn(ctx, id, mem, args)
}

func materializeArgs(args []ast.ArgValue) []script.Value {
	out := make([]script.Value, len(args))
	for i, a := range args {
		out[i] = materializeArg(a)
	}
	return out
}

func materializeArg(arg ast.ArgValue) script.Value {
	switch arg.Kind {
	case ast.ArgBool:
		return script.Bool(arg.Bool)
	case ast.ArgInt:
		return script.Int(arg.Int)
	case ast.ArgFloat:
		return script.Float(arg.Float)
	case ast.ArgSymbol:
		return script.Symbol(arg.Text)
	case ast.ArgString:
		return script.String(arg.Text)
	default:
		return script.Nil()
	}
}
