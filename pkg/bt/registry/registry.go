// Package registry holds the name-to-callback tables a compiled tree's cond
// and act leaves resolve against at tick time: condition predicates, action
// step functions, and optional per-action halt hooks (stored and looked up
// here; the interpreter in this module does not call them). It depends on instance for NodeMemory and on
// ast/status/script for the leaf call shapes, but never on interpreter —
// interpreter depends on registry, not the other way around, so callback
// authors can register conditions/actions without importing the tick loop
// itself.
package registry

import (
	"sync"
	"time"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/blackboard"
	"github.com/unswei/muesli-bt/pkg/bt/instance"
	"github.com/unswei/muesli-bt/pkg/bt/obs"
	"github.com/unswei/muesli-bt/pkg/bt/script"
	"github.com/unswei/muesli-bt/pkg/bt/status"
	"github.com/unswei/muesli-bt/pkg/scheduler"
)

// TickContext is the minimal view of an in-flight tick that cond/act
// callbacks can observe and mutate: the blackboard, the currently executing
// node, tick timing, and the ability to emit a scheduler-related trace/log
// event. The interpreter's concrete tick context satisfies this structurally;
// registry never imports that type, which is what keeps this package free of
// a dependency cycle back to interpreter.
type TickContext interface {
	// BBPut writes value to key on the instance's blackboard, attributing
	// the write to writerName for trace/debug purposes.
	BBPut(key string, value blackboard.Value, writerName string)

	// BBGet reads key from the instance's blackboard.
	BBGet(key string) (blackboard.Entry, bool)

	// CurrentNode is the node id presently being ticked.
	CurrentNode() ast.NodeID

	// TickIndex is the 1-based index of the tick currently in progress.
	TickIndex() uint64

	// Now is the timestamp the current tick began at.
	Now() time.Time

	// SchedulerEvent records a scheduler lifecycle observation (submit,
	// start, finish, cancel) against the current tick's trace/log output.
	SchedulerEvent(kind obs.TraceEventKind, job scheduler.JobID, st scheduler.JobStatus, message string)
}

// ConditionFn evaluates a cond leaf's predicate against the current tick
// context and compiled arguments, returning whether the condition holds. A
// returned error is treated the same as a thrown exception in the reference
// implementation this mirrors: the node fails and the interpreter emits an
// error trace event (carrying the node id) and log line with the error text.
type ConditionFn func(ctx TickContext, args []script.Value) (bool, error)

// ActionFn runs one tick of an act leaf's step function. mem is the node's
// persistent memory slot, preserved across ticks of the same instance. A
// returned error fails the node the same way a false ConditionFn error does.
type ActionFn func(ctx TickContext, id ast.NodeID, mem *instance.NodeMemory, args []script.Value) (status.Status, error)

// ActionHaltFn is a cleanup hook registered alongside an action and
// retrievable with FindActionHalt. The interpreter in this module never calls
// it: a Running action that is not ticked again gets no halt call. It has no
// return value; halt hooks are best-effort cleanup, not state transitions.
type ActionHaltFn func(ctx TickContext, id ast.NodeID, mem *instance.NodeMemory)

// Registry is a name-keyed table of condition and action callbacks. The
// zero value is not usable; construct with New.
type Registry struct {
	mu            sync.RWMutex
	conditions    map[string]ConditionFn
	actions       map[string]ActionFn
	actionHalts   map[string]ActionHaltFn
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		conditions:  make(map[string]ConditionFn),
		actions:     make(map[string]ActionFn),
		actionHalts: make(map[string]ActionHaltFn),
	}
}

// RegisterCondition binds name to fn, overwriting any existing binding.
func (r *Registry) RegisterCondition(name string, fn ConditionFn) {
	if name == "" {
		panic("registry: condition name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conditions[name] = fn
}

// RegisterAction binds name to fn and, if haltFn is non-nil, to a halt hook.
// A nil haltFn explicitly clears any previously registered halt hook for
// name, matching the reference implementation's erase-on-absent semantics:
// re-registering an action without a halt hook must not leave a stale halt
// hook from an earlier registration in place.
func (r *Registry) RegisterAction(name string, fn ActionFn, haltFn ActionHaltFn) {
	if name == "" {
		panic("registry: action name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = fn
	if haltFn != nil {
		r.actionHalts[name] = haltFn
	} else {
		delete(r.actionHalts, name)
	}
}

// FindCondition looks up a registered condition by name.
func (r *Registry) FindCondition(name string) (ConditionFn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.conditions[name]
	return fn, ok
}

// FindAction looks up a registered action by name.
func (r *Registry) FindAction(name string) (ActionFn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[name]
	return fn, ok
}

// FindActionHalt looks up a registered action's halt hook by name.
func (r *Registry) FindActionHalt(name string) (ActionHaltFn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actionHalts[name]
	return fn, ok
}

// Clear removes every registered condition, action, and halt hook.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conditions = make(map[string]ConditionFn)
	r.actions = make(map[string]ActionFn)
	r.actionHalts = make(map[string]ActionHaltFn)
}
