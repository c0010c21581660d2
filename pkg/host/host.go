package host

import (
	"os"
	"sync"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/bterrors"
	"github.com/unswei/muesli-bt/pkg/bt/compiler"
	"github.com/unswei/muesli-bt/pkg/bt/instance"
	"github.com/unswei/muesli-bt/pkg/bt/interpreter"
	"github.com/unswei/muesli-bt/pkg/bt/obs"
	"github.com/unswei/muesli-bt/pkg/bt/registry"
	"github.com/unswei/muesli-bt/pkg/bt/script"
	"github.com/unswei/muesli-bt/pkg/bt/status"
	"github.com/unswei/muesli-bt/pkg/planner"
	"github.com/unswei/muesli-bt/pkg/scheduler"
	"github.com/unswei/muesli-bt/pkg/vla"
)

// defaultTickBudgetMs is the tick duration budget create_instance assigns a
// freshly created instance before any explicit SetTickBudgetMs call.
const defaultTickBudgetMs = 20

// defaultLogCapacity is the number of records the host's own memory log
// sink retains before the oldest is evicted.
const defaultLogCapacity = 4096

// Host exclusively owns compiled tree definitions and running instances,
// behind two monotonic handle spaces, and wires the callback registry,
// scheduler/planner/VLA services, and memory log sink every instance ticks
// against. It is the single object an embedding script runtime binds its
// bt.* builtins to.
type Host struct {
	Reg      *registry.Registry
	Services *interpreter.Services
	Logs     *obs.MemoryLogSink

	traceCapacity int

	mu             sync.Mutex
	definitions    map[int64]*ast.Definition
	instances      map[int64]*instance.Instance
	nextDefHandle  int64
	nextInstHandle int64
}

// Option configures a Host constructed by New.
type Option func(*Host)

// WithRegistry installs a pre-populated callback registry instead of the
// default empty one.
func WithRegistry(reg *registry.Registry) Option {
	return func(h *Host) { h.Reg = reg }
}

// WithScheduler wires a job scheduler into the tick Services (for
// async-sleep-style actions) and into DumpSchedulerStats. A VLA service passed
// to WithVLA keeps the scheduler it was constructed with.
func WithScheduler(sched scheduler.Scheduler) Option {
	return func(h *Host) { h.Services.Scheduler = sched }
}

// WithPlanner wires a planner service so plan-action leaves can run.
func WithPlanner(p *planner.Service) Option {
	return func(h *Host) { h.Services.Planner = p }
}

// WithVLA wires a VLA service so vla-request/vla-wait/vla-cancel leaves can
// run.
func WithVLA(v *vla.Service) Option {
	return func(h *Host) { h.Services.VLA = v }
}

// WithLogCapacity overrides the host's memory log sink capacity, default
// 4096 records.
func WithLogCapacity(capacity int) Option {
	return func(h *Host) {
		h.Logs = obs.NewMemoryLogSink(capacity)
		h.Services.Logger = h.Logs
	}
}

// WithTraceBuffer overrides every instance's trace buffer with a single
// host-wide one, the way a multi-tree deployment shares one trace stream.
func WithTraceBuffer(tb *obs.TraceBuffer) Option {
	return func(h *Host) { h.Services.Trace = tb }
}

// WithTraceCapacity sets the ring buffer capacity instances created by
// CreateInstance get when no host-wide trace buffer is configured. Defaults
// to 4096.
func WithTraceCapacity(capacity int) Option {
	return func(h *Host) { h.traceCapacity = capacity }
}

// New constructs a Host. Missing Scheduler/Planner/VLA are left nil rather
// than defaulted to no-ops — a Host with none wired is still usable for
// tick/dump/debug purposes, just not for running plan-action/vla-* leaves.
// Registry defaults to a fresh empty one, and the memory log sink defaults
// to 4096 records, matching the runtime host's fixed defaults.
func New(opts ...Option) *Host {
	h := &Host{
		Reg:           registry.New(),
		Services:      &interpreter.Services{},
		traceCapacity: 4096,
		definitions:   make(map[int64]*ast.Definition),
		instances:     make(map[int64]*instance.Instance),
	}
	h.Logs = obs.NewMemoryLogSink(defaultLogCapacity)
	h.Services.Logger = h.Logs
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Compile parses a script form into a tree definition, stores it, and
// returns its definition handle — the Go equivalent of the script-facing
// bt.compile builtin.
func (h *Host) Compile(form script.Value) (int64, error) {
	def, err := compiler.Compile(form)
	if err != nil {
		return 0, err
	}
	return h.StoreDefinition(def), nil
}

// LoadDSL reads a script file from path and compiles it into a tree
// definition, the Go equivalent of the script-facing bt.load-dsl builtin.
func (h *Host) LoadDSL(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, bterrors.NewWithCause(bterrors.KindHost, "bt.load-dsl: failed to open file: "+path, err)
	}
	form, err := script.Read(string(data))
	if err != nil {
		return 0, bterrors.NewWithCause(bterrors.KindHost, "bt.load-dsl: failed to parse: "+path, err)
	}
	def, err := compiler.Compile(form)
	if err != nil {
		return 0, err
	}
	return h.StoreDefinition(def), nil
}

// StoreDefinition installs def under a freshly issued definition handle.
func (h *Host) StoreDefinition(def *ast.Definition) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextDefHandle++
	handle := h.nextDefHandle
	h.definitions[handle] = def
	return handle
}

// FindDefinition looks up a definition by handle.
func (h *Host) FindDefinition(handle int64) (*ast.Definition, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	def, ok := h.definitions[handle]
	return def, ok
}

// FindInstance looks up a running instance by handle.
func (h *Host) FindInstance(handle int64) (*instance.Instance, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	inst, ok := h.instances[handle]
	return inst, ok
}

// CreateInstance validates defHandle, creates a fresh runtime instance for
// it (tick index zero, empty memory and blackboard, default 20ms tick
// budget), stores it under a new instance handle, and returns that handle.
func (h *Host) CreateInstance(defHandle int64) (int64, error) {
	def, ok := h.FindDefinition(defHandle)
	if !ok {
		return 0, bterrors.Errorf(bterrors.KindHost, "create_instance: unknown definition handle %d", defHandle)
	}

	h.mu.Lock()
	h.nextInstHandle++
	handle := h.nextInstHandle
	h.mu.Unlock()

	inst := instance.NewWithTraceCapacity(def, handle, h.traceCapacity)
	if err := interpreter.SetTickBudgetMs(inst, defaultTickBudgetMs); err != nil {
		return 0, err
	}

	h.mu.Lock()
	h.instances[handle] = inst
	h.mu.Unlock()
	return handle, nil
}

// TickInstance advances the instance identified by handle by one tick.
func (h *Host) TickInstance(handle int64) (status.Status, error) {
	inst, ok := h.FindInstance(handle)
	if !ok {
		return status.Failure, bterrors.Errorf(bterrors.KindHost, "tick_instance: unknown instance handle %d", handle)
	}
	return interpreter.Tick(inst, h.Reg, h.Services)
}

// ResetInstance clears the instance identified by handle's per-tick memory
// and blackboard state, keeping accumulated profiling and trace history.
func (h *Host) ResetInstance(handle int64) error {
	inst, ok := h.FindInstance(handle)
	if !ok {
		return bterrors.Errorf(bterrors.KindHost, "reset_instance: unknown instance handle %d", handle)
	}
	interpreter.Reset(inst)
	return nil
}

// SetTickBudgetMs sets the instance identified by handle's tick duration
// budget used to flag overruns. A negative budget is rejected as a host
// error rather than a panic, matching a negative value's status as
// recoverable host-configuration misuse, not a programmer bug.
func (h *Host) SetTickBudgetMs(handle int64, budgetMs int64) error {
	inst, ok := h.FindInstance(handle)
	if !ok {
		return bterrors.Errorf(bterrors.KindHost, "set_tick_budget_ms: unknown instance handle %d", handle)
	}
	return interpreter.SetTickBudgetMs(inst, budgetMs)
}

// DumpInstanceStats renders the instance identified by handle's accumulated
// tick/node profiling counters.
func (h *Host) DumpInstanceStats(handle int64) (string, error) {
	inst, ok := h.FindInstance(handle)
	if !ok {
		return "", bterrors.Errorf(bterrors.KindHost, "dump_instance_stats: unknown instance handle %d", handle)
	}
	return interpreter.DumpStats(inst), nil
}

// DumpInstanceTrace renders the instance identified by handle's trace
// buffer.
func (h *Host) DumpInstanceTrace(handle int64) (string, error) {
	inst, ok := h.FindInstance(handle)
	if !ok {
		return "", bterrors.Errorf(bterrors.KindHost, "dump_instance_trace: unknown instance handle %d", handle)
	}
	return interpreter.DumpTrace(inst), nil
}

// DumpInstanceBlackboard renders the instance identified by handle's
// blackboard snapshot.
func (h *Host) DumpInstanceBlackboard(handle int64) (string, error) {
	inst, ok := h.FindInstance(handle)
	if !ok {
		return "", bterrors.Errorf(bterrors.KindHost, "dump_instance_blackboard: unknown instance handle %d", handle)
	}
	return interpreter.DumpBlackboard(inst), nil
}

// DumpSchedulerStats renders the wired scheduler's lifecycle counters, or
// an all-zero report if no scheduler is wired.
func (h *Host) DumpSchedulerStats() string {
	return interpreter.DumpSchedulerStats(h.Services.Scheduler)
}

// DumpLogs renders the host's memory log sink, oldest record first.
func (h *Host) DumpLogs() string {
	return interpreter.DumpLogs(h.Logs)
}

// ClearLogs empties the host's memory log sink without resetting its
// sequence counter.
func (h *Host) ClearLogs() {
	if h.Logs != nil {
		h.Logs.Clear()
	}
}

// ClearAll discards every stored definition and instance and clears the
// log sink (registry and wired services untouched). The handle counters are
// not reset, so a handle issued before ClearAll is never issued again.
func (h *Host) ClearAll() {
	h.mu.Lock()
	h.definitions = make(map[int64]*ast.Definition)
	h.instances = make(map[int64]*instance.Instance)
	h.mu.Unlock()
	h.ClearLogs()
}

var (
	defaultMu   sync.RWMutex
	defaultHost *Host
)

// Default returns the process-wide default Host, initializing it lazily on
// first call if none has been set via SetDefault.
func Default() *Host {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultHost == nil {
		defaultHost = New()
	}
	return defaultHost
}

// SetDefault installs h as the process-wide default Host.
func SetDefault(h *Host) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultHost = h
}
