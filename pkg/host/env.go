// Package host assembles a compiled tree, its runtime instance, and its
// collaborating services into one facade a caller can tick in a loop. This
// file defines EnvAdapter, the seam through which an external simulator or
// robot (never implemented here — see EnvAdapter below) is driven by
// RunLoop, and the blackboard conventions RunLoop uses to ferry observations
// in and actions out.
package host

import (
	"context"
	"strings"
	"time"

	"github.com/unswei/muesli-bt/pkg/bt/blackboard"
	"github.com/unswei/muesli-bt/pkg/bt/bterrors"
)

// EnvAdapter is the contract an external environment backend (a simulator,
// a physical robot) implements so RunLoop can drive a tree against it. No
// concrete adapter ships in this module — webots/pybullet-style backends
// stay external collaborators; only the loop driver that exercises them is
// shared, reusable code.
type EnvAdapter interface {
	// Info returns static backend metadata (name, version, capabilities).
	Info() map[string]string

	// Attach binds the adapter to a named resource (a robot, a scene).
	Attach(name string) error

	// Configure applies backend-specific settings before the first Reset.
	Configure(cfg map[string]blackboard.Value) error

	// Reset restarts the episode, optionally from a deterministic seed, and
	// returns the initial observation.
	Reset(seed *int64) (map[string]blackboard.Value, error)

	// Observe returns the current observation map. Per the observation
	// contract, callers can expect at least "obs_schema" (string) and
	// "t_ms" (int) to be present.
	Observe() (map[string]blackboard.Value, error)

	// Act applies an action map to the backend.
	Act(action map[string]blackboard.Value) error

	// Step advances simulation/robot time by one step and reports whether
	// the episode has reached a terminal state.
	Step() (done bool, err error)

	// DebugDraw forwards a debug visualization payload to the backend.
	// Backends without visualization support may no-op.
	DebugDraw(payload map[string]blackboard.Value) error
}

// RunLoopOptions configures RunLoop.
type RunLoopOptions struct {
	// Period is the interval between steps. Defaults to 100ms if zero.
	Period time.Duration
	// ActionKey is the blackboard key prefix a tree writes its action
	// under (e.g. leaves write "action.u.0", "action.u.1", ...). Defaults
	// to "action".
	ActionKey string
	// ObsPrefix is the blackboard key prefix observations are written
	// under (e.g. "obs.obs_schema", "obs.t_ms"). Defaults to "obs".
	ObsPrefix string
	// StopOnDone ends the loop once the environment (via Step's return or
	// an observation's "done" field) reports the episode is finished.
	StopOnDone bool
	// MaxSteps bounds the number of steps taken; zero means unbounded.
	MaxSteps int
}

// RunLoop ticks the instance identified by instHandle once per environment
// step: it writes env's current observation onto the blackboard under
// ObsPrefix-namespaced keys, ticks the tree, reads back whatever action the
// tree wrote under ActionKey-namespaced keys, applies it via env.Act, and
// steps env forward. It stops on context cancellation, a backend error,
// reaching MaxSteps, or (when StopOnDone is set) a terminal step.
func RunLoop(ctx context.Context, h *Host, instHandle int64, env EnvAdapter, opts RunLoopOptions) error {
	inst, ok := h.FindInstance(instHandle)
	if !ok {
		return bterrors.Errorf(bterrors.KindHost, "run_loop: unknown instance handle %d", instHandle)
	}

	period := opts.Period
	if period <= 0 {
		period = 100 * time.Millisecond
	}
	actionKey := opts.ActionKey
	if actionKey == "" {
		actionKey = "action"
	}
	obsPrefix := opts.ObsPrefix
	if obsPrefix == "" {
		obsPrefix = "obs"
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	steps := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			obs, err := env.Observe()
			if err != nil {
				return err
			}
			writeBlackboardMap(inst.BB, inst.TickIndex, obsPrefix, obs)

			if _, err := h.TickInstance(instHandle); err != nil {
				return err
			}

			action := readBlackboardMap(inst.BB, actionKey)
			if err := env.Act(action); err != nil {
				return err
			}

			done, err := env.Step()
			if err != nil {
				return err
			}
			if v, ok := obs["done"]; ok && v.Kind == blackboard.ValueBool && v.B {
				done = true
			}

			steps++
			if opts.StopOnDone && done {
				return nil
			}
			if opts.MaxSteps > 0 && steps >= opts.MaxSteps {
				return nil
			}
		}
	}
}

// writeBlackboardMap flattens a scalar-valued observation map onto bb under
// "<prefix>.<key>" entries, attributed to a synthetic "env" writer since it
// happens outside any node's tick.
func writeBlackboardMap(bb *blackboard.Blackboard, tick uint64, prefix string, values map[string]blackboard.Value) {
	now := time.Now()
	for k, v := range values {
		bb.Put(prefix+"."+k, v, tick, now, 0, "env")
	}
}

// readBlackboardMap collects every blackboard entry under "<prefix>." back
// into a map keyed by the suffix after the prefix, mirroring the flat
// scalar encoding the plan-action/vla-* leaves already use for composite
// payloads (the blackboard itself has no composite value kind).
func readBlackboardMap(bb *blackboard.Blackboard, prefix string) map[string]blackboard.Value {
	out := make(map[string]blackboard.Value)
	want := prefix + "."
	for _, e := range bb.Snapshot() {
		if rest, ok := strings.CutPrefix(e.Key, want); ok {
			out[rest] = e.Entry.Value
		}
	}
	return out
}
