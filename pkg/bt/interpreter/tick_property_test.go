package interpreter

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
	"github.com/unswei/muesli-bt/pkg/bt/instance"
	"github.com/unswei/muesli-bt/pkg/bt/registry"
	"github.com/unswei/muesli-bt/pkg/bt/script"
	"github.com/unswei/muesli-bt/pkg/bt/status"
)

// TestRepeatReturnsRunningUntilBoundThenSuccessProperty verifies the
// quantified repeat(N) invariant: for any N, a repeat(N) wrapping an
// always-success child returns running for the first N-1 ticks and success
// on tick N, with mem.i0 landing on the number of completed child successes.
// TestTickRepeatCountsSuccessesUntilBound fixes N=3; this generalizes it.
func TestRepeatReturnsRunningUntilBoundThenSuccessProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("repeat(N) runs N-1 times then succeeds", prop.ForAll(
		func(n int64) bool {
			reg := registry.New()
			reg.RegisterCondition("ok", func(registry.TickContext, []script.Value) (bool, error) { return true, nil })

			def := defOf(
				ast.Node{ID: 0, Kind: ast.Repeat, Children: []ast.NodeID{1}, IntParam: n},
				ast.Node{ID: 1, Kind: ast.Cond, LeafName: "ok"},
			)
			inst := instance.New(def, 1)

			for i := int64(0); i < n-1; i++ {
				st, err := Tick(inst, reg, &Services{})
				if err != nil || st != status.Running {
					return false
				}
			}

			st, err := Tick(inst, reg, &Services{})
			if err != nil || st != status.Success {
				return false
			}

			mem := inst.MemoryFor(0)
			return mem.I0 == n
		},
		gen.Int64Range(0, 8),
	))

	properties.TestingRun(t)
}

// TestRetryReturnsRunningUntilBoundThenFailureProperty verifies the
// quantified retry(N) invariant: for any N, a retry(N) wrapping an
// always-failure child returns running for N ticks and failure on tick N+1.
// TestTickRetryGivesUpAfterBound fixes N=2; this generalizes it.
func TestRetryReturnsRunningUntilBoundThenFailureProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("retry(N) runs N times then fails", prop.ForAll(
		func(n int64) bool {
			reg := registry.New()
			reg.RegisterCondition("no", func(registry.TickContext, []script.Value) (bool, error) { return false, nil })

			def := defOf(
				ast.Node{ID: 0, Kind: ast.Retry, Children: []ast.NodeID{1}, IntParam: n},
				ast.Node{ID: 1, Kind: ast.Cond, LeafName: "no"},
			)
			inst := instance.New(def, 1)

			for i := int64(0); i < n; i++ {
				st, err := Tick(inst, reg, &Services{})
				if err != nil || st != status.Running {
					return false
				}
			}

			st, err := Tick(inst, reg, &Services{})
			return err == nil && st == status.Failure
		},
		gen.Int64Range(0, 8),
	))

	properties.TestingRun(t)
}

// TestTickIndexStrictlyIncreasesByOneProperty verifies that for any number
// of ticks, Instance.TickIndex increases by exactly 1 per call to Tick,
// starting from 1.
func TestTickIndexStrictlyIncreasesByOneProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("tick_index increases by 1 each tick", prop.ForAll(
		func(ticks int) bool {
			reg := registry.New()
			reg.RegisterCondition("ok", func(registry.TickContext, []script.Value) (bool, error) { return true, nil })
			def := defOf(ast.Node{ID: 0, Kind: ast.Cond, LeafName: "ok"})
			inst := instance.New(def, 1)

			var prev uint64
			for i := 0; i < ticks; i++ {
				if _, err := Tick(inst, reg, &Services{}); err != nil {
					return false
				}
				if inst.TickIndex != prev+1 {
					return false
				}
				prev = inst.TickIndex
			}
			return true
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
