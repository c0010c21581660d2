package vla

import (
	"sync/atomic"
	"time"
)

// Backend performs one inference call. onPartial is invoked for each
// streamed decode step; if it returns false the caller has asked to cancel
// and the backend should set cancelFlag and wind down. cancelFlag may also
// be set externally (Service.Cancel), so a well-behaved backend checks it
// between steps regardless of onPartial's return value.
type Backend interface {
	Infer(req Request, onPartial func(Partial) bool, cancelFlag *atomic.Bool) Response
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func makeContinuousAction(u []float64) Action {
	out := make([]float64, len(u))
	copy(out, u)
	return Action{Type: ActionContinuous, U: out}
}

// RT2StubBackend is a deterministic stand-in for a real rt2-class
// vision-language-action model: it proposes a zero action, biases it toward
// the observation over three decode steps, and streams a partial after
// each step.
type RT2StubBackend struct{}

func (RT2StubBackend) Infer(req Request, onPartial func(Partial) bool, cancelFlag *atomic.Bool) Response {
	started := time.Now()
	dims := int(req.ActionSpace.Dims)
	proposal := make([]float64, dims)

	emitPartial := func(seq uint64, text string, confidence float64) {
		cand := makeContinuousAction(proposal)
		part := Partial{
			Sequence:        seq,
			TextChunk:       text,
			ActionCandidate: &cand,
			Confidence:      confidence,
		}
		if !onPartial(part) {
			cancelFlag.Store(true)
		}
	}

	for i := uint64(0); i < 3; i++ {
		if cancelFlag.Load() {
			return Response{
				Status:      StatusCancelled,
				Model:       req.Model,
				Explanation: "cancelled before completion",
				Stats:       map[string]float64{"latency_ms": elapsedMs(started, time.Now())},
			}
		}

		switch i {
		case 0:
			for d := range proposal {
				proposal[d] = 0.0
			}
			emitPartial(1, "encode observation", 0.20)
		case 1:
			state := req.Observation.State
			for d := 0; d < dims; d++ {
				switch {
				case len(state) == 0:
					proposal[d] = 0.0
				case dims == 1:
					proposal[0] = clampFloat(1.0-state[0], -1.0, 1.0)
				case len(state) >= 4 && d < 2:
					proposal[d] = clampFloat(state[2+d], -0.35, 0.35)
				default:
					proposal[d] = clampFloat(state[d], -1.0, 1.0)
				}
			}
			emitPartial(2, "decode action prior", 0.55)
		default:
			for d := range proposal {
				proposal[d] *= 0.9
			}
			emitPartial(3, "finalize structured action", 0.75)
		}

		time.Sleep(time.Millisecond)
		elapsed := elapsedMs(started, time.Now())
		if elapsed > float64(req.DeadlineMs) {
			return Response{
				Status:      StatusTimeout,
				Model:       req.Model,
				Action:      makeContinuousAction(proposal),
				Confidence:  0.0,
				Explanation: "deadline exceeded",
				Stats:       map[string]float64{"latency_ms": elapsed, "partials": float64(i + 1)},
			}
		}
	}

	return Response{
		Status:      StatusOK,
		Model:       req.Model,
		Action:      makeContinuousAction(proposal),
		Confidence:  0.75,
		Explanation: "rt2-style stub output",
		Stats:       map[string]float64{"latency_ms": elapsedMs(started, time.Now()), "partials": 3.0},
	}
}

// ReplayBackend returns a previously recorded response for a matching
// request hash, or an error response on a replay miss. lookup is typically
// Service's replay store.
type ReplayBackend struct {
	lookup func(hash uint64) (Response, bool)
}

// NewReplayBackend wraps lookup as a Backend.
func NewReplayBackend(lookup func(hash uint64) (Response, bool)) *ReplayBackend {
	return &ReplayBackend{lookup: lookup}
}

func (b *ReplayBackend) Infer(req Request, _ func(Partial) bool, _ *atomic.Bool) Response {
	hash := HashRequest(req)
	if resp, ok := b.lookup(hash); ok {
		return resp
	}
	return Response{Status: StatusError, Model: req.Model, Explanation: "replay miss"}
}

func elapsedMs(start, end time.Time) float64 {
	return float64(end.Sub(start).Microseconds()) / 1000.0
}
