package vla

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRT2StubBackendProducesAction(t *testing.T) {
	req := baseRequest()
	var cancelFlag atomic.Bool
	var partials []Partial

	resp := RT2StubBackend{}.Infer(req, func(p Partial) bool {
		partials = append(partials, p)
		return true
	}, &cancelFlag)

	require.Equal(t, StatusOK, resp.Status)
	assert.Len(t, resp.Action.U, 1)
	assert.Len(t, partials, 3)
}

func TestRT2StubBackendHonorsPartialCancellation(t *testing.T) {
	req := baseRequest()
	var cancelFlag atomic.Bool
	calls := 0

	resp := RT2StubBackend{}.Infer(req, func(Partial) bool {
		calls++
		return calls < 2
	}, &cancelFlag)

	assert.Equal(t, StatusCancelled, resp.Status)
}

func TestReplayBackendMissReturnsError(t *testing.T) {
	req := baseRequest()
	backend := NewReplayBackend(func(uint64) (Response, bool) { return Response{}, false })
	var cancelFlag atomic.Bool

	resp := backend.Infer(req, func(Partial) bool { return true }, &cancelFlag)
	assert.Equal(t, StatusError, resp.Status)
}

func TestReplayBackendHitReturnsStoredResponse(t *testing.T) {
	req := baseRequest()
	stored := Response{Status: StatusOK, Confidence: 0.9}
	backend := NewReplayBackend(func(hash uint64) (Response, bool) {
		if hash == HashRequest(req) {
			return stored, true
		}
		return Response{}, false
	})
	var cancelFlag atomic.Bool

	resp := backend.Infer(req, func(Partial) bool { return true }, &cancelFlag)
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, 0.9, resp.Confidence)
}
