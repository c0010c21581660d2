package vla

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func sampleActionRequest() Request {
	return Request{
		TaskID:      "reach-target",
		Instruction: "move toward the target",
		Observation: Observation{State: []float64{0.5, -0.25}},
		ActionSpace: ActionSpace{Type: "continuous", Dims: 2, Bounds: []Bound{{Lo: -1, Hi: 1}}},
		DeadlineMs:  2000,
		Model:       ModelInfo{Name: "claude-test-model"},
	}
}

func TestAnthropicBackendDecodesValidAction(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{{Type: "text", Text: `{"u":[0.5,-0.25]}`}},
			Model:   "claude-test-model-v1",
		},
	}
	backend := NewAnthropicBackend(stub, "claude-test-model")

	var partials []Partial
	var cancelFlag atomic.Bool
	resp := backend.Infer(sampleActionRequest(), func(p Partial) bool {
		partials = append(partials, p)
		return true
	}, &cancelFlag)

	require.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, []float64{0.5, -0.25}, resp.Action.U)
	assert.Equal(t, ActionContinuous, resp.Action.Type)
	assert.NotEmpty(t, partials)
	assert.Equal(t, "claude-test-model", string(stub.lastParams.Model))
}

func TestAnthropicBackendRejectsOutOfSchemaAction(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{{Type: "text", Text: `{"u":[5.0,-0.25]}`}},
		},
	}
	backend := NewAnthropicBackend(stub, "claude-test-model")

	var cancelFlag atomic.Bool
	resp := backend.Infer(sampleActionRequest(), func(Partial) bool { return true }, &cancelFlag)

	assert.Equal(t, StatusInvalid, resp.Status)
	assert.Contains(t, resp.Explanation, "schema validation")
}

func TestAnthropicBackendSurfacesTransportError(t *testing.T) {
	stub := &stubMessagesClient{err: assert.AnError}
	backend := NewAnthropicBackend(stub, "claude-test-model")

	var cancelFlag atomic.Bool
	resp := backend.Infer(sampleActionRequest(), func(Partial) bool { return true }, &cancelFlag)

	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Explanation, "messages.new")
}
