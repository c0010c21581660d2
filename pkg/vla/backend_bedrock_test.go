package vla

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type stubRuntimeClient struct {
	lastInput *bedrockruntime.ConverseInput
	out       *bedrockruntime.ConverseOutput
	err       error
}

func (s *stubRuntimeClient) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.lastInput = params
	return s.out, s.err
}

func TestBedrockBackendDecodesValidAction(t *testing.T) {
	in, out := int32(12), int32(4)
	stub := &stubRuntimeClient{
		out: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{
				Value: brtypes.Message{
					Role: brtypes.ConversationRoleAssistant,
					Content: []brtypes.ContentBlock{
						&brtypes.ContentBlockMemberText{Value: `{"u":[0.1,0.2]}`},
					},
				},
			},
			Usage: &brtypes.TokenUsage{InputTokens: &in, OutputTokens: &out},
		},
	}
	backend := NewBedrockBackend(stub, "anthropic.claude-test-model")

	var cancelFlag atomic.Bool
	resp := backend.Infer(sampleActionRequest(), func(Partial) bool { return true }, &cancelFlag)

	require.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, []float64{0.1, 0.2}, resp.Action.U)
	assert.Equal(t, float64(12), resp.Stats["input_tokens"])
	require.NotNil(t, stub.lastInput)
	assert.Equal(t, "anthropic.claude-test-model", aws.ToString(stub.lastInput.ModelId))
}

func TestBedrockBackendRejectsOutOfSchemaAction(t *testing.T) {
	stub := &stubRuntimeClient{
		out: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{
				Value: brtypes.Message{
					Content: []brtypes.ContentBlock{
						&brtypes.ContentBlockMemberText{Value: `{"u":[5.0,0.2]}`},
					},
				},
			},
		},
	}
	backend := NewBedrockBackend(stub, "anthropic.claude-test-model")

	var cancelFlag atomic.Bool
	resp := backend.Infer(sampleActionRequest(), func(Partial) bool { return true }, &cancelFlag)

	assert.Equal(t, StatusInvalid, resp.Status)
	assert.Contains(t, resp.Explanation, "schema validation")
}

func TestBedrockBackendSurfacesTransportError(t *testing.T) {
	stub := &stubRuntimeClient{err: assert.AnError}
	backend := NewBedrockBackend(stub, "anthropic.claude-test-model")

	var cancelFlag atomic.Bool
	resp := backend.Infer(sampleActionRequest(), func(Partial) bool { return true }, &cancelFlag)

	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Explanation, "bedrock converse")
}
