package vla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client
// BedrockBackend depends on, matched by *bedrockruntime.Client so tests can
// substitute a fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockBackend implements Backend via the AWS Bedrock Converse API,
// following the same language-conditioned structured-action protocol as
// AnthropicBackend: the instruction, state vector, and action schema are
// serialized into one user turn and the model's single text reply is parsed
// and validated against the same action schema before being trusted.
type BedrockBackend struct {
	rt    RuntimeClient
	model string
}

// NewBedrockBackend wraps rt as a Backend using model for every call.
func NewBedrockBackend(rt RuntimeClient, model string) *BedrockBackend {
	return &BedrockBackend{rt: rt, model: model}
}

func (b *BedrockBackend) Infer(req Request, onPartial func(Partial) bool, cancelFlag *atomic.Bool) Response {
	started := time.Now()
	modelID := req.Model.Name
	if modelID == "" {
		modelID = b.model
	}

	schema, schemaBytes, err := actionJSONSchema(req.ActionSpace)
	if err != nil {
		return errorResponse(modelID, fmt.Sprintf("build action schema: %v", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(req.DeadlineMs)*time.Millisecond)
	defer cancel()

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		System: []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: "You control a robot policy. Reply with exactly one JSON object matching the given action schema and nothing else."},
		},
		Messages: []brtypes.Message{
			{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: promptFor(req, schemaBytes)},
				},
			},
		},
	}

	onPartial(Partial{Sequence: 1, TextChunk: "dispatching to model", Confidence: 0.1})
	if cancelFlag.Load() {
		return Response{Status: StatusCancelled, Model: req.Model, Explanation: "cancelled before dispatch"}
	}

	out, err := b.rt.Converse(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return Response{
				Status: StatusTimeout, Model: req.Model, Explanation: "deadline exceeded",
				Stats: map[string]float64{"latency_ms": elapsedMs(started, time.Now())},
			}
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return errorResponse(modelID, fmt.Sprintf("bedrock converse: %s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage()))
		}
		return errorResponse(modelID, fmt.Sprintf("bedrock converse: %v", err))
	}

	action, explanation, err := decodeBedrockAction(out, schema)
	if err != nil {
		return Response{
			Status: StatusInvalid, Model: req.Model, Explanation: err.Error(),
			Stats: map[string]float64{"latency_ms": elapsedMs(started, time.Now())},
		}
	}

	onPartial(Partial{Sequence: 2, TextChunk: "decoded action", ActionCandidate: &action, Confidence: 0.9})

	stats := map[string]float64{"latency_ms": elapsedMs(started, time.Now())}
	if out.Usage != nil {
		stats["input_tokens"] = float64(aws.ToInt32(out.Usage.InputTokens))
		stats["output_tokens"] = float64(aws.ToInt32(out.Usage.OutputTokens))
	}

	return Response{
		Status:      StatusOK,
		Model:       ModelInfo{Name: modelID},
		Action:      action,
		Confidence:  0.9,
		Explanation: explanation,
		Stats:       stats,
	}
}

func decodeBedrockAction(out *bedrockruntime.ConverseOutput, schema interface {
	Validate(any) error
}) (Action, string, error) {
	if out == nil {
		return Action{}, "", fmt.Errorf("bedrock response is nil")
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return Action{}, "", fmt.Errorf("bedrock response contained no message")
	}
	var text string
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*brtypes.ContentBlockMemberText); ok && tb.Value != "" {
			text = tb.Value
			break
		}
	}
	if text == "" {
		return Action{}, "", fmt.Errorf("bedrock response contained no text block")
	}

	var payload any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return Action{}, "", fmt.Errorf("model response is not valid JSON: %w", err)
	}
	if err := schema.Validate(payload); err != nil {
		return Action{}, "", fmt.Errorf("model response failed action schema validation: %w", err)
	}

	var decoded struct {
		U []float64 `json:"u"`
	}
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return Action{}, "", fmt.Errorf("decode validated action: %w", err)
	}
	return Action{Type: ActionContinuous, U: decoded.U}, text, nil
}
