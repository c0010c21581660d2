package vla

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// MessagesClient captures the subset of the Anthropic SDK used by
// AnthropicBackend, so tests can substitute a fake in place of a real
// *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicBackend implements Backend by asking a Claude model to propose a
// structured action from a text description of the observation and action
// space. Requests carry no image bytes (Observation.Image/Blob are handle
// references into Service's own metadata-only registry, not pixel data), so
// every call is language-conditioned: the instruction, the numeric state
// vector, and the action space bounds are serialized into the prompt and the
// model is told to reply with exactly one JSON action object, which is then
// validated against a schema derived from the request's ActionSpace before
// being accepted.
type AnthropicBackend struct {
	msg   MessagesClient
	model string
}

// NewAnthropicBackend wraps msg as a Backend using model for every call.
func NewAnthropicBackend(msg MessagesClient, model string) *AnthropicBackend {
	return &AnthropicBackend{msg: msg, model: model}
}

// NewAnthropicBackendFromAPIKey constructs an AnthropicBackend from a raw
// API key using the SDK's default HTTP client.
func NewAnthropicBackendFromAPIKey(apiKey, model string) *AnthropicBackend {
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicBackend(&c.Messages, model)
}

func (b *AnthropicBackend) Infer(req Request, onPartial func(Partial) bool, cancelFlag *atomic.Bool) Response {
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

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: 1024,
		System: []sdk.TextBlockParam{
			{Text: "You control a robot policy. Reply with exactly one JSON object matching the given action schema and nothing else."},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(promptFor(req, schemaBytes))),
		},
	}

	onPartial(Partial{Sequence: 1, TextChunk: "dispatching to model", Confidence: 0.1})
	if cancelFlag.Load() {
		return Response{Status: StatusCancelled, Model: req.Model, Explanation: "cancelled before dispatch"}
	}

	msg, err := b.msg.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return Response{
				Status: StatusTimeout, Model: req.Model, Explanation: "deadline exceeded",
				Stats: map[string]float64{"latency_ms": elapsedMs(started, time.Now())},
			}
		}
		return errorResponse(modelID, fmt.Sprintf("anthropic messages.new: %v", err))
	}

	action, explanation, err := decodeAction(msg, schema)
	if err != nil {
		return Response{
			Status: StatusInvalid, Model: req.Model, Explanation: err.Error(),
			Stats: map[string]float64{"latency_ms": elapsedMs(started, time.Now())},
		}
	}

	onPartial(Partial{Sequence: 2, TextChunk: "decoded action", ActionCandidate: &action, Confidence: 0.9})

	return Response{
		Status:      StatusOK,
		Model:       ModelInfo{Name: modelID, Version: string(msg.Model)},
		Action:      action,
		Confidence:  0.9,
		Explanation: explanation,
		Stats: map[string]float64{
			"latency_ms":    elapsedMs(started, time.Now()),
			"input_tokens":  float64(msg.Usage.InputTokens),
			"output_tokens": float64(msg.Usage.OutputTokens),
		},
	}
}

func errorResponse(modelID, explanation string) Response {
	return Response{Status: StatusError, Model: ModelInfo{Name: modelID}, Explanation: explanation}
}

// promptFor renders the request as a compact textual scene description: the
// instruction, the flattened state vector, and the action schema the model
// must honor.
func promptFor(req Request, schemaBytes []byte) string {
	return fmt.Sprintf(
		"Task: %s\nInstruction: %s\nState: %v\nDeadline (ms): %d\nAction schema:\n%s\n\nRespond with only the JSON action object.",
		req.TaskID, req.Instruction, req.Observation.State, req.DeadlineMs, string(schemaBytes),
	)
}

// actionJSONSchema builds a JSON schema describing a continuous action
// vector of ActionSpace.Dims entries and compiles it so decodeAction can
// validate a model's response before it is trusted as a control output. When
// ActionSpace.Bounds holds exactly one entry, that entry bounds every
// element; with any other number of Bounds entries the schema sets no
// per-element bounds.
func actionJSONSchema(space ActionSpace) (*jsonschema.Schema, []byte, error) {
	items := map[string]any{"type": "number"}
	if len(space.Bounds) == 1 {
		items["minimum"] = space.Bounds[0].Lo
		items["maximum"] = space.Bounds[0].Hi
	}
	doc := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"u": map[string]any{
				"type":     "array",
				"items":    items,
				"minItems": space.Dims,
				"maxItems": space.Dims,
			},
		},
		"required": []string{"u"},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, err
	}
	var schemaDoc any
	if err := json.Unmarshal(raw, &schemaDoc); err != nil {
		return nil, nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("vla-action.json", schemaDoc); err != nil {
		return nil, nil, err
	}
	schema, err := c.Compile("vla-action.json")
	if err != nil {
		return nil, nil, err
	}
	return schema, raw, nil
}

// decodeAction extracts the first text block of msg, parses it as JSON, and
// validates it against schema before converting it into an Action.
func decodeAction(msg *sdk.Message, schema *jsonschema.Schema) (Action, string, error) {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return Action{}, "", fmt.Errorf("anthropic response contained no text block")
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
