// Package vla implements a vision-language-action inference service: a
// capability registry, request-hashed caching with owner-based supersession,
// streaming partial results, a deadline watchdog, and pluggable backends
// dispatched through a scheduler.Scheduler worker pool.
package vla

import "encoding/json"

// ImageHandle references an image registered with a Service.
type ImageHandle struct{ ID int64 }

// BlobHandle references an opaque binary blob registered with a Service.
type BlobHandle struct{ ID int64 }

// ImageInfo is the metadata recorded for a registered image.
type ImageInfo struct {
	ID          int64
	Width       int64
	Height      int64
	Channels    int64
	Encoding    string
	TimestampMs int64
	FrameID     string
}

// BlobInfo is the metadata recorded for a registered blob.
type BlobInfo struct {
	ID          int64
	SizeBytes   int64
	MimeType    string
	TimestampMs int64
	Tag         string
}

// CapabilityField describes one field of a capability's request or response
// schema.
type CapabilityField struct {
	Name     string
	Type     string
	Required bool
}

// CapabilityDescriptor documents one VLA capability's schema and policy
// classification.
type CapabilityDescriptor struct {
	Name           string
	RequestSchema  []CapabilityField
	ResponseSchema []CapabilityField
	SafetyClass    string
	CostCategory   string
}

// ActionType distinguishes the shape of a vla_action payload.
type ActionType uint8

const (
	ActionContinuous ActionType = iota
	ActionDiscrete
	ActionSequence
)

var actionTypeNames = map[ActionType]string{
	ActionContinuous: "continuous",
	ActionDiscrete:   "discrete",
	ActionSequence:   "sequence",
}

// String renders the action type name used in JSON records.
func (t ActionType) String() string {
	if n, ok := actionTypeNames[t]; ok {
		return n
	}
	return "continuous"
}

// Action is a VLA-proposed action: continuous control values, a discrete
// token id, or a sequence of sub-actions.
type Action struct {
	Type       ActionType
	U          []float64
	DiscreteID string
	Steps      []Action
}

// MarshalJSON renders an Action the way the ported record_to_json emits it:
// only the fields relevant to Type are included.
func (a Action) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": a.Type.String()}
	switch a.Type {
	case ActionDiscrete:
		out["id"] = a.DiscreteID
	case ActionSequence:
		out["steps"] = a.Steps
	default:
		u := a.U
		if u == nil {
			u = []float64{}
		}
		out["u"] = u
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses an Action from the representation MarshalJSON
// produces, the inverse a cache round-trip (see redisCache) depends on.
func (a *Action) UnmarshalJSON(data []byte) error {
	var in struct {
		Type  string    `json:"type"`
		U     []float64 `json:"u"`
		ID    string    `json:"id"`
		Steps []Action  `json:"steps"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	a.Type = parseActionType(in.Type)
	a.U = in.U
	a.DiscreteID = in.ID
	a.Steps = in.Steps
	return nil
}

func parseActionType(name string) ActionType {
	for t, n := range actionTypeNames {
		if n == name {
			return t
		}
	}
	return ActionContinuous
}

// Status is the terminal classification of one inference attempt.
type Status uint8

const (
	StatusOK Status = iota
	StatusTimeout
	StatusError
	StatusCancelled
	StatusInvalid
)

var statusNames = map[Status]string{
	StatusOK:        "ok",
	StatusTimeout:   "timeout",
	StatusError:     "error",
	StatusCancelled: "cancelled",
	StatusInvalid:   "invalid",
}

// String renders the status name used in JSON records.
func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "error"
}

func parseStatus(name string) Status {
	for s, n := range statusNames {
		if n == name {
			return s
		}
	}
	return StatusError
}

// JobStatus is a submitted job's lifecycle state as observed through Poll.
type JobStatus uint8

const (
	JobQueued JobStatus = iota
	JobRunning
	JobStreaming
	JobDone
	JobError
	JobTimeout
	JobCancelled
)

var jobStatusNames = map[JobStatus]string{
	JobQueued:    "queued",
	JobRunning:   "running",
	JobStreaming: "streaming",
	JobDone:      "done",
	JobError:     "error",
	JobTimeout:   "timeout",
	JobCancelled: "cancelled",
}

// String renders the job status name used in JSON records.
func (s JobStatus) String() string {
	if n, ok := jobStatusNames[s]; ok {
		return n
	}
	return "error"
}

func isTerminal(s JobStatus) bool {
	return s == JobDone || s == JobError || s == JobTimeout || s == JobCancelled
}

func toJobStatus(s Status) JobStatus {
	switch s {
	case StatusOK:
		return JobDone
	case StatusTimeout:
		return JobTimeout
	case StatusCancelled:
		return JobCancelled
	case StatusError, StatusInvalid:
		return JobError
	default:
		return JobError
	}
}

// ModelInfo identifies the backend model that produced or should produce a
// response.
type ModelInfo struct {
	Name    string
	Version string
}

// Bound is an inclusive [Lo, Hi] interval, used for action-space bounds and
// forbidden ranges.
type Bound struct {
	Lo float64
	Hi float64
}

// Observation is the sensory input accompanying a Request.
type Observation struct {
	Image       *ImageHandle
	Blob        *BlobHandle
	State       []float64
	TimestampMs int64
	FrameID     string
}

// ActionSpace describes the shape and bounds of the action a backend must
// return.
type ActionSpace struct {
	Type     string
	Dims     int64
	Bounds   []Bound
	Units    []string
	Semantic []string
}

// Constraints bound the magnitude and rate of change of a returned action.
type Constraints struct {
	MaxAbsValue     float64
	MaxDelta        float64
	ForbiddenRanges []Bound
}

// Request is one inference call.
type Request struct {
	Capability  string
	TaskID      string
	Instruction string
	Observation Observation
	ActionSpace ActionSpace
	Constraints Constraints
	DeadlineMs  int64
	Seed        *uint64
	Model       ModelInfo

	RunID     string
	TickIndex uint64
	NodeName  string
}

// Response is a backend's inference result.
type Response struct {
	Status      Status
	Action      Action
	Confidence  float64
	Explanation string
	Model       ModelInfo
	Stats       map[string]float64
}

// MarshalJSON renders a Response the way the ported response_to_json_local
// does: explanation and stats are omitted when empty.
func (r Response) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"status":     r.Status.String(),
		"action":     r.Action,
		"confidence": r.Confidence,
		"model": map[string]string{
			"name":    r.Model.Name,
			"version": r.Model.Version,
		},
	}
	if r.Explanation != "" {
		out["explanation"] = r.Explanation
	}
	if len(r.Stats) > 0 {
		out["stats"] = r.Stats
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses a Response from the representation MarshalJSON
// produces, the inverse a cache round-trip (see redisCache) depends on.
func (r *Response) UnmarshalJSON(data []byte) error {
	var in struct {
		Status      string             `json:"status"`
		Action      Action             `json:"action"`
		Confidence  float64            `json:"confidence"`
		Explanation string             `json:"explanation"`
		Model       ModelInfo          `json:"model"`
		Stats       map[string]float64 `json:"stats"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Status = parseStatus(in.Status)
	r.Action = in.Action
	r.Confidence = in.Confidence
	r.Explanation = in.Explanation
	r.Model = in.Model
	r.Stats = in.Stats
	return nil
}

// Partial is one streamed decode step of an in-flight inference.
type Partial struct {
	Sequence        uint64
	TextChunk       string
	ActionCandidate *Action
	Confidence      float64
}

// Poll is the point-in-time snapshot returned by Service.Poll.
type Poll struct {
	Status  JobStatus
	Partial *Partial
	Final   *Response
	Stats   map[string]float64
}

// Record is one JSONL telemetry row describing a completed or rejected
// inference attempt.
type Record struct {
	TsMs               int64           `json:"ts_ms"`
	RunID              string          `json:"run_id"`
	TickIndex          uint64          `json:"tick_index"`
	NodeName           string          `json:"node_name"`
	TaskID             string          `json:"task_id"`
	Capability         string          `json:"capability"`
	ModelName          string          `json:"model_name"`
	ModelVersion       string          `json:"model_version"`
	RequestHash        uint64          `json:"request_hash"`
	ObservationSummary string          `json:"observation"`
	DeadlineMs         int64           `json:"deadline_ms"`
	Seed               uint64          `json:"seed"`
	Status             string          `json:"status"`
	LatencyMs          float64         `json:"latency_ms"`
	CacheHit           bool            `json:"cache_hit"`
	ReplayHit          bool            `json:"replay_hit"`
	Superseded         bool            `json:"superseded"`
	ResponseJSON       json.RawMessage `json:"response"`
}

// JobID identifies a submitted inference job for the lifetime of a Service.
type JobID uint64
