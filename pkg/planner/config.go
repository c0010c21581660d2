package planner

import "time"

// Config tunes one Plan call's search budget and MCTS hyperparameters.
type Config struct {
	Budget         time.Duration
	ItersMax       int64
	Gamma          float64
	MaxDepth       int64
	CUCB           float64
	PWK            float64
	PWAlpha        float64
	TimeCheckEvery int64
	TopK           int64
	FallbackAction Vector
	RolloutPolicy  string
	ActionSampler  string
	ActionPriorMean  Vector
	ActionPriorSigma float64
	ActionPriorMix   float64
}

// DefaultConfig mirrors the ported implementation's field defaults.
func DefaultConfig() Config {
	return Config{
		Budget:           20 * time.Millisecond,
		ItersMax:         2000,
		Gamma:            0.95,
		MaxDepth:         25,
		CUCB:             1.2,
		PWK:              2.0,
		PWAlpha:          0.5,
		TimeCheckEvery:   8,
		TopK:             3,
		RolloutPolicy:    "model_default",
		ActionSampler:    "model_default",
		ActionPriorSigma: 0.2,
		ActionPriorMix:   0.5,
	}
}

// clamp rewrites out-of-range fields to the nearest valid value, the way
// Service.Plan sanitizes a caller-supplied Config before searching.
func (c Config) clamp() Config {
	if c.Budget < 0 {
		c.Budget = 0
	}
	if c.ItersMax < 1 {
		c.ItersMax = 1
	}
	if c.MaxDepth < 1 {
		c.MaxDepth = 1
	}
	if c.TimeCheckEvery < 1 {
		c.TimeCheckEvery = 1
	}
	c.Gamma = clampFloat(c.Gamma, 0.0, 1.0)
	if c.CUCB < 0 {
		c.CUCB = 0
	}
	if c.PWK < 0 {
		c.PWK = 0
	}
	if c.PWAlpha < 0 {
		c.PWAlpha = 0
	}
	if c.TopK < 0 {
		c.TopK = 0
	}
	if c.ActionPriorSigma < 0 {
		c.ActionPriorSigma = 0
	}
	c.ActionPriorMix = clampFloat(c.ActionPriorMix, 0.0, 1.0)
	return c
}

// Status is the outcome classification of a Plan call.
type Status uint8

const (
	StatusOK Status = iota
	StatusTimeout
	StatusNoAction
	StatusError
)

var statusNames = map[Status]string{
	StatusOK:       "ok",
	StatusTimeout:  "timeout",
	StatusNoAction: "noaction",
	StatusError:    "error",
}

// String renders the status name used in JSONL records.
func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "error"
}

// TopChoice is one of the top-K most-visited root actions in a Plan result.
type TopChoice struct {
	Action Vector  `json:"action"`
	Visits int64   `json:"visits"`
	Q      float64 `json:"q"`
}

// Stats summarizes one search's tree shape and timing.
type Stats struct {
	Iters        int64
	RootVisits   int64
	RootChildren int64
	WidenAdded   int64
	DepthMax     int64
	DepthMean    float64
	TimeUsedMs   float64
	ValueEst     float64
	Seed         uint64
	TopK         []TopChoice
}

// Request is one planning call: which model to use, the current state, the
// search config, and identifying metadata recorded in telemetry.
type Request struct {
	ModelService string
	State        Vector
	Config       Config
	Seed         uint64
	RunID        string
	TickIndex    uint64
	NodeName     string
	StateKey     string
}

// Result is the outcome of a Plan call.
type Result struct {
	Status     Status
	Action     Vector
	Confidence float64
	Stats      Stats
	Error      string
}
