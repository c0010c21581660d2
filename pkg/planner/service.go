package planner

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/unswei/muesli-bt/pkg/telemetry"
)

// Record is one JSONL telemetry line emitted per Plan call.
type Record struct {
	TSMillis     int64       `json:"ts_ms"`
	RunID        string      `json:"run_id"`
	TickIndex    uint64      `json:"tick_index"`
	NodeName     string      `json:"node_name"`
	BudgetMs     int64       `json:"budget_ms"`
	TimeUsedMs   float64     `json:"time_used_ms"`
	Iters        int64       `json:"iters"`
	RootVisits   int64       `json:"root_visits"`
	RootChildren int64       `json:"root_children"`
	WidenAdded   int64       `json:"widen_added"`
	Action       Vector      `json:"action"`
	Confidence   float64     `json:"confidence"`
	ValueEst     float64     `json:"value_est"`
	Status       string      `json:"status"`
	DepthMax     int64       `json:"depth_max"`
	DepthMean    float64     `json:"depth_mean"`
	Seed         uint64      `json:"seed"`
	StateKey     string      `json:"state_key,omitempty"`
	TopK         []TopChoice `json:"top_k,omitempty"`
}

// Option configures a Service at construction.
type Option func(*Service)

// WithLogger attaches an ambient telemetry logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithBaseSeed sets the base seed DeriveSeed mixes per-call seeds from. Plan
// itself seeds its RNG from Request.Seed.
func WithBaseSeed(seed uint64) Option {
	return func(s *Service) { s.baseSeed = seed }
}

// WithJSONLPath overrides the default JSONL telemetry file path.
func WithJSONLPath(path string) Option {
	return func(s *Service) { s.jsonlPath = path }
}

// WithJSONLDisabled turns off JSONL file telemetry (records are still kept
// in the in-memory ring for RecentRecords).
func WithJSONLDisabled() Option {
	return func(s *Service) { s.jsonlEnabled = false }
}

// WithRecordCapacity overrides the in-memory record ring buffer size.
func WithRecordCapacity(n int) Option {
	return func(s *Service) { s.recordCapacity = n }
}

// Service runs MCTS searches against registered Models and records JSONL
// telemetry of each call.
type Service struct {
	mu     sync.Mutex
	models map[string]Model

	baseSeed uint64

	records        []Record
	recordCapacity int

	jsonlEnabled bool
	jsonlPath    string
	fileMu       sync.Mutex

	logger telemetry.Logger
}

const defaultBaseSeed uint64 = 0x4d6f6f736c694254

// NewService constructs a Service with the toy-1d and ptz-track models
// registered by default.
func NewService(opts ...Option) *Service {
	s := &Service{
		models:         make(map[string]Model),
		baseSeed:       defaultBaseSeed,
		recordCapacity: 4096,
		jsonlEnabled:   true,
		jsonlPath:      "planner-records.jsonl",
		logger:         telemetry.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.RegisterModel("toy-1d", Toy1DModel{})
	s.RegisterModel("ptz-track", PTZTrackModel{})
	return s
}

// RegisterModel adds or replaces a named Model.
func (s *Service) RegisterModel(name string, model Model) {
	if name == "" {
		panic("planner: RegisterModel requires a non-empty name")
	}
	if model == nil {
		panic("planner: RegisterModel requires a non-nil model")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[name] = model
}

// HasModel reports whether name is registered.
func (s *Service) HasModel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.models[name]
	return ok
}

// BaseSeed returns the service's seed-derivation base.
func (s *Service) BaseSeed() uint64 { return s.baseSeed }

// SetBaseSeed updates the service's seed-derivation base.
func (s *Service) SetBaseSeed(seed uint64) { s.baseSeed = seed }

// DeriveSeed mixes the service's base seed with a node name and tick index
// into a deterministic per-call seed.
func (s *Service) DeriveSeed(nodeName string, tickIndex uint64) uint64 {
	seed := s.baseSeed
	nodeHash := Hash64(nodeName)
	seed ^= nodeHash + goldenGamma + (seed << 6) + (seed >> 2)
	seed ^= tickIndex + goldenGamma + (seed << 6) + (seed >> 2)
	if seed == 0 {
		return goldenGamma
	}
	return seed
}

// Hash64 is the FNV-1a 64-bit hash used for seed derivation.
func Hash64(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

type mctsChild struct {
	action   Vector
	visits   int64
	valueSum float64
	next     *mctsNode
}

type mctsNode struct {
	visits   int64
	valueSum float64
	children []*mctsChild
}

func (n *mctsNode) q() float64 {
	if n.visits <= 0 {
		return 0
	}
	return n.valueSum / float64(n.visits)
}

func ucbScore(child *mctsChild, parentVisits int64, cUCB float64) float64 {
	if child.visits <= 0 {
		return 1.0e30
	}
	q := child.valueSum / float64(child.visits)
	parentN := float64(parentVisits)
	if parentVisits < 1 {
		parentN = 1
	}
	childN := float64(child.visits)
	return q + cUCB*math.Sqrt(math.Log(parentN)/childN)
}

func selectChildIndex(node *mctsNode, cUCB float64) (int, bool) {
	if len(node.children) == 0 {
		return 0, false
	}
	bestIdx := 0
	bestScore := -1.0e300
	for i, child := range node.children {
		score := ucbScore(child, node.visits, cUCB)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return bestIdx, true
}

// Plan runs a time- and iteration-bounded MCTS search per req.Config and
// returns the highest-visit root action, falling back to req.Config's
// FallbackAction (or the model's zero action) if no child was ever
// expanded.
func (s *Service) Plan(req Request) Result {
	result := Result{Status: StatusError}
	result.Stats.Seed = req.Seed

	s.mu.Lock()
	model, ok := s.models[req.ModelService]
	s.mu.Unlock()

	if !ok {
		result.Error = fmt.Sprintf("planner model not found: %s", req.ModelService)
		s.appendRecord(req, result, time.Now())
		return result
	}

	if !model.ValidateState(req.State) {
		result.Error = "planner state validation failed"
		s.appendRecord(req, result, time.Now())
		return result
	}

	cfg := req.Config.clamp()
	rng := NewRNG(req.Seed)
	root := &mctsNode{}

	var widenAdded int64
	var depthSum, depthMax int64

	start := time.Now()
	deadline := start.Add(cfg.Budget)
	timedOut := false

	var iterDepthMax int64

	var rollout func(state Vector, depth int64) float64
	rollout = func(state Vector, depth int64) float64 {
		if depth >= cfg.MaxDepth {
			if depth > iterDepthMax {
				iterDepthMax = depth
			}
			return 0
		}
		action := model.ClampAction(model.RolloutAction(state, rng))
		step := model.Step(state, action, rng)
		if depth+1 > iterDepthMax {
			iterDepthMax = depth + 1
		}
		if step.Done {
			return step.Reward
		}
		return step.Reward + cfg.Gamma*rollout(step.NextState, depth+1)
	}

	var simulate func(node *mctsNode, state Vector, depth int64) float64
	simulate = func(node *mctsNode, state Vector, depth int64) float64 {
		if depth >= cfg.MaxDepth {
			if depth > iterDepthMax {
				iterDepthMax = depth
			}
			return 0
		}

		childCap := cfg.PWK * math.Pow(float64(maxInt64(1, node.visits)), cfg.PWAlpha)
		allowExpand := float64(len(node.children)) < childCap

		if allowExpand {
			sampled := model.SampleAction(state, rng)
			if cfg.ActionSampler == "vla_mixture" && len(cfg.ActionPriorMean) > 0 &&
				len(cfg.ActionPriorMean) == model.ActionDims() &&
				rng.Uniform(0, 1) < cfg.ActionPriorMix {
				sampled = make(Vector, len(cfg.ActionPriorMean))
				for i, dim := range cfg.ActionPriorMean {
					sampled[i] = rng.Normal(dim, cfg.ActionPriorSigma)
				}
			}

			action := model.ClampAction(sampled)
			step := model.Step(state, action, rng)
			value := step.Reward
			if !step.Done {
				value += cfg.Gamma * rollout(step.NextState, depth+1)
			}

			child := &mctsChild{action: action, visits: 1, valueSum: value}
			node.children = append(node.children, child)
			widenAdded++
			node.visits++
			node.valueSum += value
			return value
		}

		idx, has := selectChildIndex(node, cfg.CUCB)
		if !has {
			node.visits++
			return 0
		}

		child := node.children[idx]
		step := model.Step(state, child.action, rng)
		value := step.Reward
		if !step.Done {
			if child.next == nil {
				child.next = &mctsNode{}
			}
			value += cfg.Gamma * simulate(child.next, step.NextState, depth+1)
		} else if depth+1 > iterDepthMax {
			iterDepthMax = depth + 1
		}

		child.visits++
		child.valueSum += value
		node.visits++
		node.valueSum += value
		return value
	}

	var completedIters int64
	for i := int64(0); i < cfg.ItersMax; i++ {
		if i%cfg.TimeCheckEvery == 0 && !time.Now().Before(deadline) {
			timedOut = true
			break
		}
		iterDepthMax = 0
		simulate(root, req.State, 0)
		completedIters++
		depthSum += iterDepthMax
		if iterDepthMax > depthMax {
			depthMax = iterDepthMax
		}
	}

	end := time.Now()
	timeUsedMs := float64(end.Sub(start).Microseconds()) / 1000.0

	result.Stats.Iters = completedIters
	result.Stats.RootVisits = root.visits
	result.Stats.RootChildren = int64(len(root.children))
	result.Stats.WidenAdded = widenAdded
	result.Stats.DepthMax = depthMax
	if completedIters > 0 {
		result.Stats.DepthMean = float64(depthSum) / float64(completedIters)
	}
	result.Stats.TimeUsedMs = timeUsedMs
	result.Stats.ValueEst = root.q()

	sorted := make([]*mctsChild, len(root.children))
	copy(sorted, root.children)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].visits > sorted[j].visits })

	topK := int(cfg.TopK)
	for i := 0; i < len(sorted) && i < topK; i++ {
		child := sorted[i]
		q := 0.0
		if child.visits > 0 {
			q = child.valueSum / float64(child.visits)
		}
		result.Stats.TopK = append(result.Stats.TopK, TopChoice{Action: child.action, Visits: child.visits, Q: q})
	}

	if len(sorted) > 0 {
		best := sorted[0]
		result.Action = model.ClampAction(best.action)
		confidence := 0.0
		if root.visits > 0 {
			confidence = float64(best.visits) / float64(maxInt64(1, root.visits))
		}
		result.Confidence = confidence
		if timedOut {
			result.Status = StatusTimeout
		} else {
			result.Status = StatusOK
		}
	} else {
		if len(cfg.FallbackAction) > 0 {
			result.Action = model.ClampAction(cfg.FallbackAction)
		} else {
			result.Action = model.ZeroAction()
		}
		result.Confidence = 0
		result.Status = StatusNoAction
	}

	if len(result.Action) != model.ActionDims() {
		result.Action = model.ZeroAction()
		result.Status = StatusError
		result.Error = "planner action dimensionality mismatch"
	}

	s.appendRecord(req, result, end)
	return result
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func (s *Service) appendRecord(req Request, result Result, at time.Time) {
	rec := Record{
		TSMillis:     at.UnixMilli(),
		RunID:        req.RunID,
		TickIndex:    req.TickIndex,
		NodeName:     req.NodeName,
		BudgetMs:     req.Config.Budget.Milliseconds(),
		TimeUsedMs:   result.Stats.TimeUsedMs,
		Iters:        result.Stats.Iters,
		RootVisits:   result.Stats.RootVisits,
		RootChildren: result.Stats.RootChildren,
		WidenAdded:   result.Stats.WidenAdded,
		Action:       result.Action,
		Confidence:   result.Confidence,
		ValueEst:     result.Stats.ValueEst,
		Status:       result.Status.String(),
		DepthMax:     result.Stats.DepthMax,
		DepthMean:    result.Stats.DepthMean,
		Seed:         req.Seed,
		StateKey:     req.StateKey,
		TopK:         result.Stats.TopK,
	}

	s.mu.Lock()
	if s.recordCapacity > 0 && len(s.records) == s.recordCapacity {
		s.records = append(s.records[:0], s.records[1:]...)
	}
	s.records = append(s.records, rec)
	writeJSONL := s.jsonlEnabled
	s.mu.Unlock()

	if !writeJSONL {
		return
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	s.appendJSONLLine(line)
}

func (s *Service) appendJSONLLine(line []byte) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	f, err := os.OpenFile(s.jsonlPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(line, '\n'))
}

// RecentRecords returns the last maxCount JSONL records kept in memory.
func (s *Service) RecentRecords(maxCount int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxCount >= len(s.records) || maxCount < 0 {
		out := make([]Record, len(s.records))
		copy(out, s.records)
		return out
	}
	start := len(s.records) - maxCount
	out := make([]Record, maxCount)
	copy(out, s.records[start:])
	return out
}

// ClearRecords empties the in-memory record ring.
func (s *Service) ClearRecords() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}
