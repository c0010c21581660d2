package vla

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unswei/muesli-bt/pkg/scheduler"
	"github.com/unswei/muesli-bt/pkg/telemetry"
)

type jobState struct {
	id              JobID
	request         Request
	status          JobStatus
	cancelRequested atomic.Bool
	final           *Response
	latestPartial   *Partial
	partialCount    uint64
	requestHash     uint64
	cacheHit        bool
	replayHit       bool
	superseded      bool
	schedulerJobID  scheduler.JobID
	submittedAt     time.Time
	startedAt       time.Time
	finishedAt      time.Time
	errorText       string
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithLogger overrides the Service's telemetry logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithJSONLPath sets the path JSONL telemetry records are appended to.
func WithJSONLPath(path string) Option {
	return func(s *Service) { s.logPath = path }
}

// WithJSONLDisabled turns off JSONL file writes; records still accumulate
// in the in-memory ring buffer.
func WithJSONLDisabled() Option {
	return func(s *Service) { s.logEnabled = false }
}

// WithRecordCapacity bounds the in-memory telemetry ring buffer's size.
func WithRecordCapacity(n int) Option {
	return func(s *Service) { s.recordCapacity = n }
}

// WithCacheTTL sets how long a successful response stays cacheable.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// WithCacheCapacity bounds the number of cached responses retained. It has
// no effect on a cache that doesn't support a capacity notion (redisCache).
func WithCacheCapacity(n int) Option {
	return func(s *Service) {
		if c, ok := s.cache.(capacitied); ok {
			c.SetCapacity(n)
		}
	}
}

// WithCache overrides the default in-process LRU with a different Cache
// implementation, e.g. NewRedisCache for a deployment sharing cached
// inferences across more than one process.
func WithCache(cache Cache) Option {
	return func(s *Service) { s.cache = cache }
}

// Service dispatches vision-language-action inference requests to pluggable
// backends through a scheduler.Scheduler worker pool, with response caching,
// owner-based request supersession, and JSONL telemetry.
type Service struct {
	sched        scheduler.Scheduler
	capabilities *CapabilityRegistry
	logger       telemetry.Logger

	mu              sync.Mutex
	fileMu          sync.Mutex
	nextJobID       uint64
	jobs            map[JobID]*jobState
	activeOwnerJobs map[string]JobID
	backends        map[string]Backend
	defaultBackend  string

	cache    Cache
	cacheTTL time.Duration

	replayStore map[uint64]Response

	nextImageID int64
	nextBlobID  int64
	images      map[int64]ImageInfo
	blobs       map[int64]BlobInfo

	records        []Record
	recordCapacity int
	logEnabled     bool
	logPath        string
}

// NewService constructs a Service dispatching work through sched. It
// panics if sched is nil.
func NewService(sched scheduler.Scheduler, opts ...Option) *Service {
	if sched == nil {
		panic("vla: scheduler must not be nil")
	}

	s := &Service{
		sched:           sched,
		capabilities:    NewCapabilityRegistry(),
		logger:          telemetry.NewNoopLogger(),
		nextJobID:       1,
		jobs:            make(map[JobID]*jobState),
		activeOwnerJobs: make(map[string]JobID),
		backends:        make(map[string]Backend),
		defaultBackend:  "rt2-stub",
		cache:           NewMemCache(256),
		cacheTTL:        750 * time.Millisecond,
		replayStore:     make(map[uint64]Response),
		nextImageID:     1,
		nextBlobID:      1,
		images:          make(map[int64]ImageInfo),
		blobs:           make(map[int64]BlobInfo),
		recordCapacity:  4096,
		logEnabled:      true,
		logPath:         "vla-records.jsonl",
	}

	for _, opt := range opts {
		opt(s)
	}

	s.capabilities.RegisterCapability(CapabilityDescriptor{
		Name:         "vla.rt2",
		SafetyClass:  "restricted",
		CostCategory: "high",
		RequestSchema: []CapabilityField{
			{Name: "task_id", Type: "string", Required: true},
			{Name: "instruction", Type: "string", Required: true},
			{Name: "observation", Type: "map", Required: true},
			{Name: "action_space", Type: "map", Required: true},
			{Name: "constraints", Type: "map", Required: true},
			{Name: "deadline_ms", Type: "int", Required: true},
			{Name: "model", Type: "map", Required: true},
		},
		ResponseSchema: []CapabilityField{
			{Name: "status", Type: "keyword", Required: true},
			{Name: "action", Type: "map", Required: true},
			{Name: "confidence", Type: "float", Required: true},
			{Name: "model", Type: "map", Required: true},
			{Name: "stats", Type: "map", Required: true},
		},
	})

	s.RegisterBackend("rt2-stub", RT2StubBackend{})
	s.RegisterBackend("replay", NewReplayBackend(s.lookupReplay))

	return s
}

func (s *Service) lookupReplay(hash uint64) (Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.replayStore[hash]
	return resp, ok
}

func seedOrZero(seed *uint64) uint64 {
	if seed == nil {
		return 0
	}
	return *seed
}

func recordFromJob(req Request, requestHash uint64, statusStr string, latencyMs float64, cacheHit, replayHit, superseded bool, response Response) Record {
	respJSON, _ := json.Marshal(response)
	return Record{
		TsMs:               time.Now().UnixMilli(),
		RunID:              req.RunID,
		TickIndex:          req.TickIndex,
		NodeName:           req.NodeName,
		TaskID:             req.TaskID,
		Capability:         req.Capability,
		ModelName:          req.Model.Name,
		ModelVersion:       req.Model.Version,
		RequestHash:        requestHash,
		ObservationSummary: observationSummary(req),
		DeadlineMs:         req.DeadlineMs,
		Seed:               seedOrZero(req.Seed),
		Status:             statusStr,
		LatencyMs:          latencyMs,
		CacheHit:           cacheHit,
		ReplayHit:          replayHit,
		Superseded:         superseded,
		ResponseJSON:       respJSON,
	}
}

// Submit validates and dispatches req, returning the JobID used to Poll or
// Cancel it. Structural validation failures, missing image/blob handles,
// and cache hits are resolved synchronously and recorded immediately;
// everything else runs on the scheduler.
func (s *Service) Submit(req Request) JobID {
	state := &jobState{request: req, submittedAt: time.Now()}
	state.requestHash = HashRequest(req)

	var immediateRecord Record
	emitImmediate := false

	s.mu.Lock()
	state.id = JobID(s.nextJobID)
	s.nextJobID++
	s.jobs[state.id] = state

	if reason := validateRequestShape(req); reason != "" {
		errResp := Response{Status: StatusError, Model: req.Model, Explanation: reason}
		state.status = JobError
		state.final = &errResp
		state.finishedAt = state.submittedAt
		state.errorText = reason
		immediateRecord = recordFromJob(req, state.requestHash, "error", 0, false, false, false, errResp)
		emitImmediate = true
	}

	if !emitImmediate && req.Observation.Image != nil {
		if _, ok := s.images[req.Observation.Image.ID]; !ok {
			errResp := Response{Status: StatusError, Model: req.Model, Explanation: "observation.image handle does not exist"}
			state.status = JobError
			state.final = &errResp
			state.finishedAt = state.submittedAt
			state.errorText = errResp.Explanation
			immediateRecord = recordFromJob(req, state.requestHash, "error", 0, false, false, false, errResp)
			emitImmediate = true
		}
	}

	if !emitImmediate && req.Observation.Blob != nil {
		if _, ok := s.blobs[req.Observation.Blob.ID]; !ok {
			errResp := Response{Status: StatusError, Model: req.Model, Explanation: "observation.blob handle does not exist"}
			state.status = JobError
			state.final = &errResp
			state.finishedAt = state.submittedAt
			state.errorText = errResp.Explanation
			immediateRecord = recordFromJob(req, state.requestHash, "error", 0, false, false, false, errResp)
			emitImmediate = true
		}
	}

	if !emitImmediate {
		ownerKey := makeOwnerKey(req)
		if activeID, ok := s.activeOwnerJobs[ownerKey]; ok {
			if old, ok2 := s.jobs[activeID]; ok2 && !isTerminal(old.status) {
				old.cancelRequested.Store(true)
				old.superseded = true
				if old.schedulerJobID != 0 {
					s.sched.Cancel(old.schedulerJobID)
				}
			}
		}
		s.activeOwnerJobs[ownerKey] = state.id

		if resp, ok := s.cache.Get(state.requestHash); ok {
			state.status = JobDone
			state.cacheHit = true
			state.startedAt = state.submittedAt
			state.finishedAt = state.submittedAt
			state.final = &resp
			immediateRecord = recordFromJob(req, state.requestHash, "done", 0, true, false, false, resp)
			emitImmediate = true
		}
	}
	s.mu.Unlock()

	if emitImmediate {
		s.appendRecord(immediateRecord)
		return state.id
	}

	backend := s.resolveBackend(req)
	if backend == nil {
		errResp := Response{Status: StatusError, Model: req.Model, Explanation: "backend not found"}
		s.mu.Lock()
		state.status = JobError
		state.final = &errResp
		state.finishedAt = time.Now()
		s.mu.Unlock()
		s.appendRecord(recordFromJob(req, state.requestHash, "error", 0, false, false, false, errResp))
		return state.id
	}

	jobFn := func(_ context.Context) (scheduler.JobResult, error) {
		s.runInference(state, backend)
		return scheduler.JobResult{}, nil
	}

	sid, err := s.sched.Submit(scheduler.JobRequest{TaskName: "vla.submit", Fn: jobFn})
	if err == nil {
		s.mu.Lock()
		state.schedulerJobID = sid
		s.mu.Unlock()
	}
	return state.id
}

func (s *Service) runInference(state *jobState, backend Backend) {
	s.mu.Lock()
	state.status = JobRunning
	state.startedAt = time.Now()
	s.mu.Unlock()

	onPartial := func(part Partial) bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if state.cancelRequested.Load() {
			return false
		}
		state.latestPartial = &part
		state.partialCount++
		state.status = JobStreaming
		return true
	}

	response := backend.Infer(state.request, onPartial, &state.cancelRequested)
	finish := time.Now()

	s.mu.Lock()
	latency := elapsedMs(state.submittedAt, finish)
	if state.cancelRequested.Load() && response.Status == StatusOK {
		response.Status = StatusCancelled
		response.Explanation = "cancelled"
	}
	if latency > float64(state.request.DeadlineMs) && response.Status == StatusOK {
		response.Status = StatusTimeout
		response.Explanation = "deadline exceeded"
	}

	if response.Status == StatusOK {
		if reason := validateAndClampAction(state.request, &response.Action); reason != "" {
			response.Status = StatusInvalid
			response.Explanation = reason
		}
	}

	if response.Stats == nil {
		response.Stats = make(map[string]float64)
	}
	response.Stats["latency_ms"] = latency
	response.Stats["partials"] = float64(state.partialCount)
	state.final = &response
	state.finishedAt = finish
	state.status = toJobStatus(response.Status)

	ownerKey := makeOwnerKey(state.request)
	if activeID, ok := s.activeOwnerJobs[ownerKey]; ok && activeID == state.id {
		delete(s.activeOwnerJobs, ownerKey)
	}

	if response.Status == StatusOK {
		s.cache.Set(state.requestHash, response, s.cacheTTL)
		s.replayStore[state.requestHash] = response
	}

	rec := recordFromJob(state.request, state.requestHash, state.status.String(), latency, state.cacheHit, state.replayHit, state.superseded, response)
	s.mu.Unlock()

	s.appendRecord(rec)
}

// Poll returns the current lifecycle snapshot for id. Polling a job whose
// deadline has elapsed marks it timed out and best-effort cancels it.
func (s *Service) Poll(id JobID) Poll {
	var out Poll
	var schedulerIDToCancel scheduler.JobID

	s.mu.Lock()
	state, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return Poll{Status: JobError}
	}

	if !isTerminal(state.status) && state.request.DeadlineMs > 0 {
		now := time.Now()
		if elapsedMs(state.submittedAt, now) > float64(state.request.DeadlineMs) && !state.cancelRequested.Load() {
			state.cancelRequested.Store(true)
			state.status = JobTimeout
			schedulerIDToCancel = state.schedulerJobID
		}
	}
	out.Status = state.status
	out.Partial = state.latestPartial
	out.Final = state.final

	end := state.finishedAt
	if end.IsZero() {
		end = time.Now()
	}
	out.Stats = map[string]float64{
		"latency_ms":    elapsedMs(state.submittedAt, end),
		"partial_count": float64(state.partialCount),
		"request_hash":  float64(state.requestHash & 0xffffffff),
	}
	s.mu.Unlock()

	if schedulerIDToCancel != 0 {
		s.sched.Cancel(schedulerIDToCancel)
	}
	return out
}

// Cancel requests cancellation of id. A queued job is cancelled
// immediately and recorded; a running job is marked for cooperative
// cancellation and may still complete. Returns false if id is unknown or
// already terminal.
func (s *Service) Cancel(id JobID) bool {
	s.mu.Lock()
	state, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if isTerminal(state.status) {
		s.mu.Unlock()
		return false
	}

	state.cancelRequested.Store(true)
	if state.schedulerJobID != 0 {
		s.sched.Cancel(state.schedulerJobID)
	}

	var rec Record
	emitRecord := false
	if state.status == JobQueued {
		state.status = JobCancelled
		state.finishedAt = time.Now()
		latency := elapsedMs(state.submittedAt, state.finishedAt)
		resp := Response{
			Status:      StatusCancelled,
			Model:       state.request.Model,
			Explanation: "cancelled while queued",
			Stats:       map[string]float64{"latency_ms": latency},
		}
		state.final = &resp
		rec = recordFromJob(state.request, state.requestHash, "cancelled", latency, state.cacheHit, state.replayHit, state.superseded, resp)
		emitRecord = true
	}
	s.mu.Unlock()

	if emitRecord {
		s.appendRecord(rec)
	}
	return true
}

// RegisterBackend adds or replaces a named backend. It panics if name is
// empty or backend is nil.
func (s *Service) RegisterBackend(name string, backend Backend) {
	if name == "" {
		panic("register_backend: backend name must not be empty")
	}
	if backend == nil {
		panic("register_backend: backend must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backends[name] = backend
}

// SetDefaultBackend changes the fallback backend used when a request's
// model name doesn't match a registered backend. It panics if name is
// unknown.
func (s *Service) SetDefaultBackend(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.backends[name]; !ok {
		panic("set_default_backend: unknown backend: " + name)
	}
	s.defaultBackend = name
}

// DefaultBackend returns the current fallback backend name.
func (s *Service) DefaultBackend() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultBackend
}

// Capabilities returns the service's capability registry.
func (s *Service) Capabilities() *CapabilityRegistry {
	return s.capabilities
}

func (s *Service) resolveBackend(req Request) Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Model.Name != "" {
		if b, ok := s.backends[req.Model.Name]; ok {
			return b
		}
	}
	return s.backends[s.defaultBackend]
}

// CreateImage registers an image and returns a handle a Request can
// reference. It panics if any dimension is non-positive.
func (s *Service) CreateImage(width, height, channels int64, encoding string, timestampMs int64, frameID string) ImageHandle {
	if width <= 0 || height <= 0 || channels <= 0 {
		panic("create_image: dimensions/channels must be > 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextImageID
	s.nextImageID++
	s.images[id] = ImageInfo{ID: id, Width: width, Height: height, Channels: channels, Encoding: encoding, TimestampMs: timestampMs, FrameID: frameID}
	return ImageHandle{ID: id}
}

// CreateBlob registers an opaque blob and returns a handle a Request can
// reference. It panics if sizeBytes is negative.
func (s *Service) CreateBlob(sizeBytes int64, mimeType string, timestampMs int64, tag string) BlobHandle {
	if sizeBytes < 0 {
		panic("create_blob: size_bytes must be >= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextBlobID
	s.nextBlobID++
	s.blobs[id] = BlobInfo{ID: id, SizeBytes: sizeBytes, MimeType: mimeType, TimestampMs: timestampMs, Tag: tag}
	return BlobHandle{ID: id}
}

// GetImageInfo returns the metadata registered for handle, if any.
func (s *Service) GetImageInfo(handle ImageHandle) (ImageInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.images[handle.ID]
	return info, ok
}

// GetBlobInfo returns the metadata registered for handle, if any.
func (s *Service) GetBlobInfo(handle BlobHandle) (BlobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.blobs[handle.ID]
	return info, ok
}

// RecentRecords returns up to maxCount of the most recently appended
// telemetry records, oldest first. A negative maxCount returns all
// retained records.
func (s *Service) RecentRecords(maxCount int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxCount < 0 || maxCount >= len(s.records) {
		out := make([]Record, len(s.records))
		copy(out, s.records)
		return out
	}
	out := make([]Record, maxCount)
	copy(out, s.records[len(s.records)-maxCount:])
	return out
}

// DumpRecentRecords renders RecentRecords as newline-delimited JSON.
func (s *Service) DumpRecentRecords(maxCount int) string {
	recs := s.RecentRecords(maxCount)
	var out []byte
	for _, rec := range recs {
		line, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return string(out)
}

// ClearRecords empties the in-memory telemetry ring buffer.
func (s *Service) ClearRecords() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

func (s *Service) appendRecord(rec Record) {
	s.mu.Lock()
	if s.recordCapacity > 0 && len(s.records) >= s.recordCapacity {
		s.records = append(s.records[:0], s.records[1:]...)
	}
	s.records = append(s.records, rec)
	writeJSON := s.logEnabled
	path := s.logPath
	s.mu.Unlock()

	if writeJSON {
		s.appendJSONLLine(path, rec)
	}
}

func (s *Service) appendJSONLLine(path string, rec Record) {
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(line, '\n'))
}

// SetLogPath changes the JSONL telemetry output path. It panics if path is
// empty.
func (s *Service) SetLogPath(path string) {
	if path == "" {
		panic("set_log_path: path must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logPath = path
}

// LogPath returns the current JSONL telemetry output path.
func (s *Service) LogPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logPath
}

// SetLogEnabled toggles whether telemetry records are appended to LogPath.
func (s *Service) SetLogEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logEnabled = enabled
}

// LogEnabled reports whether telemetry records are appended to LogPath.
func (s *Service) LogEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logEnabled
}

// SetCacheTTL changes how long a successful response stays cacheable. It
// panics if ttl is negative.
func (s *Service) SetCacheTTL(ttl time.Duration) {
	if ttl < 0 {
		panic("set_cache_ttl: ttl must be non-negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheTTL = ttl
}

// CacheTTL returns the current cache time-to-live.
func (s *Service) CacheTTL() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheTTL
}

// SetCacheCapacity bounds the number of cached responses retained, evicting
// immediately if the new capacity is smaller than the current occupancy. No
// effect if the configured Cache doesn't support a capacity notion.
func (s *Service) SetCacheCapacity(capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cache.(capacitied); ok {
		c.SetCapacity(capacity)
	}
}

// CacheCapacity returns the current cache capacity, or -1 if the configured
// Cache doesn't support a capacity notion.
func (s *Service) CacheCapacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cache.(capacitied); ok {
		return c.Capacity()
	}
	return -1
}
