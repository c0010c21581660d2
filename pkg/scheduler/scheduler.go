// Package scheduler runs host callback work (VLA dispatch, planner rollouts,
// arbitrary blocking actions) off the interpreter's tick goroutine on a
// fixed worker pool, tracking job lifecycle and best-effort cooperative
// cancellation.
package scheduler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/unswei/muesli-bt/pkg/bt/bterrors"
	"github.com/unswei/muesli-bt/pkg/bt/profile"
)

// JobID identifies a submitted job for the lifetime of a Scheduler.
type JobID uint64

// JobStatus is the lifecycle state of a job.
type JobStatus uint8

const (
	JobUnknown JobStatus = iota
	JobQueued
	JobRunning
	JobDone
	JobFailed
	JobCancelled
)

var jobStatusNames = map[JobStatus]string{
	JobUnknown:   "unknown",
	JobQueued:    "queued",
	JobRunning:   "running",
	JobDone:      "done",
	JobFailed:    "failed",
	JobCancelled: "cancelled",
}

// String renders the job status name used in trace events and dumps.
func (s JobStatus) String() string {
	if n, ok := jobStatusNames[s]; ok {
		return n
	}
	return "unknown"
}

// JobTiming records the three timestamps of a job's lifecycle.
type JobTiming struct {
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// JobInfo is a point-in-time snapshot of a job's status, timing, and error.
type JobInfo struct {
	Status    JobStatus
	Timing    JobTiming
	TaskName  string
	ErrorText string
}

// JobResult carries a job function's return payload.
type JobResult struct {
	Payload any
}

// JobFunc is the work a job performs. It receives a context that is
// cancelled if the job is cancelled while running, for cooperative
// best-effort cancellation; honoring ctx is the function's responsibility.
type JobFunc func(ctx context.Context) (JobResult, error)

// JobRequest describes one unit of work to submit.
type JobRequest struct {
	TaskName string
	Fn       JobFunc
	Timeout  time.Duration // zero means no timeout
}

// Scheduler runs JobRequests and reports their lifecycle and results.
type Scheduler interface {
	Submit(req JobRequest) (JobID, error)
	GetInfo(id JobID) JobInfo
	TryGetResult(id JobID) (JobResult, bool)
	Cancel(id JobID) bool
	StatsSnapshot() profile.SchedulerProfileStats
	Close()
}

type jobState struct {
	id        JobID
	status    JobStatus
	timing    JobTiming
	taskName  string
	errorText string
	request   JobRequest
	result    *JobResult
	ctx       context.Context
	cancel    context.CancelFunc
	cancelReq bool
}

// ThreadPoolScheduler is the default Scheduler: a fixed pool of worker
// goroutines draining a FIFO queue.
type ThreadPoolScheduler struct {
	mu         sync.Mutex
	cond       *sync.Cond
	stopping   bool
	nextJobID  JobID
	queue      []JobID
	jobs       map[JobID]*jobState
	stats      profile.SchedulerProfileStats
	workerWG   sync.WaitGroup
}

// NewThreadPoolScheduler starts a ThreadPoolScheduler with workerCount
// worker goroutines. workerCount of zero selects min(4, NumCPU()) workers,
// or 2 if NumCPU reports zero.
func NewThreadPoolScheduler(workerCount int) *ThreadPoolScheduler {
	s := &ThreadPoolScheduler{
		nextJobID: 1,
		jobs:      make(map[JobID]*jobState),
	}
	s.cond = sync.NewCond(&s.mu)

	n := effectiveWorkerCount(workerCount)
	s.workerWG.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer s.workerWG.Done()
			s.workerLoop()
		}()
	}
	return s
}

func effectiveWorkerCount(requested int) int {
	if requested > 0 {
		return requested
	}
	hc := runtime.NumCPU()
	if hc == 0 {
		return 2
	}
	if hc > 4 {
		return 4
	}
	return hc
}

// Submit enqueues req and returns its JobID. Returns an error if req.Fn is
// nil.
func (s *ThreadPoolScheduler) Submit(req JobRequest) (JobID, error) {
	if req.Fn == nil {
		return 0, bterrors.New(bterrors.KindScheduler, "submit: empty job function")
	}

	s.mu.Lock()
	id := s.nextJobID
	s.nextJobID++
	state := &jobState{
		id:       id,
		status:   JobQueued,
		taskName: req.TaskName,
		request:  req,
	}
	state.timing.SubmittedAt = time.Now()
	s.jobs[id] = state
	s.queue = append(s.queue, id)
	s.stats.Submitted++
	s.mu.Unlock()

	s.cond.Signal()
	return id, nil
}

// GetInfo returns the current lifecycle snapshot for id, or a zero-value
// JobInfo with status Unknown if id was never submitted.
func (s *ThreadPoolScheduler) GetInfo(id JobID) JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.jobs[id]
	if !ok {
		return JobInfo{}
	}
	return JobInfo{
		Status:    state.status,
		Timing:    state.timing,
		TaskName:  state.taskName,
		ErrorText: state.errorText,
	}
}

// TryGetResult returns the job's result if it completed successfully.
func (s *ThreadPoolScheduler) TryGetResult(id JobID) (JobResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.jobs[id]
	if !ok || state.status != JobDone || state.result == nil {
		return JobResult{}, false
	}
	return *state.result, true
}

// Cancel requests cancellation of id. Jobs still queued are cancelled
// immediately; running jobs are marked for cooperative cancellation via
// their context, and their function still runs to completion, after which
// the job is reported as cancelled with no result recorded. Returns false if
// id is unknown or already in a terminal state.
func (s *ThreadPoolScheduler) Cancel(id JobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.jobs[id]
	if !ok {
		return false
	}
	if state.status == JobDone || state.status == JobFailed || state.status == JobCancelled {
		return false
	}

	state.cancelReq = true
	if state.cancel != nil {
		state.cancel()
	}
	if state.status == JobQueued {
		state.status = JobCancelled
		state.timing.FinishedAt = time.Now()
		s.stats.Cancelled++
	}
	return true
}

// StatsSnapshot returns a copy of the scheduler's lifecycle counters.
func (s *ThreadPoolScheduler) StatsSnapshot() profile.SchedulerProfileStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close wakes every worker and waits for the workers to run the jobs still
// queued and exit. Submit does not check for Close; a job submitted after
// Close stays queued and never runs.
func (s *ThreadPoolScheduler) Close() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.cond.Broadcast()
	s.workerWG.Wait()
}

func (s *ThreadPoolScheduler) workerLoop() {
	for {
		state := s.dequeue()
		if state == nil {
			return
		}
		s.runJob(state)
	}
}

func (s *ThreadPoolScheduler) dequeue() *jobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.stopping {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return nil
	}

	id := s.queue[0]
	s.queue = s.queue[1:]

	state, ok := s.jobs[id]
	if !ok || state.status == JobCancelled {
		return &jobState{id: 0} // sentinel: skip, caller loops again
	}

	start := time.Now()
	state.status = JobRunning
	state.timing.StartedAt = start
	s.stats.Started++
	s.stats.QueueDelay.Observe(start.Sub(state.timing.SubmittedAt), 0)

	ctx, cancel := context.WithCancel(context.Background())
	if state.request.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, state.request.Timeout)
	}
	state.ctx = ctx
	state.cancel = cancel
	return state
}

func (s *ThreadPoolScheduler) runJob(state *jobState) {
	if state.id == 0 {
		return // sentinel produced by a race between dequeue and cancellation
	}

	result, err := state.request.Fn(state.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	finish := time.Now()
	state.timing.FinishedAt = finish
	s.stats.RunTime.Observe(finish.Sub(state.timing.StartedAt), 0)

	switch {
	case state.cancelReq:
		state.status = JobCancelled
		s.stats.Cancelled++
	case err != nil:
		state.status = JobFailed
		state.errorText = err.Error()
		s.stats.Failed++
	default:
		state.status = JobDone
		state.result = &result
		s.stats.Completed++
	}
}

var _ Scheduler = (*ThreadPoolScheduler)(nil)
