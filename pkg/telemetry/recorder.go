package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Recorder is an in-memory Logger+Metrics+Tracer used by tests that need to
// assert on what was logged or recorded without a live OTEL pipeline.
type Recorder struct {
	mu        sync.Mutex
	Logs      []RecordedLog
	Counters  []RecordedMetric
	Timers    []RecordedMetric
	Gauges    []RecordedMetric
}

// RecordedLog is one captured log call.
type RecordedLog struct {
	Level   string
	Message string
	KeyVals []any
}

// RecordedMetric is one captured metric call.
type RecordedMetric struct {
	Name  string
	Value float64
	Tags  []string
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) log(level, msg string, keyvals []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Logs = append(r.Logs, RecordedLog{Level: level, Message: msg, KeyVals: keyvals})
}

func (r *Recorder) Debug(_ context.Context, msg string, keyvals ...any) { r.log("debug", msg, keyvals) }
func (r *Recorder) Info(_ context.Context, msg string, keyvals ...any)  { r.log("info", msg, keyvals) }
func (r *Recorder) Warn(_ context.Context, msg string, keyvals ...any)  { r.log("warn", msg, keyvals) }
func (r *Recorder) Error(_ context.Context, msg string, keyvals ...any) { r.log("error", msg, keyvals) }

func (r *Recorder) IncCounter(name string, value float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counters = append(r.Counters, RecordedMetric{Name: name, Value: value, Tags: tags})
}

func (r *Recorder) RecordTimer(name string, duration time.Duration, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Timers = append(r.Timers, RecordedMetric{Name: name, Value: duration.Seconds(), Tags: tags})
}

func (r *Recorder) RecordGauge(name string, value float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Gauges = append(r.Gauges, RecordedMetric{Name: name, Value: value, Tags: tags})
}

func (r *Recorder) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (r *Recorder) Span(context.Context) Span { return noopSpan{} }

var (
	_ Logger  = (*Recorder)(nil)
	_ Metrics = (*Recorder)(nil)
	_ Tracer  = (*Recorder)(nil)
)
