package obs

import (
	"sync"
	"time"

	"github.com/unswei/muesli-bt/pkg/bt/ast"
)

// LogLevel is the severity of a LogRecord.
type LogLevel uint8

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

var logLevelNames = map[LogLevel]string{
	LogDebug: "debug",
	LogInfo:  "info",
	LogWarn:  "warn",
	LogError: "error",
}

// String renders the log level the way JSONL export and dumps do.
func (l LogLevel) String() string {
	if n, ok := logLevelNames[l]; ok {
		return n
	}
	return "unknown"
}

// LogRecord is one structured log line emitted during a tick.
type LogRecord struct {
	Sequence  uint64
	TS        time.Time
	Level     LogLevel
	TickIndex uint64
	Node      ast.NodeID
	Category  string
	Message   string
}

// LogSink receives log records as they are written.
type LogSink interface {
	Write(rec LogRecord)
}

// MemoryLogSink is a fixed-capacity ring buffer LogSink, the default sink
// used when no external log pipeline is configured.
type MemoryLogSink struct {
	mu       sync.Mutex
	capacity int
	records  []LogRecord
	sequence uint64
}

// NewMemoryLogSink constructs a MemoryLogSink holding at most
// capacityRecords.
func NewMemoryLogSink(capacityRecords int) *MemoryLogSink {
	return &MemoryLogSink{capacity: capacityRecords, records: make([]LogRecord, 0, capacityRecords)}
}

// Write appends rec, assigning it the next sequence number.
func (s *MemoryLogSink) Write(rec LogRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	rec.Sequence = s.sequence

	if s.capacity == 0 {
		return
	}
	if len(s.records) == s.capacity {
		s.records = append(s.records[:0], s.records[1:]...)
	}
	s.records = append(s.records, rec)
}

// Snapshot returns a copy of the currently buffered records, oldest first.
func (s *MemoryLogSink) Snapshot() []LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Size returns the number of records currently buffered.
func (s *MemoryLogSink) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Capacity returns the configured maximum buffer size.
func (s *MemoryLogSink) Capacity() int { return s.capacity }

// Clear empties the buffer without resetting the sequence counter.
func (s *MemoryLogSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = s.records[:0]
}

var _ LogSink = (*MemoryLogSink)(nil)
