package obs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLogSinkRingBehavior(t *testing.T) {
	sink := NewMemoryLogSink(2)
	sink.Write(LogRecord{Level: LogInfo, Message: "a"})
	sink.Write(LogRecord{Level: LogWarn, Message: "b"})
	sink.Write(LogRecord{Level: LogError, Message: "c"})

	snap := sink.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].Message)
	assert.Equal(t, "c", snap[1].Message)
}

func TestMemoryLogSinkZeroCapacityDiscards(t *testing.T) {
	sink := NewMemoryLogSink(0)
	sink.Write(LogRecord{Message: "x"})
	assert.Equal(t, 0, sink.Size())
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "debug", LogDebug.String())
	assert.Equal(t, "error", LogError.String())
	assert.Equal(t, "unknown", LogLevel(250).String())
}
