package interpreter

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// generateRunID returns a globally unique run identifier for a single
// planner/VLA invocation, prefixed with the originating leaf's name for
// observability in the planner/VLA JSONL telemetry. Without this, every
// invocation of the same leaf across every tick and every instance would
// share the one RunID its leaf name supplies, making individual runs
// impossible to pick out of the telemetry stream.
func generateRunID(leafName string) string {
	prefix := strings.ReplaceAll(leafName, ".", "-")
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
