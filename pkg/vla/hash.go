package vla

import (
	"hash/fnv"
	"strconv"
	"strings"
)

// Hash64 computes the 64-bit FNV-1a hash of text. Used to key the response
// cache and the replay store; delegates to the standard library's
// implementation rather than hand-rolling the XOR/multiply loop, since
// hash/fnv already implements this exact algorithm.
func Hash64(text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

// HashRequest derives a stable cache/replay key from the parts of a Request
// that determine a backend's output: capability, task, instruction,
// observation, action space, model identity, deadline, and constraints.
// Per-call metadata (RunID, TickIndex, NodeName) is deliberately excluded
// so identical requests from different callers share a cache entry.
func HashRequest(req Request) uint64 {
	var b strings.Builder
	b.WriteString(req.Capability)
	b.WriteByte('\n')
	b.WriteString(req.TaskID)
	b.WriteByte('\n')
	b.WriteString(req.Instruction)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(req.Observation.TimestampMs, 10))
	b.WriteByte('\n')
	b.WriteString(req.Observation.FrameID)
	b.WriteByte('\n')
	if req.Observation.Image != nil {
		b.WriteString("img:")
		b.WriteString(strconv.FormatInt(req.Observation.Image.ID, 10))
		b.WriteByte('\n')
	}
	if req.Observation.Blob != nil {
		b.WriteString("blob:")
		b.WriteString(strconv.FormatInt(req.Observation.Blob.ID, 10))
		b.WriteByte('\n')
	}
	b.WriteString("state:")
	for _, v := range req.Observation.State {
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		b.WriteByte(',')
	}
	b.WriteByte('\n')
	b.WriteString("dims:")
	b.WriteString(strconv.FormatInt(req.ActionSpace.Dims, 10))
	b.WriteByte('\n')
	for _, bound := range req.ActionSpace.Bounds {
		b.WriteString(strconv.FormatFloat(bound.Lo, 'g', -1, 64))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(bound.Hi, 'g', -1, 64))
		b.WriteByte(';')
	}
	b.WriteByte('\n')
	b.WriteString("model:")
	b.WriteString(req.Model.Name)
	b.WriteByte(':')
	b.WriteString(req.Model.Version)
	b.WriteByte('\n')
	b.WriteString("deadline:")
	b.WriteString(strconv.FormatInt(req.DeadlineMs, 10))
	b.WriteByte('\n')
	b.WriteString("max_abs:")
	b.WriteString(strconv.FormatFloat(req.Constraints.MaxAbsValue, 'g', -1, 64))
	b.WriteString(" max_delta:")
	b.WriteString(strconv.FormatFloat(req.Constraints.MaxDelta, 'g', -1, 64))
	for _, f := range req.Constraints.ForbiddenRanges {
		b.WriteString(" forbid:")
		b.WriteString(strconv.FormatFloat(f.Lo, 'g', -1, 64))
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(f.Hi, 'g', -1, 64))
	}
	b.WriteByte('\n')
	return Hash64(b.String())
}

func makeOwnerKey(req Request) string {
	return req.RunID + "::" + req.NodeName
}
