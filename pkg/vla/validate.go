package vla

import (
	"fmt"
	"math"
)

func observationSummary(req Request) string {
	out := fmt.Sprintf("state_dims=%d", len(req.Observation.State))
	if req.Observation.Image != nil {
		out += fmt.Sprintf(" image_id=%d", req.Observation.Image.ID)
	}
	if req.Observation.Blob != nil {
		out += fmt.Sprintf(" blob_id=%d", req.Observation.Blob.ID)
	}
	out += fmt.Sprintf(" frame_id=%s ts_ms=%d", req.Observation.FrameID, req.Observation.TimestampMs)
	return out
}

// validateRequestShape checks the structural preconditions a Request must
// satisfy before a backend is dispatched. It returns the first violation
// found, or "" if the request is well-formed.
func validateRequestShape(req Request) string {
	if req.TaskID == "" {
		return "request.task_id is required"
	}
	if req.Instruction == "" {
		return "request.instruction is required"
	}
	if req.DeadlineMs <= 0 {
		return "request.deadline_ms must be > 0"
	}
	if req.ActionSpace.Type == "" {
		return "request.action_space.type is required"
	}
	if req.ActionSpace.Dims <= 0 {
		return "request.action_space.dims must be > 0"
	}
	if int64(len(req.ActionSpace.Bounds)) != req.ActionSpace.Dims {
		return "request.action_space.bounds length must match dims"
	}
	for _, b := range req.ActionSpace.Bounds {
		if math.IsNaN(b.Lo) || math.IsInf(b.Lo, 0) || math.IsNaN(b.Hi) || math.IsInf(b.Hi, 0) || b.Lo > b.Hi {
			return "request.action_space.bounds entries must be finite and ordered"
		}
	}
	if req.Model.Name == "" || req.Model.Version == "" {
		return "request.model.name and request.model.version are required"
	}
	return ""
}

// validateAndClampAction clamps a continuous action's values into the
// action space's bounds and the request's constraints, and rejects actions
// whose shape or magnitude cannot be reconciled. Non-continuous actions
// pass through unchanged.
func validateAndClampAction(req Request, action *Action) string {
	if action.Type != ActionContinuous {
		return ""
	}

	dims := int(req.ActionSpace.Dims)
	if len(action.U) != dims {
		return "response.action dimensions do not match action space"
	}

	for i := 0; i < dims; i++ {
		if math.IsNaN(action.U[i]) || math.IsInf(action.U[i], 0) {
			return "response.action contains non-finite value"
		}
		bound := req.ActionSpace.Bounds[i]
		action.U[i] = clampFloat(action.U[i], bound.Lo, bound.Hi)

		if math.Abs(action.U[i]) > req.Constraints.MaxAbsValue {
			action.U[i] = math.Copysign(req.Constraints.MaxAbsValue, action.U[i])
		}

		for _, f := range req.Constraints.ForbiddenRanges {
			if action.U[i] >= f.Lo && action.U[i] <= f.Hi {
				return "response.action intersects forbidden range"
			}
		}
	}

	state := req.Observation.State
	if len(state) > 0 {
		n := len(state)
		if len(action.U) < n {
			n = len(action.U)
		}
		for i := 0; i < n; i++ {
			delta := action.U[i] - state[i]
			if math.Abs(delta) > req.Constraints.MaxDelta {
				action.U[i] = state[i] + math.Copysign(req.Constraints.MaxDelta, delta)
				bound := req.ActionSpace.Bounds[i]
				action.U[i] = clampFloat(action.U[i], bound.Lo, bound.Hi)
			}
		}
	}

	return ""
}
