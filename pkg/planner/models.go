package planner

import "gonum.org/v1/gonum/floats"

// Toy1DModel is a 1-D goal-seeking dynamics model: state is a single
// position, action is a signed step in [-1, 1], goal is position 1.0.
type Toy1DModel struct{}

func (Toy1DModel) Step(state, action Vector, _ *RNG) StepResult {
	if len(state) == 0 {
		panic("toy-1d: expected non-empty state")
	}
	if len(action) == 0 {
		panic("toy-1d: expected non-empty action")
	}
	x := state[0]
	a := clampFloat(action[0], -1.0, 1.0)
	x2 := x + 0.25*a
	const goal = 1.0
	err := goal - x2

	return StepResult{
		NextState: Vector{x2},
		Reward:    -absFloat(err),
		Done:      absFloat(err) < 0.05,
	}
}

func (Toy1DModel) SampleAction(_ Vector, rng *RNG) Vector {
	return Vector{rng.Uniform(-1.0, 1.0)}
}

func (Toy1DModel) RolloutAction(state Vector, rng *RNG) Vector {
	x := 0.0
	if len(state) > 0 {
		x = state[0]
	}
	dir := -1.0
	if x < 1.0 {
		dir = 1.0
	}
	noise := rng.Normal(0.0, 0.25)
	return Vector{clampFloat(0.8*dir+noise, -1.0, 1.0)}
}

func (Toy1DModel) ClampAction(action Vector) Vector {
	if len(action) == 0 {
		return Vector{0.0}
	}
	return Vector{clampFloat(action[0], -1.0, 1.0)}
}

func (Toy1DModel) ZeroAction() Vector { return Vector{0.0} }

func (Toy1DModel) ValidateState(state Vector) bool {
	return len(state) > 0 && vectorAllFinite(state)
}

func (Toy1DModel) ActionDims() int { return 1 }

// PTZTrackModel is a 2-axis pan/tilt camera tracking model: state is
// [pan tilt ball_x ball_y ball_vx ball_vy], action is [dpan dtilt].
type PTZTrackModel struct{}

func (PTZTrackModel) Step(state, action Vector, rng *RNG) StepResult {
	if len(state) < 4 {
		panic("ptz-track: expected state [pan tilt ball_x ball_y ...]")
	}
	if len(action) < 2 {
		panic("ptz-track: expected action [dpan dtilt]")
	}

	pan, tilt := state[0], state[1]
	ballX, ballY := state[2], state[3]
	ballVX, ballVY := 0.0, 0.0
	if len(state) > 4 {
		ballVX = state[4]
	}
	if len(state) > 5 {
		ballVY = state[5]
	}

	dpan := clampFloat(action[0], -0.25, 0.25)
	dtilt := clampFloat(action[1], -0.25, 0.25)

	pan2 := clampFloat(pan+dpan, -1.5, 1.5)
	tilt2 := clampFloat(tilt+dtilt, -1.0, 1.0)

	noiseX := rng.Normal(0.0, 0.01)
	noiseY := rng.Normal(0.0, 0.01)
	bx2 := clampFloat(ballX+ballVX-dpan*1.15+noiseX, -2.0, 2.0)
	by2 := clampFloat(ballY+ballVY-dtilt*1.15+noiseY, -2.0, 2.0)

	dist := floats.Distance([]float64{bx2, by2}, []float64{0, 0}, 2)
	effort := floats.Norm([]float64{dpan, dtilt}, 1)

	return StepResult{
		NextState: Vector{pan2, tilt2, bx2, by2, ballVX, ballVY},
		Reward:    -dist - 0.05*effort,
		Done:      dist < 0.03,
	}
}

func (PTZTrackModel) SampleAction(_ Vector, rng *RNG) Vector {
	return Vector{rng.Uniform(-0.25, 0.25), rng.Uniform(-0.25, 0.25)}
}

func (PTZTrackModel) RolloutAction(state Vector, rng *RNG) Vector {
	if len(state) < 4 {
		return Vector{0.0, 0.0}
	}
	bx, by := state[2], state[3]
	dpan := clampFloat(0.65*bx+rng.Normal(0.0, 0.03), -0.25, 0.25)
	dtilt := clampFloat(0.65*by+rng.Normal(0.0, 0.03), -0.25, 0.25)
	return Vector{dpan, dtilt}
}

func (PTZTrackModel) ClampAction(action Vector) Vector {
	a0, a1 := 0.0, 0.0
	if len(action) > 0 {
		a0 = action[0]
	}
	if len(action) > 1 {
		a1 = action[1]
	}
	return Vector{clampFloat(a0, -0.25, 0.25), clampFloat(a1, -0.25, 0.25)}
}

func (PTZTrackModel) ZeroAction() Vector { return Vector{0.0, 0.0} }

func (PTZTrackModel) ValidateState(state Vector) bool {
	return len(state) >= 4 && vectorAllFinite(state)
}

func (PTZTrackModel) ActionDims() int { return 2 }

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
