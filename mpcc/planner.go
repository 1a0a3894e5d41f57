// Package mpcc implements a Model-Predictive Contouring Control planner for
// cursor motion: given the current kinematic state and a reference path it
// solves for a horizon of jerk and virtual-speed controls that track the path
// inside a corridor under acceleration limits.
package mpcc

import (
	"context"
	"math"

	"github.com/edaniels/golog"
	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"github.com/steeringlab/cursorplan/corridor"
	"github.com/steeringlab/cursorplan/refpath"
)

const (
	// scaleJerk rescales the jerk decision variables for numeric
	// conditioning; raw jerk magnitudes run in the hundreds.
	scaleJerk = 1000.0
	// minSpeedScale floors the virtual-speed rescaling so tiny desired
	// speeds do not blow the variables up.
	minSpeedScale = 0.1

	solverMaxEval = 10000
	solverFtolRel = 1e-6
	// fdJump is the forward-difference step used for objective gradients.
	fdJump = 1e-8
	// constraintTol is the allowed violation on the acceleration rows.
	constraintTol = 1e-8
)

// Planner is a stateless per-step MPCC solver. Every Solve re-solves from
// scratch, making the planner robust to externally perturbed state at the
// cost of repeated computation; a warm start may be supplied purely as a
// performance opt-in.
type Planner struct {
	horizon int
	dt      float64
	weights Weights
	limits  Limits
	logger  golog.Logger

	accKernel  *mat.Dense
	velKernel  *mat.Dense
	posKernel  *mat.Dense
	progKernel *mat.Dense
}

// NewPlanner builds a planner for a fixed horizon and timestep. The dynamics
// kernels only depend on those two, so they are computed once here.
func NewPlanner(horizon int, dt float64, weights Weights, limits Limits, logger golog.Logger) (*Planner, error) {
	if horizon < 1 {
		return nil, errors.Errorf("planner horizon must be positive, got %d", horizon)
	}
	if dt <= 0 {
		return nil, errors.Errorf("planner timestep must be positive, got %f", dt)
	}
	return &Planner{
		horizon:    horizon,
		dt:         dt,
		weights:    weights,
		limits:     limits,
		logger:     logger,
		accKernel:  jerkToAccKernel(horizon, dt),
		velKernel:  jerkToVelKernel(horizon, dt),
		posKernel:  jerkToPosKernel(horizon, dt),
		progKernel: progressKernel(horizon, dt),
	}, nil
}

// Horizon returns the number of planning steps.
func (p *Planner) Horizon() int {
	return p.horizon
}

// Request is one planning query.
type Request struct {
	Path  *refpath.Path
	State State
	// BoundLeft and BoundRight are optional corridor clearances by
	// arclength; nil disables the wall penalty.
	BoundLeft, BoundRight corridor.Bound
	// Warmstart seeds the solver from a previous plan's controls when the
	// length matches the horizon. Optional.
	Warmstart []Control
}

type solveReturn struct {
	solution []float64
	score    float64
	err      error
}

// Solve runs one MPCC solve. Non-convergence is not an error: the best
// iterate found is returned with Debug.Converged set to false. The only
// errors are a missing path, solver construction failure, or a canceled
// context.
func (p *Planner) Solve(ctx context.Context, req *Request) (*Plan, error) {
	if req == nil || req.Path == nil {
		return nil, errors.New("mpcc solve requires a reference path")
	}

	n := p.horizon
	theta0 := req.Path.ClosestTheta(req.State.Pos)
	scaleVS := math.Max(minSpeedScale, p.weights.DesiredSpeed)

	// Free response of the triple integrator under zero jerk.
	pxFree := make([]float64, n)
	pyFree := make([]float64, n)
	vxFree := make([]float64, n)
	vyFree := make([]float64, n)
	axFree := make([]float64, n)
	ayFree := make([]float64, n)
	st := req.State
	for k := 0; k < n; k++ {
		t := float64(k+1) * p.dt
		t2 := 0.5 * t * t
		pxFree[k] = st.Pos.X + st.Vel.X*t + st.Acc.X*t2
		pyFree[k] = st.Pos.Y + st.Vel.Y*t + st.Acc.Y*t2
		vxFree[k] = st.Vel.X + st.Acc.X*t
		vyFree[k] = st.Vel.Y + st.Acc.Y*t
		axFree[k] = st.Acc.X
		ayFree[k] = st.Acc.Y
	}

	// Scratch buffers shared across objective evaluations.
	jx := make([]float64, n)
	jy := make([]float64, n)
	vs := make([]float64, n)
	sTraj := make([]float64, n)
	vx := make([]float64, n)
	vy := make([]float64, n)
	px := make([]float64, n)
	py := make([]float64, n)

	evaluations := 0
	bestCost := math.Inf(1)
	bestX := make([]float64, 3*n)

	cost := func(x []float64) float64 {
		for k := 0; k < n; k++ {
			jx[k] = x[k] * scaleJerk
			jy[k] = x[n+k] * scaleJerk
			vs[k] = x[2*n+k] * scaleVS
		}

		// Jerk smoothness.
		jerkCost := 0.0
		for k := 0; k < n; k++ {
			jerkCost += jx[k]*jx[k] + jy[k]*jy[k]
		}
		jerkCost *= p.weights.Jerk

		mulKernel(p.progKernel, vs, sTraj)
		mulKernel(p.velKernel, jx, vx)
		mulKernel(p.velKernel, jy, vy)
		mulKernel(p.posKernel, jx, px)
		mulKernel(p.posKernel, jy, py)

		progressCost := 0.0
		trackingCost := 0.0
		for k := 0; k < n; k++ {
			s := theta0 + sTraj[k]
			vxk := vxFree[k] + vx[k]
			vyk := vyFree[k] + vy[k]
			pxk := pxFree[k] + px[k]
			pyk := pyFree[k] + py[k]

			// Curvature-adaptive speed target.
			speed := math.Hypot(vxk, vyk)
			kappa := math.Abs(req.Path.Curvature(s))
			target := p.weights.DesiredSpeed / (1 + p.weights.CurvatureScale*kappa)
			dv := speed - target
			progressCost += dv * dv

			// Position error rotated into the path-local frame; the first
			// component is the lateral contour error, the second the
			// longitudinal lag.
			ref := req.Path.At(s)
			tan := req.Path.Tangent(s)
			ex := pxk - ref.X
			ey := pyk - ref.Y
			contourErr := tan.Y*ex - tan.X*ey
			lagErr := -tan.X*ex - tan.Y*ey
			trackingCost += p.weights.Contour*contourErr*contourErr + p.weights.Lag*lagErr*lagErr

			// One-sided corridor penalty: quadratic outside the clearance,
			// flat inside, C1 at the wall.
			if req.BoundLeft != nil && req.BoundRight != nil {
				violLeft := math.Max(0, contourErr-req.BoundLeft.Clearance(s))
				violRight := math.Max(0, -contourErr-req.BoundRight.Clearance(s))
				trackingCost += p.weights.Wall * (violLeft*violLeft + violRight*violRight)
			}
		}
		progressCost *= p.weights.Progress

		return jerkCost + progressCost + trackingCost
	}

	objective := func(x, gradient []float64) float64 {
		evaluations++
		val := cost(x)
		if val < bestCost {
			bestCost = val
			copy(bestX, x)
		}
		if gradient != nil {
			for i := range gradient {
				orig := x[i]
				x[i] = orig + fdJump
				gradient[i] = (cost(x) - val) / fdJump
				x[i] = orig
			}
		}
		return val
	}

	// Acceleration rows are linear in the jerk variables, so their gradient
	// is the (scaled) acceleration kernel itself.
	accMax := p.limits.AccMax
	nv := 3 * n
	accConstraint := func(result, x, gradient []float64) {
		if gradient != nil {
			for i := range gradient {
				gradient[i] = 0
			}
		}
		for k := 0; k < n; k++ {
			axk := axFree[k]
			ayk := ayFree[k]
			for i := 0; i <= k; i++ {
				axk += p.accKernel.At(k, i) * x[i] * scaleJerk
				ayk += p.accKernel.At(k, i) * x[n+i] * scaleJerk
			}

			base := 4 * k
			result[base] = axk - accMax
			result[base+1] = -axk - accMax
			result[base+2] = ayk - accMax
			result[base+3] = -ayk - accMax

			if gradient != nil {
				for i := 0; i <= k; i++ {
					g := p.accKernel.At(k, i) * scaleJerk
					gradient[base*nv+i] = g
					gradient[(base+1)*nv+i] = -g
					gradient[(base+2)*nv+n+i] = g
					gradient[(base+3)*nv+n+i] = -g
				}
			}
		}
	}

	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(nv))
	if err != nil {
		return nil, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	lower := make([]float64, nv)
	upper := make([]float64, nv)
	for i := 0; i < 2*n; i++ {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(1)
	}
	for i := 2 * n; i < nv; i++ {
		lower[i] = 0
		upper[i] = math.Inf(1)
	}
	tol := make([]float64, 4*n)
	for i := range tol {
		tol[i] = constraintTol
	}

	err = multierr.Combine(
		opt.SetLowerBounds(lower),
		opt.SetUpperBounds(upper),
		opt.SetMinObjective(objective),
		opt.AddInequalityMConstraint(accConstraint, tol),
		opt.SetFtolRel(solverFtolRel),
		opt.SetMaxEval(solverMaxEval),
	)
	if err != nil {
		return nil, errors.Wrap(err, "nlopt setup error")
	}

	x0 := make([]float64, nv)
	if len(req.Warmstart) == n {
		for k, c := range req.Warmstart {
			x0[k] = c.JerkX / scaleJerk
			x0[n+k] = c.JerkY / scaleJerk
			x0[2*n+k] = math.Max(0, c.VirtualSpeed/scaleVS)
		}
	} else {
		for i := 2 * n; i < nv; i++ {
			x0[i] = p.weights.DesiredSpeed / scaleVS
		}
	}

	solveChan := make(chan *solveReturn, 1)
	utils.PanicCapturingGo(func() {
		sol, score, solveErr := opt.Optimize(x0)
		solveChan <- &solveReturn{sol, score, solveErr}
	})

	var res *solveReturn
	select {
	case <-ctx.Done():
		err = opt.ForceStop()
		<-solveChan
		return nil, multierr.Combine(err, ctx.Err())
	case res = <-solveChan:
	}

	converged := solveConverged(res.err, evaluations)
	solution := res.solution
	finalCost := res.score
	if solution == nil || !converged {
		// The solver gave up; the best iterate is still usable.
		solution = bestX
		finalCost = bestCost
		if p.logger != nil {
			p.logger.Debugw("mpcc solve did not converge, returning best iterate",
				"error", res.err, "cost", finalCost, "evaluations", evaluations)
		}
	}

	return p.assemble(req, theta0, solution, scaleVS, converged, finalCost, evaluations), nil
}

// solveConverged interprets the solver outcome. An error is a failure, and
// exhausting the evaluation budget counts as non-convergence even though the
// solver reports that as a normal stop.
func solveConverged(err error, evaluations int) bool {
	return err == nil && evaluations < solverMaxEval
}

// assemble rescales the solution and reconstructs the kinematic profiles.
func (p *Planner) assemble(
	req *Request,
	theta0 float64,
	solution []float64,
	scaleVS float64,
	converged bool,
	finalCost float64,
	evaluations int,
) *Plan {
	n := p.horizon
	st := req.State

	controls := make([]Control, n)
	jx := make([]float64, n)
	jy := make([]float64, n)
	for k := 0; k < n; k++ {
		jx[k] = solution[k] * scaleJerk
		jy[k] = solution[n+k] * scaleJerk
		controls[k] = Control{
			JerkX:        jx[k],
			JerkY:        jy[k],
			VirtualSpeed: math.Max(0, solution[2*n+k]*scaleVS),
		}
	}

	dvx := make([]float64, n)
	dvy := make([]float64, n)
	dpx := make([]float64, n)
	dpy := make([]float64, n)
	mulKernel(p.velKernel, jx, dvx)
	mulKernel(p.velKernel, jy, dvy)
	mulKernel(p.posKernel, jx, dpx)
	mulKernel(p.posKernel, jy, dpy)

	velX := make([]float64, n+1)
	velY := make([]float64, n+1)
	velX[0] = st.Vel.X
	velY[0] = st.Vel.Y
	idealX := make([]float64, n)
	idealY := make([]float64, n)
	deltaX := make([]float64, n)
	deltaY := make([]float64, n)
	prevX, prevY := st.Pos.X, st.Pos.Y
	for k := 0; k < n; k++ {
		t := float64(k+1) * p.dt
		t2 := 0.5 * t * t
		velX[k+1] = st.Vel.X + st.Acc.X*t + dvx[k]
		velY[k+1] = st.Vel.Y + st.Acc.Y*t + dvy[k]
		idealX[k] = st.Pos.X + st.Vel.X*t + st.Acc.X*t2 + dpx[k]
		idealY[k] = st.Pos.Y + st.Vel.Y*t + st.Acc.Y*t2 + dpy[k]
		deltaX[k] = idealX[k] - prevX
		deltaY[k] = idealY[k] - prevY
		prevX, prevY = idealX[k], idealY[k]
	}

	return &Plan{
		Controls: controls,
		DeltaX:   deltaX,
		DeltaY:   deltaY,
		VelX:     velX,
		VelY:     velY,
		Debug: Debug{
			IdealX:      idealX,
			IdealY:      idealY,
			Target:      req.Path.At(theta0),
			Progress:    theta0,
			Converged:   converged,
			Cost:        finalCost,
			Evaluations: evaluations,
		},
	}
}
