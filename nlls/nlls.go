// Package nlls implements the small dense nonlinear least-squares machinery
// used for scan matching: Gauss-Newton and Levenberg-Marquardt iteration over
// a Problem, with optional robust reweighting of residuals.
package nlls

import (
	"gonum.org/v1/gonum/mat"
)

// Strategy selects the optimization strategy used by Solve.
type Strategy uint8

const (
	// GaussNewton takes undamped normal-equation steps and accepts every one.
	GaussNewton Strategy = iota
	// LevenbergMarquardt damps the normal equations and only accepts steps
	// that decrease the cost.
	LevenbergMarquardt
)

func (s Strategy) String() string {
	if s == LevenbergMarquardt {
		return "levenberg-marquardt"
	}
	return "gauss-newton"
}

// StrategyFromName maps a strategy name to its variant. "lm" selects
// Levenberg-Marquardt; anything else, including the empty string, selects
// Gauss-Newton. Unknown names are never an error.
func StrategyFromName(name string) Strategy {
	if name == "lm" {
		return LevenbergMarquardt
	}
	return GaussNewton
}

// Config is the reusable solver configuration. It carries no state between
// calls to Solve.
type Config struct {
	MaxIterations int
	Strategy      Strategy
	RobustCost    RobustCost
}

// Problem is a least-squares problem evaluated at an internal state that
// Update advances. Implementations are expected to be cheap to re-evaluate;
// Solve calls Eval once per iteration.
type Problem interface {
	// Eval writes the residual vector at the current state and, when jac is
	// non-nil, the Jacobian of the residuals with respect to the state.
	// Implementations reset and size the destinations themselves so callers
	// can reuse buffers across evaluations.
	Eval(r *mat.VecDense, jac *mat.Dense)
	// Update applies a parameter-space step to the internal state.
	Update(step mat.Vector)
	// Dims returns the residual and parameter counts.
	Dims() (residuals, params int)
}

// StopReason records why Solve stopped iterating.
type StopReason uint8

const (
	// StopMaxIterations means the iteration budget ran out.
	StopMaxIterations StopReason = iota
	// StopSmallStep means the computed step fell below tolerance.
	StopSmallStep
	// StopNotPositiveDefinite means the normal equations could not be
	// factorized, typically because the problem has no gradient information.
	StopNotPositiveDefinite
	// StopNoDecrease means Levenberg-Marquardt could not find a damping that
	// decreased the cost.
	StopNoDecrease
	// StopEmptyProblem means the problem had no residuals or no parameters.
	StopEmptyProblem
)

func (s StopReason) String() string {
	switch s {
	case StopSmallStep:
		return "small step"
	case StopNotPositiveDefinite:
		return "not positive definite"
	case StopNoDecrease:
		return "no decrease"
	case StopEmptyProblem:
		return "empty problem"
	case StopMaxIterations:
		fallthrough
	default:
		return "max iterations"
	}
}

// Summary reports the result of a Solve call.
type Summary struct {
	Iterations  int
	InitialCost float64
	FinalCost   float64
	Stop        StopReason
}

const (
	stepTol      = 1e-8
	lambdaInit   = 1e-4
	lambdaGrow   = 10.0
	lambdaShrink = 0.5
	lambdaMax    = 1e10
)

// Solve minimizes the problem's sum of squared residuals in place, advancing
// the problem's internal state. The summary may be nil.
func Solve(cfg Config, p Problem, summary *Summary) {
	nRes, nPar := p.Dims()
	if nRes == 0 || nPar == 0 {
		if summary != nil {
			*summary = Summary{Stop: StopEmptyProblem}
		}
		return
	}

	var bufA, bufB evalBuffers
	cur, next := &bufA, &bufB
	p.Eval(&cur.r, &cur.jac)
	cost := sumSquares(&cur.r)
	initialCost := cost

	lambda := 0.0
	if cfg.Strategy == LevenbergMarquardt {
		lambda = lambdaInit
	}

	stop := StopMaxIterations
	iter := 0
	for ; iter < cfg.MaxIterations; iter++ {
		h, ok := solveStep(&cur.jac, &cur.r, cfg.RobustCost, lambda)
		if !ok {
			if cfg.Strategy == LevenbergMarquardt && lambda < lambdaMax {
				lambda *= lambdaGrow
				continue
			}
			stop = StopNotPositiveDefinite
			break
		}
		if mat.Norm(h, 2) < stepTol {
			stop = StopSmallStep
			break
		}

		p.Update(h)
		p.Eval(&next.r, &next.jac)
		newCost := sumSquares(&next.r)

		if cfg.Strategy == LevenbergMarquardt && newCost >= cost {
			// Undo the step and retry with stronger damping.
			h.ScaleVec(-1, h)
			p.Update(h)
			lambda *= lambdaGrow
			if lambda > lambdaMax {
				stop = StopNoDecrease
				break
			}
			continue
		}

		cur, next = next, cur
		cost = newCost
		if cfg.Strategy == LevenbergMarquardt {
			lambda *= lambdaShrink
		}
	}

	if summary != nil {
		*summary = Summary{
			Iterations:  iter,
			InitialCost: initialCost,
			FinalCost:   cost,
			Stop:        stop,
		}
	}
}

type evalBuffers struct {
	r   mat.VecDense
	jac mat.Dense
}

// solveStep forms the robust-weighted normal equations JtWJ h = -JtWr and
// returns the Cholesky solution, or false when the system is not positive
// definite.
func solveStep(jac *mat.Dense, r *mat.VecDense, rc RobustCost, lambda float64) (*mat.VecDense, bool) {
	nRes, nPar := jac.Dims()
	normal := mat.NewSymDense(nPar, nil)
	grad := mat.NewVecDense(nPar, nil)

	for i := 0; i < nRes; i++ {
		ri := r.AtVec(i)
		w := rc.Weight(ri)
		if w == 0 {
			continue
		}
		for j := 0; j < nPar; j++ {
			jij := jac.At(i, j)
			if jij == 0 {
				continue
			}
			grad.SetVec(j, grad.AtVec(j)+w*jij*ri)
			for k := j; k < nPar; k++ {
				normal.SetSym(j, k, normal.At(j, k)+w*jij*jac.At(i, k))
			}
		}
	}
	if lambda > 0 {
		for j := 0; j < nPar; j++ {
			normal.SetSym(j, j, normal.At(j, j)*(1+lambda))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(normal); !ok {
		return nil, false
	}
	step := mat.NewVecDense(nPar, nil)
	if err := chol.SolveVecTo(step, grad); err != nil {
		return nil, false
	}
	step.ScaleVec(-1, step)
	return step, true
}

func sumSquares(r *mat.VecDense) float64 {
	return mat.Dot(r, r)
}
