package tci

import (
	"math"

	"github.com/sirupsen/logrus"
)

// ProtocolOptimizer finds the constant continuous infusion rate that brings
// the effect-site concentration to a target at a given time, then generates a
// step-down maintenance schedule around it.
type ProtocolOptimizer struct {
	cfg      Config
	params   *PKParameterSet
	weightKg float64
}

// NewProtocolOptimizer validates inputs and builds an optimizer. Missing or
// invalid PK parameters are fatal here, at the boundary.
func NewProtocolOptimizer(params *PKParameterSet, weightKg float64, cfg Config) (*ProtocolOptimizer, error) {
	if params == nil {
		return nil, validationf("pk parameters are required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !(weightKg > 0) {
		return nil, validationf("patient weight must be strictly positive, got %g", weightKg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, validationf("optimizer config: %v", err)
	}
	return &ProtocolOptimizer{cfg: cfg, params: params, weightKg: weightKg}, nil
}

// RateSearchResult is the outcome of a continuous-rate search. Non-convergence
// is non-fatal: the best rate seen is returned with Converged=false.
type RateSearchResult struct {
	RateMgKgHr  float64 // optimized continuous rate (mg/kg/hr)
	BolusMg     float64 // bolus the search was run with
	PredictedCe float64 // simulated Ce at the target time under the rate
	Converged   bool
	Iterations  int
}

// rateBounds returns the search interval and tolerance for a target
// concentration. A fixed interval cannot span clinically valid rates across
// an order of magnitude of targets, so bounds scale by category.
func rateBounds(targetCe float64) (lo, hi, tol float64) {
	switch {
	case targetCe < 0.3: // very low
		return 0.05, 1.5, 0.005
	case targetCe < 0.8: // low
		return 0.1, 3.0, 0.01
	case targetCe < 2.0: // medium
		return 0.2, 6.0, 0.02
	default: // high
		return 0.5, 12.0, 0.05
	}
}

// simulateCeAt runs a fixed-step RK4 simulation from a bolus at t=0 under a
// constant rate and returns the effect-site concentration at atMinutes.
func (o *ProtocolOptimizer) simulateCeAt(bolusMg, rateMgKgHr, atMinutes float64) float64 {
	st := SolverState{Comp: CompartmentState{A1: bolusMg}}
	rate := rateMgPerMin(rateMgKgHr, o.weightKg)
	dt := o.cfg.SearchStep
	steps := int(math.Round(atMinutes / dt))
	for i := 0; i < steps; i++ {
		st = rk4StepWithCe(o.params, st, rate, dt)
	}
	return st.Ce
}

// OptimizeRate binary-searches the continuous rate minimizing
// |Ce(targetTime) - target|. A zero target short-circuits: a rate search
// against a zero target is ill-posed.
func (o *ProtocolOptimizer) OptimizeRate(bolusMg, targetCe, targetTimeMin float64) (RateSearchResult, error) {
	if targetCe < 0 {
		return RateSearchResult{}, validationf("target concentration must be non-negative, got %g", targetCe)
	}
	if bolusMg < 0 {
		return RateSearchResult{}, validationf("bolus must be non-negative, got %g", bolusMg)
	}
	if !(targetTimeMin > 0) {
		return RateSearchResult{}, validationf("target time must be strictly positive, got %g", targetTimeMin)
	}
	if targetCe == 0 {
		return RateSearchResult{Converged: true}, nil
	}

	lo, hi, tol := rateBounds(targetCe)
	best := RateSearchResult{RateMgKgHr: lo, BolusMg: bolusMg}
	bestErr := math.Inf(1)

	for i := 0; i < o.cfg.SearchMaxIterations; i++ {
		mid := (lo + hi) / 2
		ce := o.simulateCeAt(bolusMg, mid, targetTimeMin)
		ceErr := math.Abs(ce - targetCe)
		best.Iterations = i + 1

		if ceErr < bestErr {
			bestErr = ceErr
			best.RateMgKgHr = mid
			best.PredictedCe = ce
		}
		if ceErr < tol {
			best.Converged = true
			break
		}
		if ce < targetCe {
			lo = mid
		} else {
			hi = mid
		}
	}

	if !best.Converged {
		logrus.Warnf("rate search did not converge after %d iterations: best rate %.3f mg/kg/hr, |Ce-target|=%.4f",
			best.Iterations, best.RateMgKgHr, bestErr)
	}
	return best, nil
}
