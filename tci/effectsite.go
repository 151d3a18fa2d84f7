package tci

import (
	"errors"
	"math"

	"github.com/sirupsen/logrus"
)

// Effect-site solving: converts a plasma-concentration trajectory on a
// strictly increasing time grid into the effect-site trajectory obeying
// dCe/dt = ke0·(Cp-Ce), Ce(0)=0.
//
// Two interchangeable rules are provided. The discrete midpoint-substep rule
// is the reference semantics; the hybrid rule is the exact solution for
// piecewise-linear Cp, unconditionally stable for any interval length, and is
// the production path.

// defaultSubstep is the substep width (minutes) of the discrete reference rule.
const defaultSubstep = 0.005

func validateTrajectory(cp, times []float64, ke0 float64) error {
	if len(cp) != len(times) {
		return validationf("plasma and time series length mismatch: %d vs %d", len(cp), len(times))
	}
	if len(times) == 0 {
		return validationf("empty plasma trajectory")
	}
	if !(ke0 > 0) {
		return validationf("ke0 must be strictly positive, got %g", ke0)
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return validationf("time grid not strictly increasing at index %d: %g <= %g", i, times[i], times[i-1])
		}
	}
	return nil
}

// hybridCeStep is the exact update for one interval under linear Cp. With
// slope = (cp1-cp0)/dt, the solution of dCe/dt = ke0·(Cp(t)-Ce) is
//
//	Ce(dt) = cp1 - slope/ke0 + (ce0 - cp0 + slope/ke0)·e^(-ke0·dt)
//
// which is stable for any dt and reduces to exponential relaxation when the
// plasma input is constant.
func hybridCeStep(ke0, ce0, cp0, cp1, dt float64) float64 {
	if dt <= 0 {
		return ce0
	}
	slope := (cp1 - cp0) / dt
	ce := cp1 - slope/ke0 + (ce0-cp0+slope/ke0)*math.Exp(-ke0*dt)
	if ce < 0 {
		ce = 0
	}
	return ce
}

// SolveEffectSite computes the effect-site trajectory with the hybrid rule,
// starting from Ce(0)=0. Production path.
func SolveEffectSite(cp, times []float64, ke0 float64) ([]float64, error) {
	return SolveEffectSiteFrom(cp, times, ke0, 0)
}

// SolveEffectSiteFrom is SolveEffectSite with an explicit initial effect-site
// concentration, used when resuming a session mid-trajectory.
func SolveEffectSiteFrom(cp, times []float64, ke0, ce0 float64) ([]float64, error) {
	if err := validateTrajectory(cp, times, ke0); err != nil {
		return nil, err
	}
	ce := make([]float64, len(cp))
	ce[0] = ce0
	for i := 1; i < len(cp); i++ {
		ce[i] = hybridCeStep(ke0, ce[i-1], cp[i-1], cp[i], times[i]-times[i-1])
		if math.IsNaN(ce[i]) || math.IsInf(ce[i], 0) {
			return nil, &NumericalError{Op: "hybrid effect-site step", TimeMinutes: times[i], Detail: "non-finite Ce"}
		}
	}
	return ce, nil
}

// SolveEffectSiteDiscrete computes the effect-site trajectory with the
// discrete reference rule: within each interval Cp is interpolated linearly
// and the ODE advanced with ceil(Δt/dtSub) midpoint substeps. dtSub <= 0
// selects the default substep width.
func SolveEffectSiteDiscrete(cp, times []float64, ke0, dtSub float64) ([]float64, error) {
	if err := validateTrajectory(cp, times, ke0); err != nil {
		return nil, err
	}
	if dtSub <= 0 {
		dtSub = defaultSubstep
	}
	ce := make([]float64, len(cp))
	for i := 1; i < len(cp); i++ {
		dt := times[i] - times[i-1]
		n := int(math.Ceil(dt / dtSub))
		h := dt / float64(n)
		c := ce[i-1]
		for j := 0; j < n; j++ {
			// midpoint method: evaluate the slope at the substep center
			// with Cp interpolated linearly across the interval
			tMidFrac := (float64(j) + 0.5) * h / dt
			cpMid := cp[i-1] + (cp[i]-cp[i-1])*tMidFrac
			cHalf := c + h/2*ke0*(cpAtFrac(cp[i-1], cp[i], float64(j)*h/dt)-c)
			c += h * ke0 * (cpMid - cHalf)
			if c < 0 {
				c = 0
			}
		}
		ce[i] = c
	}
	return ce, nil
}

func cpAtFrac(cp0, cp1, frac float64) float64 {
	return cp0 + (cp1-cp0)*frac
}

// effectSiteMethod names one entry of the ordered fallback chain.
type effectSiteMethod struct {
	name  string
	solve func(cp, times []float64, ke0, dtSub float64) ([]float64, error)
}

// effectSiteChain is the ordered fallback chain for trajectory conversion:
// hybrid first, discrete reference on numerical failure. Explicit chain, not
// exception-driven control flow.
var effectSiteChain = []effectSiteMethod{
	{name: "hybrid", solve: func(cp, times []float64, ke0, _ float64) ([]float64, error) {
		return SolveEffectSite(cp, times, ke0)
	}},
	{name: "discrete", solve: SolveEffectSiteDiscrete},
}

// solveEffectSiteChained walks the fallback chain. Validation errors abort
// immediately (every method would reject the same input); numerical failures
// fall through to the next method with an audit log line.
func solveEffectSiteChained(cp, times []float64, ke0, dtSub float64) ([]float64, string, error) {
	var lastErr error
	for _, m := range effectSiteChain {
		ce, err := m.solve(cp, times, ke0, dtSub)
		if err == nil {
			return ce, m.name, nil
		}
		if errors.Is(err, ErrValidation) {
			return nil, "", err
		}
		logrus.Warnf("effect-site method %q failed (%v), falling back", m.name, err)
		lastErr = err
	}
	return nil, "", lastErr
}
