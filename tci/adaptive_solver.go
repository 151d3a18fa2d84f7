package tci

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// AdaptiveTrajectory is the output of an adaptive run: samples on the
// caller's reporting grid plus the controller counters for the run.
type AdaptiveTrajectory struct {
	Points []TimeSeriesPoint
	Stats  AdaptiveStepStats
}

// AdaptiveStepSolver drives the adaptive controller across a horizon:
// propose, clip at the next event or horizon end, retry on rejection, commit,
// apply coincident events, then resample onto the reporting grid.
type AdaptiveStepSolver struct {
	cfg        Config
	params     *PKParameterSet
	weightKg   float64
	controller *AdaptiveStepController
}

// NewAdaptiveStepSolver validates inputs and builds a solver. update nil
// selects the production coupled RK4 update.
func NewAdaptiveStepSolver(params *PKParameterSet, weightKg float64, cfg Config, update StepUpdateFunc) (*AdaptiveStepSolver, error) {
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
		return nil, fmt.Errorf("adaptive solver config: %w", err)
	}
	return &AdaptiveStepSolver{
		cfg:        cfg,
		params:     params,
		weightKg:   weightKg,
		controller: NewAdaptiveStepController(params, cfg, update),
	}, nil
}

// Solve runs from the initial state to durationMin and returns the resampled
// trajectory. The initial state's clock marks t=0 of the run; timeline events
// are interpreted on the same clock.
func (sv *AdaptiveStepSolver) Solve(initial SolverState, tl *DoseTimeline, durationMin float64) (*AdaptiveTrajectory, error) {
	if tl == nil {
		return nil, validationf("dose timeline is required")
	}
	if !(durationMin > 0) {
		return nil, validationf("duration must be strictly positive, got %g", durationMin)
	}
	sv.controller.Reset()

	state := initial
	rate := tl.RateAt(initial.TimeMinutes - eventEpsilon)
	state, rate = sv.controller.ApplyCoincidentEvents(state, tl, rate)

	end := initial.TimeMinutes + durationMin
	accepted := []SolverState{state}

	for state.TimeMinutes < end-eventEpsilon {
		nextEvent := tl.NextEventAfter(state.TimeMinutes + eventEpsilon)
		dt := sv.controller.ProposeStep(state, nextEvent, end)

		next, err := sv.controller.Advance(state, rateMgPerMin(rate, sv.weightKg), dt)
		if err != nil {
			return nil, err
		}
		next, rate = sv.controller.ApplyCoincidentEvents(next, tl, rate)
		state = next
		accepted = append(accepted, state)
	}

	points, err := sv.resample(accepted, tl, initial.TimeMinutes, end)
	if err != nil {
		return nil, err
	}
	return &AdaptiveTrajectory{Points: points, Stats: sv.controller.Stats()}, nil
}

// resample interpolates every numeric state field linearly between bracketing
// accepted states onto the fixed reporting grid. Only the interpolation
// counter of the controller statistics changes here.
func (sv *AdaptiveStepSolver) resample(accepted []SolverState, tl *DoseTimeline, start, end float64) ([]TimeSeriesPoint, error) {
	times := make([]float64, len(accepted))
	a1 := make([]float64, len(accepted))
	a2 := make([]float64, len(accepted))
	a3 := make([]float64, len(accepted))
	ce := make([]float64, len(accepted))
	for i, s := range accepted {
		times[i] = s.TimeMinutes
		a1[i] = s.Comp.A1
		a2[i] = s.Comp.A2
		a3[i] = s.Comp.A3
		ce[i] = s.Ce
	}

	fit := func(ys []float64) (interp.PiecewiseLinear, error) {
		var pl interp.PiecewiseLinear
		if err := pl.Fit(times, ys); err != nil {
			return pl, fmt.Errorf("fitting reporting-grid interpolant: %w", err)
		}
		return pl, nil
	}

	if len(accepted) < 2 {
		s := accepted[0]
		return []TimeSeriesPoint{{
			TimeMinutes:    s.TimeMinutes,
			PlasmaConc:     s.Comp.PlasmaConcentration(sv.params.V1),
			EffectSiteConc: s.Ce,
			InfusionRate:   tl.RateAt(s.TimeMinutes),
		}}, nil
	}

	pa1, err := fit(a1)
	if err != nil {
		return nil, err
	}
	pa2, err := fit(a2)
	if err != nil {
		return nil, err
	}
	pa3, err := fit(a3)
	if err != nil {
		return nil, err
	}
	pce, err := fit(ce)
	if err != nil {
		return nil, err
	}

	var points []TimeSeriesPoint
	for t := start; t <= end+eventEpsilon; t += sv.cfg.ReportInterval {
		if t > end {
			t = end
		}
		st := SolverState{
			TimeMinutes: t,
			Comp: CompartmentState{
				A1: pa1.Predict(t),
				A2: pa2.Predict(t),
				A3: pa3.Predict(t),
			}.clampNonNegative(),
			Ce: pce.Predict(t),
		}
		points = append(points, TimeSeriesPoint{
			TimeMinutes:    st.TimeMinutes,
			PlasmaConc:     st.Comp.PlasmaConcentration(sv.params.V1),
			EffectSiteConc: st.Ce,
			InfusionRate:   tl.RateAt(t),
		})
	}
	sv.controller.noteInterpolations(len(points))
	return points, nil
}
