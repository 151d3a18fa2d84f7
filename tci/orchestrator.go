package tci

import (
	"math"

	"github.com/sirupsen/logrus"
)

// defaultHorizonTail is how far past the last dose event a monitoring
// simulation extends when no horizon is given.
const defaultHorizonTail = 120.0 // minutes

// SimulationResult is the output of a monitoring run: the reporting-grid
// trajectory plus which methods produced it.
type SimulationResult struct {
	Points           []TimeSeriesPoint
	Method           string             // integration method label
	EffectSiteMethod string             // "hybrid" or "discrete" (after fallback)
	Stats            *AdaptiveStepStats // non-nil only for adaptive runs
}

// SimulationOrchestrator drives an arbitrary dose timeline over a full
// horizon for display and export. The integration method is resolved once at
// construction; swapping it never changes the trajectory contract.
type SimulationOrchestrator struct {
	params   *PKParameterSet
	weightKg float64
	cfg      Config
	method   Method
}

// NewSimulationOrchestrator validates inputs and builds an orchestrator.
func NewSimulationOrchestrator(params *PKParameterSet, weightKg float64, cfg Config, method Method) (*SimulationOrchestrator, error) {
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
		return nil, validationf("orchestrator config: %v", err)
	}
	return &SimulationOrchestrator{params: params, weightKg: weightKg, cfg: cfg, method: method}, nil
}

// Run simulates the timeline to horizonMin (last event + 120 min when
// horizonMin <= 0) and returns the reporting-grid trajectory. A bolus at t=0
// becomes the initial condition; later boluses are synchronous events.
func (o *SimulationOrchestrator) Run(tl *DoseTimeline, horizonMin float64) (*SimulationResult, error) {
	if tl == nil {
		return nil, validationf("dose timeline is required")
	}
	if horizonMin <= 0 {
		horizonMin = tl.LastEventTime() + defaultHorizonTail
	}

	if o.method == MethodAdaptiveRK4 {
		return o.runAdaptive(tl, horizonMin)
	}
	return o.runFixedStep(tl, horizonMin)
}

func (o *SimulationOrchestrator) runAdaptive(tl *DoseTimeline, horizonMin float64) (*SimulationResult, error) {
	solver, err := NewAdaptiveStepSolver(o.params, o.weightKg, o.cfg, nil)
	if err != nil {
		return nil, err
	}
	traj, err := solver.Solve(SolverState{}, tl, horizonMin)
	if err != nil {
		return nil, err
	}
	stats := traj.Stats
	return &SimulationResult{
		Points:           traj.Points,
		Method:           o.method.String(),
		EffectSiteMethod: "hybrid",
		Stats:            &stats,
	}, nil
}

func (o *SimulationOrchestrator) runFixedStep(tl *DoseTimeline, horizonMin float64) (*SimulationResult, error) {
	dt := o.cfg.HighResStep
	steps := int(math.Round(horizonMin / dt))

	step := rk4Step
	if o.method == MethodEuler {
		step = eulerStep
	}

	state := CompartmentState{}
	events := tl.Events()
	cursor := 0
	rate := 0.0

	// t=0 bolus is the initial condition, not a mid-integration event
	for cursor < len(events) && events[cursor].TimeMinutes <= eventEpsilon {
		state.A1 += events[cursor].BolusMg
		rate = events[cursor].RateMgKgHr
		cursor++
	}

	times := make([]float64, steps+1)
	cp := make([]float64, steps+1)
	rates := make([]float64, steps+1)
	cp[0] = state.PlasmaConcentration(o.params.V1)
	rates[0] = rate

	for i := 1; i <= steps; i++ {
		state = step(o.params, state, rateMgPerMin(rate, o.weightKg), dt)
		t := float64(i) * dt

		// apply events that have come due at this grid point
		for cursor < len(events) && events[cursor].TimeMinutes <= t+dt/2 {
			state.A1 += events[cursor].BolusMg
			rate = events[cursor].RateMgKgHr
			cursor++
		}

		times[i] = t
		cp[i] = state.PlasmaConcentration(o.params.V1)
		rates[i] = rate
	}

	ce, ceMethod, err := solveEffectSiteChained(cp, times, o.params.Ke0, o.cfg.EffectSiteSubstep)
	if err != nil {
		return nil, err
	}
	if ceMethod != "hybrid" {
		logrus.Warnf("monitoring run used fallback effect-site method %q", ceMethod)
	}

	stride := int(math.Round(o.cfg.ReportInterval / dt))
	var points []TimeSeriesPoint
	for i := 0; i <= steps; i += stride {
		points = append(points, TimeSeriesPoint{
			TimeMinutes:    times[i],
			PlasmaConc:     cp[i],
			EffectSiteConc: ce[i],
			InfusionRate:   rates[i],
		})
	}
	if (steps % stride) != 0 {
		points = append(points, TimeSeriesPoint{
			TimeMinutes:    times[steps],
			PlasmaConc:     cp[steps],
			EffectSiteConc: ce[steps],
			InfusionRate:   rates[steps],
		})
	}

	return &SimulationResult{
		Points:           points,
		Method:           o.method.String(),
		EffectSiteMethod: ceMethod,
	}, nil
}
