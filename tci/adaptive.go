package tci

import (
	"math"

	"github.com/sirupsen/logrus"
)

// AdaptiveStepStats counts controller activity for one run. Reset per run.
// Invariant: AcceptedSteps + RejectedSteps == TotalSteps at every point.
type AdaptiveStepStats struct {
	TotalSteps         int
	AcceptedSteps      int
	RejectedSteps      int
	EventCount         int
	InterpolationCount int
}

// AcceptanceRate returns the fraction of attempted steps that were accepted.
func (s AdaptiveStepStats) AcceptanceRate() float64 {
	if s.TotalSteps == 0 {
		return 0
	}
	return float64(s.AcceptedSteps) / float64(s.TotalSteps)
}

const (
	// Landing precision per event type: boluses produce a jump in a1 and
	// need finer resolution than rate changes.
	bolusEventPrecision = 1e-3 // minutes
	rateEventPrecision  = 1e-2 // minutes

	// eventEpsilon is the coincidence window for applying a scheduled event
	// at a step boundary.
	eventEpsilon = 1e-10 // minutes

	// doublingCorrection scales the step-doubling difference to a local
	// error estimate for an order-4 scheme: 2^4 - 1.
	doublingCorrection = 15.0

	// safetyFactor damps the classical step-size update.
	safetyFactor = 0.9

	// stepSizeExponent is 1/(order+1) for order 4.
	stepSizeExponent = 1.0 / 5.0
)

// AdaptiveStepController chooses step sizes from event proximity, local
// effect-site dynamics and clinical-importance weighting, and accepts or
// rejects each step via step-doubling error estimation.
type AdaptiveStepController struct {
	cfg    Config
	params *PKParameterSet
	update StepUpdateFunc

	stats                 AdaptiveStepStats
	consecutiveRejections int
	nextStep              float64 // proposal carried from the last acceptance
}

// NewAdaptiveStepController builds a controller. update nil selects the
// production coupled RK4 update.
func NewAdaptiveStepController(params *PKParameterSet, cfg Config, update StepUpdateFunc) *AdaptiveStepController {
	if update == nil {
		update = rk4StepWithCe
	}
	return &AdaptiveStepController{
		cfg:      cfg,
		params:   params,
		update:   update,
		nextStep: cfg.DefaultStep,
	}
}

// Stats returns a copy of the controller counters.
func (c *AdaptiveStepController) Stats() AdaptiveStepStats { return c.stats }

// Reset clears counters and the carried step proposal for a fresh run.
func (c *AdaptiveStepController) Reset() {
	c.stats = AdaptiveStepStats{}
	c.consecutiveRejections = 0
	c.nextStep = c.cfg.DefaultStep
}

func eventPrecision(ev *DoseEvent) float64 {
	if ev.BolusMg > 0 {
		return bolusEventPrecision
	}
	return rateEventPrecision
}

// ProposeStep applies the priority-ordered constraints to the carried step
// proposal: (1) event proximity, (2) rapid-change clamp, (3) clinical
// importance. The result is min of the active constraints capped at MaxStep;
// it is floored at MinStep except when landing exactly on an event or the
// horizon end requires less.
func (c *AdaptiveStepController) ProposeStep(s SolverState, nextEvent *DoseEvent, horizonEnd float64) float64 {
	step := c.nextStep

	// (2) rapid-change clamp on the effect-site dynamics
	cp := s.Comp.PlasmaConcentration(c.params.V1)
	relRate := math.Abs(c.params.Ke0*(cp-s.Ce)) / (math.Abs(s.Ce) + c.cfg.AbsoluteFloor)
	if relRate > c.cfg.RapidChangeThreshold {
		step = math.Min(step, c.cfg.Tolerance/relRate)
	}

	// (3) clinical-importance multiplier near the sedation/awakening bands
	dist := math.Min(math.Abs(s.Ce-c.cfg.SedationCe), math.Abs(s.Ce-c.cfg.AwakeningCe))
	if dist < c.cfg.ImportanceBandWidth {
		mult := 0.1 + 0.9*dist/c.cfg.ImportanceBandWidth
		step *= mult
	}

	if step > c.cfg.MaxStep {
		step = c.cfg.MaxStep
	}
	if step < c.cfg.MinStep {
		step = c.cfg.MinStep
	}

	// (1) event proximity wins over everything: land exactly on the event
	// when the proposal would reach within its type precision.
	if nextEvent != nil {
		toEvent := nextEvent.TimeMinutes - s.TimeMinutes
		if toEvent > 0 && toEvent <= step+eventPrecision(nextEvent) {
			step = toEvent
		}
	}
	if toEnd := horizonEnd - s.TimeMinutes; toEnd > 0 && toEnd < step {
		step = toEnd
	}
	return step
}

// estimateError compares one full step against two half steps across the
// tracked fields, normalized per field by |v1|+|v2|+floor, and divides by the
// order-4 doubling correction.
func (c *AdaptiveStepController) estimateError(full, half SolverState) float64 {
	pairs := [][2]float64{
		{full.Comp.A1, half.Comp.A1},
		{full.Comp.A2, half.Comp.A2},
		{full.Comp.A3, half.Comp.A3},
		{full.Ce, half.Ce},
	}
	maxErr := 0.0
	for _, p := range pairs {
		scale := math.Abs(p[0]) + math.Abs(p[1]) + c.cfg.AbsoluteFloor
		if e := math.Abs(p[0]-p[1]) / scale; e > maxErr {
			maxErr = e
		}
	}
	return maxErr / doublingCorrection
}

// Advance attempts the proposed step, retrying with shrunken steps on
// rejection, and returns the accepted state (the more accurate two-half-step
// result). Aborts with a NumericalError after MaxRejections consecutive
// rejections.
func (c *AdaptiveStepController) Advance(s SolverState, rateMgPerMin, dt float64) (SolverState, error) {
	for {
		full := c.update(c.params, s, rateMgPerMin, dt)
		halfMid := c.update(c.params, s, rateMgPerMin, dt/2)
		half := c.update(c.params, halfMid, rateMgPerMin, dt/2)

		errEst := c.estimateError(full, half)
		c.stats.TotalSteps++

		if errEst <= c.cfg.Tolerance {
			c.stats.AcceptedSteps++
			c.consecutiveRejections = 0
			c.nextStep = c.growStep(dt, errEst)
			return half, nil
		}

		c.stats.RejectedSteps++
		c.consecutiveRejections++
		if c.consecutiveRejections >= c.cfg.MaxRejections {
			return s, &NumericalError{
				Op:          "adaptive step",
				TimeMinutes: s.TimeMinutes,
				Detail:      "rejection cascade: tolerance not met after max consecutive rejections",
			}
		}

		shrunk := safetyFactor * dt * math.Pow(c.cfg.Tolerance/errEst, stepSizeExponent)
		if shrunk < c.cfg.MinStep {
			shrunk = c.cfg.MinStep
		}
		logrus.Debugf("adaptive step rejected at t=%.4f: err=%.3e, dt %.5f -> %.5f",
			s.TimeMinutes, errEst, dt, shrunk)
		dt = shrunk
	}
}

// growStep computes the next proposal after an acceptance using the classical
// formula, bounded to [MinStep, MaxStep].
func (c *AdaptiveStepController) growStep(dt, errEst float64) float64 {
	if errEst <= 0 {
		return c.cfg.MaxStep
	}
	next := safetyFactor * dt * math.Pow(c.cfg.Tolerance/errEst, stepSizeExponent)
	if next > c.cfg.MaxStep {
		next = c.cfg.MaxStep
	}
	if next < c.cfg.MinStep {
		next = c.cfg.MinStep
	}
	return next
}

// ApplyCoincidentEvents applies every timeline event within eventEpsilon of
// the state's clock: a bolus adds to the central compartment, a rate change
// swaps the active infusion rate. Returns the updated state and rate.
func (c *AdaptiveStepController) ApplyCoincidentEvents(s SolverState, tl *DoseTimeline, rateMgKgHr float64) (SolverState, float64) {
	for _, ev := range tl.EventsBetween(s.TimeMinutes-eventEpsilon, s.TimeMinutes+eventEpsilon) {
		if ev.BolusMg > 0 {
			s.Comp.A1 += ev.BolusMg
		}
		rateMgKgHr = ev.RateMgKgHr
		c.stats.EventCount++
	}
	return s, rateMgKgHr
}

func (c *AdaptiveStepController) noteInterpolations(n int) {
	c.stats.InterpolationCount += n
}
