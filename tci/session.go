package tci

import (
	"math"

	"github.com/sirupsen/logrus"
)

// SimulationSession is the tick-driven real-time mode: one session per run,
// constructed fresh, owned by the caller, mutated only by the caller's own
// Tick calls. Each tick advances the clock by Config.TickStep and is atomic;
// the caller may stop at any tick boundary. Not safe for concurrent use; a
// concurrent port must enforce single-writer access per session.
type SimulationSession struct {
	params   *PKParameterSet
	weightKg float64
	cfg      Config
	method   Method
	timeline *DoseTimeline

	clock  float64
	state  CompartmentState
	ce     float64
	rate   float64 // mg/kg/hr
	cursor int     // next timeline event to apply
	ticks  int
}

// NewSession validates inputs and builds a session. The integration method is
// resolved here, once; a bolus at t=0 is applied as the initial condition.
func NewSession(params *PKParameterSet, weightKg float64, tl *DoseTimeline, method Method, cfg Config) (*SimulationSession, error) {
	if params == nil {
		return nil, validationf("pk parameters are required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !(weightKg > 0) {
		return nil, validationf("patient weight must be strictly positive, got %g", weightKg)
	}
	if tl == nil {
		return nil, validationf("dose timeline is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, validationf("session config: %v", err)
	}

	s := &SimulationSession{
		params:   params,
		weightKg: weightKg,
		cfg:      cfg,
		method:   method,
		timeline: tl,
	}
	s.applyDueEvents()
	logrus.Debugf("session started: method=%s, tick=%.3f min, %d dose events",
		method, cfg.TickStep, tl.Len())
	return s, nil
}

// Clock returns the session's simulated time in minutes.
func (s *SimulationSession) Clock() float64 { return s.clock }

// Ticks returns how many ticks have been executed.
func (s *SimulationSession) Ticks() int { return s.ticks }

// applyDueEvents applies timeline events due at or before the current clock.
func (s *SimulationSession) applyDueEvents() {
	events := s.timeline.Events()
	for s.cursor < len(events) && events[s.cursor].TimeMinutes <= s.clock+eventEpsilon {
		s.state.A1 += events[s.cursor].BolusMg
		s.rate = events[s.cursor].RateMgKgHr
		s.cursor++
	}
}

// Tick advances the session by one TickStep and returns the sample at the new
// clock. The mutation is atomic: compartments, effect site, clock and event
// cursor all move together.
func (s *SimulationSession) Tick() TimeSeriesPoint {
	dt := s.cfg.TickStep
	cp0 := s.state.PlasmaConcentration(s.params.V1)
	rate := rateMgPerMin(s.rate, s.weightKg)

	switch s.method {
	case MethodEuler:
		s.state = eulerStep(s.params, s.state, rate, dt)
	default:
		// MethodAdaptiveRK4 degrades to plain RK4 at tick granularity: the
		// tick step already is the controller's high-resolution floor.
		s.state = rk4Step(s.params, s.state, rate, dt)
	}

	cp1 := s.state.PlasmaConcentration(s.params.V1)
	ce0 := s.ce
	s.ce = hybridCeStep(s.params.Ke0, ce0, cp0, cp1, dt)
	if math.IsNaN(s.ce) || math.IsInf(s.ce, 0) {
		// fall back to the discrete reference update for this interval
		logrus.Warnf("hybrid effect-site step produced non-finite Ce at t=%.3f, using discrete update", s.clock)
		s.ce = ceRK4Step(s.params.Ke0, ce0, cp0, (cp0+cp1)/2, (cp0+cp1)/2, cp1, dt)
	}

	s.clock += dt
	s.ticks++
	s.applyDueEvents()

	return TimeSeriesPoint{
		TimeMinutes:    s.clock,
		PlasmaConc:     s.state.PlasmaConcentration(s.params.V1),
		EffectSiteConc: s.ce,
		InfusionRate:   s.rate,
	}
}
