package tci

import (
	"errors"
	"math"
	"testing"
)

func TestAdaptiveController_StatsInvariantHolds(t *testing.T) {
	// GIVEN a run over an eventful timeline
	cfg := DefaultConfig()
	solver, err := NewAdaptiveStepSolver(testParams(), 70, cfg, nil)
	if err != nil {
		t.Fatalf("solver: %v", err)
	}
	tl := mustTimeline(t, []DoseEvent{
		{TimeMinutes: 0, BolusMg: 10, RateMgKgHr: 2.0},
		{TimeMinutes: 10, RateMgKgHr: 1.0},
		{TimeMinutes: 20, BolusMg: 5, RateMgKgHr: 1.0},
	})

	// WHEN solving
	traj, err := solver.Solve(SolverState{}, tl, 30)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}

	// THEN accepted + rejected == total
	s := traj.Stats
	if s.AcceptedSteps+s.RejectedSteps != s.TotalSteps {
		t.Errorf("stats invariant violated: %d + %d != %d",
			s.AcceptedSteps, s.RejectedSteps, s.TotalSteps)
	}
	if s.TotalSteps == 0 {
		t.Error("no steps attempted")
	}
	if s.EventCount != 3 {
		t.Errorf("EventCount = %d, want 3", s.EventCount)
	}
	if s.InterpolationCount != len(traj.Points) {
		t.Errorf("InterpolationCount = %d, want %d", s.InterpolationCount, len(traj.Points))
	}
	if rate := s.AcceptanceRate(); rate <= 0 || rate > 1 {
		t.Errorf("acceptance rate %g outside (0, 1]", rate)
	}
}

func TestAdaptiveController_ProposeStepLandsOnEvent(t *testing.T) {
	// GIVEN a carried proposal larger than the distance to the next event
	cfg := DefaultConfig()
	c := NewAdaptiveStepController(testParams(), cfg, nil)
	c.nextStep = 0.5

	ev := DoseEvent{TimeMinutes: 0.05, BolusMg: 5}
	st := SolverState{TimeMinutes: 0, Ce: 2.0} // far from clinical bands

	// WHEN proposing near the event
	step := c.ProposeStep(st, &ev, 100)

	// THEN the step lands exactly on the event time
	if math.Abs(step-0.05) > 1e-12 {
		t.Errorf("step = %g, want 0.05 (event landing)", step)
	}
}

func TestAdaptiveController_RapidChangeClampShrinksStep(t *testing.T) {
	cfg := DefaultConfig()
	c := NewAdaptiveStepController(testParams(), cfg, nil)

	// a fresh bolus with Ce=0 gives a large relative Ce change rate
	st := SolverState{Comp: CompartmentState{A1: 10}}
	step := c.ProposeStep(st, nil, 100)

	if step > cfg.DefaultStep/2 {
		t.Errorf("rapid-change clamp had no effect: step %g", step)
	}
	if step < cfg.MinStep {
		t.Errorf("step %g below MinStep %g", step, cfg.MinStep)
	}
}

func TestAdaptiveController_ImportanceBandShrinksStep(t *testing.T) {
	cfg := DefaultConfig()
	c := NewAdaptiveStepController(testParams(), cfg, nil)

	// equilibrium at the sedation band center: no rapid change, but max
	// clinical importance
	ce := cfg.SedationCe
	st := SolverState{Comp: CompartmentState{A1: ce * testParams().V1}, Ce: ce}
	near := c.ProposeStep(st, nil, 100)

	// equilibrium far away from both bands
	ceFar := 3.0
	stFar := SolverState{Comp: CompartmentState{A1: ceFar * testParams().V1}, Ce: ceFar}
	c.nextStep = cfg.DefaultStep
	far := c.ProposeStep(stFar, nil, 100)

	if near >= far {
		t.Errorf("importance weighting had no effect: near=%g, far=%g", near, far)
	}
	// at the band center the multiplier bottoms out at 10%
	if want := far * 0.1; math.Abs(near-want) > 1e-9 && near > want*1.01 {
		t.Errorf("band-center step %g, want about %g", near, want)
	}
}

func TestAdaptiveController_RejectionShrinkFormula(t *testing.T) {
	// GIVEN an error estimate above tolerance, the classical update is
	// newStep = safety·old·(tol/err)^(1/5)
	cfg := DefaultConfig()
	c := NewAdaptiveStepController(testParams(), cfg, nil)

	got := c.growStep(0.5, cfg.Tolerance*32)
	want := safetyFactor * 0.5 * math.Pow(1.0/32.0, stepSizeExponent)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("growStep = %g, want %g", got, want)
	}
}

func TestAdaptiveController_RejectionCascadeAborts(t *testing.T) {
	// GIVEN a tolerance no step size can meet
	cfg := DefaultConfig()
	cfg.Tolerance = 1e-30
	cfg.MinStep = 0.5
	cfg.DefaultStep = 0.5
	cfg.MaxStep = 1.0

	c := NewAdaptiveStepController(testParams(), cfg, nil)
	st := SolverState{Comp: CompartmentState{A1: 10}}

	// WHEN advancing
	_, err := c.Advance(st, 2.0, 1.0)

	// THEN the controller aborts with a numerical error after the bounded
	// rejection budget
	if !errors.Is(err, ErrNumerical) {
		t.Fatalf("got %v, want ErrNumerical", err)
	}
	if c.stats.RejectedSteps != cfg.MaxRejections {
		t.Errorf("RejectedSteps = %d, want %d", c.stats.RejectedSteps, cfg.MaxRejections)
	}
	if c.stats.AcceptedSteps+c.stats.RejectedSteps != c.stats.TotalSteps {
		t.Errorf("stats invariant violated during cascade")
	}
}

func TestAdaptiveController_ApplyCoincidentEvents(t *testing.T) {
	cfg := DefaultConfig()
	c := NewAdaptiveStepController(testParams(), cfg, nil)
	tl := mustTimeline(t, []DoseEvent{
		{TimeMinutes: 5, BolusMg: 8, RateMgKgHr: 1.5},
	})

	// exactly at the event time the bolus lands in a1 and the rate swaps
	st := SolverState{TimeMinutes: 5, Comp: CompartmentState{A1: 2}}
	st, rate := c.ApplyCoincidentEvents(st, tl, 2.0)
	if st.Comp.A1 != 10 {
		t.Errorf("A1 = %g, want 10", st.Comp.A1)
	}
	if rate != 1.5 {
		t.Errorf("rate = %g, want 1.5", rate)
	}
	if c.stats.EventCount != 1 {
		t.Errorf("EventCount = %d, want 1", c.stats.EventCount)
	}

	// away from any event nothing changes
	st2 := SolverState{TimeMinutes: 7, Comp: CompartmentState{A1: 1}}
	st2, rate = c.ApplyCoincidentEvents(st2, tl, rate)
	if st2.Comp.A1 != 1 || rate != 1.5 || c.stats.EventCount != 1 {
		t.Errorf("event applied away from its time")
	}
}

func TestAdaptiveSolver_ReportingGridIsStrictlyIncreasing(t *testing.T) {
	cfg := DefaultConfig()
	solver, err := NewAdaptiveStepSolver(testParams(), 70, cfg, nil)
	if err != nil {
		t.Fatalf("solver: %v", err)
	}
	tl := mustTimeline(t, []DoseEvent{{TimeMinutes: 0, BolusMg: 10, RateMgKgHr: 2.0}})

	traj, err := solver.Solve(SolverState{}, tl, 20)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if len(traj.Points) < 2 {
		t.Fatalf("too few points: %d", len(traj.Points))
	}
	for i := 1; i < len(traj.Points); i++ {
		if traj.Points[i].TimeMinutes <= traj.Points[i-1].TimeMinutes {
			t.Fatalf("time not strictly increasing at %d", i)
		}
	}
	// the t=0 bolus shows up immediately in plasma
	if got, want := traj.Points[0].PlasmaConc, 10.0/testParams().V1; math.Abs(got-want) > 1e-9 {
		t.Errorf("initial plasma = %g, want %g", got, want)
	}
}

func TestAdaptiveSolver_EulerUpdateInjectable(t *testing.T) {
	// the per-step update is caller-suppliable; a (crude) Euler variant must
	// drive the same loop
	eulerUpdate := func(p *PKParameterSet, s SolverState, rate, dt float64) SolverState {
		cp0 := s.Comp.PlasmaConcentration(p.V1)
		next := eulerStep(p, s.Comp, rate, dt)
		ce := s.Ce + dt*p.Ke0*(cp0-s.Ce)
		if ce < 0 {
			ce = 0
		}
		return SolverState{TimeMinutes: s.TimeMinutes + dt, Comp: next, Ce: ce}
	}

	cfg := DefaultConfig()
	solver, err := NewAdaptiveStepSolver(testParams(), 70, cfg, eulerUpdate)
	if err != nil {
		t.Fatalf("solver: %v", err)
	}
	tl := mustTimeline(t, []DoseEvent{{TimeMinutes: 0, BolusMg: 10}})
	traj, err := solver.Solve(SolverState{}, tl, 5)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if traj.Stats.AcceptedSteps == 0 {
		t.Error("no accepted steps with injected update")
	}
}
