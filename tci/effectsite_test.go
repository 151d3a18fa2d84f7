package tci

import (
	"errors"
	"math"
	"testing"
)

// bolusDecayTrajectory builds a realistic plasma trajectory: a bolus peak
// followed by tri-exponential decay, sampled on a uniform grid.
func bolusDecayTrajectory(n int, dt float64) (cp, times []float64) {
	p := testParams()
	s := CompartmentState{A1: 10}
	cp = make([]float64, n)
	times = make([]float64, n)
	cp[0] = s.PlasmaConcentration(p.V1)
	for i := 1; i < n; i++ {
		s = rk4Step(p, s, 0, dt)
		cp[i] = s.PlasmaConcentration(p.V1)
		times[i] = float64(i) * dt
	}
	return cp, times
}

func TestSolveEffectSite_StartsAtZero(t *testing.T) {
	cp, times := bolusDecayTrajectory(100, 0.1)
	ce, err := SolveEffectSite(cp, times, 0.456)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ce) != len(cp) {
		t.Fatalf("length mismatch: got %d, want %d", len(ce), len(cp))
	}
	if ce[0] != 0 {
		t.Errorf("ce[0] = %g, want 0", ce[0])
	}
}

func TestSolveEffectSite_HybridMatchesDiscreteReference(t *testing.T) {
	// GIVEN a bolus-decay plasma trajectory on a coarse grid
	cp, times := bolusDecayTrajectory(120, 0.5)
	const ke0 = 0.456

	// WHEN solving with the hybrid rule and the discrete reference rule
	hybrid, err := SolveEffectSite(cp, times, ke0)
	if err != nil {
		t.Fatalf("hybrid: %v", err)
	}
	discrete, err := SolveEffectSiteDiscrete(cp, times, ke0, 0)
	if err != nil {
		t.Fatalf("discrete: %v", err)
	}

	// THEN the two agree within the configured tolerance at every sample
	tol := DefaultConfig().EffectSiteTolerance
	for i := range hybrid {
		if d := math.Abs(hybrid[i] - discrete[i]); d > tol {
			t.Errorf("sample %d (t=%.1f): hybrid %.6f vs discrete %.6f, |diff| %.2e > %g",
				i, times[i], hybrid[i], discrete[i], d, tol)
		}
	}
}

func TestSolveEffectSite_MonotonicInputStaysMonotonicAndBounded(t *testing.T) {
	// GIVEN a monotonically increasing plasma input
	n := 200
	cp := make([]float64, n)
	times := make([]float64, n)
	for i := range cp {
		times[i] = float64(i) * 0.25
		cp[i] = 3.0 * (1 - math.Exp(-0.05*times[i]))
	}

	// WHEN solving the effect site
	ce, err := SolveEffectSite(cp, times, 0.456)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// THEN Ce is monotonically increasing and bounded by the running max of Cp
	runningMax := 0.0
	for i := 1; i < n; i++ {
		if ce[i] < ce[i-1] {
			t.Fatalf("sample %d: Ce decreased: %.6f -> %.6f", i, ce[i-1], ce[i])
		}
		if cp[i] > runningMax {
			runningMax = cp[i]
		}
		if ce[i] > runningMax {
			t.Fatalf("sample %d: Ce %.6f exceeds running max Cp %.6f", i, ce[i], runningMax)
		}
	}
}

func TestSolveEffectSite_HybridStableAtLargeIntervals(t *testing.T) {
	// GIVEN a very coarse grid (Δt = 10 min) where an explicit rule would
	// oscillate or diverge
	cp := []float64{2.0, 1.5, 1.1, 0.9, 0.8}
	times := []float64{0, 10, 20, 30, 40}

	ce, err := SolveEffectSite(cp, times, 0.456)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range ce {
		if v < 0 || v > 2.0 || math.IsNaN(v) {
			t.Errorf("sample %d: Ce %.6f unstable at large interval", i, v)
		}
	}
}

func TestSolveEffectSite_ValidationErrors(t *testing.T) {
	valid := []float64{0, 1, 2}
	cases := []struct {
		name  string
		cp    []float64
		times []float64
		ke0   float64
	}{
		{"length mismatch", []float64{1, 2}, valid, 0.456},
		{"empty input", nil, nil, 0.456},
		{"zero ke0", valid, valid, 0},
		{"negative ke0", valid, valid, -0.1},
		{"non-increasing times", []float64{1, 2, 3}, []float64{0, 2, 2}, 0.456},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := SolveEffectSite(tc.cp, tc.times, tc.ke0); !errors.Is(err, ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
			if _, err := SolveEffectSiteDiscrete(tc.cp, tc.times, tc.ke0, 0); !errors.Is(err, ErrValidation) {
				t.Errorf("discrete: got %v, want ErrValidation", err)
			}
		})
	}
}

func TestSolveEffectSiteFrom_ResumesFromInitialCe(t *testing.T) {
	// GIVEN a constant plasma level equal to the starting Ce
	cp := []float64{1.0, 1.0, 1.0}
	times := []float64{0, 1, 2}

	ce, err := SolveEffectSiteFrom(cp, times, 0.456, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// THEN the trajectory holds at the fixed point
	for i, v := range ce {
		if math.Abs(v-1.0) > 1e-12 {
			t.Errorf("sample %d: Ce %.12f, want 1.0", i, v)
		}
	}
}

func TestEffectSiteChain_FallsBackOnNumericalFailure(t *testing.T) {
	// Validation failures abort the chain rather than falling through.
	_, _, err := solveEffectSiteChained([]float64{1}, []float64{0, 1}, 0.456, 0)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}

	// A well-formed input resolves on the production method.
	cp, times := bolusDecayTrajectory(50, 0.1)
	_, method, err := solveEffectSiteChained(cp, times, 0.456, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != "hybrid" {
		t.Errorf("method = %q, want hybrid", method)
	}
}
