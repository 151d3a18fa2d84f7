package tci

import (
	"math"
	"testing"
)

// flatTrajectory builds a synthetic trajectory holding a constant Ce.
func flatTrajectory(ce float64, durationMin int) []TimeSeriesPoint {
	points := make([]TimeSeriesPoint, durationMin+1)
	for i := range points {
		points[i] = TimeSeriesPoint{TimeMinutes: float64(i), EffectSiteConc: ce}
	}
	return points
}

func TestEvaluatePerformance_PerfectHoldScoresFull(t *testing.T) {
	m := EvaluatePerformance(flatTrajectory(1.0, 120), 1.0, 60)

	if m.TimeInRange10Pct != 100 || m.TimeInRange5Pct != 100 {
		t.Errorf("time in range: %.1f%% / %.1f%%, want 100/100", m.TimeInRange10Pct, m.TimeInRange5Pct)
	}
	if m.StabilityIndex != 100 {
		t.Errorf("stability = %.1f, want 100", m.StabilityIndex)
	}
	if m.ConvergenceTimeMin != 0 {
		t.Errorf("convergence time = %.1f, want 0", m.ConvergenceTimeMin)
	}
	if m.OvershootPct != 0 {
		t.Errorf("overshoot = %.1f, want 0", m.OvershootPct)
	}
	if m.Score != 100 {
		t.Errorf("score = %.1f, want 100", m.Score)
	}
}

func TestEvaluatePerformance_OvershootPenalty(t *testing.T) {
	points := flatTrajectory(1.0, 120)
	points[5].EffectSiteConc = 1.5 // 50% overshoot early in the run

	m := EvaluatePerformance(points, 1.0, 60)

	if math.Abs(m.OvershootPct-50) > 1e-9 {
		t.Errorf("overshoot = %.2f%%, want 50%%", m.OvershootPct)
	}
	// the spike also pushes convergence out to t=6
	if m.ConvergenceTimeMin != 6 {
		t.Errorf("convergence time = %.1f, want 6", m.ConvergenceTimeMin)
	}
	// 0.5 score points per % overshoot on top of the convergence loss
	convScore := 100 * (1 - 6.0/120)
	want := 0.40*100 + 0.30*100 + 0.30*convScore - 0.5*50
	if math.Abs(m.Score-want) > 1e-9 {
		t.Errorf("score = %.2f, want %.2f", m.Score, want)
	}
}

func TestEvaluatePerformance_ConvergenceTime(t *testing.T) {
	// off target until t=80, inside ±5% afterwards
	points := flatTrajectory(1.0, 120)
	for i := 0; i < 80; i++ {
		points[i].EffectSiteConc = 0.5
	}

	m := EvaluatePerformance(points, 1.0, 60)

	if m.ConvergenceTimeMin != 80 {
		t.Errorf("convergence time = %.1f, want 80", m.ConvergenceTimeMin)
	}
	// maintenance window 60..120 holds the target only from t=80
	if m.TimeInRange5Pct >= 100 || m.TimeInRange5Pct <= 0 {
		t.Errorf("time in ±5%% = %.1f%%, want partial coverage", m.TimeInRange5Pct)
	}
}

func TestEvaluatePerformance_DegenerateInputs(t *testing.T) {
	if m := EvaluatePerformance(nil, 1.0, 60); m.Score != 0 {
		t.Errorf("nil points: score %.1f, want 0", m.Score)
	}
	if m := EvaluatePerformance(flatTrajectory(1, 10), 0, 60); m.Score != 0 {
		t.Errorf("zero target: score %.1f, want 0", m.Score)
	}
}
