package tci

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PerformanceMetrics evaluates how well a generated protocol holds the target
// over the maintenance window, combined into one 0-100 score.
type PerformanceMetrics struct {
	TimeInRange10Pct   float64 // % of maintenance samples within ±10% of target
	TimeInRange5Pct    float64 // % of maintenance samples within ±5% of target
	StabilityIndex     float64 // 0-100, from mean absolute deviation
	ConvergenceTimeMin float64 // earliest time from which Ce stays within ±5%
	OvershootPct       float64 // peak excursion above target, % of target
	Score              float64 // weighted composite, clamped to [0, 100]
}

// Composite score weights.
const (
	accuracyWeight     = 0.40
	stabilityWeight    = 0.30
	convergenceWeight  = 0.30
	overshootPenaltyPm = 0.5 // score points per % overshoot
)

// EvaluatePerformance computes maintenance-window metrics for a trajectory
// against a target effect-site concentration. Samples before maintenanceStart
// contribute only to overshoot and convergence time.
func EvaluatePerformance(points []TimeSeriesPoint, targetCe, maintenanceStart float64) PerformanceMetrics {
	var m PerformanceMetrics
	if len(points) == 0 || !(targetCe > 0) {
		return m
	}

	duration := points[len(points)-1].TimeMinutes

	var maintCe []float64
	allCe := make([]float64, len(points))
	for i, p := range points {
		allCe[i] = p.EffectSiteConc
		if p.TimeMinutes >= maintenanceStart {
			maintCe = append(maintCe, p.EffectSiteConc)
		}
	}

	// overshoot over the whole run
	peak := floats.Max(allCe)
	if peak > targetCe {
		m.OvershootPct = (peak - targetCe) / targetCe * 100
	}

	// convergence: earliest sample from which every later sample is within ±5%
	m.ConvergenceTimeMin = duration
	for i := len(points) - 1; i >= 0; i-- {
		if math.Abs(points[i].EffectSiteConc-targetCe)/targetCe > 0.05 {
			break
		}
		m.ConvergenceTimeMin = points[i].TimeMinutes
	}

	if len(maintCe) > 0 {
		in10, in5 := 0, 0
		dev := make([]float64, len(maintCe))
		for i, ce := range maintCe {
			rel := math.Abs(ce-targetCe) / targetCe
			if rel <= 0.10 {
				in10++
			}
			if rel <= 0.05 {
				in5++
			}
			dev[i] = math.Abs(ce - targetCe)
		}
		m.TimeInRange10Pct = float64(in10) / float64(len(maintCe)) * 100
		m.TimeInRange5Pct = float64(in5) / float64(len(maintCe)) * 100

		meanDev := stat.Mean(dev, nil)
		m.StabilityIndex = clampScore(100 * (1 - meanDev/targetCe))
	}

	convScore := 0.0
	if duration > 0 {
		convScore = clampScore(100 * (1 - m.ConvergenceTimeMin/duration))
	}
	m.Score = clampScore(accuracyWeight*m.TimeInRange10Pct +
		stabilityWeight*m.StabilityIndex +
		convergenceWeight*convScore -
		overshootPenaltyPm*m.OvershootPct)
	return m
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
