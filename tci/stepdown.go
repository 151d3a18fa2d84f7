package tci

import (
	"math"

	"github.com/sirupsen/logrus"
)

// Reason tags for dosage adjustments, recorded in the audit trail.
const (
	ReasonThresholdReduction  = "threshold_reduction"
	ReasonPredictiveReduction = "predictive_adjustment"
	ReasonEmergencyReduction  = "emergency_reduction"
)

// DosageAdjustment is one append-only audit record of an infusion rate change
// made by the step-down protocol.
type DosageAdjustment struct {
	TimeMinutes  float64
	OldRate      float64 // mg/kg/hr
	NewRate      float64 // mg/kg/hr
	TriggeringCe float64 // µg/mL
	Reason       string
}

// ProtocolResult bundles the full output of protocol generation for the
// display panel: the optimized rate, trajectory, adjustment audit trail and
// performance evaluation.
type ProtocolResult struct {
	Search      RateSearchResult
	TimeSeries  []TimeSeriesPoint
	Adjustments []DosageAdjustment
	Performance PerformanceMetrics
	Predictive  bool
}

// GenerateSchedule optimizes the continuous rate for the given bolus and
// target, then simulates the full horizon applying threshold-triggered rate
// reductions: reactive when Ce crosses the upper threshold, predictive (when
// enabled) on a look-ahead crossing, and an emergency cut to the floor when
// Ce exceeds the hard safety ceiling.
//
// A safety-ceiling crossing returns the completed result together with a
// SafetyThresholdError; the violation is surfaced, never clamped away.
func (o *ProtocolOptimizer) GenerateSchedule(bolusMg, targetCe, targetTimeMin, durationMin float64, predictive bool) (*ProtocolResult, error) {
	if !(durationMin > 0) {
		return nil, validationf("duration must be strictly positive, got %g", durationMin)
	}
	search, err := o.OptimizeRate(bolusMg, targetCe, targetTimeMin)
	if err != nil {
		return nil, err
	}

	res := &ProtocolResult{Search: search, Predictive: predictive}
	if targetCe == 0 {
		res.TimeSeries = []TimeSeriesPoint{{TimeMinutes: 0}}
		res.Performance = PerformanceMetrics{}
		return res, nil
	}

	upper := targetCe * o.cfg.ThresholdMultiple
	ceiling := targetCe * o.cfg.SafetyCeilingMultiple
	dt := o.cfg.HighResStep

	st := SolverState{Comp: CompartmentState{A1: bolusMg}}
	rate := search.RateMgKgHr
	lastAdjustment := math.Inf(-1)
	var safetyErr error

	steps := int(math.Round(durationMin / dt))
	reportEvery := int(math.Round(o.cfg.ReportInterval / dt))
	predictEvery := reportEvery // look-ahead evaluated on the reporting cadence

	record := func(t float64) {
		res.TimeSeries = append(res.TimeSeries, TimeSeriesPoint{
			TimeMinutes:     t,
			PlasmaConc:      st.Comp.PlasmaConcentration(o.params.V1),
			EffectSiteConc:  st.Ce,
			InfusionRate:    rate,
			AdjustmentCount: len(res.Adjustments),
		})
	}
	adjust := func(t, newRate float64, reason string) {
		res.Adjustments = append(res.Adjustments, DosageAdjustment{
			TimeMinutes:  t,
			OldRate:      rate,
			NewRate:      newRate,
			TriggeringCe: st.Ce,
			Reason:       reason,
		})
		logrus.Infof("dosage adjustment at t=%.2f min: %.3f -> %.3f mg/kg/hr (%s, Ce=%.3f)",
			t, rate, newRate, reason, st.Ce)
		rate = newRate
		lastAdjustment = t
	}

	record(0)
	for i := 0; i < steps; i++ {
		st = rk4StepWithCe(o.params, st, rateMgPerMin(rate, o.weightKg), dt)
		t := st.TimeMinutes

		switch {
		case st.Ce > ceiling && rate > o.cfg.MinRate:
			// hard bound crossed: cut straight to the floor and surface it
			if safetyErr == nil {
				safetyErr = &SafetyThresholdError{TimeMinutes: t, Ce: st.Ce, Limit: ceiling}
			}
			adjust(t, o.cfg.MinRate, ReasonEmergencyReduction)

		case st.Ce >= upper && t-lastAdjustment >= o.cfg.AdjustmentInterval && rate > o.cfg.MinRate:
			adjust(t, math.Max(rate*o.cfg.ReductionFactor, o.cfg.MinRate), ReasonThresholdReduction)

		case predictive && (i+1)%predictEvery == 0 &&
			t-lastAdjustment >= o.cfg.AdjustmentInterval && rate > o.cfg.MinRate:
			if o.lookAheadCrosses(st, rate, upper) {
				adjust(t, math.Max(rate*o.cfg.ReductionFactor, o.cfg.MinRate), ReasonPredictiveReduction)
			}
		}

		if (i+1)%reportEvery == 0 {
			record(t)
		}
	}

	res.Performance = EvaluatePerformance(res.TimeSeries, targetCe, o.cfg.MaintenanceStart)
	return res, safetyErr
}

// lookAheadCrosses simulates PredictionHorizon minutes forward at the current
// rate and reports whether the effect-site concentration would cross the
// upper threshold.
func (o *ProtocolOptimizer) lookAheadCrosses(st SolverState, rateMgKgHr, upper float64) bool {
	dt := o.cfg.SearchStep
	steps := int(math.Round(o.cfg.PredictionHorizon / dt))
	rate := rateMgPerMin(rateMgKgHr, o.weightKg)
	for i := 0; i < steps; i++ {
		st = rk4StepWithCe(o.params, st, rate, dt)
		if st.Ce >= upper {
			return true
		}
	}
	return false
}
