package tci

import "fmt"

// Print displays a monitoring-run summary for the CLI.
func (r *SimulationResult) Print() {
	fmt.Println("=== Monitoring Simulation ===")
	fmt.Printf("Method                : %s (effect site: %s)\n", r.Method, r.EffectSiteMethod)
	fmt.Printf("Samples               : %d\n", len(r.Points))
	if n := len(r.Points); n > 0 {
		last := r.Points[n-1]
		fmt.Printf("Final Cp / Ce         : %.3f / %.3f µg/mL at t=%.1f min\n",
			last.PlasmaConc, last.EffectSiteConc, last.TimeMinutes)
	}
	if r.Stats != nil {
		fmt.Printf("Steps (acc/rej/total) : %d/%d/%d (acceptance %.1f%%)\n",
			r.Stats.AcceptedSteps, r.Stats.RejectedSteps, r.Stats.TotalSteps,
			r.Stats.AcceptanceRate()*100)
		fmt.Printf("Events / interpolated : %d / %d\n", r.Stats.EventCount, r.Stats.InterpolationCount)
	}
}

// Print displays an optimization summary for the CLI.
func (r *ProtocolResult) Print() {
	fmt.Println("=== Protocol Optimization ===")
	fmt.Printf("Optimized Rate        : %.3f mg/kg/hr (converged=%v, %d iterations)\n",
		r.Search.RateMgKgHr, r.Search.Converged, r.Search.Iterations)
	fmt.Printf("Predicted Ce          : %.3f µg/mL\n", r.Search.PredictedCe)
	fmt.Printf("Dosage Adjustments    : %d (predictive mode: %v)\n", len(r.Adjustments), r.Predictive)
	for _, a := range r.Adjustments {
		fmt.Printf("  t=%6.2f min  %.3f -> %.3f mg/kg/hr  Ce=%.3f  [%s]\n",
			a.TimeMinutes, a.OldRate, a.NewRate, a.TriggeringCe, a.Reason)
	}
	p := r.Performance
	fmt.Printf("Time in ±10%% / ±5%%    : %.1f%% / %.1f%%\n", p.TimeInRange10Pct, p.TimeInRange5Pct)
	fmt.Printf("Stability Index       : %.1f\n", p.StabilityIndex)
	fmt.Printf("Convergence Time      : %.1f min\n", p.ConvergenceTimeMin)
	fmt.Printf("Overshoot             : %.1f%%\n", p.OvershootPct)
	fmt.Printf("Composite Score       : %.1f / 100\n", p.Score)
}
