package tci

// CompartmentState holds the drug amount (mg) in each compartment of the
// three-compartment body model: central (plasma), shallow peripheral, deep
// peripheral. It is a plain value; integrator steps return new states rather
// than mutating in place.
type CompartmentState struct {
	A1 float64 // central (mg)
	A2 float64 // shallow peripheral (mg)
	A3 float64 // deep peripheral (mg)
}

// PlasmaConcentration returns the central-compartment concentration in µg/mL
// (mg/L and µg/mL are the same unit).
func (s CompartmentState) PlasmaConcentration(v1 float64) float64 {
	return s.A1 / v1
}

// clampNonNegative zeroes any negative compartment amount. Large steps under
// stiff parameters can push an amount slightly negative; every integrator step
// clamps its result. The adaptive controller's step rejection is the preferred
// remedy when tolerance matters.
func (s CompartmentState) clampNonNegative() CompartmentState {
	if s.A1 < 0 {
		s.A1 = 0
	}
	if s.A2 < 0 {
		s.A2 = 0
	}
	if s.A3 < 0 {
		s.A3 = 0
	}
	return s
}

// SolverState bundles the full numeric state advanced by the adaptive
// controller: compartment amounts, effect-site concentration and clock.
type SolverState struct {
	TimeMinutes float64
	Comp        CompartmentState
	Ce          float64 // effect-site concentration (µg/mL)
}

// TimeSeriesPoint is one output sample of a simulation run. Read-only once
// produced; time is strictly increasing across a result's points.
type TimeSeriesPoint struct {
	TimeMinutes     float64
	PlasmaConc      float64 // µg/mL
	EffectSiteConc  float64 // µg/mL
	InfusionRate    float64 // mg/kg/hr active at this sample
	AdjustmentCount int     // dosage adjustments applied up to this sample
}
