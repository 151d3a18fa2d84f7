package tci

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying every failure the engine can report.
// Callers branch with errors.Is; the concrete types below carry context.
var (
	// ErrValidation indicates malformed or out-of-range input. Validation
	// failures happen at the API boundary with no partial state mutation.
	ErrValidation = errors.New("tci: invalid input")

	// ErrNumerical indicates integrator or optimizer non-convergence, or a
	// NaN/Inf appearing mid-run. Most numerical failures are recovered
	// locally (fallback method, best-effort result); this sentinel surfaces
	// only the unrecoverable ones, e.g. a rejection cascade in the adaptive
	// controller.
	ErrNumerical = errors.New("tci: numerical failure")

	// ErrSafetyThreshold indicates a computed concentration exceeded a hard
	// physiological bound. Never clamped silently: the violation always
	// propagates to the caller even when a best-effort result is returned
	// alongside it.
	ErrSafetyThreshold = errors.New("tci: safety threshold exceeded")
)

// validationf builds an ErrValidation-classified error.
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NumericalError wraps a numerical failure with the operation and simulation
// time at which it occurred.
type NumericalError struct {
	Op          string  // operation, e.g. "adaptive step"
	TimeMinutes float64 // simulation time of the failure
	Detail      string
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("%v: %s at t=%.4f min: %s", ErrNumerical, e.Op, e.TimeMinutes, e.Detail)
}

func (e *NumericalError) Unwrap() error { return ErrNumerical }

// SafetyThresholdError reports an effect-site concentration crossing the hard
// safety ceiling during schedule generation.
type SafetyThresholdError struct {
	TimeMinutes float64
	Ce          float64 // concentration that triggered the violation (µg/mL)
	Limit       float64 // the ceiling that was crossed (µg/mL)
}

func (e *SafetyThresholdError) Error() string {
	return fmt.Sprintf("%v: Ce=%.3f exceeds ceiling %.3f µg/mL at t=%.2f min",
		ErrSafetyThreshold, e.Ce, e.Limit, e.TimeMinutes)
}

func (e *SafetyThresholdError) Unwrap() error { return ErrSafetyThreshold }
