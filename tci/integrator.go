package tci

import "fmt"

// Method selects the integration scheme for a run. Resolved once at session
// or orchestrator construction, never re-branched per call.
type Method int

const (
	// MethodEuler is the forward Euler baseline, O(dt) local error. Kept as
	// a reference method only.
	MethodEuler Method = iota
	// MethodRK4 is the classical 4th-order Runge-Kutta scheme, the
	// production default for fixed-step runs.
	MethodRK4
	// MethodAdaptiveRK4 is RK4 driven by the adaptive step-size controller
	// with step-doubling error estimation.
	MethodAdaptiveRK4
)

// ValidMethods is the set of recognized method names on the CLI and in
// configuration files.
var ValidMethods = map[string]Method{
	"euler":        MethodEuler,
	"rk4":          MethodRK4,
	"adaptive-rk4": MethodAdaptiveRK4,
}

// ParseMethod maps a method name to its Method tag.
func ParseMethod(name string) (Method, error) {
	m, ok := ValidMethods[name]
	if !ok {
		return 0, validationf("unknown integration method %q", name)
	}
	return m, nil
}

func (m Method) String() string {
	switch m {
	case MethodEuler:
		return "euler"
	case MethodRK4:
		return "rk4"
	case MethodAdaptiveRK4:
		return "adaptive-rk4"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// derivative is the right-hand side of the three-compartment model:
//
//	da1/dt = rate - (k10+k12+k13)·a1 + k21·a2 + k31·a3
//	da2/dt = k12·a1 - k21·a2
//	da3/dt = k13·a1 - k31·a3
//
// rate is the infusion rate into the central compartment in mg/min.
func (p *PKParameterSet) derivative(s CompartmentState, rateMgPerMin float64) CompartmentState {
	return CompartmentState{
		A1: rateMgPerMin - (p.K10+p.K12+p.K13)*s.A1 + p.K21*s.A2 + p.K31*s.A3,
		A2: p.K12*s.A1 - p.K21*s.A2,
		A3: p.K13*s.A1 - p.K31*s.A3,
	}
}

func addScaled(s, d CompartmentState, h float64) CompartmentState {
	return CompartmentState{
		A1: s.A1 + h*d.A1,
		A2: s.A2 + h*d.A2,
		A3: s.A3 + h*d.A3,
	}
}

// eulerStep advances the compartment state by a single forward Euler step.
// Pure: identical inputs always produce identical outputs.
func eulerStep(p *PKParameterSet, s CompartmentState, rateMgPerMin, dt float64) CompartmentState {
	d := p.derivative(s, rateMgPerMin)
	return addScaled(s, d, dt).clampNonNegative()
}

// rk4Step advances the compartment state by one classical 4-stage
// Runge-Kutta step.
func rk4Step(p *PKParameterSet, s CompartmentState, rateMgPerMin, dt float64) CompartmentState {
	k1 := p.derivative(s, rateMgPerMin)
	k2 := p.derivative(addScaled(s, k1, dt/2), rateMgPerMin)
	k3 := p.derivative(addScaled(s, k2, dt/2), rateMgPerMin)
	k4 := p.derivative(addScaled(s, k3, dt), rateMgPerMin)

	next := CompartmentState{
		A1: s.A1 + dt/6*(k1.A1+2*k2.A1+2*k3.A1+k4.A1),
		A2: s.A2 + dt/6*(k1.A2+2*k2.A2+2*k3.A2+k4.A2),
		A3: s.A3 + dt/6*(k1.A3+2*k2.A3+2*k3.A3+k4.A3),
	}
	return next.clampNonNegative()
}

// ceRK4Step advances the effect-site ODE dCe/dt = ke0·(Cp-Ce) by one classical
// RK4 step, with the plasma concentration supplied at the stage times: start,
// the two midpoint stages, and the end of the step. The result is clamped so a
// negative plasma excursion never drives Ce below zero.
func ceRK4Step(ke0, ce, cp0, cpMidA, cpMidB, cp1, dt float64) float64 {
	k1 := ke0 * (cp0 - ce)
	k2 := ke0 * (cpMidA - (ce + dt/2*k1))
	k3 := ke0 * (cpMidB - (ce + dt/2*k2))
	k4 := ke0 * (cp1 - (ce + dt*k3))
	next := ce + dt/6*(k1+2*k2+2*k3+k4)
	if next < 0 {
		next = 0
	}
	return next
}

// rk4StepWithCe advances compartments and effect site together as one coupled
// four-dimensional RK4 step, so the adaptive controller's error estimate sees
// the effect-site component too. The Ce stages consume the plasma
// concentration of the matching compartment stages.
func rk4StepWithCe(p *PKParameterSet, s SolverState, rateMgPerMin, dt float64) SolverState {
	k1 := p.derivative(s.Comp, rateMgPerMin)
	s2 := addScaled(s.Comp, k1, dt/2)
	k2 := p.derivative(s2, rateMgPerMin)
	s3 := addScaled(s.Comp, k2, dt/2)
	k3 := p.derivative(s3, rateMgPerMin)
	s4 := addScaled(s.Comp, k3, dt)
	k4 := p.derivative(s4, rateMgPerMin)

	next := CompartmentState{
		A1: s.Comp.A1 + dt/6*(k1.A1+2*k2.A1+2*k3.A1+k4.A1),
		A2: s.Comp.A2 + dt/6*(k1.A2+2*k2.A2+2*k3.A2+k4.A2),
		A3: s.Comp.A3 + dt/6*(k1.A3+2*k2.A3+2*k3.A3+k4.A3),
	}

	ce := ceRK4Step(p.Ke0, s.Ce,
		s.Comp.PlasmaConcentration(p.V1),
		s2.PlasmaConcentration(p.V1),
		s3.PlasmaConcentration(p.V1),
		s4.PlasmaConcentration(p.V1),
		dt)

	return SolverState{
		TimeMinutes: s.TimeMinutes + dt,
		Comp:        next.clampNonNegative(),
		Ce:          ce,
	}
}

// StepUpdateFunc advances a full solver state by dt at a given infusion rate.
// The adaptive solver takes one of these so callers can swap the scheme; the
// production update is rk4StepWithCe.
type StepUpdateFunc func(p *PKParameterSet, s SolverState, rateMgPerMin, dt float64) SolverState
