// Package tci provides the core simulation and dosing-optimization engine for
// a remimazolam target-controlled infusion (TCI) calculator.
//
// # Reading Guide
//
// Start with these three files to understand the numerical kernel:
//   - params.go: patient pharmacokinetic rate constants and their validation
//   - integrator.go: the three-compartment ODE right-hand side and the
//     Euler/RK4 step functions
//   - effectsite.go: plasma-to-effect-site conversion (hybrid closed form and
//     the discrete midpoint reference rule)
//
// # Architecture
//
// Everything above the kernel is a driver over the same step functions:
//   - adaptive.go / adaptive_solver.go: event-aware adaptive step-size control
//     with step-doubling error estimation
//   - optimizer.go / stepdown.go: continuous-rate search and step-down
//     schedule generation
//   - orchestrator.go: fixed-step monitoring simulation over an arbitrary dose
//     timeline
//   - session.go: tick-driven real-time session owned by the caller
//
// The engine is single-threaded and deterministic: identical inputs (patient
// parameters, dose events, method, step configuration) always produce
// bit-identical outputs. All mutable state belongs to exactly one session or
// one run; there are no package-level singletons.
package tci
