package tci

// PKParameterSet is the immutable per-patient pharmacokinetic rate-constant
// bundle consumed by the engine. An external population-PK calculator supplies
// volumes, clearances and ke0; the micro rate constants are derived once via
// DeriveRateConstants. The engine never writes to a PKParameterSet after
// construction.
type PKParameterSet struct {
	V1 float64 `yaml:"v1"` // central volume (L)
	V2 float64 `yaml:"v2"` // shallow peripheral volume (L)
	V3 float64 `yaml:"v3"` // deep peripheral volume (L)

	CL float64 `yaml:"cl"` // metabolic clearance (L/min)
	Q2 float64 `yaml:"q2"` // central<->shallow inter-compartmental clearance (L/min)
	Q3 float64 `yaml:"q3"` // central<->deep inter-compartmental clearance (L/min)

	Ke0 float64 `yaml:"ke0"` // plasma->effect-site equilibration constant (1/min)

	// Derived micro rate constants (1/min). Zero until DeriveRateConstants
	// runs; patient files may also supply them directly.
	K10 float64 `yaml:"k10,omitempty"`
	K12 float64 `yaml:"k12,omitempty"`
	K21 float64 `yaml:"k21,omitempty"`
	K13 float64 `yaml:"k13,omitempty"`
	K31 float64 `yaml:"k31,omitempty"`
}

// DeriveRateConstants fills the micro rate constants from volumes and
// clearances. Returns a copy; the receiver is not modified.
func (p PKParameterSet) DeriveRateConstants() PKParameterSet {
	p.K10 = p.CL / p.V1
	p.K12 = p.Q2 / p.V1
	p.K21 = p.Q2 / p.V2
	p.K13 = p.Q3 / p.V1
	p.K31 = p.Q3 / p.V3
	return p
}

// Validate checks that every rate constant the integrators consume is strictly
// positive. Called at every API boundary that accepts a parameter set.
func (p *PKParameterSet) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"v1", p.V1}, {"v2", p.V2}, {"v3", p.V3},
		{"cl", p.CL}, {"q2", p.Q2}, {"q3", p.Q3},
		{"ke0", p.Ke0},
		{"k10", p.K10}, {"k12", p.K12}, {"k21", p.K21},
		{"k13", p.K13}, {"k31", p.K31},
	}
	for _, c := range checks {
		if !(c.v > 0) {
			return validationf("pk parameter %s must be strictly positive, got %g", c.name, c.v)
		}
	}
	return nil
}
