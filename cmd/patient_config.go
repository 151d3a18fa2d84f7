package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ysuzuki1978/remimazolam-tci-simulator-sub000/tci"
)

// PatientFile is the YAML input describing one simulation session: the
// patient's pharmacokinetic parameter set (from the external population-PK
// calculator), weight, and the dose events to simulate.
type PatientFile struct {
	WeightKg   float64            `yaml:"weight_kg"`
	PK         tci.PKParameterSet `yaml:"pk"`
	DoseEvents []tci.DoseEvent    `yaml:"dose_events"`
}

// LoadPatientFile reads and validates a patient YAML file. Micro rate
// constants are derived from volumes and clearances when the file omits them.
func LoadPatientFile(path string) (*PatientFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patient file: %w", err)
	}
	var pf PatientFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing patient file: %w", err)
	}
	if pf.PK.K10 == 0 {
		pf.PK = pf.PK.DeriveRateConstants()
	}
	if err := pf.PK.Validate(); err != nil {
		return nil, fmt.Errorf("patient file %q: %w", path, err)
	}
	if !(pf.WeightKg > 0) {
		return nil, fmt.Errorf("patient file %q: weight_kg must be strictly positive, got %g", path, pf.WeightKg)
	}
	return &pf, nil
}

// Timeline builds the validated dose timeline from the file's events.
func (pf *PatientFile) Timeline() (*tci.DoseTimeline, error) {
	return tci.NewDoseTimeline(pf.DoseEvents)
}
