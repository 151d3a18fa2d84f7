package tci

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the engine tuning knobs, loadable from a YAML file. Zero
// values are filled from DefaultConfig by applyDefaults, so a partial file
// overrides only what it names.
type Config struct {
	// Adaptive step controller
	MinStep              float64 `yaml:"min_step"`               // minutes, default 0.001
	MaxStep              float64 `yaml:"max_step"`               // minutes, default 1.0
	DefaultStep          float64 `yaml:"default_step"`           // minutes, default 0.1
	Tolerance            float64 `yaml:"tolerance"`              // relative, default 1e-3
	AbsoluteFloor        float64 `yaml:"absolute_floor"`         // error-normalization floor, default 1e-6
	MaxRejections        int     `yaml:"max_rejections"`         // consecutive rejections before abort, default 10
	RapidChangeThreshold float64 `yaml:"rapid_change_threshold"` // relative Ce change rate (1/min), default 0.5
	ImportanceBandWidth  float64 `yaml:"importance_band_width"`  // µg/mL half-width around clinical bands, default 0.2
	SedationCe           float64 `yaml:"sedation_ce"`            // sedation band center (µg/mL), default 1.0
	AwakeningCe          float64 `yaml:"awakening_ce"`           // awakening band center (µg/mL), default 0.3

	// Fixed-step simulation
	HighResStep    float64 `yaml:"high_res_step"`   // minutes, default 0.01
	ReportInterval float64 `yaml:"report_interval"` // minutes, default 1.0
	TickStep       float64 `yaml:"tick_step"`       // minutes per session tick, default 0.01

	// Effect site
	EffectSiteSubstep   float64 `yaml:"effect_site_substep"`   // discrete rule substep, default 0.005
	EffectSiteTolerance float64 `yaml:"effect_site_tolerance"` // hybrid-vs-discrete agreement bound, default 1e-3

	// Rate search
	SearchMaxIterations int     `yaml:"search_max_iterations"` // default 75
	SearchStep          float64 `yaml:"search_step"`           // probe-simulation step (min), default 0.025

	// Step-down protocol
	ThresholdMultiple     float64 `yaml:"threshold_multiple"`      // upper threshold = target x multiple, default 1.2
	ReductionFactor       float64 `yaml:"reduction_factor"`        // default 0.70
	MinRate               float64 `yaml:"min_rate"`                // mg/kg/hr floor, default 0.1
	AdjustmentInterval    float64 `yaml:"adjustment_interval"`     // minutes between changes, default 5
	PredictionHorizon     float64 `yaml:"prediction_horizon"`      // look-ahead window (min), default 5
	SafetyCeilingMultiple float64 `yaml:"safety_ceiling_multiple"` // hard ceiling = target x multiple, default 1.5

	// Performance evaluation
	MaintenanceStart float64 `yaml:"maintenance_start"` // window start (min), default 60
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MinStep:              0.001,
		MaxStep:              1.0,
		DefaultStep:          0.1,
		Tolerance:            1e-3,
		AbsoluteFloor:        1e-6,
		MaxRejections:        10,
		RapidChangeThreshold: 0.5,
		ImportanceBandWidth:  0.2,
		SedationCe:           1.0,
		AwakeningCe:          0.3,

		HighResStep:    0.01,
		ReportInterval: 1.0,
		TickStep:       0.01,

		EffectSiteSubstep:   defaultSubstep,
		EffectSiteTolerance: 1e-3,

		SearchMaxIterations: 75,
		SearchStep:          0.025,

		ThresholdMultiple:     1.2,
		ReductionFactor:       0.70,
		MinRate:               0.1,
		AdjustmentInterval:    5.0,
		PredictionHorizon:     5.0,
		SafetyCeilingMultiple: 1.5,

		MaintenanceStart: 60.0,
	}
}

// applyDefaults fills zero-valued fields from DefaultConfig.
func (c Config) applyDefaults() Config {
	def := DefaultConfig()
	fill := func(v *float64, d float64) {
		if *v == 0 {
			*v = d
		}
	}
	fill(&c.MinStep, def.MinStep)
	fill(&c.MaxStep, def.MaxStep)
	fill(&c.DefaultStep, def.DefaultStep)
	fill(&c.Tolerance, def.Tolerance)
	fill(&c.AbsoluteFloor, def.AbsoluteFloor)
	if c.MaxRejections == 0 {
		c.MaxRejections = def.MaxRejections
	}
	fill(&c.RapidChangeThreshold, def.RapidChangeThreshold)
	fill(&c.ImportanceBandWidth, def.ImportanceBandWidth)
	fill(&c.SedationCe, def.SedationCe)
	fill(&c.AwakeningCe, def.AwakeningCe)
	fill(&c.HighResStep, def.HighResStep)
	fill(&c.ReportInterval, def.ReportInterval)
	fill(&c.TickStep, def.TickStep)
	fill(&c.EffectSiteSubstep, def.EffectSiteSubstep)
	fill(&c.EffectSiteTolerance, def.EffectSiteTolerance)
	if c.SearchMaxIterations == 0 {
		c.SearchMaxIterations = def.SearchMaxIterations
	}
	fill(&c.SearchStep, def.SearchStep)
	fill(&c.ThresholdMultiple, def.ThresholdMultiple)
	fill(&c.ReductionFactor, def.ReductionFactor)
	fill(&c.MinRate, def.MinRate)
	fill(&c.AdjustmentInterval, def.AdjustmentInterval)
	fill(&c.PredictionHorizon, def.PredictionHorizon)
	fill(&c.SafetyCeilingMultiple, def.SafetyCeilingMultiple)
	fill(&c.MaintenanceStart, def.MaintenanceStart)
	return c
}

// Validate checks parameter ranges and ordering constraints.
func (c *Config) Validate() error {
	if c.MinStep <= 0 {
		return fmt.Errorf("min_step must be positive, got %g", c.MinStep)
	}
	if c.MaxStep < c.MinStep {
		return fmt.Errorf("max_step %g must be >= min_step %g", c.MaxStep, c.MinStep)
	}
	if c.DefaultStep < c.MinStep || c.DefaultStep > c.MaxStep {
		return fmt.Errorf("default_step %g must lie in [%g, %g]", c.DefaultStep, c.MinStep, c.MaxStep)
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", c.Tolerance)
	}
	if c.MaxRejections <= 0 {
		return fmt.Errorf("max_rejections must be positive, got %d", c.MaxRejections)
	}
	if c.HighResStep <= 0 || c.ReportInterval <= 0 || c.TickStep <= 0 {
		return fmt.Errorf("high_res_step, report_interval and tick_step must be positive")
	}
	if c.ReportInterval < c.HighResStep {
		return fmt.Errorf("report_interval %g must be >= high_res_step %g", c.ReportInterval, c.HighResStep)
	}
	if c.SearchMaxIterations <= 0 {
		return fmt.Errorf("search_max_iterations must be positive, got %d", c.SearchMaxIterations)
	}
	if c.ReductionFactor <= 0 || c.ReductionFactor >= 1 {
		return fmt.Errorf("reduction_factor must lie in (0, 1), got %g", c.ReductionFactor)
	}
	if c.ThresholdMultiple <= 1 {
		return fmt.Errorf("threshold_multiple must exceed 1, got %g", c.ThresholdMultiple)
	}
	if c.SafetyCeilingMultiple <= c.ThresholdMultiple {
		return fmt.Errorf("safety_ceiling_multiple %g must exceed threshold_multiple %g",
			c.SafetyCeilingMultiple, c.ThresholdMultiple)
	}
	if c.MinRate < 0 {
		return fmt.Errorf("min_rate must be non-negative, got %g", c.MinRate)
	}
	return nil
}

// LoadConfig reads a YAML engine configuration, fills defaults and validates.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading engine config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parsing engine config: %w", err)
	}
	c = c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("engine config: %w", err)
	}
	return c, nil
}
