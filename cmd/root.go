package cmd

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ysuzuki1978/remimazolam-tci-simulator-sub000/tci"
)

var (
	// shared CLI flags
	logLevel    string  // log verbosity level
	patientPath string  // patient YAML file (PK parameters, weight, dose events)
	configPath  string  // optional engine tuning YAML
	methodName  string  // integration method: euler, rk4, adaptive-rk4
	horizon     float64 // simulation horizon (minutes)

	// optimize flags
	bolusMg    float64 // induction bolus (mg)
	targetCe   float64 // target effect-site concentration (µg/mL)
	targetTime float64 // time at which target should be reached (minutes)
	predictive bool    // enable predictive look-ahead step-down
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "tcisim",
	Short: "Target-controlled infusion simulator and dosing optimizer for remimazolam",
}

// setupRun loads logging, engine config and the patient file shared by both
// subcommands.
func setupRun() (*PatientFile, tci.Config) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)

	cfg := tci.DefaultConfig()
	if configPath != "" {
		cfg, err = tci.LoadConfig(configPath)
		if err != nil {
			logrus.Fatalf("Engine config: %v", err)
		}
	}

	if patientPath == "" {
		logrus.Fatalf("Patient file not provided. Exiting.")
	}
	pf, err := LoadPatientFile(patientPath)
	if err != nil {
		logrus.Fatalf("Patient file: %v", err)
	}
	return pf, cfg
}

// simulateCmd runs a monitoring simulation over the patient file's dose events.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate an arbitrary dose timeline and report the concentration trajectory",
	Run: func(cmd *cobra.Command, args []string) {
		pf, cfg := setupRun()

		method, err := tci.ParseMethod(methodName)
		if err != nil {
			logrus.Fatalf("Method: %v", err)
		}
		tl, err := pf.Timeline()
		if err != nil {
			logrus.Fatalf("Dose events: %v", err)
		}

		logrus.Infof("Starting monitoring simulation: method=%s, %d dose events, weight=%.1f kg",
			method, tl.Len(), pf.WeightKg)
		startTime := time.Now()

		orch, err := tci.NewSimulationOrchestrator(&pf.PK, pf.WeightKg, cfg, method)
		if err != nil {
			logrus.Fatalf("Orchestrator: %v", err)
		}
		result, err := orch.Run(tl, horizon)
		if err != nil {
			logrus.Fatalf("Simulation: %v", err)
		}

		result.Print()
		logrus.Infof("Simulation complete in %v.", time.Since(startTime))
	},
}

// optimizeCmd searches the continuous rate for a target Ce and generates the
// step-down schedule.
var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Optimize bolus+infusion dosing toward a target effect-site concentration",
	Run: func(cmd *cobra.Command, args []string) {
		pf, cfg := setupRun()

		logrus.Infof("Starting protocol optimization: bolus=%.1f mg, target=%.2f µg/mL, weight=%.1f kg",
			bolusMg, targetCe, pf.WeightKg)
		startTime := time.Now()

		opt, err := tci.NewProtocolOptimizer(&pf.PK, pf.WeightKg, cfg)
		if err != nil {
			logrus.Fatalf("Optimizer: %v", err)
		}
		duration := horizon
		if duration <= 0 {
			duration = targetTime + 60
		}
		result, err := opt.GenerateSchedule(bolusMg, targetCe, targetTime, duration, predictive)
		if err != nil && result == nil {
			logrus.Fatalf("Optimization: %v", err)
		}
		if err != nil {
			// safety violation: the schedule is returned but must be
			// acknowledged before acceptance
			logrus.Warnf("Safety: %v", err)
		}

		result.Print()
		logrus.Infof("Optimization complete in %v.", time.Since(startTime))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&patientPath, "patient", "", "patient YAML file (PK parameters, weight, dose events)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "engine tuning YAML (optional)")
	rootCmd.PersistentFlags().Float64Var(&horizon, "horizon", 0, "simulation horizon in minutes (0 = last event + 120)")

	simulateCmd.Flags().StringVar(&methodName, "method", "rk4", "integration method: euler, rk4, adaptive-rk4")

	optimizeCmd.Flags().Float64Var(&bolusMg, "bolus", 0, "induction bolus in mg")
	optimizeCmd.Flags().Float64Var(&targetCe, "target", 0, "target effect-site concentration in µg/mL")
	optimizeCmd.Flags().Float64Var(&targetTime, "target-time", 60, "minutes at which the target should be reached")
	optimizeCmd.Flags().BoolVar(&predictive, "predictive", false, "enable predictive look-ahead step-down")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(optimizeCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
