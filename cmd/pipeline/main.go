// Package main provides the entry point for the race win-probability
// pipeline.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/config"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/health"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/logger"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/pipeline"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile string
	trainPath  string
	testPath   string
	outputPath string
	draws      int
	seed       int64
	appLogger  *logrus.Logger
	cfg        *config.Config
)

func init() {
	rootCmd = newRootCmd()
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.Flags().StringVar(&trainPath, "train", "", "Override training CSV path")
	rootCmd.Flags().StringVar(&testPath, "test", "", "Override test CSV path")
	rootCmd.Flags().StringVar(&outputPath, "output", "", "Override probability output path")
	rootCmd.Flags().IntVar(&draws, "draws", 0, "Override Monte Carlo draw count")
	rootCmd.Flags().Int64Var(&seed, "seed", 0, "Override random seed for training and simulation")
	rootCmd.AddCommand(versionCmd)
}

var rootCmd *cobra.Command

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline",
		Short: "Estimate per-race win probabilities from historical performance data",
		Long: `Runs the full batch pipeline: feature engineering, leakage-safe
transformation, grouped-CV model selection, Monte Carlo simulation and
evaluation, writing the per-race win-probability artifact.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(); err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			appLogger = logger.NewLogger(cfg.App.LogLevel, cfg.App.Environment)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline()
		},
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pipeline %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func loadConfig() error {
	loaded, err := config.Load(configFile)
	if err != nil {
		return err
	}
	applyOverrides(loaded)
	if err := config.Validate(loaded); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// applyOverrides copies flag values over the loaded config, but only for
// flags the user actually set, so zero is a usable seed and draw count.
func applyOverrides(loaded *config.Config) {
	flags := rootCmd.Flags()
	if flags.Changed("train") {
		loaded.Data.TrainPath = trainPath
	}
	if flags.Changed("test") {
		loaded.Data.TestPath = testPath
	}
	if flags.Changed("output") {
		loaded.Data.OutputPath = outputPath
	}
	if flags.Changed("draws") {
		loaded.Simulation.Draws = draws
	}
	if flags.Changed("seed") {
		loaded.Model.Seed = seed
		loaded.Simulation.Seed = seed
	}
}

func runPipeline() error {
	run := pipeline.New(cfg, appLogger)

	var monitor *health.Server
	if cfg.Metrics.Enabled {
		monitor = health.NewServer(health.Config{
			ServiceName: cfg.App.Name,
			Version:     Version,
			Commit:      GitCommit,
			Address:     cfg.Metrics.Address,
			Logger:      appLogger,
		})
		if err := monitor.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start monitoring server: %w", err)
		}
		defer monitor.Shutdown()
		run.WithObserver(monitor)
	}

	summary, err := run.Run()
	if err != nil {
		return err
	}
	if monitor != nil {
		monitor.SetDone()
	}

	appLogger.WithFields(logrus.Fields{
		"output":  cfg.Data.OutputPath,
		"summary": cfg.Data.SummaryPath,
		"rmse":    summary.Evaluation.Regression.RMSE,
	}).Info("Artifacts written")
	return nil
}
