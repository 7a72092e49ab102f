// Package config provides configuration management for the race probability
// pipeline.
package config

import (
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/model"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/simulate"
)

// Config represents the complete application configuration
type Config struct {
	App        AppConfig       `mapstructure:"app" validate:"required"`
	Data       DataConfig      `mapstructure:"data" validate:"required"`
	Transform  TransformConfig `mapstructure:"transform" validate:"required"`
	Model      model.Config    `mapstructure:"model" validate:"required"`
	Simulation simulate.Config `mapstructure:"simulation" validate:"required"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DataConfig locates the input partitions and output artifacts.
type DataConfig struct {
	TrainPath   string `mapstructure:"train_path" validate:"required"`
	TestPath    string `mapstructure:"test_path" validate:"required"`
	OutputPath  string `mapstructure:"output_path" validate:"required"`
	SummaryPath string `mapstructure:"summary_path" validate:"required"`
}

// TransformConfig holds the fit-time thresholds of the transform stage.
type TransformConfig struct {
	SkewThreshold float64 `mapstructure:"skew_threshold" validate:"required,gt=0"`
	CorrThreshold float64 `mapstructure:"corr_threshold" validate:"required,gt=0,lte=1"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address" validate:"omitempty,hostname_port"`
}

// Default returns a configuration with working defaults for every tunable.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "horse-racing-probabilistic-modelling",
			Environment: "development",
			LogLevel:    "info",
		},
		Data: DataConfig{
			TrainPath:   "data/train.csv",
			TestPath:    "data/test.csv",
			OutputPath:  "output/win_probabilities.csv",
			SummaryPath: "output/run_summary.json",
		},
		Transform: TransformConfig{
			SkewThreshold: 1.0,
			CorrThreshold: 0.95,
		},
		Model: model.Config{
			Folds:              5,
			PermutationRepeats: 5,
			MinK:               10,
			KStep:              2,
			SelectionTolerance: 0.01,
			Seed:               42,
		},
		Simulation: simulate.Config{
			Draws: simulate.DefaultDraws,
			Seed:  42,
		},
	}
}
