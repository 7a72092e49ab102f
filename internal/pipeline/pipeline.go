// Package pipeline orchestrates the batch computation: clean, engineer
// features, fit and apply the frozen transform, train and select the linear
// model, simulate win probabilities and evaluate. Data flows strictly one
// way; every parameter is fitted on the training partition and applied
// unmodified to the test partition.
package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/config"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/dataset"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/evaluate"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/features"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/logger"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/metrics"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/model"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/models"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/simulate"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/transform"
)

// Summary is the JSON artifact describing one complete run.
type Summary struct {
	RunID            string                   `json:"run_id"`
	StartedAt        time.Time                `json:"started_at"`
	FinishedAt       time.Time                `json:"finished_at"`
	TrainLoad        dataset.LoadReport       `json:"train_load"`
	TestLoad         dataset.LoadReport       `json:"test_load"`
	TrainClean       dataset.CleanReport      `json:"train_clean"`
	TestClean        dataset.CleanReport      `json:"test_clean"`
	TrainQuality     *transform.QualityReport `json:"train_quality"`
	TestQuality      *transform.QualityReport `json:"test_quality"`
	SelectedFeatures []string                 `json:"selected_features"`
	CVCurve          []model.CVPoint          `json:"cv_curve"`
	Sigma            float64                  `json:"sigma"`
	Draws            int                      `json:"draws"`
	Evaluation       *evaluate.Report         `json:"evaluation"`
}

// StageObserver is notified as the run moves between stages.
type StageObserver interface {
	SetStage(stage string)
}

// Pipeline wires the stages together.
type Pipeline struct {
	cfg      *config.Config
	log      *logrus.Logger
	runID    uuid.UUID
	observer StageObserver
}

// New creates a pipeline for one run.
func New(cfg *config.Config, log *logrus.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, log: log, runID: uuid.New()}
}

// WithObserver attaches a stage observer, typically the monitoring server.
func (p *Pipeline) WithObserver(observer StageObserver) *Pipeline {
	p.observer = observer
	return p
}

// Run executes the full train -> simulate -> evaluate sequence and writes the
// output artifacts.
func (p *Pipeline) Run() (*Summary, error) {
	metrics.InitRegistry()
	summary := &Summary{RunID: p.runID.String(), StartedAt: time.Now()}
	runLog := p.log.WithField("run_id", summary.RunID)
	runLog.Info("Starting pipeline run")

	// Load and clean both partitions. Zero-duration rows are dropped, never
	// imputed.
	trainEntries, testEntries, err := p.loadPartitions(summary)
	if err != nil {
		return nil, err
	}

	trainGroups := models.GroupByRace(trainEntries)
	testGroups := models.GroupByRace(testEntries)
	trainTargets := dataset.Targets(trainEntries)

	engineer := features.NewEngineer(logger.WithStage(p.log, "features"))
	var trainFrame, testFrame *models.Frame
	err = p.timed("features", func() error {
		if trainFrame, err = engineer.Build(trainEntries, trainGroups); err != nil {
			return fmt.Errorf("engineer training features: %w", err)
		}
		if testFrame, err = engineer.Build(testEntries, testGroups); err != nil {
			return fmt.Errorf("engineer test features: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Fit the transform on training data only; apply the frozen state to
	// both partitions.
	transformer := transform.NewTransformer(
		logger.WithStage(p.log, "transform"),
		p.cfg.Transform.SkewThreshold,
		p.cfg.Transform.CorrThreshold,
	)
	var state *transform.FittedTransformState
	var trainMatrix, testMatrix *models.Frame
	err = p.timed("transform", func() error {
		if state, err = transformer.Fit(trainFrame, trainTargets); err != nil {
			return fmt.Errorf("fit transform: %w", err)
		}
		if trainMatrix, summary.TrainQuality, err = transformer.Apply(state, trainFrame); err != nil {
			return fmt.Errorf("apply transform to training: %w", err)
		}
		if testMatrix, summary.TestQuality, err = transformer.Apply(state, testFrame); err != nil {
			return fmt.Errorf("apply transform to test: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.recordQuality(summary)

	trainer := model.NewTrainer(p.cfg.Model, logger.WithStage(p.log, "model"))
	var trained *model.Result
	err = p.timed("train", func() error {
		trained, err = trainer.TrainAndSelect(trainMatrix, state.TransformTarget(trainTargets), trainGroups)
		return err
	})
	if err != nil {
		return nil, err
	}
	summary.SelectedFeatures = trained.Selected
	summary.CVCurve = trained.CVCurve
	metrics.SelectedFeatures.Set(float64(len(trained.Selected)))

	// Predict test speeds with the same K features in the same transformed
	// representation, then return to the original speed scale.
	selectedTest, err := testMatrix.Select(trained.Selected)
	if err != nil {
		return nil, fmt.Errorf("select test features: %w", err)
	}
	predictedSpeed := state.InverseTarget(trained.Model.Predict(selectedTest.Values))

	summary.Sigma = state.TargetStd
	summary.Draws = p.cfg.Simulation.Draws
	metrics.SimulationDraws.Set(float64(p.cfg.Simulation.Draws))

	simulator := simulate.NewSimulator(p.cfg.Simulation, state.TargetStd, logger.WithStage(p.log, "simulate"))
	var probabilities []float64
	err = p.timed("simulate", func() error {
		probabilities, err = simulator.WinProbabilities(predictedSpeed, testGroups)
		return err
	})
	if err != nil {
		return nil, err
	}

	evaluator := evaluate.NewEvaluator(logger.WithStage(p.log, "evaluate"))
	err = p.timed("evaluate", func() error {
		summary.Evaluation, err = evaluator.Evaluate(testEntries, predictedSpeed, probabilities, testGroups)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := p.writeArtifacts(summary, testEntries, probabilities); err != nil {
		return nil, err
	}

	summary.FinishedAt = time.Now()
	runLog.WithFields(logrus.Fields{
		"selected_k": len(summary.SelectedFeatures),
		"races":      testGroups.NumRaces(),
		"duration":   summary.FinishedAt.Sub(summary.StartedAt).String(),
	}).Info("Pipeline run complete")

	return summary, nil
}

func (p *Pipeline) loadPartitions(summary *Summary) ([]models.Entry, []models.Entry, error) {
	var trainEntries, testEntries []models.Entry
	err := p.timed("load", func() error {
		raw, report, err := dataset.LoadEntries(p.cfg.Data.TrainPath)
		if err != nil {
			return err
		}
		summary.TrainLoad = report
		trainEntries, summary.TrainClean = dataset.Clean(raw)

		raw, report, err = dataset.LoadEntries(p.cfg.Data.TestPath)
		if err != nil {
			return err
		}
		summary.TestLoad = report
		testEntries, summary.TestClean = dataset.Clean(raw)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(trainEntries) == 0 || len(testEntries) == 0 {
		return nil, nil, models.ErrEmptyDataset
	}

	malformed := summary.TrainLoad.MalformedValues + summary.TestLoad.MalformedValues
	metrics.MalformedValuesTotal.Add(float64(malformed))
	if malformed > 0 {
		p.log.WithField("malformed_values", malformed).Warn("Unparseable numeric cells treated as missing")
	}

	dropped := summary.TrainClean.RowsDropped + summary.TestClean.RowsDropped
	metrics.RowsDroppedTotal.Add(float64(dropped))
	if dropped > 0 {
		p.log.WithField("rows_dropped", dropped).Warn("Dropped rows with undefined speed target")
	}
	return trainEntries, testEntries, nil
}

func (p *Pipeline) recordQuality(summary *Summary) {
	for _, report := range []*transform.QualityReport{summary.TrainQuality, summary.TestQuality} {
		if report == nil {
			continue
		}
		metrics.ValuesImputedTotal.Add(float64(report.ValuesImputed))
		metrics.ValuesLeftMissingTotal.Add(float64(report.ValuesLeftMissing))
		metrics.UnknownCategoriesTotal.Add(float64(report.UnknownCategories))
		if report.ValuesLeftMissing > 0 || report.UnknownCategories > 0 {
			p.log.WithFields(logrus.Fields{
				"values_left_missing": report.ValuesLeftMissing,
				"unknown_categories":  report.UnknownCategories,
			}).Warn("Data-quality gaps while applying transform")
		}
	}
}

func (p *Pipeline) writeArtifacts(summary *Summary, testEntries []models.Entry, probabilities []float64) error {
	rows := make([]dataset.Probability, len(testEntries))
	for i := range testEntries {
		rows[i] = dataset.Probability{
			RaceID:         testEntries[i].RaceID,
			HorseID:        testEntries[i].HorseID,
			WinProbability: probabilities[i],
		}
	}
	if err := dataset.WriteProbabilities(p.cfg.Data.OutputPath, rows); err != nil {
		return fmt.Errorf("write probabilities: %w", err)
	}
	if err := dataset.WriteSummary(p.cfg.Data.SummaryPath, summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func (p *Pipeline) timed(stage string, fn func() error) error {
	if p.observer != nil {
		p.observer.SetStage(stage)
	}
	start := time.Now()
	err := fn()
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return err
}
