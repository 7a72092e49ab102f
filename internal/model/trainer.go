package model

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/models"
)

// Config controls training, importance estimation and feature selection.
type Config struct {
	Folds              int     `mapstructure:"folds" validate:"required,gte=2"`
	PermutationRepeats int     `mapstructure:"permutation_repeats" validate:"required,gt=0"`
	MinK               int     `mapstructure:"min_k" validate:"required,gt=0"`
	KStep              int     `mapstructure:"k_step" validate:"required,gt=0"`
	SelectionTolerance float64 `mapstructure:"selection_tolerance" validate:"gte=0"`
	Seed               int64   `mapstructure:"seed"`
}

// CVPoint is one candidate size on the RMSE-vs-K curve.
type CVPoint struct {
	K    int     `json:"k"`
	RMSE float64 `json:"rmse"`
}

// Result carries the final fitted model and everything needed to apply it
// consistently at test time.
type Result struct {
	Model    *OLS                `json:"model"`
	Selected []string            `json:"selected_features"`
	Ranking  []FeatureImportance `json:"importance_ranking"`
	CVCurve  []CVPoint           `json:"cv_curve"`
}

// Trainer fits the linear model with grouped cross-validation and selects the
// top-K features by permutation importance.
type Trainer struct {
	cfg    Config
	logger logrus.FieldLogger
}

// NewTrainer creates a trainer.
func NewTrainer(cfg Config, logger logrus.FieldLogger) *Trainer {
	if cfg.Folds < 2 {
		cfg.Folds = 5
	}
	if cfg.PermutationRepeats <= 0 {
		cfg.PermutationRepeats = 5
	}
	if cfg.MinK <= 0 {
		cfg.MinK = 10
	}
	if cfg.KStep <= 0 {
		cfg.KStep = 2
	}
	if cfg.SelectionTolerance <= 0 {
		cfg.SelectionTolerance = 0.01
	}
	return &Trainer{cfg: cfg, logger: logger}
}

// TrainAndSelect ranks features by permutation importance on a held-out fold,
// walks the grouped-CV RMSE curve over candidate top-K sizes, picks the
// smallest K whose RMSE sits within the selection tolerance of the best, and
// refits the final model on the full training set restricted to those
// features.
func (t *Trainer) TrainAndSelect(frame *models.Frame, y []float64, groups *models.RaceGroups) (*Result, error) {
	if frame.NumRows() != len(y) || frame.NumRows() != groups.NumRows() {
		return nil, models.ErrDimensionMismatch
	}

	folds, err := GroupedKFold(groups, t.cfg.Folds, t.cfg.Seed)
	if err != nil {
		return nil, err
	}

	// Importance comes from a single split: fit on the first fold's training
	// rows, permute on its held-out rows.
	probe := folds[0]
	trainX := matrix(frame.Subset(probe.TrainRows), frame.Columns)
	trainY := vectorRows(y, probe.TrainRows)
	heldX := matrix(frame.Subset(probe.TestRows), frame.Columns)
	heldY := vectorRows(y, probe.TestRows)

	probeModel, err := FitOLS(trainX, trainY)
	if err != nil {
		return nil, fmt.Errorf("importance probe fit: %w", err)
	}
	ranking := RankImportance(PermutationImportance(
		probeModel, heldX, heldY, frame.Columns, t.cfg.PermutationRepeats, t.cfg.Seed))

	curve, err := t.cvCurve(frame, y, folds, ranking)
	if err != nil {
		return nil, err
	}
	selectedK := selectK(curve, t.cfg.SelectionTolerance)

	selected := make([]string, selectedK)
	for i := 0; i < selectedK; i++ {
		selected[i] = ranking[i].Feature
	}

	finalX := matrix(frame, selected)
	final, err := FitOLS(finalX, y)
	if err != nil {
		return nil, fmt.Errorf("final fit: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"selected_k": selectedK,
		"candidates": len(curve),
		"folds":      len(folds),
	}).Info("Selected feature set")

	return &Result{Model: final, Selected: selected, Ranking: ranking, CVCurve: curve}, nil
}

// cvCurve computes grouped-CV RMSE for each candidate top-K size.
func (t *Trainer) cvCurve(frame *models.Frame, y []float64, folds []Fold, ranking []FeatureImportance) ([]CVPoint, error) {
	var curve []CVPoint
	full := len(ranking)
	for k := min(t.cfg.MinK, full); k <= full; k += t.cfg.KStep {
		columns := make([]string, k)
		for i := 0; i < k; i++ {
			columns[i] = ranking[i].Feature
		}
		rmse, err := t.groupedCVRMSE(frame, y, folds, columns)
		if err != nil {
			return nil, fmt.Errorf("grouped CV at k=%d: %w", k, err)
		}
		curve = append(curve, CVPoint{K: k, RMSE: rmse})
		if k == full {
			break
		}
		if k+t.cfg.KStep > full {
			// Always evaluate the full feature set as the last candidate.
			k = full - t.cfg.KStep
		}
	}
	return curve, nil
}

func (t *Trainer) groupedCVRMSE(frame *models.Frame, y []float64, folds []Fold, columns []string) (float64, error) {
	sumSq := 0.0
	count := 0
	for _, fold := range folds {
		fitted, err := FitOLS(matrix(frame.Subset(fold.TrainRows), columns), vectorRows(y, fold.TrainRows))
		if err != nil {
			return 0, err
		}
		preds := fitted.Predict(matrix(frame.Subset(fold.TestRows), columns))
		for i, row := range fold.TestRows {
			diff := preds[i] - y[row]
			sumSq += diff * diff
		}
		count += len(fold.TestRows)
	}
	return math.Sqrt(sumSq / float64(count)), nil
}

// selectK picks the smallest K whose RMSE is within tolerance of the best
// point on the curve (the plateau rule).
func selectK(curve []CVPoint, tolerance float64) int {
	best := math.Inf(1)
	for _, p := range curve {
		if p.RMSE < best {
			best = p.RMSE
		}
	}
	for _, p := range curve {
		if p.RMSE <= best*(1+tolerance) {
			return p.K
		}
	}
	return curve[len(curve)-1].K
}

// matrix extracts the named columns of a (typically Subset) frame as a
// row-major design matrix.
func matrix(frame *models.Frame, columns []string) [][]float64 {
	idx := make([]int, len(columns))
	for k, name := range columns {
		j, err := frame.ColIndex(name)
		if err != nil {
			// Selection only ever names columns produced by the transform.
			panic(err)
		}
		idx[k] = j
	}
	out := make([][]float64, frame.NumRows())
	for i, row := range frame.Values {
		sel := make([]float64, len(idx))
		for k, j := range idx {
			sel[k] = row[j]
		}
		out[i] = sel
	}
	return out
}

func vectorRows(y []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for k, i := range rows {
		out[k] = y[i]
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
