// Package transform fits and applies the leakage-safe feature transformation
// pipeline: grouped median imputation, skew-routed power transform or
// standardization, one-hot encoding and collinearity pruning. All parameters
// are fitted once on the training partition and frozen in a
// FittedTransformState that every later apply call consumes read-only.
package transform

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	gostat "gonum.org/v1/gonum/stat"

	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/features"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/models"
)

// Defaults for the routing and pruning thresholds.
const (
	DefaultSkewThreshold = 1.0
	DefaultCorrThreshold = 0.95
)

// imputeGroupField is the categorical field keying the imputation lookup.
const imputeGroupField = "going"

// catFields are the one-hot encoded categorical fields, in encoding order.
var catFields = []string{"going", "course"}

// QualityReport counts data-quality events observed while applying the
// transform. Nothing is fabricated silently: every unresolved value is
// counted here and surfaced by the pipeline.
type QualityReport struct {
	Rows              int `json:"rows"`
	ValuesImputed     int `json:"values_imputed"`
	ValuesLeftMissing int `json:"values_left_missing"`
	ValuesZeroFilled  int `json:"values_zero_filled"`
	UnknownCategories int `json:"unknown_categories"`
}

// Transformer fits transform state on training data and applies it to any
// partition.
type Transformer struct {
	logger        logrus.FieldLogger
	skewThreshold float64
	corrThreshold float64
}

// NewTransformer creates a transformer with the given routing and pruning
// thresholds. Zero thresholds fall back to the defaults.
func NewTransformer(logger logrus.FieldLogger, skewThreshold, corrThreshold float64) *Transformer {
	if skewThreshold <= 0 {
		skewThreshold = DefaultSkewThreshold
	}
	if corrThreshold <= 0 {
		corrThreshold = DefaultCorrThreshold
	}
	return &Transformer{logger: logger, skewThreshold: skewThreshold, corrThreshold: corrThreshold}
}

// Fit computes the full frozen transform state from the training frame and
// raw training target. It must only ever see training rows.
func (t *Transformer) Fit(frame *models.Frame, target []float64) (*FittedTransformState, error) {
	if frame.NumRows() == 0 || len(target) != frame.NumRows() {
		return nil, models.ErrEmptyDataset
	}

	state := &FittedTransformState{
		ImputeMedians:    make(map[string]map[string]float64),
		PowerFeatures:    make(map[string]PowerParams),
		StandardFeatures: make(map[string]ScaleParams),
		CatVocab:         make(map[string][]string),
		SkewThreshold:    t.skewThreshold,
		CorrThreshold:    t.corrThreshold,
	}

	// DaysSinceLastRun is deliberately excluded from imputation: rows
	// missing it stay missing.
	for _, col := range frame.Columns {
		if col == features.ColDaysSinceRun {
			continue
		}
		state.ImputeFields = append(state.ImputeFields, col)
	}

	t.fitMedians(state, frame)

	imputed := copyValues(frame.Values)
	t.imputeInPlace(state, imputed, frame, &QualityReport{})

	if err := t.fitRouting(state, imputed, frame.Columns); err != nil {
		return nil, err
	}

	for _, cat := range catFields {
		state.CatVocab[cat] = vocabulary(frame.Cats[cat])
	}

	if err := t.fitTarget(state, target); err != nil {
		return nil, err
	}

	assembled := t.assemble(state, frame, &QualityReport{})
	t.fitPruning(state, assembled)

	t.logger.WithFields(logrus.Fields{
		"power_features":    len(state.PowerFeatures),
		"standard_features": len(state.StandardFeatures),
		"pruned_columns":    len(state.PrunedColumns),
		"output_columns":    len(state.OutputColumns),
	}).Info("Fitted transform state")

	return state, nil
}

// Apply transforms any partition using the frozen state. Applying to the
// training frame itself reproduces the fit-time matrix exactly.
func (t *Transformer) Apply(state *FittedTransformState, frame *models.Frame) (*models.Frame, *QualityReport, error) {
	if state == nil || len(state.OutputColumns) == 0 {
		return nil, nil, models.ErrNotFitted
	}
	report := &QualityReport{Rows: frame.NumRows()}
	assembled := t.assemble(state, frame, report)
	out, err := assembled.Select(state.OutputColumns)
	if err != nil {
		return nil, nil, err
	}
	return out, report, nil
}

func (t *Transformer) fitMedians(state *FittedTransformState, frame *models.Frame) {
	going := frame.Cats[imputeGroupField]
	byGroup := make(map[string][]int)
	for i, g := range going {
		byGroup[g] = append(byGroup[g], i)
	}
	for g, rows := range byGroup {
		fields := make(map[string]float64)
		for _, col := range state.ImputeFields {
			j, err := frame.ColIndex(col)
			if err != nil {
				continue
			}
			finite := make([]float64, 0, len(rows))
			for _, i := range rows {
				if v := frame.Values[i][j]; !math.IsNaN(v) {
					finite = append(finite, v)
				}
			}
			if len(finite) == 0 {
				continue
			}
			if median, err := stats.Median(finite); err == nil {
				fields[col] = median
			}
		}
		state.ImputeMedians[g] = fields
	}
}

func (t *Transformer) imputeInPlace(state *FittedTransformState, values [][]float64, frame *models.Frame, report *QualityReport) {
	going := frame.Cats[imputeGroupField]
	for _, col := range state.ImputeFields {
		j, err := frame.ColIndex(col)
		if err != nil {
			continue
		}
		for i := range values {
			if !math.IsNaN(values[i][j]) {
				continue
			}
			if median, ok := state.lookupMedian(going[i], col); ok {
				values[i][j] = median
				report.ValuesImputed++
			} else {
				// No training rows covered this (going, field) pair. Leave
				// the value missing and count it.
				report.ValuesLeftMissing++
			}
		}
	}
}

// fitRouting computes per-feature skewness on the imputed training matrix and
// freezes either Yeo-Johnson or standardization parameters per column.
func (t *Transformer) fitRouting(state *FittedTransformState, values [][]float64, columns []string) error {
	for j, col := range columns {
		finite := finiteColumn(values, j)
		if len(finite) == 0 {
			return fmt.Errorf("feature %s: %w", col, models.ErrDegenerateFeature)
		}
		skew := gostat.Skew(finite, nil)
		if !math.IsNaN(skew) && math.Abs(skew) > t.skewThreshold {
			lambda := fitLambda(finite)
			transformed := make([]float64, len(finite))
			for i, v := range finite {
				transformed[i] = yeoJohnson(v, lambda)
			}
			mean, std := meanStd(transformed)
			if std <= 1e-12 {
				return fmt.Errorf("feature %s: %w", col, models.ErrDegenerateFeature)
			}
			state.PowerFeatures[col] = PowerParams{Lambda: lambda, Mean: mean, Std: std}
			continue
		}
		mean, std := meanStd(finite)
		if std <= 1e-12 {
			return fmt.Errorf("feature %s: %w", col, models.ErrDegenerateFeature)
		}
		state.StandardFeatures[col] = ScaleParams{Mean: mean, Std: std}
	}
	return nil
}

func (t *Transformer) fitTarget(state *FittedTransformState, target []float64) error {
	_, rawStd := meanStd(target)
	if rawStd <= 1e-12 {
		return fmt.Errorf("speed target: %w", models.ErrDegenerateFeature)
	}
	state.TargetStd = rawStd

	lambda := fitLambda(target)
	transformed := make([]float64, len(target))
	for i, v := range target {
		transformed[i] = yeoJohnson(v, lambda)
	}
	mean, std := meanStd(transformed)
	if std <= 1e-12 {
		return fmt.Errorf("speed target: %w", models.ErrDegenerateFeature)
	}
	state.Target = PowerParams{Lambda: lambda, Mean: mean, Std: std}
	return nil
}

// assemble produces the transformed numeric matrix with one-hot columns
// appended, before pruning. Residual missing values (the deliberate
// imputation carve-out and unknown lookup pairs) are zero-filled after
// standardization, which is the frozen training mean; the report makes the
// fill visible.
func (t *Transformer) assemble(state *FittedTransformState, frame *models.Frame, report *QualityReport) *models.Frame {
	values := copyValues(frame.Values)
	t.imputeInPlace(state, values, frame, report)

	for j, col := range frame.Columns {
		power, isPower := state.PowerFeatures[col]
		scale, isStandard := state.StandardFeatures[col]
		for i := range values {
			v := values[i][j]
			if math.IsNaN(v) {
				values[i][j] = 0
				report.ValuesZeroFilled++
				continue
			}
			switch {
			case isPower:
				values[i][j] = (yeoJohnson(v, power.Lambda) - power.Mean) / power.Std
			case isStandard:
				values[i][j] = (v - scale.Mean) / scale.Std
			}
		}
	}

	columns := append([]string(nil), frame.Columns...)
	for _, cat := range catFields {
		vocab := state.CatVocab[cat]
		if len(vocab) == 0 {
			continue
		}
		observed := frame.Cats[cat]
		known := make(map[string]bool, len(vocab))
		for _, v := range vocab {
			known[v] = true
		}
		// First category is the dropped reference level.
		for _, level := range vocab[1:] {
			columns = append(columns, oneHotColumn(cat, level))
			for i := range values {
				flag := 0.0
				if observed[i] == level {
					flag = 1.0
				}
				values[i] = append(values[i], flag)
			}
		}
		for i := range values {
			if !known[observed[i]] {
				report.UnknownCategories++
			}
		}
	}

	return &models.Frame{Columns: columns, Values: values, Cats: frame.Cats}
}

// dependenceTol is the fraction of a column's centered energy that must
// survive projection onto the retained columns for the column to count as
// linearly independent of them.
const dependenceTol = 1e-9

// fitPruning scans assembled columns in order and drops any column whose
// absolute correlation with an earlier-retained column exceeds the threshold.
// Pairwise correlation cannot catch a column that is a linear combination of
// two or more retained columns (a difference feature alongside its operands,
// for example), so each survivor is also projected onto an orthonormal basis
// of the retained set; a vanishing residual prunes it. Centering stands in
// for the intercept, so columns with no variance once assembled (possible for
// one-hot levels) fall out of the same check and the design matrix can never
// go singular.
func (t *Transformer) fitPruning(state *FittedTransformState, assembled *models.Frame) {
	var retained []int
	var basis [][]float64
	for j, col := range assembled.Columns {
		colJ := column(assembled.Values, j)
		if _, std := meanStd(colJ); std <= 1e-12 {
			state.PrunedColumns = append(state.PrunedColumns, col)
			continue
		}
		drop := false
		for _, k := range retained {
			corr := gostat.Correlation(colJ, column(assembled.Values, k), nil)
			if !math.IsNaN(corr) && math.Abs(corr) > t.corrThreshold {
				drop = true
				break
			}
		}
		if drop {
			state.PrunedColumns = append(state.PrunedColumns, col)
			continue
		}
		residual, independent := orthogonalResidual(colJ, basis)
		if !independent {
			state.PrunedColumns = append(state.PrunedColumns, col)
			continue
		}
		basis = append(basis, residual)
		retained = append(retained, j)
		state.OutputColumns = append(state.OutputColumns, col)
	}
}

// orthogonalResidual centers v, removes its projection onto each basis vector
// and returns the normalized residual. The second return is false when less
// than dependenceTol of the centered energy survives, meaning v lies in the
// span of the intercept and the basis.
func orthogonalResidual(v []float64, basis [][]float64) ([]float64, bool) {
	mean := gostat.Mean(v, nil)
	centered := make([]float64, len(v))
	for i, x := range v {
		centered[i] = x - mean
	}
	total := floats.Dot(centered, centered)
	if total <= 0 {
		return nil, false
	}
	for _, q := range basis {
		floats.AddScaled(centered, -floats.Dot(centered, q), q)
	}
	residual := floats.Dot(centered, centered)
	if residual <= dependenceTol*total {
		return nil, false
	}
	floats.Scale(1/math.Sqrt(residual), centered)
	return centered, true
}

func oneHotColumn(cat, level string) string {
	return cat + "=" + level
}

func vocabulary(values []string) []string {
	seen := make(map[string]bool)
	var vocab []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			vocab = append(vocab, v)
		}
	}
	sort.Strings(vocab)
	return vocab
}

func copyValues(values [][]float64) [][]float64 {
	out := make([][]float64, len(values))
	for i, row := range values {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func column(values [][]float64, j int) []float64 {
	out := make([]float64, len(values))
	for i, row := range values {
		out[i] = row[j]
	}
	return out
}

func finiteColumn(values [][]float64, j int) []float64 {
	out := make([]float64, 0, len(values))
	for _, row := range values {
		if !math.IsNaN(row[j]) {
			out = append(out, row[j])
		}
	}
	return out
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean, std := gostat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		// Single observation: no spread.
		std = 0
	}
	return mean, std
}
