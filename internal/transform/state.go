package transform

import "math"

// PowerParams holds a fitted Yeo-Johnson transform followed by the frozen
// standardization of the transformed training values.
type PowerParams struct {
	Lambda float64 `json:"lambda"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
}

// ScaleParams holds frozen zero-mean/unit-variance standardization.
type ScaleParams struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// FittedTransformState is the immutable artifact produced by Transformer.Fit
// on the training partition. It is applied read-only to every partition and
// is safe to share across goroutines.
type FittedTransformState struct {
	// ImputeFields are the numeric columns eligible for median imputation.
	// The days-since-last-run field is deliberately absent: rows missing it
	// stay missing.
	ImputeFields []string `json:"impute_fields"`

	// ImputeMedians maps going condition -> column -> training median.
	ImputeMedians map[string]map[string]float64 `json:"impute_medians"`

	// PowerFeatures are columns routed to the power transform by the skew
	// threshold; StandardFeatures are the rest.
	PowerFeatures    map[string]PowerParams `json:"power_features"`
	StandardFeatures map[string]ScaleParams `json:"standard_features"`

	// CatVocab maps a categorical field to its ordered category list. The
	// first category is the dropped reference level.
	CatVocab map[string][]string `json:"cat_vocab"`

	// PrunedColumns were removed for collinearity against earlier-retained
	// columns (or for having no variance once assembled).
	PrunedColumns []string `json:"pruned_columns"`

	// OutputColumns is the final ordered column set after pruning.
	OutputColumns []string `json:"output_columns"`

	// Target is the independently fitted transform of the regression label.
	Target PowerParams `json:"target"`

	// TargetStd is the standard deviation of the raw training target,
	// consumed by the simulator as its global noise scale.
	TargetStd float64 `json:"target_std"`

	SkewThreshold float64 `json:"skew_threshold"`
	CorrThreshold float64 `json:"corr_threshold"`
}

// IsPowerRouted reports whether the named column was routed to the power
// transform rather than plain standardization.
func (s *FittedTransformState) IsPowerRouted(name string) bool {
	_, ok := s.PowerFeatures[name]
	return ok
}

// TransformTarget maps raw speed targets into the model's label space.
func (s *FittedTransformState) TransformTarget(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (yeoJohnson(v, s.Target.Lambda) - s.Target.Mean) / s.Target.Std
	}
	return out
}

// InverseTarget maps model predictions back to the original speed scale.
func (s *FittedTransformState) InverseTarget(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = yeoJohnsonInverse(v*s.Target.Std+s.Target.Mean, s.Target.Lambda)
	}
	return out
}

// lookupMedian returns the frozen median for (going, column), with ok=false
// when no training rows covered that pair.
func (s *FittedTransformState) lookupMedian(going, column string) (float64, bool) {
	byField, ok := s.ImputeMedians[going]
	if !ok {
		return math.NaN(), false
	}
	v, ok := byField[column]
	return v, ok
}
