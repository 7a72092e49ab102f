package transform

import (
	"errors"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/features"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/models"
)

// testFrame builds a small frame with explicit columns, values and going
// labels. NaN marks missing values.
func testFrame(columns []string, rows [][]float64, going []string) *models.Frame {
	frame := models.NewFrame(columns, len(rows))
	for i, row := range rows {
		copy(frame.Values[i], row)
	}
	frame.Cats["going"] = going
	course := make([]string, len(rows))
	for i := range course {
		course[i] = "Sha Tin"
	}
	frame.Cats["course"] = course
	return frame
}

func linearTarget(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 14.0 + 0.3*float64(i)
	}
	return out
}

func newTestTransformer() *Transformer {
	return NewTransformer(logrus.New(), DefaultSkewThreshold, DefaultCorrThreshold)
}

func TestImputationMedianByGoing(t *testing.T) {
	nan := math.NaN()
	frame := testFrame(
		[]string{"trainer_rating", "prev_speed"},
		[][]float64{
			{80, 15.0},
			{85, 15.5},
			{90, 16.0},
			{70, 14.0},
			{72, 14.5},
			{nan, 15.2},
		},
		[]string{"Soft", "Soft", "Soft", "Firm", "Firm", "Soft"},
	)

	tr := newTestTransformer()
	state, err := tr.Fit(frame, linearTarget(frame.NumRows()))
	require.NoError(t, err)

	// Median of Soft trainer ratings (80, 85, 90) is exactly 85.
	assert.Equal(t, 85.0, state.ImputeMedians["Soft"]["trainer_rating"])

	// The missing Soft row is filled with 85 before standardization, so its
	// transformed value matches a row holding a literal 85.
	out, report, err := tr.Apply(state, frame)
	require.NoError(t, err)
	j, err := out.ColIndex("trainer_rating")
	require.NoError(t, err)
	assert.InDelta(t, out.Values[1][j], out.Values[5][j], 1e-12)
	assert.Equal(t, 1, report.ValuesImputed)
	assert.Zero(t, report.ValuesLeftMissing)
}

func TestUnknownLookupPairLeftMissing(t *testing.T) {
	nan := math.NaN()
	train := testFrame(
		[]string{"trainer_rating", "prev_speed"},
		[][]float64{{80, 15.0}, {85, 15.5}, {90, 16.0}, {82, 15.1}},
		[]string{"Soft", "Soft", "Soft", "Soft"},
	)
	tr := newTestTransformer()
	state, err := tr.Fit(train, linearTarget(train.NumRows()))
	require.NoError(t, err)

	// "Heavy" never appeared in training: no lookup entry, no crash.
	test := testFrame(
		[]string{"trainer_rating", "prev_speed"},
		[][]float64{{nan, 15.2}},
		[]string{"Heavy"},
	)
	_, report, err := tr.Apply(state, test)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ValuesLeftMissing)
	assert.Equal(t, 1, report.ValuesZeroFilled)
	assert.Equal(t, 1, report.UnknownCategories)
}

func TestSkewRoutingAboveThreshold(t *testing.T) {
	// A heavily right-skewed column (skewness well above 1.0) must be routed
	// to the power transform; a symmetric one must not.
	skewed := []float64{1, 1, 1, 1, 1, 1, 1, 1, 2, 30}
	symmetric := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	rows := make([][]float64, len(skewed))
	for i := range rows {
		rows[i] = []float64{skewed[i], symmetric[i]}
	}
	going := make([]string, len(rows))
	for i := range going {
		going[i] = "Good"
	}
	frame := testFrame([]string{"prize", "prev_speed"}, rows, going)

	tr := newTestTransformer()
	state, err := tr.Fit(frame, linearTarget(frame.NumRows()))
	require.NoError(t, err)

	assert.True(t, state.IsPowerRouted("prize"))
	assert.False(t, state.IsPowerRouted("prev_speed"))
	_, isStandard := state.StandardFeatures["prev_speed"]
	assert.True(t, isStandard)
}

func TestFitApplyIdempotentOnTrainingData(t *testing.T) {
	frame := testFrame(
		[]string{"prev_speed", "jockey_rating"},
		[][]float64{{15.0, 60}, {15.5, 65}, {16.0, 70}, {14.8, 55}, {15.2, 62}},
		[]string{"Good", "Good", "Soft", "Soft", "Good"},
	)
	tr := newTestTransformer()
	state, err := tr.Fit(frame, linearTarget(frame.NumRows()))
	require.NoError(t, err)

	first, _, err := tr.Apply(state, frame)
	require.NoError(t, err)
	second, _, err := tr.Apply(state, frame)
	require.NoError(t, err)

	require.Equal(t, first.Columns, second.Columns)
	for i := range first.Values {
		for j := range first.Values[i] {
			assert.Equal(t, first.Values[i][j], second.Values[i][j])
		}
	}
}

func TestDegenerateFeatureFailsFit(t *testing.T) {
	frame := testFrame(
		[]string{"weight_carried", "prev_speed"},
		[][]float64{{120, 15.0}, {120, 15.5}, {120, 16.0}},
		[]string{"Good", "Good", "Good"},
	)
	tr := newTestTransformer()
	_, err := tr.Fit(frame, linearTarget(frame.NumRows()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDegenerateFeature))
	assert.Contains(t, err.Error(), "weight_carried")
}

func TestCollinearColumnPruned(t *testing.T) {
	rows := make([][]float64, 8)
	for i := range rows {
		v := float64(i)
		rows[i] = []float64{v, 2 * v, float64((i*7)%5)}
	}
	going := make([]string, len(rows))
	for i := range going {
		going[i] = "Good"
	}
	frame := testFrame([]string{"prev_speed", "prev_speed_twin", "age"}, rows, going)

	tr := newTestTransformer()
	state, err := tr.Fit(frame, linearTarget(frame.NumRows()))
	require.NoError(t, err)

	assert.Contains(t, state.PrunedColumns, "prev_speed_twin")
	assert.NotContains(t, state.OutputColumns, "prev_speed_twin")
	assert.Contains(t, state.OutputColumns, "prev_speed")
}

func TestDifferenceFeaturePrunedAsLinearCombination(t *testing.T) {
	// speed_trend = prev_speed - prev_speed2 by construction, so the three
	// columns are exactly rank-deficient after standardization even though no
	// pairwise correlation crosses the threshold. The fit must prune one so
	// the design matrix stays full rank.
	a := []float64{15.0, 15.5, 16.0, 14.8, 15.2, 15.9, 14.5, 15.7}
	b := []float64{14.8, 15.9, 15.4, 15.0, 15.5, 15.1, 14.9, 15.6}
	rows := make([][]float64, len(a))
	for i := range rows {
		rows[i] = []float64{a[i], b[i], a[i] - b[i]}
	}
	going := make([]string, len(rows))
	for i := range going {
		going[i] = "Good"
	}
	frame := testFrame([]string{"prev_speed", "prev_speed2", "speed_trend"}, rows, going)

	tr := newTestTransformer()
	state, err := tr.Fit(frame, linearTarget(frame.NumRows()))
	require.NoError(t, err)

	assert.Contains(t, state.PrunedColumns, "speed_trend")
	assert.Contains(t, state.OutputColumns, "prev_speed")
	assert.Contains(t, state.OutputColumns, "prev_speed2")

	// Sanity: the pairwise rule alone would not have caught it.
	assert.Less(t, math.Abs(pearson(a, rows, 2)), DefaultCorrThreshold)
	assert.Less(t, math.Abs(pearson(b, rows, 2)), DefaultCorrThreshold)
}

func pearson(x []float64, rows [][]float64, j int) float64 {
	y := make([]float64, len(rows))
	for i := range rows {
		y[i] = rows[i][j]
	}
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= float64(len(x))
	my /= float64(len(y))
	var sxy, sxx, syy float64
	for i := range x {
		sxy += (x[i] - mx) * (y[i] - my)
		sxx += (x[i] - mx) * (x[i] - mx)
		syy += (y[i] - my) * (y[i] - my)
	}
	return sxy / math.Sqrt(sxx*syy)
}

func TestTargetInverseRoundTrip(t *testing.T) {
	frame := testFrame(
		[]string{"prev_speed"},
		[][]float64{{15.0}, {15.5}, {16.0}, {14.8}, {15.2}},
		[]string{"Good", "Good", "Good", "Good", "Good"},
	)
	target := []float64{14.2, 15.1, 16.9, 15.5, 14.8}
	tr := newTestTransformer()
	state, err := tr.Fit(frame, target)
	require.NoError(t, err)

	back := state.InverseTarget(state.TransformTarget(target))
	for i := range target {
		assert.InDelta(t, target[i], back[i], 1e-8)
	}
	assert.Greater(t, state.TargetStd, 0.0)
}

func TestExcludedFieldNotImputed(t *testing.T) {
	nan := math.NaN()
	frame := testFrame(
		[]string{features.ColDaysSinceRun, "prev_speed"},
		[][]float64{{21, 15.0}, {14, 15.5}, {nan, 16.0}, {28, 14.8}},
		[]string{"Good", "Good", "Good", "Good"},
	)
	tr := newTestTransformer()
	state, err := tr.Fit(frame, linearTarget(frame.NumRows()))
	require.NoError(t, err)

	assert.NotContains(t, state.ImputeFields, features.ColDaysSinceRun)

	_, report, err := tr.Apply(state, frame)
	require.NoError(t, err)
	// The missing value stays missing through imputation and is only
	// zero-filled (and counted) at assembly.
	assert.Zero(t, report.ValuesLeftMissing)
	assert.Equal(t, 1, report.ValuesZeroFilled)
}
