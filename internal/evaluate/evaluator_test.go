package evaluate

import (
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/models"
)

func f(v float64) *float64 { return &v }

func raceOfThree() []models.Entry {
	return []models.Entry{
		{RaceID: "R1", HorseID: "H1", Position: 1, Distance: 1600, ElapsedTime: 96, MarketOdds: f(2.0)},
		{RaceID: "R1", HorseID: "H2", Position: 2, Distance: 1600, ElapsedTime: 97, MarketOdds: f(3.0)},
		{RaceID: "R1", HorseID: "H3", Position: 3, Distance: 1600, ElapsedTime: 98, MarketOdds: f(6.0)},
	}
}

func TestProbabilisticClosedForm(t *testing.T) {
	entries := raceOfThree()
	probs := []float64{0.6, 0.3, 0.1}

	metrics := Probabilistic(entries, probs)

	expectedLogLoss := -(math.Log(0.6) + math.Log(1-0.3) + math.Log(1-0.1)) / 3
	expectedBrier := (0.4*0.4 + 0.3*0.3 + 0.1*0.1) / 3
	assert.InDelta(t, expectedLogLoss, metrics.LogLoss, 1e-6)
	assert.InDelta(t, expectedBrier, metrics.Brier, 1e-6)
}

func TestRegressionPerfectPredictions(t *testing.T) {
	entries := raceOfThree()
	groups := models.GroupByRace(entries)
	speeds := make([]float64, len(entries))
	for i := range entries {
		speeds[i], _ = entries[i].SpeedTarget()
	}

	report, err := NewEvaluator(logrus.New()).Evaluate(entries, speeds, []float64{0.6, 0.3, 0.1}, groups)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, report.Regression.RMSE, 1e-12)
	assert.InDelta(t, 0.0, report.Regression.MAE, 1e-12)
	assert.InDelta(t, 1.0, report.Regression.R2, 1e-12)
}

func TestSpearmanPerfectAgreement(t *testing.T) {
	entries := raceOfThree()
	groups := models.GroupByRace(entries)
	// Model probabilities in the same order as market-implied ones.
	probs := []float64{0.55, 0.3, 0.15}

	report, err := NewEvaluator(logrus.New()).Evaluate(entries, []float64{16.7, 16.5, 16.3}, probs, groups)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RacesCompared)
	assert.InDelta(t, 1.0, report.MeanSpearman, 1e-9)
}

func TestSpearmanDisagreement(t *testing.T) {
	entries := raceOfThree()
	groups := models.GroupByRace(entries)
	// Model ranks exactly inverted against the market.
	probs := []float64{0.1, 0.3, 0.6}

	report, err := NewEvaluator(logrus.New()).Evaluate(entries, []float64{16.3, 16.5, 16.7}, probs, groups)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, report.MeanSpearman, 1e-9)
}

func TestChampionAccuracy(t *testing.T) {
	// Race 1: model and market both pick the winner. Race 2: model picks the
	// winner, market prefers the beaten favourite.
	entries := append(raceOfThree(),
		models.Entry{RaceID: "R2", HorseID: "H4", Position: 2, Distance: 1200, ElapsedTime: 70, MarketOdds: f(1.5)},
		models.Entry{RaceID: "R2", HorseID: "H5", Position: 1, Distance: 1200, ElapsedTime: 69, MarketOdds: f(4.0)},
	)
	groups := models.GroupByRace(entries)
	probs := []float64{0.6, 0.3, 0.1, 0.35, 0.65}
	speeds := []float64{16.7, 16.5, 16.3, 17.1, 17.4}

	report, err := NewEvaluator(logrus.New()).Evaluate(entries, speeds, probs, groups)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, report.Champion.Model, 1e-9)
	assert.InDelta(t, 0.5, report.Champion.Market, 1e-9)
	assert.InDelta(t, (1.0/3+1.0/2)/2, report.Champion.Uniform, 1e-9)
}

func TestAverageRanksHandlesTies(t *testing.T) {
	ranks := averageRanks([]float64{1.0, 2.0, 2.0, 3.0})
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, ranks)
}

func TestEvaluateDimensionMismatch(t *testing.T) {
	entries := raceOfThree()
	groups := models.GroupByRace(entries)
	_, err := NewEvaluator(logrus.New()).Evaluate(entries, []float64{1}, []float64{1}, groups)
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}
