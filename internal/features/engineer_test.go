package features

import (
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/models"
)

func f(v float64) *float64 { return &v }

func testEntry(raceID, horseID string, prevSpeed, prevSpeed2, prevOdds, age, prize float64) models.Entry {
	return models.Entry{
		RaceID:           raceID,
		HorseID:          horseID,
		Position:         1,
		Distance:         1600,
		ElapsedTime:      96,
		Going:            "Good",
		Course:           "Sha Tin",
		PrevSpeed:        f(prevSpeed),
		PrevSpeed2:       f(prevSpeed2),
		PrevOdds:         f(prevOdds),
		JockeyRating:     f(70),
		TrainerRating:    f(60),
		DaysSinceLastRun: f(21),
		Age:              f(age),
		Prize:            f(prize),
		WeightCarried:    f(120),
	}
}

func buildFrame(t *testing.T, entries []models.Entry) *models.Frame {
	t.Helper()
	engineer := NewEngineer(logrus.New())
	frame, err := engineer.Build(entries, models.GroupByRace(entries))
	require.NoError(t, err)
	return frame
}

func TestBuildPreservesRowCount(t *testing.T) {
	entries := []models.Entry{
		testEntry("R1", "H1", 16.0, 15.5, 4.0, 4, 100),
		testEntry("R1", "H2", 16.5, 16.0, 2.5, 5, 250),
		testEntry("R2", "H3", 15.0, 15.2, 3.0, 4, 80),
	}
	frame := buildFrame(t, entries)
	assert.Equal(t, len(entries), frame.NumRows())
}

func TestDeviationUsesOwnRaceOnly(t *testing.T) {
	entries := []models.Entry{
		testEntry("R1", "H1", 10.0, 9.0, 4.0, 4, 100),
		testEntry("R1", "H2", 12.0, 11.0, 2.5, 5, 250),
		// A much faster race that must not leak into R1's group mean.
		testEntry("R2", "H3", 20.0, 19.0, 3.0, 4, 80),
		testEntry("R2", "H4", 22.0, 21.0, 5.0, 6, 90),
	}
	frame := buildFrame(t, entries)

	dev, err := frame.Col(DevCol(ColPrevSpeed))
	require.NoError(t, err)
	assert.InDelta(t, -1.0, dev[0], 1e-9)
	assert.InDelta(t, 1.0, dev[1], 1e-9)
	assert.InDelta(t, -1.0, dev[2], 1e-9)
	assert.InDelta(t, 1.0, dev[3], 1e-9)
}

func TestOddsMinRankSharesSmallestRank(t *testing.T) {
	entries := []models.Entry{
		testEntry("R1", "H1", 16, 15, 2.0, 4, 100),
		testEntry("R1", "H2", 16, 15, 2.0, 5, 250),
		testEntry("R1", "H3", 16, 15, 3.0, 6, 80),
	}
	frame := buildFrame(t, entries)

	ranks, err := frame.Col(ColPrevOddsRank)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 3}, ranks)
}

func TestAgeDenseRankCollapsesTies(t *testing.T) {
	entries := []models.Entry{
		testEntry("R1", "H1", 16, 15, 2.0, 4, 100),
		testEntry("R1", "H2", 16, 15, 2.5, 4, 250),
		testEntry("R1", "H3", 16, 15, 3.0, 5, 80),
	}
	frame := buildFrame(t, entries)

	ranks, err := frame.Col(ColAgeRank)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 2}, ranks)
}

func TestPrizeRankDescending(t *testing.T) {
	entries := []models.Entry{
		testEntry("R1", "H1", 16, 15, 2.0, 4, 100),
		testEntry("R1", "H2", 16, 15, 2.5, 5, 50),
		testEntry("R1", "H3", 16, 15, 3.0, 6, 100),
	}
	frame := buildFrame(t, entries)

	ranks, err := frame.Col(ColPrizeRank)
	require.NoError(t, err)
	// Highest prize gets rank 1; ties collapse.
	assert.Equal(t, []float64{1, 2, 1}, ranks)
}

func TestSpeedTrend(t *testing.T) {
	entries := []models.Entry{
		testEntry("R1", "H1", 16.5, 15.0, 2.0, 4, 100),
		testEntry("R1", "H2", 14.0, 16.0, 2.5, 5, 50),
	}
	frame := buildFrame(t, entries)

	trend, err := frame.Col(ColSpeedTrend)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, trend[0], 1e-9)
	assert.InDelta(t, -2.0, trend[1], 1e-9)
}

func TestRaceSpreadIsSampleStddev(t *testing.T) {
	entries := []models.Entry{
		testEntry("R1", "H1", 14.0, 15.0, 2.0, 4, 100),
		testEntry("R1", "H2", 16.0, 15.0, 3.0, 5, 50),
	}
	frame := buildFrame(t, entries)

	spread, err := frame.Col(ColRaceSpeedStd)
	require.NoError(t, err)
	// n-1 estimator: sqrt(((14-15)^2 + (16-15)^2) / 1).
	assert.InDelta(t, math.Sqrt2, spread[0], 1e-9)
	assert.InDelta(t, math.Sqrt2, spread[1], 1e-9)
}

func TestSingleEntryRaceSpreadIsNaN(t *testing.T) {
	entries := []models.Entry{
		testEntry("R1", "H1", 16.5, 15.0, 2.0, 4, 100),
	}
	frame := buildFrame(t, entries)

	spread, err := frame.Col(ColRaceSpeedStd)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(spread[0]), "single-entry race spread must be NaN")
}

func TestMissingFieldYieldsNaNFeature(t *testing.T) {
	entry := testEntry("R1", "H1", 16.5, 15.0, 2.0, 4, 100)
	entry.PrevSpeed = nil
	frame := buildFrame(t, []models.Entry{entry, testEntry("R1", "H2", 16, 15, 3, 5, 50)})

	col, err := frame.Col(ColPrevSpeed)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(col[0]))

	trend, err := frame.Col(ColSpeedTrend)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(trend[0]))
}
