// Package features derives race-relative and engineered features from raw
// race entries. Every statistic is computed within a single race group, so no
// row's features ever depend on another race's data.
package features

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/models"
)

// Column names produced by the engineer. The transform stage refers to these
// names when routing features, so they are exported constants rather than
// ad-hoc strings.
const (
	ColPrevSpeed      = "prev_speed"
	ColPrevSpeed2     = "prev_speed2"
	ColPrevOdds       = "prev_odds"
	ColInvPrevOdds    = "inv_prev_odds"
	ColImpliedPrior   = "implied_prior"
	ColJockeyRating   = "jockey_rating"
	ColTrainerRating  = "trainer_rating"
	ColDaysSinceRun   = "days_since_last_run"
	ColAge            = "age"
	ColPrize          = "prize"
	ColWeightCarried  = "weight_carried"
	ColDistance       = "distance"
	ColSpeedTrend     = "speed_trend"
	ColPrevOddsRank   = "prev_odds_rank"
	ColAgeRank        = "age_rank"
	ColPrizeRank      = "prize_rank"
	ColRaceSpeedStd   = "race_prev_speed_std"
	ColRaceOddsStd    = "race_prev_odds_std"
	devSuffix         = "_race_dev"
)

// DevCol returns the race-deviation column name for a base column.
func DevCol(base string) string {
	return base + devSuffix
}

// deviationBases are the columns whose race-group-mean deviation is computed.
var deviationBases = []string{
	ColPrevSpeed,
	ColJockeyRating,
	ColTrainerRating,
	ColDaysSinceRun,
	ColInvPrevOdds,
	ColImpliedPrior,
}

// Engineer builds the engineered feature frame for one partition.
type Engineer struct {
	logger logrus.FieldLogger
}

// NewEngineer creates a feature engineer.
func NewEngineer(logger logrus.FieldLogger) *Engineer {
	return &Engineer{logger: logger}
}

// Columns returns the full ordered set of engineered column names.
func Columns() []string {
	cols := []string{
		ColPrevSpeed, ColPrevSpeed2, ColPrevOdds, ColInvPrevOdds,
		ColImpliedPrior, ColJockeyRating, ColTrainerRating, ColDaysSinceRun,
		ColAge, ColPrize, ColWeightCarried, ColDistance,
		ColSpeedTrend, ColPrevOddsRank, ColAgeRank, ColPrizeRank,
		ColRaceSpeedStd, ColRaceOddsStd,
	}
	for _, base := range deviationBases {
		cols = append(cols, DevCol(base))
	}
	return cols
}

// Build engineers features for every entry. The output frame has exactly one
// row per input entry in input order.
func (e *Engineer) Build(entries []models.Entry, groups *models.RaceGroups) (*models.Frame, error) {
	if len(entries) == 0 {
		return nil, models.ErrEmptyDataset
	}
	if groups.NumRows() != len(entries) {
		return nil, models.ErrDimensionMismatch
	}

	frame := models.NewFrame(Columns(), len(entries))
	going := make([]string, len(entries))
	course := make([]string, len(entries))

	for i, entry := range entries {
		row := frame.Values[i]
		e.fillRaw(row, frame.Columns, &entry)
		going[i] = entry.Going
		course[i] = entry.Course
	}
	frame.Cats["going"] = going
	frame.Cats["course"] = course

	for _, raceID := range groups.RaceIDs() {
		idx := groups.Indices(raceID)
		e.fillRaceRelative(frame, idx)
	}

	e.logger.WithFields(logrus.Fields{
		"rows":     frame.NumRows(),
		"races":    groups.NumRaces(),
		"features": len(frame.Columns),
	}).Debug("Engineered features")

	return frame, nil
}

func (e *Engineer) fillRaw(row []float64, columns []string, entry *models.Entry) {
	set := func(name string, v float64) {
		for j, c := range columns {
			if c == name {
				row[j] = v
				return
			}
		}
	}
	set(ColPrevSpeed, deref(entry.PrevSpeed))
	set(ColPrevSpeed2, deref(entry.PrevSpeed2))
	set(ColPrevOdds, deref(entry.PrevOdds))
	set(ColJockeyRating, deref(entry.JockeyRating))
	set(ColTrainerRating, deref(entry.TrainerRating))
	set(ColDaysSinceRun, deref(entry.DaysSinceLastRun))
	set(ColAge, deref(entry.Age))
	set(ColPrize, deref(entry.Prize))
	set(ColWeightCarried, deref(entry.WeightCarried))
	set(ColDistance, entry.Distance)

	if entry.PrevOdds != nil && *entry.PrevOdds > 0 {
		set(ColInvPrevOdds, 1.0 / *entry.PrevOdds)
	}
	if entry.PrevSpeed != nil && entry.PrevSpeed2 != nil {
		set(ColSpeedTrend, *entry.PrevSpeed-*entry.PrevSpeed2)
	}
}

// fillRaceRelative computes all within-race statistics for one race's rows.
func (e *Engineer) fillRaceRelative(frame *models.Frame, idx []int) {
	invOdds := colAt(frame, ColInvPrevOdds, idx)

	// Market-implied prior: inverse previous odds normalized over the race.
	total := 0.0
	for _, v := range invOdds {
		if !math.IsNaN(v) {
			total += v
		}
	}
	prior := make([]float64, len(idx))
	for k, v := range invOdds {
		if math.IsNaN(v) || total <= 0 {
			prior[k] = math.NaN()
		} else {
			prior[k] = v / total
		}
	}
	setColAt(frame, ColImpliedPrior, idx, prior)

	for _, base := range deviationBases {
		vals := colAt(frame, base, idx)
		mean, ok := finiteMean(vals)
		dev := make([]float64, len(idx))
		for k, v := range vals {
			if math.IsNaN(v) || !ok {
				dev[k] = math.NaN()
			} else {
				dev[k] = v - mean
			}
		}
		setColAt(frame, DevCol(base), idx, dev)
	}

	// Min rank for odds: tied values share the smallest competing rank.
	setColAt(frame, ColPrevOddsRank, idx, minRank(colAt(frame, ColPrevOdds, idx)))
	// Dense ranks collapse ties to consecutive integers; prize ranks descending.
	setColAt(frame, ColAgeRank, idx, denseRank(colAt(frame, ColAge, idx), false))
	setColAt(frame, ColPrizeRank, idx, denseRank(colAt(frame, ColPrize, idx), true))

	// Within-race spread uses the sample (n-1) standard deviation. A race
	// with fewer than two valid values yields NaN for downstream imputation.
	speedStd := sampleStd(colAt(frame, ColPrevSpeed, idx))
	oddsStd := sampleStd(colAt(frame, ColPrevOdds, idx))
	for _, i := range idx {
		j, _ := frame.ColIndex(ColRaceSpeedStd)
		frame.Values[i][j] = speedStd
		j, _ = frame.ColIndex(ColRaceOddsStd)
		frame.Values[i][j] = oddsStd
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func colAt(frame *models.Frame, name string, idx []int) []float64 {
	j, _ := frame.ColIndex(name)
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = frame.Values[i][j]
	}
	return out
}

func setColAt(frame *models.Frame, name string, idx []int, values []float64) {
	j, _ := frame.ColIndex(name)
	for k, i := range idx {
		frame.Values[i][j] = values[k]
	}
}

func finiteMean(values []float64) (float64, bool) {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0, false
	}
	mean, err := stats.Mean(finite)
	if err != nil {
		return 0, false
	}
	return mean, true
}

func sampleStd(values []float64) float64 {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) < 2 {
		return math.NaN()
	}
	std, err := stats.StandardDeviationSample(finite)
	if err != nil {
		return math.NaN()
	}
	return std
}

// minRank assigns ascending competition ranks: each value's rank is one plus
// the count of strictly smaller values, so ties share the smallest rank.
// Missing values receive NaN ranks.
func minRank(values []float64) []float64 {
	ranks := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			ranks[i] = math.NaN()
			continue
		}
		smaller := 0
		for _, w := range values {
			if !math.IsNaN(w) && w < v {
				smaller++
			}
		}
		ranks[i] = float64(1 + smaller)
	}
	return ranks
}

// denseRank assigns consecutive integer ranks over distinct values. With
// descending=true the largest value gets rank 1.
func denseRank(values []float64, descending bool) []float64 {
	ranks := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			ranks[i] = math.NaN()
			continue
		}
		distinct := map[float64]bool{}
		for _, w := range values {
			if math.IsNaN(w) {
				continue
			}
			if (!descending && w < v) || (descending && w > v) {
				distinct[w] = true
			}
		}
		ranks[i] = float64(1 + len(distinct))
	}
	return ranks
}
