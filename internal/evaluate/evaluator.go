// Package evaluate computes regression and probabilistic accuracy metrics
// for the pipeline's predictions. Every probabilistic comparison operates at
// race granularity; nothing is aggregated before grouping by race.
package evaluate

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	gostat "gonum.org/v1/gonum/stat"

	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/models"
)

// logLossEpsilon clamps probabilities away from 0 and 1 before taking logs.
const logLossEpsilon = 1e-15

// RegressionMetrics are computed on the back-transformed speed scale.
type RegressionMetrics struct {
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

// ProbabilisticMetrics treat "finished first" as the binary label.
type ProbabilisticMetrics struct {
	LogLoss float64 `json:"log_loss"`
	Brier   float64 `json:"brier"`
}

// ChampionAccuracy compares top-choice hit rates. The uniform baseline is the
// mean of 1/n over races, which handles races of differing size.
type ChampionAccuracy struct {
	Model   float64 `json:"model"`
	Market  float64 `json:"market"`
	Uniform float64 `json:"uniform"`
}

// Report is the full evaluation output.
type Report struct {
	Regression    RegressionMetrics    `json:"regression"`
	Probabilistic ProbabilisticMetrics `json:"probabilistic"`
	MeanSpearman  float64              `json:"mean_spearman"`
	RacesCompared int                  `json:"races_compared"`
	Champion      ChampionAccuracy     `json:"champion"`
}

// Evaluator scores predictions against observed outcomes.
type Evaluator struct {
	logger logrus.FieldLogger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(logger logrus.FieldLogger) *Evaluator {
	return &Evaluator{logger: logger}
}

// Evaluate computes all metrics for one partition. predictedSpeed must be on
// the original speed scale; probabilities must satisfy the per-race
// sum-to-one contract.
func (e *Evaluator) Evaluate(entries []models.Entry, predictedSpeed, probabilities []float64, groups *models.RaceGroups) (*Report, error) {
	if len(entries) == 0 {
		return nil, models.ErrEmptyDataset
	}
	if len(predictedSpeed) != len(entries) || len(probabilities) != len(entries) {
		return nil, models.ErrDimensionMismatch
	}

	report := &Report{
		Regression:    e.regression(entries, predictedSpeed),
		Probabilistic: Probabilistic(entries, probabilities),
	}
	report.MeanSpearman, report.RacesCompared = e.marketAgreement(entries, probabilities, groups)
	report.Champion = e.champions(entries, probabilities, groups)

	e.logger.WithFields(logrus.Fields{
		"rmse":           report.Regression.RMSE,
		"log_loss":       report.Probabilistic.LogLoss,
		"mean_spearman":  report.MeanSpearman,
		"champion_model": report.Champion.Model,
	}).Info("Evaluation complete")

	return report, nil
}

func (e *Evaluator) regression(entries []models.Entry, predicted []float64) RegressionMetrics {
	var sumSq, sumAbs, sumActual float64
	var actuals []float64
	var preds []float64
	for i := range entries {
		actual, ok := entries[i].SpeedTarget()
		if !ok {
			continue
		}
		actuals = append(actuals, actual)
		preds = append(preds, predicted[i])
		diff := predicted[i] - actual
		sumSq += diff * diff
		sumAbs += math.Abs(diff)
		sumActual += actual
	}
	n := float64(len(actuals))
	if n == 0 {
		return RegressionMetrics{}
	}
	mean := sumActual / n
	ssTot := 0.0
	for _, a := range actuals {
		ssTot += (a - mean) * (a - mean)
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - sumSq/ssTot
	}
	return RegressionMetrics{
		RMSE: math.Sqrt(sumSq / n),
		MAE:  sumAbs / n,
		R2:   r2,
	}
}

// Probabilistic computes log loss and Brier score over all entries with
// "finished first" as the label.
func Probabilistic(entries []models.Entry, probabilities []float64) ProbabilisticMetrics {
	var logLoss, brier float64
	for i := range entries {
		label := 0.0
		if entries[i].Won() {
			label = 1.0
		}
		p := math.Min(math.Max(probabilities[i], logLossEpsilon), 1-logLossEpsilon)
		logLoss -= label*math.Log(p) + (1-label)*math.Log(1-p)
		brier += (probabilities[i] - label) * (probabilities[i] - label)
	}
	n := float64(len(entries))
	return ProbabilisticMetrics{LogLoss: logLoss / n, Brier: brier / n}
}

// marketAgreement computes, per race, the Spearman rank correlation between
// market-implied probabilities (inverse odds normalized within the race) and
// model probabilities, and returns the mean over comparable races. Races
// without usable odds, or with fewer than two entries, are skipped.
func (e *Evaluator) marketAgreement(entries []models.Entry, probabilities []float64, groups *models.RaceGroups) (float64, int) {
	total := 0.0
	compared := 0
	for _, raceID := range groups.RaceIDs() {
		idx := groups.Indices(raceID)
		if len(idx) < 2 {
			continue
		}
		market, ok := marketProbabilities(entries, idx)
		if !ok {
			continue
		}
		modelProbs := make([]float64, len(idx))
		for k, i := range idx {
			modelProbs[k] = probabilities[i]
		}
		rho := spearman(market, modelProbs)
		if math.IsNaN(rho) {
			continue
		}
		total += rho
		compared++
	}
	if compared == 0 {
		return 0, 0
	}
	return total / float64(compared), compared
}

func (e *Evaluator) champions(entries []models.Entry, probabilities []float64, groups *models.RaceGroups) ChampionAccuracy {
	var modelHits, marketHits int
	var uniform float64
	races := 0
	for _, raceID := range groups.RaceIDs() {
		idx := groups.Indices(raceID)
		if len(idx) == 0 {
			continue
		}
		races++
		uniform += 1.0 / float64(len(idx))

		modelPick := idx[0]
		marketPick := idx[0]
		for _, i := range idx {
			if probabilities[i] > probabilities[modelPick] {
				modelPick = i
			}
			if entries[i].ImpliedProbability() > entries[marketPick].ImpliedProbability() {
				marketPick = i
			}
		}
		if entries[modelPick].Won() {
			modelHits++
		}
		if entries[marketPick].Won() {
			marketHits++
		}
	}
	if races == 0 {
		return ChampionAccuracy{}
	}
	n := float64(races)
	return ChampionAccuracy{
		Model:   float64(modelHits) / n,
		Market:  float64(marketHits) / n,
		Uniform: uniform / n,
	}
}

// marketProbabilities normalizes inverse odds within one race. ok is false
// when no entry has usable odds.
func marketProbabilities(entries []models.Entry, idx []int) ([]float64, bool) {
	probs := make([]float64, len(idx))
	total := 0.0
	for k, i := range idx {
		probs[k] = entries[i].ImpliedProbability()
		total += probs[k]
	}
	if total <= 0 {
		return nil, false
	}
	for k := range probs {
		probs[k] /= total
	}
	return probs, true
}

// spearman is the Pearson correlation of average ranks.
func spearman(x, y []float64) float64 {
	return gostat.Correlation(averageRanks(x), averageRanks(y), nil)
}

// averageRanks assigns ascending ranks with ties sharing the mean of their
// covered positions.
func averageRanks(values []float64) []float64 {
	type indexed struct {
		value float64
		pos   int
	}
	ordered := make([]indexed, len(values))
	for i, v := range values {
		ordered[i] = indexed{value: v, pos: i}
	}
	sort.SliceStable(ordered, func(a, b int) bool { return ordered[a].value < ordered[b].value })

	ranks := make([]float64, len(values))
	for start := 0; start < len(ordered); {
		end := start
		for end+1 < len(ordered) && ordered[end+1].value == ordered[start].value {
			end++
		}
		mean := float64(start+end)/2 + 1
		for k := start; k <= end; k++ {
			ranks[ordered[k].pos] = mean
		}
		start = end + 1
	}
	return ranks
}
