package model

import (
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"
)

// FeatureImportance is one feature's mean permutation importance.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
	column     int
}

// PermutationImportance estimates each feature's importance on a held-out
// matrix: permute the feature's values, measure the RMSE increase over the
// un-permuted baseline, average over repeats.
//
// Features are processed in parallel; each feature derives its own random
// stream from the seed so results are reproducible regardless of scheduling.
func PermutationImportance(fitted *OLS, x [][]float64, y []float64, columns []string, repeats int, seed int64) []FeatureImportance {
	if repeats <= 0 {
		repeats = 5
	}
	baseline := RMSE(fitted.Predict(x), y)
	out := make([]FeatureImportance, len(columns))

	var group errgroup.Group
	for j := range columns {
		j := j
		group.Go(func() error {
			rng := rand.New(rand.NewSource(seed + int64(j)*7919))
			permuted := copyMatrix(x)
			col := make([]float64, len(x))
			for i := range x {
				col[i] = x[i][j]
			}

			total := 0.0
			for r := 0; r < repeats; r++ {
				shuffled := append([]float64(nil), col...)
				rng.Shuffle(len(shuffled), func(a, b int) {
					shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
				})
				for i := range permuted {
					permuted[i][j] = shuffled[i]
				}
				total += RMSE(fitted.Predict(permuted), y) - baseline
			}
			out[j] = FeatureImportance{
				Feature:    columns[j],
				Importance: total / float64(repeats),
				column:     j,
			}
			return nil
		})
	}
	_ = group.Wait()
	return out
}

// RankImportance sorts importances descending, breaking ties by original
// column order.
func RankImportance(importances []FeatureImportance) []FeatureImportance {
	ranked := append([]FeatureImportance(nil), importances...)
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Importance != ranked[b].Importance {
			return ranked[a].Importance > ranked[b].Importance
		}
		return ranked[a].column < ranked[b].column
	})
	return ranked
}

func copyMatrix(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
