package model

import (
	"math/rand"

	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/models"
)

// Fold is one grouped cross-validation split over row indices.
type Fold struct {
	TrainRows []int
	TestRows  []int
}

// GroupedKFold splits rows into k folds such that all rows sharing a race
// stay in the same fold. Races are shuffled with the given seed and assigned
// round-robin, so the split is deterministic for a fixed seed.
//
// Fewer than 2 races is a configuration error: grouped cross-validation is
// undefined and there is no silent fallback to ungrouped splitting.
func GroupedKFold(groups *models.RaceGroups, k int, seed int64) ([]Fold, error) {
	if groups.NumRaces() < 2 {
		return nil, models.ErrTooFewRaces
	}
	if k < 2 {
		k = 2
	}
	if k > groups.NumRaces() {
		k = groups.NumRaces()
	}

	raceIDs := append([]string(nil), groups.RaceIDs()...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(raceIDs), func(i, j int) {
		raceIDs[i], raceIDs[j] = raceIDs[j], raceIDs[i]
	})

	raceFold := make(map[string]int, len(raceIDs))
	for i, raceID := range raceIDs {
		raceFold[raceID] = i % k
	}

	folds := make([]Fold, k)
	for _, raceID := range groups.RaceIDs() {
		f := raceFold[raceID]
		for i := range folds {
			if i == f {
				folds[i].TestRows = append(folds[i].TestRows, groups.Indices(raceID)...)
			} else {
				folds[i].TrainRows = append(folds[i].TrainRows, groups.Indices(raceID)...)
			}
		}
	}
	return folds, nil
}
