package models

// RaceGroups maps each race ID to the ordered row indices of its entries.
// It is built once per partition and shared by feature engineering,
// cross-validation, simulation and evaluation so that per-race grouping is
// derived in exactly one place.
//
// Race order follows first appearance in the input; index slices preserve
// input row order. The structure is read-only after construction and safe to
// share across goroutines.
type RaceGroups struct {
	raceIDs []string
	indices map[string][]int
}

// GroupByRace builds RaceGroups from a slice of entries.
func GroupByRace(entries []Entry) *RaceGroups {
	g := &RaceGroups{indices: make(map[string][]int)}
	for i, e := range entries {
		if _, seen := g.indices[e.RaceID]; !seen {
			g.raceIDs = append(g.raceIDs, e.RaceID)
		}
		g.indices[e.RaceID] = append(g.indices[e.RaceID], i)
	}
	return g
}

// RaceIDs returns race identifiers in first-appearance order.
func (g *RaceGroups) RaceIDs() []string {
	return g.raceIDs
}

// Indices returns the row indices belonging to the given race.
func (g *RaceGroups) Indices(raceID string) []int {
	return g.indices[raceID]
}

// NumRaces returns the number of distinct races.
func (g *RaceGroups) NumRaces() int {
	return len(g.raceIDs)
}

// NumRows returns the total number of grouped rows.
func (g *RaceGroups) NumRows() int {
	n := 0
	for _, idx := range g.indices {
		n += len(idx)
	}
	return n
}
