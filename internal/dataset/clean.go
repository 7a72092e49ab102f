package dataset

import "github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/models"

// CleanReport counts rows removed during cleaning.
type CleanReport struct {
	RowsIn      int `json:"rows_in"`
	RowsKept    int `json:"rows_kept"`
	RowsDropped int `json:"rows_dropped"`
}

// Clean drops rows whose speed target is undefined (zero or negative elapsed
// time). Such rows are removed, never imputed; the report carries the counts
// for the data-quality log.
func Clean(entries []models.Entry) ([]models.Entry, CleanReport) {
	report := CleanReport{RowsIn: len(entries)}
	kept := make([]models.Entry, 0, len(entries))
	for _, entry := range entries {
		if _, ok := entry.SpeedTarget(); !ok {
			report.RowsDropped++
			continue
		}
		kept = append(kept, entry)
	}
	report.RowsKept = len(kept)
	return kept, report
}

// Targets extracts the speed target vector from cleaned entries.
func Targets(entries []models.Entry) []float64 {
	out := make([]float64, len(entries))
	for i := range entries {
		target, _ := entries[i].SpeedTarget()
		out[i] = target
	}
	return out
}
