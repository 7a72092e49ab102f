// Package dataset loads the tabular race data, cleans it, and writes the
// pipeline's output artifacts.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/models"
)

// Column schema of the input CSVs. Optional columns may be empty per row.
var requiredColumns = []string{"race_id", "horse_id", "position", "distance", "elapsed_time"}

// LoadReport counts parse-level data-quality events for one partition.
type LoadReport struct {
	Rows            int `json:"rows"`
	MalformedValues int `json:"malformed_values"`
}

// LoadEntries reads one partition from a CSV file with a header row. Optional
// cells that hold unparseable numerics become missing and are counted in the
// report rather than dropped silently.
func LoadEntries(path string) ([]models.Entry, LoadReport, error) {
	var report LoadReport
	file, err := os.Open(path)
	if err != nil {
		return nil, report, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, report, fmt.Errorf("read dataset %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, report, fmt.Errorf("%s: %w", path, models.ErrEmptyDataset)
	}

	header := make(map[string]int, len(records[0]))
	for j, name := range records[0] {
		header[name] = j
	}
	for _, col := range requiredColumns {
		if _, ok := header[col]; !ok {
			return nil, report, fmt.Errorf("dataset %s missing column %q", path, col)
		}
	}

	entries := make([]models.Entry, 0, len(records)-1)
	for line, record := range records[1:] {
		entry, err := parseEntry(header, record, &report)
		if err != nil {
			return nil, report, fmt.Errorf("dataset %s line %d: %w", path, line+2, err)
		}
		entries = append(entries, entry)
	}
	report.Rows = len(entries)
	return entries, report, nil
}

func parseEntry(header map[string]int, record []string, report *LoadReport) (models.Entry, error) {
	field := func(name string) string {
		j, ok := header[name]
		if !ok || j >= len(record) {
			return ""
		}
		return record[j]
	}
	optional := func(name string) *float64 {
		v, malformed := optionalFloat(field(name))
		if malformed {
			report.MalformedValues++
		}
		return v
	}

	position, err := strconv.Atoi(field("position"))
	if err != nil {
		return models.Entry{}, fmt.Errorf("position: %w", err)
	}
	distance, err := strconv.ParseFloat(field("distance"), 64)
	if err != nil {
		return models.Entry{}, fmt.Errorf("distance: %w", err)
	}
	elapsed, err := strconv.ParseFloat(field("elapsed_time"), 64)
	if err != nil {
		return models.Entry{}, fmt.Errorf("elapsed_time: %w", err)
	}

	return models.Entry{
		RaceID:           field("race_id"),
		HorseID:          field("horse_id"),
		Position:         position,
		Distance:         distance,
		ElapsedTime:      elapsed,
		Course:           field("course"),
		Going:            field("going"),
		MarketOdds:       optional("market_odds"),
		PrevSpeed:        optional("prev_speed"),
		PrevSpeed2:       optional("prev_speed2"),
		PrevOdds:         optional("prev_odds"),
		JockeyRating:     optional("jockey_rating"),
		TrainerRating:    optional("trainer_rating"),
		DaysSinceLastRun: optional("days_since_last_run"),
		Age:              optional("age"),
		Prize:            optional("prize"),
		WeightCarried:    optional("weight_carried"),
	}, nil
}

// optionalFloat parses an optional cell. The second return reports a
// non-empty cell that failed to parse.
func optionalFloat(s string) (*float64, bool) {
	if s == "" {
		return nil, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, true
	}
	return &v, false
}

// Probability is one output row of the prediction artifact.
type Probability struct {
	RaceID         string  `json:"race_id"`
	HorseID        string  `json:"horse_id"`
	WinProbability float64 `json:"win_probability"`
}

// WriteProbabilities writes the (race, horse) -> probability artifact as CSV.
// Rows keep input order, so per-race blocks stay contiguous and the
// sums-to-one contract is checkable by any consumer.
func WriteProbabilities(path string, rows []Probability) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"race_id", "horse_id", "win_probability"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{row.RaceID, row.HorseID, strconv.FormatFloat(row.WinProbability, 'f', -1, 64)}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSummary exports the run summary as indented JSON.
func WriteSummary(path string, summary any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
