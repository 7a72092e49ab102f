package pipeline

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/config"
	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/logger"
)

var goings = []string{"Good", "Soft", "Firm"}
var courses = []string{"Sha Tin", "Happy Valley"}
var distances = []float64{1200, 1400, 1600, 1800}

// writeSynthetic generates a partition where previous speed carries real
// signal for the speed target, so the fitted model has something to find.
func writeSynthetic(t *testing.T, path string, races, perRace int, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))

	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{
		"race_id", "horse_id", "position", "distance", "elapsed_time",
		"course", "going", "market_odds", "prev_speed", "prev_speed2",
		"prev_odds", "jockey_rating", "trainer_rating", "days_since_last_run",
		"age", "prize", "weight_carried",
	}
	require.NoError(t, writer.Write(header))

	for r := 0; r < races; r++ {
		raceID := fmt.Sprintf("race-%03d", r)
		distance := distances[rng.Intn(len(distances))]
		going := goings[rng.Intn(len(goings))]
		course := courses[rng.Intn(len(courses))]

		type horse struct {
			id    string
			speed float64
			row   []string
		}
		var field []horse
		for h := 0; h < perRace; h++ {
			ability := 15.5 + rng.NormFloat64()*0.6
			speed := ability + rng.NormFloat64()*0.15
			prevSpeed := ability + rng.NormFloat64()*0.2
			prevSpeed2 := ability + rng.NormFloat64()*0.25
			prevOdds := 2.0 + rng.Float64()*18
			horseID := fmt.Sprintf("%s-h%d", raceID, h)

			field = append(field, horse{
				id:    horseID,
				speed: speed,
				row: []string{
					raceID, horseID, "", // position filled below
					formatF(distance), formatF(distance / speed),
					course, going,
					formatF(1.5 + rng.Float64()*15),
					formatF(prevSpeed), formatF(prevSpeed2), formatF(prevOdds),
					formatF(40 + rng.Float64()*50), formatF(30 + rng.Float64()*60),
					formatF(7 + float64(rng.Intn(60))),
					formatF(3 + float64(rng.Intn(6))),
					formatF(20000 + rng.Float64()*200000),
					formatF(110 + rng.Float64()*20),
				},
			})
		}
		sort.Slice(field, func(a, b int) bool { return field[a].speed > field[b].speed })
		for pos, h := range field {
			h.row[2] = strconv.Itoa(pos + 1)
			require.NoError(t, writer.Write(h.row))
		}
	}
	writer.Flush()
	require.NoError(t, writer.Error())
}

func formatF(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func TestPipelineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	trainPath := filepath.Join(dir, "train.csv")
	testPath := filepath.Join(dir, "test.csv")
	writeSynthetic(t, trainPath, 40, 6, 1)
	writeSynthetic(t, testPath, 10, 6, 2)

	cfg := config.Default()
	cfg.Data.TrainPath = trainPath
	cfg.Data.TestPath = testPath
	cfg.Data.OutputPath = filepath.Join(dir, "out", "probs.csv")
	cfg.Data.SummaryPath = filepath.Join(dir, "out", "summary.json")
	cfg.Simulation.Draws = 2000
	cfg.Model.MinK = 5
	cfg.Model.KStep = 4

	log := logger.NewLogger("warn", "development")
	summary, err := New(cfg, log).Run()
	require.NoError(t, err)

	assert.NotEmpty(t, summary.SelectedFeatures)
	assert.NotEmpty(t, summary.CVCurve)
	assert.Greater(t, summary.Sigma, 0.0)
	require.NotNil(t, summary.Evaluation)
	assert.Greater(t, summary.Evaluation.Regression.R2, 0.0,
		"previous speed carries signal, the model must beat the mean")

	assertProbabilityContract(t, cfg.Data.OutputPath)

	_, err = os.Stat(cfg.Data.SummaryPath)
	assert.NoError(t, err)
}

// assertProbabilityContract re-reads the artifact and checks the structural
// guarantee consumers rely on: per race, probabilities are non-negative and
// sum to one.
func assertProbabilityContract(t *testing.T, path string) {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Greater(t, len(records), 1)

	sums := map[string]float64{}
	for _, record := range records[1:] {
		p, err := strconv.ParseFloat(record[2], 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		sums[record[0]] += p
	}
	for raceID, sum := range sums {
		assert.InDelta(t, 1.0, sum, 1e-6, "race %s", raceID)
	}
}

func TestPipelineFailsWithSingleTrainingRace(t *testing.T) {
	dir := t.TempDir()
	trainPath := filepath.Join(dir, "train.csv")
	testPath := filepath.Join(dir, "test.csv")
	writeSynthetic(t, trainPath, 1, 8, 3)
	writeSynthetic(t, testPath, 4, 6, 4)

	cfg := config.Default()
	cfg.Data.TrainPath = trainPath
	cfg.Data.TestPath = testPath
	cfg.Data.OutputPath = filepath.Join(dir, "probs.csv")
	cfg.Data.SummaryPath = filepath.Join(dir, "summary.json")
	cfg.Simulation.Draws = 500

	_, err := New(cfg, logger.NewLogger("error", "development")).Run()
	require.Error(t, err)
}
