package models

// Entry represents one horse's participation in one race.
//
// Numeric predictor fields are pointers so that a missing value in the source
// data is distinguishable from zero. Missing values survive feature
// engineering as NaN and are resolved (or reported) by the transform stage.
type Entry struct {
	RaceID           string   `csv:"race_id" json:"race_id" validate:"required"`
	HorseID          string   `csv:"horse_id" json:"horse_id" validate:"required"`
	Position         int      `csv:"position" json:"position"`
	Distance         float64  `csv:"distance" json:"distance" validate:"gt=0"`
	ElapsedTime      float64  `csv:"elapsed_time" json:"elapsed_time"`
	Course           string   `csv:"course" json:"course"`
	Going            string   `csv:"going" json:"going"`
	MarketOdds       *float64 `csv:"market_odds" json:"market_odds,omitempty"`
	PrevSpeed        *float64 `csv:"prev_speed" json:"prev_speed,omitempty"`
	PrevSpeed2       *float64 `csv:"prev_speed2" json:"prev_speed2,omitempty"`
	PrevOdds         *float64 `csv:"prev_odds" json:"prev_odds,omitempty"`
	JockeyRating     *float64 `csv:"jockey_rating" json:"jockey_rating,omitempty"`
	TrainerRating    *float64 `csv:"trainer_rating" json:"trainer_rating,omitempty"`
	DaysSinceLastRun *float64 `csv:"days_since_last_run" json:"days_since_last_run,omitempty"`
	Age              *float64 `csv:"age" json:"age,omitempty"`
	Prize            *float64 `csv:"prize" json:"prize,omitempty"`
	WeightCarried    *float64 `csv:"weight_carried" json:"weight_carried,omitempty"`
}

// SpeedTarget returns the regression label distance/time. The second return
// is false when elapsed time is missing or zero; such rows must be dropped
// during cleaning, never imputed.
func (e *Entry) SpeedTarget() (float64, bool) {
	if e.ElapsedTime <= 0 {
		return 0, false
	}
	return e.Distance / e.ElapsedTime, true
}

// Won reports whether the entry finished first.
func (e *Entry) Won() bool {
	return e.Position == 1
}

// GetMarketOdds returns the decimal market odds or 0 if unavailable.
func (e *Entry) GetMarketOdds() float64 {
	if e.MarketOdds == nil {
		return 0
	}
	return *e.MarketOdds
}

// ImpliedProbability returns 1/odds, or 0 when odds are missing or invalid.
// Normalization within the race is the evaluator's job.
func (e *Entry) ImpliedProbability() float64 {
	odds := e.GetMarketOdds()
	if odds <= 0 {
		return 0
	}
	return 1.0 / odds
}
