package models

// Score is a team's authoritative score for one game. One row per
// (game, team); timer fields are populated when the score comes from
// the multi-observer stopwatch average rather than manual entry.
type Score struct {
	ID            int64    `json:"id"`
	GameID        int64    `json:"game_id"`
	TeamID        int64    `json:"team_id"`
	ScoreValue    *float64 `json:"score_value"`
	Points        int      `json:"points"`
	MultiTimerAvg *float64 `json:"multi_timer_avg,omitempty"`
	TimerCount    int      `json:"timer_count"`
}

// RoundScore is a team's score for a single round of a round-based game.
// One row per (round, team); cumulative totals are synced into Score.
type RoundScore struct {
	ID         int64    `json:"id"`
	RoundID    int64    `json:"round_id"`
	TeamID     int64    `json:"team_id"`
	ScoreValue *float64 `json:"score_value"`
	Points     int      `json:"points"`
}
