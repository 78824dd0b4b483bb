package models

import (
	"time"

	"github.com/google/uuid"
)

// TimerRecord is one finalized stopwatch reading. Rows are append-only:
// repeated stops from the same observer accumulate history rather than
// overwrite. An admin "clear" flips IsActive instead of deleting.
type TimerRecord struct {
	ID              uuid.UUID `json:"id"`
	GameID          int64     `json:"game_id"`
	TeamID          int64     `json:"team_id"`
	UserID          string    `json:"user_id"`
	UserDisplayName string    `json:"display_name"`
	TimeValue       float64   `json:"time_value"`
	RecordedAt      time.Time `json:"recorded_at"`
	IsActive        bool      `json:"is_active"`
}

// ActiveRun marks a stopwatch that has been started but not yet stopped.
// Lives only in memory; discarded on disconnect without persisting.
type ActiveRun struct {
	GameID      int64     `json:"game_id"`
	TeamID      int64     `json:"team_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	StartedAt   time.Time `json:"started_at"`
}
