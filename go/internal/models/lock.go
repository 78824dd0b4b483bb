package models

import "time"

// FieldLock is an advisory, time-leased claim on one editable score field.
// At most one lock exists per (game, team, field). Never persisted.
type FieldLock struct {
	GameID      int64     `json:"game_id"`
	TeamID      int64     `json:"team_id"`
	Field       string    `json:"field"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AcquiredAt  time.Time `json:"acquired_at"`
}

// Identity is the per-connection identity assigned on connect. Exists for
// the socket lifetime only.
type Identity struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	IsAdmin      bool   `json:"is_admin"`
}
