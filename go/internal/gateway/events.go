package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gamenight/livescore/go/internal/models"
)

// EventType names one protocol event in either direction.
type EventType string

// Client → server events. SessionEnded is synthesized by the transport when
// a connection drops and flows through the same dispatch table as the rest,
// so disconnect cleanup is testable without a real network drop.
const (
	EventJoinGame     EventType = "join_game"
	EventLeaveGame    EventType = "leave_game"
	EventRequestLock  EventType = "request_edit_lock"
	EventReleaseLock  EventType = "release_edit_lock"
	EventUpdateScore  EventType = "update_score"
	EventStartTimer   EventType = "start_timer"
	EventStopTimer    EventType = "stop_timer"
	EventClearTimers  EventType = "clear_timers"
	EventSessionEnded EventType = "session_ended"
)

// Server → client events.
const (
	EventConnected     EventType = "connected"
	EventGameState     EventType = "game_state"
	EventUserJoined    EventType = "user_joined"
	EventUserLeft      EventType = "user_left"
	EventLockAcquired  EventType = "lock_acquired"
	EventLockDenied    EventType = "lock_denied"
	EventFieldLocked   EventType = "field_locked"
	EventFieldUnlocked EventType = "field_unlocked"
	EventScoreUpdated  EventType = "score_updated"
	EventTimerStarted  EventType = "timer_started"
	EventTimerStopped  EventType = "timer_stopped"
	EventTimersCleared EventType = "timers_cleared"
	EventError         EventType = "error"
)

// ClientEvent is the incoming wire envelope.
type ClientEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ServerEvent is the outgoing wire envelope.
type ServerEvent struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Client payloads.

type JoinGamePayload struct {
	GameID  int64  `json:"game_id"`
	RoundID *int64 `json:"round_id,omitempty"`
}

type LeaveGamePayload struct {
	GameID int64 `json:"game_id"`
}

type LockRequestPayload struct {
	GameID int64  `json:"game_id"`
	TeamID int64  `json:"team_id"`
	Field  string `json:"field"`
}

type LockReleasePayload struct {
	GameID int64    `json:"game_id"`
	TeamID int64    `json:"team_id"`
	Field  string   `json:"field"`
	Score  *float64 `json:"score,omitempty"`
	Points *int     `json:"points,omitempty"`
}

type UpdateScorePayload struct {
	GameID  int64    `json:"game_id"`
	TeamID  int64    `json:"team_id"`
	Score   *float64 `json:"score,omitempty"`
	Points  *int     `json:"points,omitempty"`
	RoundID *int64   `json:"round_id,omitempty"`
}

type StartTimerPayload struct {
	GameID int64 `json:"game_id"`
	TeamID int64 `json:"team_id"`
}

type StopTimerPayload struct {
	GameID    int64    `json:"game_id"`
	TeamID    int64    `json:"team_id"`
	TimeValue *float64 `json:"time_value"`
}

type ClearTimersPayload struct {
	GameID int64 `json:"game_id"`
	TeamID int64 `json:"team_id"`
}

// Server payloads.

type ConnectedPayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// ScoreState is one team's entry in a game_state snapshot.
type ScoreState struct {
	ScoreValue    *float64 `json:"score_value"`
	Points        int      `json:"points"`
	MultiTimerAvg *float64 `json:"multi_timer_avg,omitempty"`
	TimerCount    int      `json:"timer_count"`
}

// LockState is one live lock in a game_state snapshot.
type LockState struct {
	TeamID      int64  `json:"team_id"`
	Field       string `json:"field"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type GameStatePayload struct {
	Scores       map[int64]ScoreState `json:"scores"`
	Locks        []LockState          `json:"locks"`
	RoundID      *int64               `json:"round_id,omitempty"`
	ActiveTimers []models.ActiveRun   `json:"active_timers"`
}

// PresencePayload announces a user joining or leaving a room.
type PresencePayload struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type LockAcquiredPayload struct {
	GameID int64  `json:"game_id"`
	TeamID int64  `json:"team_id"`
	Field  string `json:"field"`
}

type LockDeniedPayload struct {
	TeamID   int64  `json:"team_id"`
	Field    string `json:"field"`
	LockedBy string `json:"locked_by"`
}

type FieldLockedPayload struct {
	TeamID      int64  `json:"team_id"`
	Field       string `json:"field"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type FieldUnlockedPayload struct {
	TeamID    int64    `json:"team_id"`
	Field     string   `json:"field"`
	Score     *float64 `json:"score,omitempty"`
	Points    *int     `json:"points,omitempty"`
	UpdatedBy string   `json:"updated_by,omitempty"`
}

type ScoreUpdatedPayload struct {
	TeamID    int64    `json:"team_id"`
	Score     *float64 `json:"score"`
	Points    *int     `json:"points"`
	RoundID   *int64   `json:"round_id,omitempty"`
	UpdatedBy string   `json:"updated_by"`
}

type TimerStartedPayload struct {
	TeamID      int64  `json:"team_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// TimerEntry is one finalized reading in a timer_stopped breakdown.
type TimerEntry struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	TimeValue   float64   `json:"time_value"`
	RecordedAt  time.Time `json:"recorded_at"`
	IsAdmin     bool      `json:"is_admin"`
}

type TimerStoppedPayload struct {
	TeamID      int64        `json:"team_id"`
	UserID      string       `json:"user_id"`
	DisplayName string       `json:"display_name,omitempty"`
	Time        *float64     `json:"time,omitempty"`
	Average     *float64     `json:"average,omitempty"`
	AllTimes    []float64    `json:"all_times,omitempty"`
	TimerCount  int          `json:"timer_count"`
	Timers      []TimerEntry `json:"timers,omitempty"`
}

type TimersClearedPayload struct {
	TeamID int64 `json:"team_id"`
	Count  int   `json:"count"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
