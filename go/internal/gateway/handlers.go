package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gamenight/livescore/go/internal/locks"
	"github.com/gamenight/livescore/go/internal/models"
	"github.com/gamenight/livescore/go/internal/presence"
	"github.com/gamenight/livescore/go/internal/scores"
	"github.com/gamenight/livescore/go/internal/timers"
)

// Score and points values are accepted within these bounds; null is allowed.
const (
	ScoreValueMin = -999999.99
	ScoreValueMax = 999999.99
)

type handlerFunc func(ctx context.Context, connectionID string, data json.RawMessage) error

// Handlers binds the lock manager, timer aggregator, score store and
// presence registry into the room broadcast protocol. Each entry in the
// dispatch table maps one wire event to a handler; handlers reply to the
// sender and broadcast to the event's room, never relying on sender-local
// assumptions about membership. Persistence always happens before the
// corresponding broadcast, so a storage failure never leaves broadcast
// state ahead of durable state.
type Handlers struct {
	presence *presence.Registry
	locks    *locks.Manager
	timers   *timers.Aggregator
	scores   *scores.App
	rooms    Rooms

	table map[EventType]handlerFunc
}

func NewHandlers(reg *presence.Registry, lockMgr *locks.Manager, aggregator *timers.Aggregator, scoreApp *scores.App, rooms Rooms) *Handlers {
	h := &Handlers{
		presence: reg,
		locks:    lockMgr,
		timers:   aggregator,
		scores:   scoreApp,
		rooms:    rooms,
	}
	h.table = map[EventType]handlerFunc{
		EventJoinGame:     h.handleJoinGame,
		EventLeaveGame:    h.handleLeaveGame,
		EventRequestLock:  h.handleRequestLock,
		EventReleaseLock:  h.handleReleaseLock,
		EventUpdateScore:  h.handleUpdateScore,
		EventStartTimer:   h.handleStartTimer,
		EventStopTimer:    h.handleStopTimer,
		EventClearTimers:  h.handleClearTimers,
		EventSessionEnded: h.handleSessionEnded,
	}
	return h
}

// Dispatch routes one raw client message through the dispatch table. Every
// failure class becomes a sender-only error event; nothing is broadcast.
func (h *Handlers) Dispatch(ctx context.Context, connectionID string, raw []byte) {
	var event ClientEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		h.replyError(connectionID, "invalid message")
		return
	}

	handler, ok := h.table[event.Type]
	if !ok {
		h.replyError(connectionID, "unknown event type")
		return
	}

	if err := handler(ctx, connectionID, event.Data); err != nil {
		var persistence *PersistenceError
		switch {
		case errors.As(err, &persistence):
			log.Error().
				Err(persistence.Err).
				Str("connection_id", connectionID).
				Str("event_type", string(event.Type)).
				Msg("persistence failure handling event")
		default:
			log.Warn().
				Str("connection_id", connectionID).
				Str("event_type", string(event.Type)).
				Str("reason", err.Error()).
				Msg("rejected event")
		}
		h.replyError(connectionID, err.Error())
	}
}

// SessionEnded feeds disconnect cleanup through the dispatch table like any
// other event.
func (h *Handlers) SessionEnded(ctx context.Context, connectionID string) {
	if err := h.table[EventSessionEnded](ctx, connectionID, nil); err != nil {
		log.Error().Err(err).Str("connection_id", connectionID).Msg("session cleanup failed")
	}
}

func (h *Handlers) replyError(connectionID, message string) {
	h.rooms.SendToConnection(connectionID, ServerEvent{
		Type: EventError,
		Data: ErrorPayload{Message: message},
	})
}

func (h *Handlers) identity(connectionID string) (models.Identity, error) {
	identity, ok := h.presence.Resolve(connectionID)
	if !ok {
		return models.Identity{}, &ValidationError{Message: "session not registered"}
	}
	return identity, nil
}

func (h *Handlers) handleJoinGame(ctx context.Context, connectionID string, data json.RawMessage) error {
	var payload JoinGamePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return &ValidationError{Message: "invalid join_game payload"}
	}
	identity, err := h.identity(connectionID)
	if err != nil {
		return err
	}

	// Subscribe before reading the snapshot: a mutation landing in the gap
	// then reaches the joiner as a broadcast instead of vanishing. The
	// reverse order can lose it from both.
	h.rooms.Join(connectionID, payload.GameID)

	snapshot, err := h.buildGameState(ctx, payload.GameID, payload.RoundID)
	if err != nil {
		h.rooms.Leave(connectionID, payload.GameID)
		return &PersistenceError{Err: err}
	}

	h.rooms.SendToConnection(connectionID, ServerEvent{Type: EventGameState, Data: snapshot})
	h.rooms.BroadcastToGameExcept(payload.GameID, connectionID, ServerEvent{
		Type: EventUserJoined,
		Data: PresencePayload{UserID: identity.UserID, DisplayName: identity.DisplayName},
	})
	return nil
}

// buildGameState assembles the snapshot a newly joined client needs to
// render: current scores (round scores for round-based games when a round
// is named), the live lock table and any running stopwatches.
func (h *Handlers) buildGameState(ctx context.Context, gameID int64, roundID *int64) (GameStatePayload, error) {
	scoreStates := make(map[int64]ScoreState)

	hasRounds, err := h.scores.HasRounds(ctx, gameID)
	if err != nil {
		return GameStatePayload{}, err
	}

	if hasRounds && roundID != nil {
		roundScores, err := h.scores.RoundScores(ctx, *roundID)
		if err != nil {
			return GameStatePayload{}, err
		}
		for _, rs := range roundScores {
			scoreStates[rs.TeamID] = ScoreState{ScoreValue: rs.ScoreValue, Points: rs.Points}
		}
	} else {
		gameScores, err := h.scores.GameScores(ctx, gameID)
		if err != nil {
			return GameStatePayload{}, err
		}
		for _, s := range gameScores {
			scoreStates[s.TeamID] = ScoreState{
				ScoreValue:    s.ScoreValue,
				Points:        s.Points,
				MultiTimerAvg: s.MultiTimerAvg,
				TimerCount:    s.TimerCount,
			}
		}
	}

	var lockStates []LockState
	for _, lock := range h.locks.LocksForGame(gameID) {
		lockStates = append(lockStates, LockState{
			TeamID:      lock.TeamID,
			Field:       lock.Field,
			UserID:      lock.UserID,
			DisplayName: lock.DisplayName,
		})
	}

	return GameStatePayload{
		Scores:       scoreStates,
		Locks:        lockStates,
		RoundID:      roundID,
		ActiveTimers: h.timers.ActiveRunsForGame(gameID),
	}, nil
}

func (h *Handlers) handleLeaveGame(ctx context.Context, connectionID string, data json.RawMessage) error {
	var payload LeaveGamePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return &ValidationError{Message: "invalid leave_game payload"}
	}
	identity, err := h.identity(connectionID)
	if err != nil {
		return err
	}

	h.rooms.Leave(connectionID, payload.GameID)
	h.rooms.BroadcastToGameExcept(payload.GameID, connectionID, ServerEvent{
		Type: EventUserLeft,
		Data: PresencePayload{UserID: identity.UserID, DisplayName: identity.DisplayName},
	})
	return nil
}

func (h *Handlers) handleRequestLock(ctx context.Context, connectionID string, data json.RawMessage) error {
	var payload LockRequestPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return &ValidationError{Message: "invalid request_edit_lock payload"}
	}
	identity, err := h.identity(connectionID)
	if err != nil {
		return err
	}

	result := h.locks.Acquire(payload.GameID, payload.TeamID, payload.Field, identity.UserID, identity.DisplayName)
	if !result.Granted {
		// Denials are the requester's business only.
		h.rooms.SendToConnection(connectionID, ServerEvent{
			Type: EventLockDenied,
			Data: LockDeniedPayload{TeamID: payload.TeamID, Field: payload.Field, LockedBy: result.LockedBy},
		})
		return nil
	}

	h.rooms.SendToConnection(connectionID, ServerEvent{
		Type: EventLockAcquired,
		Data: LockAcquiredPayload{GameID: payload.GameID, TeamID: payload.TeamID, Field: payload.Field},
	})
	h.rooms.BroadcastToGameExcept(payload.GameID, connectionID, ServerEvent{
		Type: EventFieldLocked,
		Data: FieldLockedPayload{
			TeamID:      payload.TeamID,
			Field:       payload.Field,
			UserID:      identity.UserID,
			DisplayName: identity.DisplayName,
		},
	})
	return nil
}

func (h *Handlers) handleReleaseLock(ctx context.Context, connectionID string, data json.RawMessage) error {
	var payload LockReleasePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return &ValidationError{Message: "invalid release_edit_lock payload"}
	}
	identity, err := h.identity(connectionID)
	if err != nil {
		return err
	}

	// Persist the final value first. On failure the lock is deliberately
	// kept, so the editor retains control and can retry the release.
	if payload.Score != nil && payload.Points != nil {
		if _, err := h.scores.SaveScore(ctx, payload.GameID, payload.TeamID, payload.Score, payload.Points); err != nil {
			return &PersistenceError{Err: err}
		}
	}

	h.locks.Release(payload.GameID, payload.TeamID, payload.Field, identity.UserID)

	// Everyone, sender included, converges on the final value.
	h.rooms.BroadcastToGame(payload.GameID, ServerEvent{
		Type: EventFieldUnlocked,
		Data: FieldUnlockedPayload{
			TeamID:    payload.TeamID,
			Field:     payload.Field,
			Score:     payload.Score,
			Points:    payload.Points,
			UpdatedBy: identity.DisplayName,
		},
	})
	return nil
}

func (h *Handlers) handleUpdateScore(ctx context.Context, connectionID string, data json.RawMessage) error {
	var payload UpdateScorePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return &ValidationError{Message: "invalid update_score payload"}
	}
	identity, err := h.identity(connectionID)
	if err != nil {
		return err
	}

	if err := validateScoreBounds("score value", payload.Score); err != nil {
		return err
	}
	var pointsValue *float64
	if payload.Points != nil {
		v := float64(*payload.Points)
		pointsValue = &v
	}
	if err := validateScoreBounds("points", pointsValue); err != nil {
		return err
	}

	hasRounds, err := h.scores.HasRounds(ctx, payload.GameID)
	if err != nil {
		return &PersistenceError{Err: err}
	}

	if hasRounds && payload.RoundID != nil {
		if _, err := h.scores.SaveRoundScore(ctx, payload.GameID, *payload.RoundID, payload.TeamID, payload.Score, payload.Points); err != nil {
			return &PersistenceError{Err: err}
		}
	} else {
		if _, err := h.scores.SaveScore(ctx, payload.GameID, payload.TeamID, payload.Score, payload.Points); err != nil {
			return &PersistenceError{Err: err}
		}
	}

	h.rooms.BroadcastToGame(payload.GameID, ServerEvent{
		Type: EventScoreUpdated,
		Data: ScoreUpdatedPayload{
			TeamID:    payload.TeamID,
			Score:     payload.Score,
			Points:    payload.Points,
			RoundID:   payload.RoundID,
			UpdatedBy: identity.DisplayName,
		},
	})
	return nil
}

func (h *Handlers) handleStartTimer(ctx context.Context, connectionID string, data json.RawMessage) error {
	var payload StartTimerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return &ValidationError{Message: "invalid start_timer payload"}
	}
	identity, err := h.identity(connectionID)
	if err != nil {
		return err
	}

	h.timers.StartRun(payload.GameID, payload.TeamID, identity.UserID, identity.DisplayName)

	h.rooms.BroadcastToGame(payload.GameID, ServerEvent{
		Type: EventTimerStarted,
		Data: TimerStartedPayload{
			TeamID:      payload.TeamID,
			UserID:      identity.UserID,
			DisplayName: identity.DisplayName,
		},
	})
	return nil
}

func (h *Handlers) handleStopTimer(ctx context.Context, connectionID string, data json.RawMessage) error {
	var payload StopTimerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return &ValidationError{Message: "invalid stop_timer payload"}
	}
	identity, err := h.identity(connectionID)
	if err != nil {
		return err
	}
	if payload.TimeValue == nil {
		return &ValidationError{Message: "timer value is required"}
	}

	result, err := h.timers.StopRun(ctx, payload.GameID, payload.TeamID, identity.UserID, identity.DisplayName, *payload.TimeValue)
	if err != nil {
		if errors.Is(err, timers.ErrTimeOutOfRange) {
			return validationErrorf("timer value must be between %d and %d", timers.TimeValueMin, timers.TimeValueMax)
		}
		return &PersistenceError{Err: err}
	}

	entries := make([]TimerEntry, 0, len(result.Team.Records))
	for _, record := range result.Team.Records {
		entries = append(entries, TimerEntry{
			ID:          record.ID,
			UserID:      record.UserID,
			DisplayName: record.UserDisplayName,
			TimeValue:   record.TimeValue,
			RecordedAt:  record.RecordedAt,
			IsAdmin:     strings.HasPrefix(record.UserID, "admin_"),
		})
	}

	avg := result.Average
	h.rooms.BroadcastToGame(payload.GameID, ServerEvent{
		Type: EventTimerStopped,
		Data: TimerStoppedPayload{
			TeamID:      payload.TeamID,
			UserID:      identity.UserID,
			DisplayName: identity.DisplayName,
			Time:        payload.TimeValue,
			Average:     &avg,
			AllTimes:    result.Team.Times,
			TimerCount:  len(result.Team.Times),
			Timers:      entries,
		},
	})
	return nil
}

func (h *Handlers) handleClearTimers(ctx context.Context, connectionID string, data json.RawMessage) error {
	var payload ClearTimersPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return &ValidationError{Message: "invalid clear_timers payload"}
	}
	identity, err := h.identity(connectionID)
	if err != nil {
		return err
	}
	if !identity.IsAdmin {
		return &PermissionError{Message: "only admins can clear timers"}
	}

	count, err := h.timers.ClearTeamTimers(ctx, payload.GameID, payload.TeamID)
	if err != nil {
		return &PersistenceError{Err: err}
	}

	h.rooms.BroadcastToGame(payload.GameID, ServerEvent{
		Type: EventTimersCleared,
		Data: TimersClearedPayload{TeamID: payload.TeamID, Count: count},
	})
	return nil
}

// handleSessionEnded runs disconnect cleanup: every lock and in-flight run
// owned by the disconnecting identity is released, each with its own
// broadcast to the owning room, then the identity is discarded.
func (h *Handlers) handleSessionEnded(ctx context.Context, connectionID string, data json.RawMessage) error {
	identity, ok := h.presence.Resolve(connectionID)
	if !ok {
		return nil
	}

	for _, key := range h.locks.ReleaseAllForUser(identity.UserID) {
		h.rooms.BroadcastToGame(key.GameID, ServerEvent{
			Type: EventFieldUnlocked,
			Data: FieldUnlockedPayload{TeamID: key.TeamID, Field: key.Field},
		})
	}

	for _, run := range h.timers.StopRunsForUser(identity.UserID) {
		h.rooms.BroadcastToGame(run.GameID, ServerEvent{
			Type: EventTimerStopped,
			Data: TimerStoppedPayload{TeamID: run.TeamID, UserID: identity.UserID},
		})
	}

	h.presence.Drop(connectionID)

	log.Info().
		Str("connection_id", connectionID).
		Str("user_id", identity.UserID).
		Msg("session ended, cleanup complete")
	return nil
}

func validateScoreBounds(name string, value *float64) error {
	if value == nil {
		return nil
	}
	if *value < ScoreValueMin || *value > ScoreValueMax {
		return validationErrorf("%s must be between %v and %v", name, ScoreValueMin, ScoreValueMax)
	}
	return nil
}
