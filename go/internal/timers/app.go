package timers

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/gamenight/livescore/go/internal/models"
)

// Readings are accepted between zero and roughly 11.5 days of seconds.
const (
	TimeValueMin = 0
	TimeValueMax = 999999
)

// TimerRepository defines what the aggregator needs from timer storage.
type TimerRepository interface {
	CreateRecord(ctx context.Context, record models.TimerRecord) (*models.TimerRecord, error)
	ActiveRecordsForTeam(ctx context.Context, gameID, teamID int64) ([]models.TimerRecord, error)
	DeactivateTeamRecords(ctx context.Context, gameID, teamID int64) (int, error)
}

// ScoreWriter receives the recomputed multi-observer average. This is the
// aggregator's only cross-boundary write.
type ScoreWriter interface {
	WriteTimerAverage(ctx context.Context, gameID, teamID int64, avg float64, count int) error
}

type runKey struct {
	GameID int64
	TeamID int64
	UserID string
}

// StoppedRun identifies a discarded in-flight run, used to route disconnect
// cleanup broadcasts to the right room.
type StoppedRun struct {
	GameID int64
	TeamID int64
}

// TeamTimers is the active reading set for one team: the raw values that
// feed the displayed average plus the full per-user breakdown.
type TeamTimers struct {
	Times   []float64
	Records []models.TimerRecord
}

// Aggregator lets several independent observers time the same live event
// and combines their readings into one authoritative average. In-flight
// runs live in memory; finalized readings are append-only rows, so
// concurrent stops from different users never overwrite each other.
type Aggregator struct {
	mu     sync.Mutex
	active map[runKey]models.ActiveRun

	repo   TimerRepository
	scores ScoreWriter
	clock  clockwork.Clock
}

func NewAggregator(repo TimerRepository, scores ScoreWriter, clock clockwork.Clock) *Aggregator {
	return &Aggregator{
		active: make(map[runKey]models.ActiveRun),
		repo:   repo,
		scores: scores,
		clock:  clock,
	}
}

// StartRun records a running stopwatch marker for one observer. Idempotent
// per (game, team, user); a second start resets the start time.
func (a *Aggregator) StartRun(gameID, teamID int64, userID, displayName string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.active[runKey{GameID: gameID, TeamID: teamID, UserID: userID}] = models.ActiveRun{
		GameID:      gameID,
		TeamID:      teamID,
		UserID:      userID,
		DisplayName: displayName,
		StartedAt:   a.clock.Now(),
	}
}

// RecordTime validates and persists one finalized reading, then clears the
// observer's running marker. Every call appends a new record; repeated
// stops from the same user accumulate history by design.
func (a *Aggregator) RecordTime(ctx context.Context, gameID, teamID int64, userID, displayName string, timeValue float64) (*models.TimerRecord, error) {
	if timeValue < TimeValueMin || timeValue > TimeValueMax {
		return nil, fmt.Errorf("%w: %v", ErrTimeOutOfRange, timeValue)
	}

	record, err := a.repo.CreateRecord(ctx, models.TimerRecord{
		ID:              uuid.New(),
		GameID:          gameID,
		TeamID:          teamID,
		UserID:          userID,
		UserDisplayName: displayName,
		TimeValue:       timeValue,
		RecordedAt:      a.clock.Now(),
		IsActive:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create timer record: %w", err)
	}

	a.mu.Lock()
	delete(a.active, runKey{GameID: gameID, TeamID: teamID, UserID: userID})
	a.mu.Unlock()

	return record, nil
}

// TeamTimers returns every active reading for a team.
func (a *Aggregator) TeamTimers(ctx context.Context, gameID, teamID int64) (TeamTimers, error) {
	records, err := a.repo.ActiveRecordsForTeam(ctx, gameID, teamID)
	if err != nil {
		return TeamTimers{}, fmt.Errorf("failed to list active timer records: %w", err)
	}

	times := make([]float64, 0, len(records))
	for _, record := range records {
		times = append(times, record.TimeValue)
	}
	return TeamTimers{Times: times, Records: records}, nil
}

// ClearTeamTimers soft-deactivates every active reading for a team and
// returns how many were cleared. Rows are kept, so the clear is reversible
// and auditable.
func (a *Aggregator) ClearTeamTimers(ctx context.Context, gameID, teamID int64) (int, error) {
	count, err := a.repo.DeactivateTeamRecords(ctx, gameID, teamID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate timer records: %w", err)
	}
	return count, nil
}

// StopResult bundles everything a room broadcast needs after one stop.
type StopResult struct {
	Record  *models.TimerRecord
	Team    TeamTimers
	Average float64
}

// StopRun finalizes one observer's reading: the reading is appended, the
// active set re-read and the new mean computed in memory for the result.
// The reading itself is the only write; persisting the average into the
// score stays with ComputeAverage, so a stop never half-commits. When the
// stop somehow leaves no active readings, the reading stands in for the
// average.
func (a *Aggregator) StopRun(ctx context.Context, gameID, teamID int64, userID, displayName string, timeValue float64) (*StopResult, error) {
	record, err := a.RecordTime(ctx, gameID, teamID, userID, displayName, timeValue)
	if err != nil {
		return nil, err
	}

	team, err := a.TeamTimers(ctx, gameID, teamID)
	if err != nil {
		return nil, err
	}

	avg := timeValue
	if len(team.Times) > 0 {
		sum := 0.0
		for _, t := range team.Times {
			sum += t
		}
		avg = sum / float64(len(team.Times))
	}

	return &StopResult{Record: record, Team: team, Average: avg}, nil
}

// ComputeAverage takes the arithmetic mean of a team's active readings and
// writes it, with the reading count, to the team's score. Returns nil when
// no active readings exist, in which case nothing is written.
func (a *Aggregator) ComputeAverage(ctx context.Context, gameID, teamID int64) (*float64, error) {
	teamTimers, err := a.TeamTimers(ctx, gameID, teamID)
	if err != nil {
		return nil, err
	}
	if len(teamTimers.Times) == 0 {
		return nil, nil
	}

	sum := 0.0
	for _, t := range teamTimers.Times {
		sum += t
	}
	avg := sum / float64(len(teamTimers.Times))

	if err := a.scores.WriteTimerAverage(ctx, gameID, teamID, avg, len(teamTimers.Times)); err != nil {
		return nil, fmt.Errorf("failed to write timer average: %w", err)
	}
	return &avg, nil
}

// ActiveRunsForGame returns a snapshot of every running stopwatch in a game.
func (a *Aggregator) ActiveRunsForGame(gameID int64) []models.ActiveRun {
	a.mu.Lock()
	defer a.mu.Unlock()

	var runs []models.ActiveRun
	for key, run := range a.active {
		if key.GameID == gameID {
			runs = append(runs, run)
		}
	}
	return runs
}

// StopRunsForUser discards every in-flight run owned by a user without
// persisting anything. Used by disconnect cleanup.
func (a *Aggregator) StopRunsForUser(userID string) []StoppedRun {
	a.mu.Lock()
	defer a.mu.Unlock()

	var stopped []StoppedRun
	for key := range a.active {
		if key.UserID == userID {
			delete(a.active, key)
			stopped = append(stopped, StoppedRun{GameID: key.GameID, TeamID: key.TeamID})
		}
	}
	return stopped
}
