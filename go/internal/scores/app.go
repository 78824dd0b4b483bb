package scores

import (
	"context"
	"fmt"

	"github.com/gamenight/livescore/go/internal/models"
)

// ScoreRepository defines what the scores app layer needs from storage.
// All writes are idempotent create-or-update keyed by (game, team) or
// (round, team); concurrent writers converge last-write-wins.
type ScoreRepository interface {
	UpsertScore(ctx context.Context, gameID, teamID int64, scoreValue *float64, points int) (*models.Score, error)
	UpsertTimerAverage(ctx context.Context, gameID, teamID int64, avg float64, count int) (*models.Score, error)
	ScoresByGame(ctx context.Context, gameID int64) ([]models.Score, error)
	UpsertRoundScore(ctx context.Context, roundID, teamID int64, scoreValue *float64, points int) (*models.RoundScore, error)
	RoundScoresByRound(ctx context.Context, roundID int64) ([]models.RoundScore, error)
	RoundPointsByTeam(ctx context.Context, gameID int64) (map[int64]int, error)
	GameHasRounds(ctx context.Context, gameID int64) (bool, error)
}

// App handles score business logic for the collaborative scoring surface.
type App struct {
	repo ScoreRepository
}

func NewApp(repo ScoreRepository) *App {
	return &App{repo: repo}
}

// SaveScore upserts a team's game score. A nil points is stored as zero.
func (a *App) SaveScore(ctx context.Context, gameID, teamID int64, scoreValue *float64, points *int) (*models.Score, error) {
	pts := 0
	if points != nil {
		pts = *points
	}
	score, err := a.repo.UpsertScore(ctx, gameID, teamID, scoreValue, pts)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert score: %w", err)
	}
	return score, nil
}

// SaveRoundScore upserts a team's score for one round, then resyncs the
// cumulative per-team round totals into the main score table so displays
// that read game scores stay consistent with round-by-round entry.
func (a *App) SaveRoundScore(ctx context.Context, gameID, roundID, teamID int64, scoreValue *float64, points *int) (*models.RoundScore, error) {
	pts := 0
	if points != nil {
		pts = *points
	}
	roundScore, err := a.repo.UpsertRoundScore(ctx, roundID, teamID, scoreValue, pts)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert round score: %w", err)
	}

	if err := a.syncRoundTotals(ctx, gameID); err != nil {
		return nil, err
	}
	return roundScore, nil
}

// syncRoundTotals writes each team's summed round points into its main
// score row, with the cumulative total doubling as the display score value.
func (a *App) syncRoundTotals(ctx context.Context, gameID int64) error {
	totals, err := a.repo.RoundPointsByTeam(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to aggregate round points: %w", err)
	}
	for teamID, total := range totals {
		cumulative := float64(total)
		if _, err := a.repo.UpsertScore(ctx, gameID, teamID, &cumulative, total); err != nil {
			return fmt.Errorf("failed to sync round totals for team %d: %w", teamID, err)
		}
	}
	return nil
}

// GameScores returns every team's score row for a game.
func (a *App) GameScores(ctx context.Context, gameID int64) ([]models.Score, error) {
	scores, err := a.repo.ScoresByGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list game scores: %w", err)
	}
	return scores, nil
}

// RoundScores returns every team's score row for one round.
func (a *App) RoundScores(ctx context.Context, roundID int64) ([]models.RoundScore, error) {
	roundScores, err := a.repo.RoundScoresByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list round scores: %w", err)
	}
	return roundScores, nil
}

// HasRounds reports whether a game tracks scores round by round.
func (a *App) HasRounds(ctx context.Context, gameID int64) (bool, error) {
	hasRounds, err := a.repo.GameHasRounds(ctx, gameID)
	if err != nil {
		return false, fmt.Errorf("failed to look up game: %w", err)
	}
	return hasRounds, nil
}

// WriteTimerAverage upserts the multi-observer timer average for a team,
// recording both the mean and how many readings produced it.
func (a *App) WriteTimerAverage(ctx context.Context, gameID, teamID int64, avg float64, count int) error {
	if _, err := a.repo.UpsertTimerAverage(ctx, gameID, teamID, avg, count); err != nil {
		return fmt.Errorf("failed to upsert timer average: %w", err)
	}
	return nil
}
