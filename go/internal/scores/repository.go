package scores

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gamenight/livescore/go/internal/models"
)

// Repository implements ScoreRepository on Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) UpsertScore(ctx context.Context, gameID, teamID int64, scoreValue *float64, points int) (*models.Score, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO score (game_id, team_id, score_value, points, timer_count)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (game_id, team_id)
		DO UPDATE SET score_value = EXCLUDED.score_value, points = EXCLUDED.points
		RETURNING id, game_id, team_id, score_value, points, multi_timer_avg, timer_count`,
		gameID, teamID, scoreValue, points)

	var score models.Score
	if err := row.Scan(&score.ID, &score.GameID, &score.TeamID, &score.ScoreValue,
		&score.Points, &score.MultiTimerAvg, &score.TimerCount); err != nil {
		return nil, fmt.Errorf("failed to upsert score: %w", err)
	}
	return &score, nil
}

func (r *Repository) UpsertTimerAverage(ctx context.Context, gameID, teamID int64, avg float64, count int) (*models.Score, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO score (game_id, team_id, score_value, points, multi_timer_avg, timer_count)
		VALUES ($1, $2, $3, 0, $3, $4)
		ON CONFLICT (game_id, team_id)
		DO UPDATE SET score_value = EXCLUDED.score_value,
		              multi_timer_avg = EXCLUDED.multi_timer_avg,
		              timer_count = EXCLUDED.timer_count
		RETURNING id, game_id, team_id, score_value, points, multi_timer_avg, timer_count`,
		gameID, teamID, avg, count)

	var score models.Score
	if err := row.Scan(&score.ID, &score.GameID, &score.TeamID, &score.ScoreValue,
		&score.Points, &score.MultiTimerAvg, &score.TimerCount); err != nil {
		return nil, fmt.Errorf("failed to upsert timer average: %w", err)
	}
	return &score, nil
}

func (r *Repository) ScoresByGame(ctx context.Context, gameID int64) ([]models.Score, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, game_id, team_id, score_value, points, multi_timer_avg, timer_count
		FROM score
		WHERE game_id = $1
		ORDER BY team_id`,
		gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	var scores []models.Score
	for rows.Next() {
		var score models.Score
		if err := rows.Scan(&score.ID, &score.GameID, &score.TeamID, &score.ScoreValue,
			&score.Points, &score.MultiTimerAvg, &score.TimerCount); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}

func (r *Repository) UpsertRoundScore(ctx context.Context, roundID, teamID int64, scoreValue *float64, points int) (*models.RoundScore, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO round_score (round_id, team_id, score_value, points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (round_id, team_id)
		DO UPDATE SET score_value = EXCLUDED.score_value, points = EXCLUDED.points
		RETURNING id, round_id, team_id, score_value, points`,
		roundID, teamID, scoreValue, points)

	var roundScore models.RoundScore
	if err := row.Scan(&roundScore.ID, &roundScore.RoundID, &roundScore.TeamID,
		&roundScore.ScoreValue, &roundScore.Points); err != nil {
		return nil, fmt.Errorf("failed to upsert round score: %w", err)
	}
	return &roundScore, nil
}

func (r *Repository) RoundScoresByRound(ctx context.Context, roundID int64) ([]models.RoundScore, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, round_id, team_id, score_value, points
		FROM round_score
		WHERE round_id = $1
		ORDER BY team_id`,
		roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query round scores: %w", err)
	}
	defer rows.Close()

	var roundScores []models.RoundScore
	for rows.Next() {
		var roundScore models.RoundScore
		if err := rows.Scan(&roundScore.ID, &roundScore.RoundID, &roundScore.TeamID,
			&roundScore.ScoreValue, &roundScore.Points); err != nil {
			return nil, fmt.Errorf("failed to scan round score: %w", err)
		}
		roundScores = append(roundScores, roundScore)
	}
	return roundScores, rows.Err()
}

func (r *Repository) RoundPointsByTeam(ctx context.Context, gameID int64) (map[int64]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rs.team_id, COALESCE(SUM(rs.points), 0)
		FROM round_score rs
		JOIN round r ON r.id = rs.round_id
		WHERE r.game_id = $1
		GROUP BY rs.team_id`,
		gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate round points: %w", err)
	}
	defer rows.Close()

	totals := make(map[int64]int)
	for rows.Next() {
		var teamID int64
		var points int
		if err := rows.Scan(&teamID, &points); err != nil {
			return nil, fmt.Errorf("failed to scan round points: %w", err)
		}
		totals[teamID] = points
	}
	return totals, rows.Err()
}

func (r *Repository) GameHasRounds(ctx context.Context, gameID int64) (bool, error) {
	var hasRounds bool
	err := r.pool.QueryRow(ctx, `SELECT has_rounds FROM game WHERE id = $1`, gameID).Scan(&hasRounds)
	if errors.Is(err, pgx.ErrNoRows) {
		// Unknown games score like plain ones.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query game: %w", err)
	}
	return hasRounds, nil
}
