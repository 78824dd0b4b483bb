package timers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gamenight/livescore/go/internal/models"
)

// Repository implements TimerRepository on Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateRecord(ctx context.Context, record models.TimerRecord) (*models.TimerRecord, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO timer_record (id, game_id, team_id, user_id, user_display_name, time_value, recorded_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.GameID, record.TeamID, record.UserID,
		record.UserDisplayName, record.TimeValue, record.RecordedAt, record.IsActive)
	if err != nil {
		return nil, fmt.Errorf("failed to insert timer record: %w", err)
	}
	return &record, nil
}

func (r *Repository) ActiveRecordsForTeam(ctx context.Context, gameID, teamID int64) ([]models.TimerRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, game_id, team_id, user_id, user_display_name, time_value, recorded_at, is_active
		FROM timer_record
		WHERE game_id = $1 AND team_id = $2 AND is_active
		ORDER BY recorded_at`,
		gameID, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timer records: %w", err)
	}
	defer rows.Close()

	var records []models.TimerRecord
	for rows.Next() {
		var record models.TimerRecord
		if err := rows.Scan(&record.ID, &record.GameID, &record.TeamID, &record.UserID,
			&record.UserDisplayName, &record.TimeValue, &record.RecordedAt, &record.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan timer record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *Repository) DeactivateTeamRecords(ctx context.Context, gameID, teamID int64) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE timer_record
		SET is_active = FALSE
		WHERE game_id = $1 AND team_id = $2 AND is_active`,
		gameID, teamID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate timer records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
