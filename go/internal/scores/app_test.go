package scores

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamenight/livescore/go/internal/models"
)

type scoreKey struct {
	GameID int64
	TeamID int64
}

type roundKey struct {
	RoundID int64
	TeamID  int64
}

// memScoreRepo is an in-memory ScoreRepository.
type memScoreRepo struct {
	scores      map[scoreKey]models.Score
	roundScores map[roundKey]models.RoundScore
	roundGame   map[int64]int64 // roundID → gameID
	hasRounds   map[int64]bool
	failing     bool
	nextID      int64
}

var errStorage = errors.New("storage down")

func newMemScoreRepo() *memScoreRepo {
	return &memScoreRepo{
		scores:      make(map[scoreKey]models.Score),
		roundScores: make(map[roundKey]models.RoundScore),
		roundGame:   make(map[int64]int64),
		hasRounds:   make(map[int64]bool),
	}
}

func (m *memScoreRepo) UpsertScore(ctx context.Context, gameID, teamID int64, scoreValue *float64, points int) (*models.Score, error) {
	if m.failing {
		return nil, errStorage
	}
	key := scoreKey{GameID: gameID, TeamID: teamID}
	score, ok := m.scores[key]
	if !ok {
		m.nextID++
		score = models.Score{ID: m.nextID, GameID: gameID, TeamID: teamID}
	}
	score.ScoreValue = scoreValue
	score.Points = points
	m.scores[key] = score
	return &score, nil
}

func (m *memScoreRepo) UpsertTimerAverage(ctx context.Context, gameID, teamID int64, avg float64, count int) (*models.Score, error) {
	if m.failing {
		return nil, errStorage
	}
	key := scoreKey{GameID: gameID, TeamID: teamID}
	score, ok := m.scores[key]
	if !ok {
		m.nextID++
		score = models.Score{ID: m.nextID, GameID: gameID, TeamID: teamID}
	}
	score.ScoreValue = &avg
	score.MultiTimerAvg = &avg
	score.TimerCount = count
	m.scores[key] = score
	return &score, nil
}

func (m *memScoreRepo) ScoresByGame(ctx context.Context, gameID int64) ([]models.Score, error) {
	if m.failing {
		return nil, errStorage
	}
	var out []models.Score
	for key, score := range m.scores {
		if key.GameID == gameID {
			out = append(out, score)
		}
	}
	return out, nil
}

func (m *memScoreRepo) UpsertRoundScore(ctx context.Context, roundID, teamID int64, scoreValue *float64, points int) (*models.RoundScore, error) {
	if m.failing {
		return nil, errStorage
	}
	key := roundKey{RoundID: roundID, TeamID: teamID}
	roundScore, ok := m.roundScores[key]
	if !ok {
		m.nextID++
		roundScore = models.RoundScore{ID: m.nextID, RoundID: roundID, TeamID: teamID}
	}
	roundScore.ScoreValue = scoreValue
	roundScore.Points = points
	m.roundScores[key] = roundScore
	return &roundScore, nil
}

func (m *memScoreRepo) RoundScoresByRound(ctx context.Context, roundID int64) ([]models.RoundScore, error) {
	if m.failing {
		return nil, errStorage
	}
	var out []models.RoundScore
	for key, roundScore := range m.roundScores {
		if key.RoundID == roundID {
			out = append(out, roundScore)
		}
	}
	return out, nil
}

func (m *memScoreRepo) RoundPointsByTeam(ctx context.Context, gameID int64) (map[int64]int, error) {
	if m.failing {
		return nil, errStorage
	}
	totals := make(map[int64]int)
	for key, roundScore := range m.roundScores {
		if m.roundGame[key.RoundID] == gameID {
			totals[key.TeamID] += roundScore.Points
		}
	}
	return totals, nil
}

func (m *memScoreRepo) GameHasRounds(ctx context.Context, gameID int64) (bool, error) {
	if m.failing {
		return false, errStorage
	}
	return m.hasRounds[gameID], nil
}

func f64(v float64) *float64 { return &v }
func i(v int) *int           { return &v }

func TestSaveScore_CreatesAndUpdates(t *testing.T) {
	repo := newMemScoreRepo()
	app := NewApp(repo)
	ctx := context.Background()

	score, err := app.SaveScore(ctx, 7, 3, f64(42), i(4))
	require.NoError(t, err)
	assert.Equal(t, 42.0, *score.ScoreValue)
	assert.Equal(t, 4, score.Points)

	score, err = app.SaveScore(ctx, 7, 3, f64(50), i(6))
	require.NoError(t, err)
	assert.Equal(t, 50.0, *score.ScoreValue)
	assert.Len(t, repo.scores, 1, "same key updates in place")
}

func TestSaveScore_NilPointsStoredAsZero(t *testing.T) {
	app := NewApp(newMemScoreRepo())

	score, err := app.SaveScore(context.Background(), 7, 3, f64(42), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, score.Points)
}

func TestSaveRoundScore_SyncsCumulativeTotals(t *testing.T) {
	repo := newMemScoreRepo()
	repo.hasRounds[7] = true
	repo.roundGame[101] = 7
	repo.roundGame[102] = 7
	app := NewApp(repo)
	ctx := context.Background()

	_, err := app.SaveRoundScore(ctx, 7, 101, 3, f64(10), i(3))
	require.NoError(t, err)
	_, err = app.SaveRoundScore(ctx, 7, 102, 3, f64(12), i(5))
	require.NoError(t, err)

	score := repo.scores[scoreKey{GameID: 7, TeamID: 3}]
	assert.Equal(t, 8, score.Points, "main score carries summed round points")
	require.NotNil(t, score.ScoreValue)
	assert.Equal(t, 8.0, *score.ScoreValue, "cumulative total doubles as score value")
}

func TestSaveRoundScore_UpdateRecomputesTotals(t *testing.T) {
	repo := newMemScoreRepo()
	repo.hasRounds[7] = true
	repo.roundGame[101] = 7
	app := NewApp(repo)
	ctx := context.Background()

	_, err := app.SaveRoundScore(ctx, 7, 101, 3, f64(10), i(3))
	require.NoError(t, err)
	_, err = app.SaveRoundScore(ctx, 7, 101, 3, f64(11), i(7))
	require.NoError(t, err)

	assert.Len(t, repo.roundScores, 1, "same round+team upserts")
	score := repo.scores[scoreKey{GameID: 7, TeamID: 3}]
	assert.Equal(t, 7, score.Points, "totals reflect the latest round score, not the sum of edits")
}

func TestHasRounds(t *testing.T) {
	repo := newMemScoreRepo()
	repo.hasRounds[7] = true
	app := NewApp(repo)
	ctx := context.Background()

	hasRounds, err := app.HasRounds(ctx, 7)
	require.NoError(t, err)
	assert.True(t, hasRounds)

	hasRounds, err = app.HasRounds(ctx, 8)
	require.NoError(t, err)
	assert.False(t, hasRounds)
}

func TestSaveScore_StorageFailure(t *testing.T) {
	repo := newMemScoreRepo()
	repo.failing = true
	app := NewApp(repo)

	_, err := app.SaveScore(context.Background(), 7, 3, f64(42), i(4))
	assert.ErrorIs(t, err, errStorage)
}
