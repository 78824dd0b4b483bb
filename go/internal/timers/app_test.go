package timers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamenight/livescore/go/internal/models"
)

// memTimerRepo is an in-memory TimerRepository.
type memTimerRepo struct {
	records []models.TimerRecord
	failing bool
}

var errStorage = errors.New("storage down")

func (m *memTimerRepo) CreateRecord(ctx context.Context, record models.TimerRecord) (*models.TimerRecord, error) {
	if m.failing {
		return nil, errStorage
	}
	m.records = append(m.records, record)
	return &record, nil
}

func (m *memTimerRepo) ActiveRecordsForTeam(ctx context.Context, gameID, teamID int64) ([]models.TimerRecord, error) {
	if m.failing {
		return nil, errStorage
	}
	var out []models.TimerRecord
	for _, r := range m.records {
		if r.GameID == gameID && r.TeamID == teamID && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memTimerRepo) DeactivateTeamRecords(ctx context.Context, gameID, teamID int64) (int, error) {
	if m.failing {
		return 0, errStorage
	}
	count := 0
	for i := range m.records {
		if m.records[i].GameID == gameID && m.records[i].TeamID == teamID && m.records[i].IsActive {
			m.records[i].IsActive = false
			count++
		}
	}
	return count, nil
}

// memScoreWriter records timer-average writes.
type memScoreWriter struct {
	avg     map[int64]float64
	count   map[int64]int
	failing bool
}

func newMemScoreWriter() *memScoreWriter {
	return &memScoreWriter{avg: make(map[int64]float64), count: make(map[int64]int)}
}

func (m *memScoreWriter) WriteTimerAverage(ctx context.Context, gameID, teamID int64, avg float64, count int) error {
	if m.failing {
		return errStorage
	}
	m.avg[teamID] = avg
	m.count[teamID] = count
	return nil
}

func newTestAggregator() (*Aggregator, *memTimerRepo, *memScoreWriter, *clockwork.FakeClock) {
	repo := &memTimerRepo{}
	writer := newMemScoreWriter()
	clock := clockwork.NewFakeClock()
	return NewAggregator(repo, writer, clock), repo, writer, clock
}

func TestStartRun_IdempotentResetsStartTime(t *testing.T) {
	a, _, _, clock := newTestAggregator()

	a.StartRun(7, 3, "anon_a", "Alice")
	first := a.ActiveRunsForGame(7)
	require.Len(t, first, 1)

	clock.Advance(30 * time.Second)
	a.StartRun(7, 3, "anon_a", "Alice")
	second := a.ActiveRunsForGame(7)
	require.Len(t, second, 1, "second start must not add a run")
	assert.True(t, second[0].StartedAt.After(first[0].StartedAt) || second[0].StartedAt.Equal(clock.Now()))
}

func TestStartRun_DifferentUsersRunConcurrently(t *testing.T) {
	a, _, _, _ := newTestAggregator()

	a.StartRun(7, 3, "anon_a", "Alice")
	a.StartRun(7, 3, "anon_b", "Bob")
	a.StartRun(7, 4, "anon_c", "Carol")

	assert.Len(t, a.ActiveRunsForGame(7), 3)
	assert.Empty(t, a.ActiveRunsForGame(8))
}

func TestRecordTime_AppendsAndClearsMarker(t *testing.T) {
	a, repo, _, _ := newTestAggregator()
	ctx := context.Background()

	a.StartRun(7, 3, "anon_a", "Alice")
	record, err := a.RecordTime(ctx, 7, 3, "anon_a", "Alice", 45.0)
	require.NoError(t, err)
	assert.Equal(t, 45.0, record.TimeValue)
	assert.True(t, record.IsActive)
	assert.Len(t, repo.records, 1)
	assert.Empty(t, a.ActiveRunsForGame(7), "stop clears the running marker")
}

func TestRecordTime_RepeatedStopsAccumulate(t *testing.T) {
	a, repo, _, _ := newTestAggregator()
	ctx := context.Background()

	_, err := a.RecordTime(ctx, 7, 3, "anon_a", "Alice", 45.0)
	require.NoError(t, err)
	_, err = a.RecordTime(ctx, 7, 3, "anon_a", "Alice", 47.5)
	require.NoError(t, err)

	assert.Len(t, repo.records, 2, "same-user stops append history, never overwrite")
}

func TestRecordTime_Bounds(t *testing.T) {
	a, repo, _, _ := newTestAggregator()
	ctx := context.Background()

	for _, v := range []float64{0, 999999} {
		_, err := a.RecordTime(ctx, 7, 3, "anon_a", "Alice", v)
		assert.NoError(t, err, "boundary value %v must be accepted", v)
	}
	for _, v := range []float64{-0.01, 999999.01} {
		_, err := a.RecordTime(ctx, 7, 3, "anon_a", "Alice", v)
		assert.ErrorIs(t, err, ErrTimeOutOfRange, "value %v must be rejected", v)
	}
	assert.Len(t, repo.records, 2, "rejected values must not be persisted")
}

func TestStopRun_MultiObserverAverage(t *testing.T) {
	a, repo, writer, _ := newTestAggregator()
	ctx := context.Background()

	_, err := a.StopRun(ctx, 7, 3, "anon_a", "Alice", 45.0)
	require.NoError(t, err)
	_, err = a.StopRun(ctx, 7, 3, "anon_b", "Bob", 50.0)
	require.NoError(t, err)
	result, err := a.StopRun(ctx, 7, 3, "anon_c", "Carol", 55.0)
	require.NoError(t, err)

	assert.Len(t, repo.records, 3, "N independent stops produce exactly N records")
	assert.Equal(t, 55.0, result.Record.TimeValue)
	assert.InDelta(t, 50.0, result.Average, 1e-9)
	assert.Equal(t, []float64{45, 50, 55}, result.Team.Times)
	assert.Empty(t, writer.avg, "stops compute the average in memory; only ComputeAverage writes it")
}

func TestStopRun_ScoreWriteOutageDoesNotAffectStops(t *testing.T) {
	a, repo, writer, _ := newTestAggregator()
	writer.failing = true
	ctx := context.Background()

	a.StartRun(7, 3, "anon_a", "Alice")
	result, err := a.StopRun(ctx, 7, 3, "anon_a", "Alice", 45.0)
	require.NoError(t, err)
	assert.InDelta(t, 45.0, result.Average, 1e-9)
	assert.Len(t, repo.records, 1, "one stop, one record, outage or not")
	assert.Empty(t, a.ActiveRunsForGame(7))

	_, err = a.ComputeAverage(ctx, 7, 3)
	require.Error(t, err, "the persisted-average write is where the outage surfaces")
	assert.Len(t, repo.records, 1, "a failed average write never duplicates readings")
}

func TestClearTeamTimers_SoftDeactivates(t *testing.T) {
	a, repo, _, _ := newTestAggregator()
	ctx := context.Background()

	_, err := a.StopRun(ctx, 7, 3, "anon_a", "Alice", 45.0)
	require.NoError(t, err)
	_, err = a.StopRun(ctx, 7, 3, "anon_b", "Bob", 55.0)
	require.NoError(t, err)

	count, err := a.ClearTeamTimers(ctx, 7, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	team, err := a.TeamTimers(ctx, 7, 3)
	require.NoError(t, err)
	assert.Empty(t, team.Times, "cleared readings leave the active set")
	assert.Len(t, repo.records, 2, "rows survive the clear with the inactive flag")
	for _, r := range repo.records {
		assert.False(t, r.IsActive)
	}
}

func TestComputeAverage_NoActiveReadings(t *testing.T) {
	a, _, writer, _ := newTestAggregator()

	avg, err := a.ComputeAverage(context.Background(), 7, 3)
	require.NoError(t, err)
	assert.Nil(t, avg)
	assert.Empty(t, writer.avg, "nothing is written when there are no readings")
}

func TestComputeAverage_WritesMeanAndCount(t *testing.T) {
	a, _, writer, _ := newTestAggregator()
	ctx := context.Background()

	for i, v := range []float64{45, 50, 55} {
		userID := string(rune('a' + i))
		_, err := a.RecordTime(ctx, 7, 3, userID, userID, v)
		require.NoError(t, err)
	}

	avg, err := a.ComputeAverage(ctx, 7, 3)
	require.NoError(t, err)
	require.NotNil(t, avg)
	assert.InDelta(t, 50.0, *avg, 1e-9)
	assert.Equal(t, 3, writer.count[3])
}

func TestStopRunsForUser_DiscardsOnlyOwn(t *testing.T) {
	a, repo, _, _ := newTestAggregator()

	a.StartRun(7, 3, "anon_a", "Alice")
	a.StartRun(7, 4, "anon_a", "Alice")
	a.StartRun(9, 1, "anon_a", "Alice")
	a.StartRun(7, 3, "anon_b", "Bob")

	stopped := a.StopRunsForUser("anon_a")
	assert.Len(t, stopped, 3)
	assert.Empty(t, repo.records, "discarded runs are never persisted")

	remaining := a.ActiveRunsForGame(7)
	require.Len(t, remaining, 1)
	assert.Equal(t, "anon_b", remaining[0].UserID)
}

func TestStopRun_StorageFailureLeavesMarkerForRetry(t *testing.T) {
	a, repo, writer, _ := newTestAggregator()
	repo.failing = true

	a.StartRun(7, 3, "anon_a", "Alice")
	_, err := a.StopRun(context.Background(), 7, 3, "anon_a", "Alice", 45.0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeOutOfRange)
	assert.Empty(t, writer.avg)
	assert.Empty(t, repo.records)
	assert.Len(t, a.ActiveRunsForGame(7), 1, "failed stop keeps the marker so a retry is safe")

	repo.failing = false
	_, err = a.StopRun(context.Background(), 7, 3, "anon_a", "Alice", 45.0)
	require.NoError(t, err)
	assert.Len(t, repo.records, 1, "retry after the outage records the reading exactly once")
}
