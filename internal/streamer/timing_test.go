package streamer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantio/aquahub/internal/models"
)

func activeSession(env *testEnv) *models.StreamingSession {
	return &models.StreamingSession{
		ID:        "vds_timing",
		Kind:      models.KindFish,
		Status:    models.SessionActive,
		TotalRows: 3,
		StartedAt: env.clock.now,
	}
}

func TestDueReadingsMapsElapsedTime(t *testing.T) {
	env := newTestEnv(t)
	session := activeSession(env)

	// at start only the first row's timestamp has been reached
	due, err := env.svc.dueReadings(session, models.VariantTraining, 1)
	require.NoError(t, err)
	assert.Len(t, due.Rows, 1)
	assert.Equal(t, 0, due.FromIndex)
	assert.Equal(t, 1, due.ToIndex)
	assert.False(t, due.IsComplete)

	// five hours later the second row becomes due
	session.LastRowSent = 1
	env.clock.Advance(5 * time.Hour)
	due, err = env.svc.dueReadings(session, models.VariantTraining, 1)
	require.NoError(t, err)
	require.Len(t, due.Rows, 1)
	assert.Equal(t, 1, due.Rows[0].Index)
	assert.False(t, due.IsComplete)

	// the final row exhausts the dataset
	session.LastRowSent = 2
	env.clock.Advance(5 * time.Hour)
	due, err = env.svc.dueReadings(session, models.VariantTraining, 1)
	require.NoError(t, err)
	assert.Len(t, due.Rows, 1)
	assert.True(t, due.IsComplete)
}

func TestDueReadingsIsIdempotentForSameInstant(t *testing.T) {
	env := newTestEnv(t)
	session := activeSession(env)
	env.clock.Advance(5 * time.Hour)

	due, err := env.svc.dueReadings(session, models.VariantTraining, 1)
	require.NoError(t, err)
	assert.Len(t, due.Rows, 2)

	// same instant after the watermark advanced: nothing new is due
	session.LastRowSent = due.ToIndex
	again, err := env.svc.dueReadings(session, models.VariantTraining, 1)
	require.NoError(t, err)
	assert.Empty(t, again.Rows)
	assert.False(t, again.IsComplete)
}

func TestDueReadingsCatchesUpAfterGap(t *testing.T) {
	env := newTestEnv(t)
	session := activeSession(env)

	// a missed trigger window yields one larger batch, never a gap
	env.clock.Advance(12 * time.Hour)
	due, err := env.svc.dueReadings(session, models.VariantTraining, 1)
	require.NoError(t, err)
	assert.Len(t, due.Rows, 3)
	assert.True(t, due.IsComplete)
}

func TestDueReadingsExcludesPauseTime(t *testing.T) {
	env := newTestEnv(t)
	session := activeSession(env)

	pausedAt := env.clock.now.Add(2 * time.Hour)
	session.Status = models.SessionPaused
	session.PausedAt = &pausedAt

	// 7h on the wall, 5h of it paused: replay position is 2h in
	env.clock.Advance(7 * time.Hour)
	due, err := env.svc.dueReadings(session, models.VariantTraining, 1)
	require.NoError(t, err)
	assert.Len(t, due.Rows, 1)
	assert.Equal(t, 0, due.Rows[0].Index)
}

func TestDueReadingsAppliesSpeedMultiplier(t *testing.T) {
	env := newTestEnv(t)
	session := activeSession(env)

	env.clock.Advance(5 * time.Hour)
	due, err := env.svc.dueReadings(session, models.VariantTraining, 2)
	require.NoError(t, err)
	assert.Len(t, due.Rows, 3)
	assert.True(t, due.IsComplete)
}

func TestEffectiveElapsedClampsNegative(t *testing.T) {
	env := newTestEnv(t)
	session := activeSession(env)
	session.StartedAt = env.clock.now.Add(time.Hour)

	assert.Equal(t, time.Duration(0), effectiveElapsed(session, env.clock.now, 1))
}

func TestExpectedCompletion(t *testing.T) {
	env := newTestEnv(t)
	start := env.clock.now

	completion, err := env.svc.expectedCompletion(start, 0, models.KindFish, models.VariantTraining, 1)
	require.NoError(t, err)
	assert.Equal(t, start.Add(10*time.Hour), completion)

	// a 2x multiplier halves the projected span
	completion, err = env.svc.expectedCompletion(start, 0, models.KindFish, models.VariantTraining, 2)
	require.NoError(t, err)
	assert.Equal(t, start.Add(5*time.Hour), completion)

	// accumulated pause pushes completion out
	completion, err = env.svc.expectedCompletion(start, (30 * time.Minute).Milliseconds(), models.KindFish, models.VariantTraining, 1)
	require.NoError(t, err)
	assert.Equal(t, start.Add(10*time.Hour+30*time.Minute), completion)
}

func TestCalculateProgress(t *testing.T) {
	env := newTestEnv(t)
	session := activeSession(env)
	session.LastRowSent = 1

	progress, err := env.svc.CalculateProgress(session, models.VariantTraining, 1)
	require.NoError(t, err)
	assert.InDelta(t, 33.33, progress.Percentage, 0.01)
	assert.Equal(t, 1, progress.RowsSent)
	assert.Equal(t, 2, progress.RowsRemaining)
	// remaining dataset span from row 1 to the last row is 5h
	assert.Equal(t, (5 * time.Hour).Milliseconds(), progress.TimeRemainingMs)
	require.NotNil(t, progress.ProjectedCompletionAt)
	assert.Equal(t, env.clock.now.Add(5*time.Hour), *progress.ProjectedCompletionAt)
}

func TestCalculateProgressExhausted(t *testing.T) {
	env := newTestEnv(t)
	session := activeSession(env)
	session.LastRowSent = 3

	progress, err := env.svc.CalculateProgress(session, models.VariantTraining, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(100), progress.Percentage)
	assert.Zero(t, progress.TimeRemainingMs)

	// an empty dataset reports complete instead of dividing by zero
	session.TotalRows = 0
	session.LastRowSent = 0
	progress, err = env.svc.CalculateProgress(session, models.VariantTraining, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(100), progress.Percentage)
}
