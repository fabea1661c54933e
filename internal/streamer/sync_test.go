package streamer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/locking"
	"github.com/verdantio/aquahub/internal/models"
)

func TestPerformSyncCreatesMissingSessions(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.seedConfig("alice")
	ctx := context.Background()

	result, err := env.svc.PerformSync(ctx, "alice")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.SessionsCreated)
	assert.Equal(t, 2, result.DevicesValidated)

	stored := env.config(t, cfg.ID)
	require.NotNil(t, stored.FishSessionID)
	require.NotNil(t, stored.PlantSessionID)

	metrics, err := env.health.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.SyncSynced, metrics.SyncStatus)
	assert.Equal(t, 2, metrics.ActiveDevices)
	assert.Equal(t, 2, metrics.ActiveSessions)
}

func TestPerformSyncCleansDeletedDevice(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.seedConfig("alice")
	ctx := context.Background()

	_, err := env.svc.PerformSync(ctx, "alice")
	require.NoError(t, err)
	fishSessionID := *env.config(t, cfg.ID).FishSessionID

	// the fish device disappears out-of-band
	env.devices.remove("dev_fish_alice")

	result, err := env.svc.PerformSync(ctx, "alice")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.DevicesValidated)
	assert.Equal(t, 1, result.SessionsCleanedUp)
	assert.NotEmpty(t, result.Issues)

	// the session is force-failed and the reference unlinked
	assert.Equal(t, models.SessionFailed, env.session(t, fishSessionID).Status)
	stored := env.config(t, cfg.ID)
	assert.Nil(t, stored.FishDeviceID)
	assert.Nil(t, stored.FishSessionID)
	require.NotNil(t, stored.PlantSessionID)
}

func TestPerformSyncFailsOrphanedSessions(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.seedConfig("alice")
	ctx := context.Background()

	_, err := env.svc.PerformSync(ctx, "alice")
	require.NoError(t, err)

	// an open session the configuration no longer references
	orphan := &models.StreamingSession{
		ID:        "vds_orphan",
		ConfigID:  cfg.ID,
		Kind:      models.KindFish,
		Status:    models.SessionActive,
		TotalRows: 3,
		StartedAt: env.clock.now,
	}
	require.NoError(t, env.sessions.Create(ctx, orphan))

	result, err := env.svc.PerformSync(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, 1, result.SessionsCleanedUp)
	assert.Equal(t, models.SessionFailed, env.session(t, orphan.ID).Status)

	// the referenced sessions are untouched
	stored := env.config(t, cfg.ID)
	assert.Equal(t, models.SessionActive, env.session(t, *stored.FishSessionID).Status)
}

func TestPerformSyncRefusesConcurrentRun(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfig("alice")

	env.locks.hold(locking.SyncKey("alice"))

	_, err := env.svc.PerformSync(context.Background(), "alice")
	assert.True(t, errors.IsConflict(err))
}

func TestPerformSyncWithoutConfig(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.PerformSync(context.Background(), "ghost")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Issues, "no virtual device configuration")
}

func TestGetHealthCheckOverdue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lastSuccess := env.clock.now.Add(-361 * time.Minute)
	require.NoError(t, env.health.Upsert(ctx, &models.HealthMetrics{
		UserID:                "alice",
		CronStatus:            models.HealthHealthy,
		SyncStatus:            models.SyncSynced,
		LastCronSuccessAt:     &lastSuccess,
		LastCronAttemptAt:     &lastSuccess,
		AlertsEnabled:         true,
		AlertThresholdMinutes: 360,
	}))

	check, err := env.svc.GetHealthCheck(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, check.IsOverdue)
	assert.Equal(t, models.HealthFailed, check.Status)
	require.NotNil(t, check.MinutesSinceLastSuccess)
	assert.Equal(t, int64(361), *check.MinutesSinceLastSuccess)
	assert.NotEmpty(t, check.Issues)
}

func TestGetHealthCheckWithinThreshold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lastSuccess := env.clock.now.Add(-359 * time.Minute)
	require.NoError(t, env.health.Upsert(ctx, &models.HealthMetrics{
		UserID:                "alice",
		CronStatus:            models.HealthHealthy,
		SyncStatus:            models.SyncSynced,
		LastCronSuccessAt:     &lastSuccess,
		LastCronAttemptAt:     &lastSuccess,
		AlertsEnabled:         true,
		AlertThresholdMinutes: 360,
	}))

	check, err := env.svc.GetHealthCheck(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, check.IsOverdue)
	assert.Equal(t, models.HealthHealthy, check.Status)
	assert.Empty(t, check.Issues)
}

func TestGetHealthCheckUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	check, err := env.svc.GetHealthCheck(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, models.HealthUnknown, check.Status)
	assert.Equal(t, models.HealthUnknown, check.CronStatus)
	assert.Equal(t, models.SyncUnknown, check.SyncStatus)
}

func TestCheckAndCreateAlerts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lastSuccess := env.clock.now.Add(-400 * time.Minute)
	require.NoError(t, env.health.Upsert(ctx, &models.HealthMetrics{
		UserID:                "alice",
		CronStatus:            models.HealthFailed,
		SyncStatus:            models.SyncSynced,
		LastCronSuccessAt:     &lastSuccess,
		LastCronAttemptAt:     &lastSuccess,
		LastCronError:         "ingest unavailable",
		ConsecutiveFailures:   3,
		AlertsEnabled:         true,
		AlertThresholdMinutes: 360,
	}))

	alerts, err := env.svc.CheckAndCreateAlerts(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, models.AlertCronOverdue, alerts[0].Kind)
	assert.Equal(t, models.AlertHigh, alerts[0].Severity)
	assert.Equal(t, models.AlertConsecutiveFailures, alerts[1].Kind)
	assert.Equal(t, models.AlertCritical, alerts[1].Severity)

	// no dedup: the next check raises fresh alerts
	again, err := env.svc.CheckAndCreateAlerts(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, again, 2)

	stored, err := env.alerts.ListByUser(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 4)
}

func TestCheckAndCreateAlertsDisabled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	lastSuccess := env.clock.now.Add(-400 * time.Minute)
	require.NoError(t, env.health.Upsert(ctx, &models.HealthMetrics{
		UserID:                "alice",
		CronStatus:            models.HealthFailed,
		SyncStatus:            models.SyncSynced,
		LastCronSuccessAt:     &lastSuccess,
		AlertsEnabled:         false,
		AlertThresholdMinutes: 360,
	}))

	alerts, err := env.svc.CheckAndCreateAlerts(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
