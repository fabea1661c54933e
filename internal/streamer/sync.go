// FilePath: internal/streamer/sync.go
package streamer

import (
	"context"
	"fmt"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/locking"
	"github.com/verdantio/aquahub/internal/models"
)

// PerformSync reconciles a user's configuration, device references,
// and sessions: devices deleted out-of-band are unlinked and their
// sessions force-failed, missing sessions are created for valid
// references, and sessions the configuration no longer points at are
// flagged as orphaned and force-failed.
//
// The persisted sync status describes the state after the pass: a run
// that finds issues and repairs them stores synced, and out_of_sync is
// reserved for a pass that errors before finishing. The returned
// result still reports degraded health when issues were found.
func (s *Service) PerformSync(ctx context.Context, userID string) (*models.SyncResult, error) {
	release, acquired, err := s.Locks.Acquire(ctx, locking.SyncKey(userID), time.Minute)
	if err != nil {
		return nil, errors.NewInternalError("failed to acquire sync lock", err)
	}
	if !acquired {
		return nil, errors.NewConflictError("sync already running for this user", nil)
	}
	defer release()

	result := &models.SyncResult{
		Timestamp: s.Clock.Now(),
		Issues:    []string{},
	}

	metrics, err := s.Health.Get(ctx, userID)
	if err != nil {
		if !errors.IsNotFound(err) {
			return nil, err
		}
		metrics = s.defaultHealthMetrics(userID)
	}
	metrics.SyncStatus = models.SyncSyncing
	if err := s.Health.Upsert(ctx, metrics); err != nil {
		return nil, err
	}

	if err := s.reconcile(ctx, userID, result); err != nil {
		result.Success = false
		result.HealthStatus = models.HealthFailed
		result.Issues = append(result.Issues, err.Error())
		metrics.SyncStatus = models.SyncOutOfSync
		s.persistSyncOutcome(ctx, metrics, result)
		return result, nil
	}

	// issues found during the pass were fixed by it; the persisted
	// status reflects the state after reconciliation
	result.Success = true
	metrics.SyncStatus = models.SyncSynced
	if len(result.Issues) == 0 {
		result.HealthStatus = models.HealthHealthy
	} else {
		result.HealthStatus = models.HealthDegraded
	}
	s.persistSyncOutcome(ctx, metrics, result)

	nuts.L.Infof("[Sync] User %s: created=%d cleaned=%d validated=%d issues=%d",
		userID, result.SessionsCreated, result.SessionsCleanedUp, result.DevicesValidated, len(result.Issues))
	return result, nil
}

func (s *Service) reconcile(ctx context.Context, userID string, result *models.SyncResult) error {
	cfg, err := s.Configs.GetByUser(ctx, userID)
	if err != nil {
		if errors.IsNotFound(err) {
			result.Issues = append(result.Issues, "no virtual device configuration")
			return nil
		}
		return err
	}

	// Unlink deleted devices and fail their sessions.
	for _, kind := range models.AllKinds {
		deviceID := cfg.DeviceIDFor(kind)
		if deviceID == nil {
			continue
		}
		exists, err := s.Devices.Exists(ctx, *deviceID)
		if err != nil {
			return err
		}
		if exists {
			result.DevicesValidated++
			continue
		}

		result.Issues = append(result.Issues, fmt.Sprintf("%s device %s no longer exists", kind, *deviceID))
		if ref := cfg.SessionIDFor(kind); ref != nil {
			if err := s.FailSession(ctx, *ref, "device deleted", ""); err != nil && !errors.IsNotFound(err) {
				return err
			}
			result.SessionsCleanedUp++
		}
		if err := s.Configs.ClearDeviceRef(ctx, cfg.ID, kind); err != nil {
			return err
		}
		clearSessionRef(cfg, kind)
		result.ErrorsFixed++
	}

	// Ensure sessions exist for every still-valid reference.
	if cfg.Enabled {
		for _, kind := range models.AllKinds {
			if cfg.DeviceIDFor(kind) == nil {
				continue
			}
			session, created, err := s.GetOrCreateSession(ctx, cfg, kind, "")
			if err != nil {
				return err
			}
			if created {
				result.SessionsCreated++
				setSessionRef(cfg, kind, session.ID)
				result.Issues = append(result.Issues, fmt.Sprintf("created missing %s session", kind))
			}
		}
	}

	// Fail open sessions the configuration no longer references.
	open, err := s.Sessions.ListOpenByConfig(ctx, cfg.ID)
	if err != nil {
		return err
	}
	orphaned := 0
	for _, session := range open {
		ref := cfg.SessionIDFor(session.Kind)
		if ref != nil && *ref == session.ID && cfg.DeviceIDFor(session.Kind) != nil {
			continue
		}
		if err := s.FailSession(ctx, session.ID, "orphaned session", ""); err != nil {
			return err
		}
		orphaned++
		result.SessionsCleanedUp++
		result.Issues = append(result.Issues, fmt.Sprintf("orphaned %s session %s", session.Kind, session.ID))
	}

	result.ErrorsFixed += orphaned
	return nil
}

func (s *Service) persistSyncOutcome(ctx context.Context, metrics *models.HealthMetrics, result *models.SyncResult) {
	counts, err := s.countActive(ctx, metrics.UserID)
	if err == nil {
		metrics.ActiveDevices = counts.devices
		metrics.ActiveSessions = counts.sessions
	}
	metrics.OrphanedSessions = result.SessionsCleanedUp

	if err := s.Health.Upsert(ctx, metrics); err != nil {
		nuts.L.Warnf("[Sync] Failed to persist health metrics for user %s: %v", metrics.UserID, err)
	}
}

type activeCounts struct {
	devices  int
	sessions int
}

func (s *Service) countActive(ctx context.Context, userID string) (activeCounts, error) {
	var counts activeCounts
	cfg, err := s.Configs.GetByUser(ctx, userID)
	if err != nil {
		return counts, err
	}
	for _, kind := range models.AllKinds {
		if cfg.DeviceIDFor(kind) != nil {
			counts.devices++
		}
		if ref := cfg.SessionIDFor(kind); ref != nil {
			session, err := s.Sessions.Get(ctx, *ref)
			if err == nil && session.Status == models.SessionActive {
				counts.sessions++
			}
		}
	}
	return counts, nil
}

// GetHealthCheck derives the read-only operational snapshot operators
// poll: overdue state, issue list, and an overall status.
func (s *Service) GetHealthCheck(ctx context.Context, userID string) (*models.HealthCheck, error) {
	check := &models.HealthCheck{
		UserID:    userID,
		Status:    models.HealthUnknown,
		Issues:    []string{},
		CheckedAt: s.Clock.Now(),
	}

	metrics, err := s.Health.Get(ctx, userID)
	if err != nil {
		if errors.IsNotFound(err) {
			check.CronStatus = models.HealthUnknown
			check.SyncStatus = models.SyncUnknown
			return check, nil
		}
		return nil, err
	}

	check.CronStatus = metrics.CronStatus
	check.SyncStatus = metrics.SyncStatus
	check.ActiveDevices = metrics.ActiveDevices
	check.ActiveSessions = metrics.ActiveSessions
	check.OrphanedSessions = metrics.OrphanedSessions

	threshold := metrics.AlertThresholdMinutes
	if threshold <= 0 {
		threshold = s.alertThresholdMinutes()
	}

	if metrics.LastCronSuccessAt != nil {
		minutes := int64(check.CheckedAt.Sub(*metrics.LastCronSuccessAt).Minutes())
		check.MinutesSinceLastSuccess = &minutes
		if minutes > int64(threshold) {
			check.IsOverdue = true
			check.Issues = append(check.Issues, fmt.Sprintf("no successful trigger for %d minutes (threshold %d)", minutes, threshold))
		}
	}
	if metrics.ConsecutiveFailures > 0 {
		check.Issues = append(check.Issues, fmt.Sprintf("%d consecutive trigger failures", metrics.ConsecutiveFailures))
	}
	if metrics.OrphanedSessions > 0 {
		check.Issues = append(check.Issues, fmt.Sprintf("%d orphaned sessions", metrics.OrphanedSessions))
	}
	if metrics.ActiveDevices > 0 && metrics.ActiveSessions == 0 {
		check.Issues = append(check.Issues, "devices configured but no active sessions")
	}

	switch {
	case metrics.CronStatus == models.HealthFailed || check.IsOverdue:
		check.Status = models.HealthFailed
	case metrics.CronStatus == models.HealthDegraded || len(check.Issues) > 0:
		check.Status = models.HealthDegraded
	case metrics.LastCronAttemptAt == nil:
		check.Status = models.HealthUnknown
	default:
		check.Status = models.HealthHealthy
	}
	return check, nil
}

// CheckAndCreateAlerts raises alerts from the current health snapshot.
// There is deliberately no dedup here: every overdue tick raises a
// fresh alert and suppression is the consumer's concern.
func (s *Service) CheckAndCreateAlerts(ctx context.Context, userID string) ([]*models.Alert, error) {
	metrics, err := s.Health.Get(ctx, userID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if !metrics.AlertsEnabled {
		return nil, nil
	}

	check, err := s.GetHealthCheck(ctx, userID)
	if err != nil {
		return nil, err
	}

	alerts := []*models.Alert{}
	if check.Status == models.HealthFailed && check.IsOverdue {
		alert := &models.Alert{
			UserID:   userID,
			Kind:     models.AlertCronOverdue,
			Severity: models.AlertHigh,
			Message:  fmt.Sprintf("virtual device streaming overdue: %s", check.Issues[0]),
		}
		if err := s.Alerts.Create(ctx, alert); err != nil {
			return alerts, err
		}
		alerts = append(alerts, alert)
	}
	if metrics.ConsecutiveFailures >= 3 {
		alert := &models.Alert{
			UserID:   userID,
			Kind:     models.AlertConsecutiveFailures,
			Severity: models.AlertCritical,
			Message:  fmt.Sprintf("%d consecutive trigger failures: %s", metrics.ConsecutiveFailures, metrics.LastCronError),
		}
		if err := s.Alerts.Create(ctx, alert); err != nil {
			return alerts, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func setSessionRef(cfg *models.VirtualDeviceConfig, kind models.DeviceKind, sessionID string) {
	if kind == models.KindFish {
		cfg.FishSessionID = &sessionID
	} else {
		cfg.PlantSessionID = &sessionID
	}
}

func clearSessionRef(cfg *models.VirtualDeviceConfig, kind models.DeviceKind) {
	if kind == models.KindFish {
		cfg.FishDeviceID = nil
		cfg.FishSessionID = nil
	} else {
		cfg.PlantDeviceID = nil
		cfg.PlantSessionID = nil
	}
}
