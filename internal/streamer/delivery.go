// FilePath: internal/streamer/delivery.go
package streamer

import (
	"context"
	"fmt"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/locking"
	"github.com/verdantio/aquahub/internal/models"
	"github.com/verdantio/aquahub/internal/repository"
)

// TickResult is the aggregate outcome of one delivery tick.
type TickResult struct {
	RunID             string               `json:"run_id"`
	Status            models.CronRunStatus `json:"status"`
	ConfigsProcessed  int                  `json:"configs_processed"`
	SessionsProcessed int                  `json:"sessions_processed"`
	SessionsCreated   int                  `json:"sessions_created"`
	SessionsCompleted int                  `json:"sessions_completed"`
	ReadingsSent      int                  `json:"readings_sent"`
	Errors            []string             `json:"errors"`
	StartedAt         time.Time            `json:"started_at"`
	CompletedAt       time.Time            `json:"completed_at"`
	DurationMs        int64                `json:"duration_ms"`
}

// RunDeliveryTick is the unit the external scheduler invokes. It is a
// single stateless pass: for every enabled configuration it ensures
// sessions exist, forwards due readings to the ingestion boundary,
// advances watermarks, and records a cron-execution summary. Session
// errors are recorded and skipped; only a datastore failure at the
// loop level fails the whole tick.
func (s *Service) RunDeliveryTick(ctx context.Context, triggerSource string) (*TickResult, error) {
	startedAt := s.Clock.Now()
	result := &TickResult{
		RunID:     nuts.NID("run", 16),
		Status:    models.CronRunStarted,
		Errors:    []string{},
		StartedAt: startedAt,
	}

	run := &models.CronExecution{
		ID:            nuts.NID("crn", 12),
		RunID:         result.RunID,
		Status:        models.CronRunStarted,
		TriggerSource: triggerSource,
		StartedAt:     startedAt,
	}
	if err := s.CronRuns.Create(ctx, run); err != nil {
		return nil, err
	}

	nuts.L.Infof("[Delivery] Tick %s started (source=%s)", result.RunID, triggerSource)

	configs, err := s.Configs.ListEnabled(ctx)
	if err != nil {
		// datastore unavailable: the tick aborts, the run records the failure
		result.Status = models.CronRunFailed
		result.Errors = append(result.Errors, err.Error())
		s.finalizeTick(ctx, run, result)
		return result, err
	}

	userOutcomes := map[string]string{}
	for _, cfg := range configs {
		result.ConfigsProcessed++
		if _, seen := userOutcomes[cfg.UserID]; !seen {
			userOutcomes[cfg.UserID] = ""
		}

		for _, kind := range models.AllKinds {
			if cfg.DeviceIDFor(kind) == nil {
				continue
			}
			if err := s.deliverForKind(ctx, cfg, kind, result); err != nil {
				userOutcomes[cfg.UserID] = err.Error()
				result.Errors = append(result.Errors, fmt.Sprintf("config %s %s: %v", cfg.ID, kind, err))
			}
		}
	}

	result.Status = models.CronRunCompleted
	s.finalizeTick(ctx, run, result)

	for userID, errMsg := range userOutcomes {
		s.updateTriggerHealth(ctx, userID, errMsg == "", errMsg)
		if _, aerr := s.CheckAndCreateAlerts(ctx, userID); aerr != nil {
			nuts.L.Warnf("[Delivery] Failed to check alerts for user %s: %v", userID, aerr)
		}
	}

	nuts.L.Infof("[Delivery] Tick %s finished: %d configs, %d sessions, %d readings, %d errors",
		result.RunID, result.ConfigsProcessed, result.SessionsProcessed, result.ReadingsSent, len(result.Errors))
	return result, nil
}

// deliverForKind works one session of one configuration. Its error
// return feeds the per-user health aggregate; per-session delivery
// failures are recorded against the session and only bubble up as part
// of the tick's error list.
func (s *Service) deliverForKind(ctx context.Context, cfg *models.VirtualDeviceConfig, kind models.DeviceKind, result *TickResult) error {
	session, created, err := s.GetOrCreateSession(ctx, cfg, kind, result.RunID)
	if err != nil {
		return err
	}
	if created {
		result.SessionsCreated++
	}
	if session == nil || session.Status != models.SessionActive {
		return nil
	}
	result.SessionsProcessed++

	// Overlapping ticks skip a locked session rather than double-send;
	// the watermark CAS is the backstop if the lock expires mid-batch.
	release, acquired, err := s.Locks.Acquire(ctx, locking.SessionKey(session.ID), s.sessionLockTTL())
	if err != nil {
		return err
	}
	if !acquired {
		nuts.L.Infof("[Delivery] Session %s locked by another invocation, skipping", session.ID)
		return nil
	}
	defer release()

	due, err := s.dueReadings(session, cfg.DatasetVariant, cfg.Multiplier())
	if err != nil {
		return err
	}

	if len(due.Rows) == 0 {
		if due.IsComplete {
			if err := s.CompleteSession(ctx, session.ID, result.RunID); err != nil {
				return err
			}
			result.SessionsCompleted++
		}
		return nil
	}

	deviceID := cfg.DeviceIDFor(kind)
	device, err := s.Devices.Get(ctx, *deviceID)
	if err != nil {
		if _, rerr := s.RecordError(ctx, session, fmt.Sprintf("device lookup failed: %v", err), result.RunID); rerr != nil {
			return rerr
		}
		return err
	}

	sendStart := s.Clock.Now()
	if err := s.Ingest.SendReadings(ctx, device, due.Rows); err != nil {
		// no intra-tick retry: record and pick up on the next trigger
		if _, rerr := s.RecordError(ctx, session, err.Error(), result.RunID); rerr != nil {
			return rerr
		}
		return err
	}
	sendDuration := s.Clock.Now().Sub(sendStart).Milliseconds()

	if err := s.UpdateProgress(ctx, session, due.ToIndex, len(due.Rows)); err != nil {
		if err == repository.ErrStaleWatermark {
			// a concurrent invocation already advanced this window
			nuts.L.Warnf("[Delivery] Session %s watermark moved concurrently, dropping advance", session.ID)
			return nil
		}
		if errors.IsConflict(err) {
			return nil
		}
		return err
	}
	result.ReadingsSent += len(due.Rows)

	s.logBatchEvent(ctx, session.ID, result.RunID, due, sendDuration)

	if due.IsComplete {
		if err := s.CompleteSession(ctx, session.ID, result.RunID); err != nil {
			return err
		}
		result.SessionsCompleted++
	}
	return nil
}

func (s *Service) finalizeTick(ctx context.Context, run *models.CronExecution, result *TickResult) {
	completedAt := s.Clock.Now()
	result.CompletedAt = completedAt
	result.DurationMs = completedAt.Sub(result.StartedAt).Milliseconds()

	run.Status = result.Status
	run.ConfigsProcessed = result.ConfigsProcessed
	run.SessionsProcessed = result.SessionsProcessed
	run.ReadingsSent = result.ReadingsSent
	run.Errors = result.Errors
	run.CompletedAt = &completedAt
	run.DurationMs = result.DurationMs

	if err := s.CronRuns.Finalize(ctx, run); err != nil {
		nuts.L.Errorf("[Delivery] Failed to finalize cron execution %s: %v", run.RunID, err)
	}
}

// updateTriggerHealth records the aggregate outcome of one tick for
// one user. Success resets the consecutive-failure counter; failure
// increments it and degrades the status.
func (s *Service) updateTriggerHealth(ctx context.Context, userID string, success bool, errMsg string) {
	metrics, err := s.Health.Get(ctx, userID)
	if err != nil {
		if !errors.IsNotFound(err) {
			nuts.L.Warnf("[Delivery] Failed to load health metrics for user %s: %v", userID, err)
			return
		}
		metrics = s.defaultHealthMetrics(userID)
	}

	now := s.Clock.Now()
	metrics.LastCronAttemptAt = &now
	if success {
		metrics.LastCronSuccessAt = &now
		metrics.LastCronError = ""
		metrics.ConsecutiveFailures = 0
		metrics.CronStatus = models.HealthHealthy
	} else {
		metrics.LastCronError = errMsg
		metrics.ConsecutiveFailures++
		if metrics.ConsecutiveFailures >= 3 {
			metrics.CronStatus = models.HealthFailed
		} else {
			metrics.CronStatus = models.HealthDegraded
		}
	}

	if err := s.Health.Upsert(ctx, metrics); err != nil {
		nuts.L.Warnf("[Delivery] Failed to update health metrics for user %s: %v", userID, err)
	}
}

func (s *Service) defaultHealthMetrics(userID string) *models.HealthMetrics {
	return &models.HealthMetrics{
		UserID:                userID,
		CronStatus:            models.HealthUnknown,
		SyncStatus:            models.SyncUnknown,
		AlertsEnabled:         true,
		AlertThresholdMinutes: s.alertThresholdMinutes(),
	}
}
