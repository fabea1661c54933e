// FilePath: internal/streamer/session.go
package streamer

import (
	"context"
	"fmt"

	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/models"
)

// CreateSession starts a brand-new replay for one kind of a
// configuration and repoints the configuration's session reference at
// it. Callers that must not create duplicates go through
// GetOrCreateSession instead.
func (s *Service) CreateSession(ctx context.Context, cfg *models.VirtualDeviceConfig, kind models.DeviceKind, runID string) (*models.StreamingSession, error) {
	if !kind.Valid() {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown device kind %q", kind), nil)
	}

	summary, err := s.Datasets.Load(kind, cfg.DatasetVariant)
	if err != nil {
		return nil, errors.NewInternalError("failed to load dataset", err)
	}

	now := s.Clock.Now()
	session := &models.StreamingSession{
		ID:        nuts.NID("vds", 12),
		ConfigID:  cfg.ID,
		Kind:      kind,
		Status:    models.SessionActive,
		TotalRows: summary.RowCount,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	completion, err := s.expectedCompletion(now, 0, kind, cfg.DatasetVariant, cfg.Multiplier())
	if err == nil {
		session.ExpectedCompletionAt = &completion
	}

	if err := s.Sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	if err := s.Configs.SetSessionRef(ctx, cfg.ID, kind, &session.ID); err != nil {
		return nil, err
	}

	s.logEvent(ctx, session.ID, runID, models.EventSessionStarted, models.JSON{
		"config_id":  cfg.ID,
		"kind":       string(kind),
		"total_rows": summary.RowCount,
		"variant":    string(cfg.DatasetVariant),
	})

	nuts.L.Infof("[Streamer] Started session %s (%s, %d rows) for config %s", session.ID, kind, summary.RowCount, cfg.ID)
	return session, nil
}

// GetOrCreateSession is the idempotent entry point the delivery loop
// uses: an open session is returned as-is; a new one is created only
// when the configuration is enabled and has a device for the kind.
// Returns nil when nothing should stream.
func (s *Service) GetOrCreateSession(ctx context.Context, cfg *models.VirtualDeviceConfig, kind models.DeviceKind, runID string) (*models.StreamingSession, bool, error) {
	if ref := cfg.SessionIDFor(kind); ref != nil {
		session, err := s.Sessions.Get(ctx, *ref)
		if err != nil && !errors.IsNotFound(err) {
			return nil, false, err
		}
		if session != nil && session.Status.IsOpen() {
			return session, false, nil
		}
	}

	if !cfg.Enabled || cfg.DeviceIDFor(kind) == nil {
		return nil, false, nil
	}

	session, err := s.CreateSession(ctx, cfg, kind, runID)
	if err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// GetConfigStatus assembles the aggregate view of a user's setup: the
// configuration row plus, per kind, the referenced device, the current
// session, and its derived progress. Missing devices or sessions leave
// their slot empty rather than failing the whole read.
func (s *Service) GetConfigStatus(ctx context.Context, userID string) (*models.ConfigStatus, error) {
	cfg, err := s.Configs.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &models.ConfigStatus{Config: cfg, Kinds: []models.KindStatus{}}
	for _, kind := range models.AllKinds {
		ks := models.KindStatus{Kind: kind}
		if deviceID := cfg.DeviceIDFor(kind); deviceID != nil {
			if device, derr := s.Devices.Get(ctx, *deviceID); derr == nil {
				ks.Device = device
			}
		}
		if ref := cfg.SessionIDFor(kind); ref != nil {
			if session, serr := s.Sessions.Get(ctx, *ref); serr == nil {
				ks.Session = session
				if progress, perr := s.CalculateProgress(session, cfg.DatasetVariant, cfg.Multiplier()); perr == nil {
					ks.Progress = progress
				}
			}
		}
		status.Kinds = append(status.Kinds, ks)
	}
	return status, nil
}

// PauseSession suspends an active session. Elapsed pause time is not
// folded into totalPausedMs until resume.
func (s *Service) PauseSession(ctx context.Context, id string) (*models.StreamingSession, error) {
	session, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, errors.NewInvalidStateError(
			fmt.Sprintf("cannot pause session in status %q", session.Status), nil)
	}

	now := s.Clock.Now()
	session.Status = models.SessionPaused
	session.PausedAt = &now
	session.UpdatedAt = now

	if err := s.Sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	s.logEvent(ctx, session.ID, "", models.EventSessionPaused, nil)
	nuts.L.Infof("[Streamer] Paused session %s", id)
	return session, nil
}

// ResumeSession folds the open pause into totalPausedMs, recomputes
// the expected completion, and reactivates the session.
func (s *Service) ResumeSession(ctx context.Context, id string) (*models.StreamingSession, error) {
	session, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionPaused {
		return nil, errors.NewInvalidStateError(
			fmt.Sprintf("cannot resume session in status %q", session.Status), nil)
	}

	now := s.Clock.Now()
	if session.PausedAt != nil {
		session.TotalPausedMs += now.Sub(*session.PausedAt).Milliseconds()
	}
	session.PausedAt = nil
	session.Status = models.SessionActive
	session.UpdatedAt = now

	cfg, err := s.Configs.Get(ctx, session.ConfigID)
	if err == nil {
		if completion, cerr := s.expectedCompletion(session.StartedAt, session.TotalPausedMs, session.Kind, cfg.DatasetVariant, cfg.Multiplier()); cerr == nil {
			session.ExpectedCompletionAt = &completion
		}
	}

	if err := s.Sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	s.logEvent(ctx, session.ID, "", models.EventSessionResumed, models.JSON{
		"total_paused_ms": session.TotalPausedMs,
	})
	nuts.L.Infof("[Streamer] Resumed session %s (paused %dms total)", id, session.TotalPausedMs)
	return session, nil
}

// CompleteSession marks a session exhausted. Terminal.
func (s *Service) CompleteSession(ctx context.Context, id, runID string) error {
	session, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		return nil
	}

	now := s.Clock.Now()
	session.Status = models.SessionCompleted
	session.CompletedAt = &now
	session.UpdatedAt = now

	if err := s.Sessions.Update(ctx, session); err != nil {
		return err
	}

	s.logEvent(ctx, session.ID, runID, models.EventSessionCompleted, models.JSON{
		"rows_streamed": session.RowsStreamed,
	})
	nuts.L.Infof("[Streamer] Completed session %s (%d rows streamed)", id, session.RowsStreamed)
	return nil
}

// FailSession forces a session to failed. Terminal; only an explicit
// reset can start streaming again. Sessions already in a terminal
// state are left untouched.
func (s *Service) FailSession(ctx context.Context, id, reason, runID string) error {
	session, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		return nil
	}

	now := s.Clock.Now()
	session.Status = models.SessionFailed
	session.CompletedAt = &now
	session.LastErrorAt = &now
	session.LastErrorMessage = reason
	session.UpdatedAt = now

	if err := s.Sessions.Update(ctx, session); err != nil {
		return err
	}

	s.logEvent(ctx, session.ID, runID, models.EventSessionFailed, models.JSON{
		"reason": reason,
	})
	nuts.L.Warnf("[Streamer] Failed session %s: %s", id, reason)
	return nil
}

// ResetSession supersedes the current session for a kind with a fresh
// one. The old session is never mutated back to life: it is marked
// completed, and with retainData=false its audit trail and the
// device's raw readings are purged.
func (s *Service) ResetSession(ctx context.Context, configID string, kind models.DeviceKind, retainData bool) (*models.StreamingSession, error) {
	cfg, err := s.Configs.Get(ctx, configID)
	if err != nil {
		return nil, err
	}
	if cfg.DeviceIDFor(kind) == nil {
		return nil, errors.NewValidationError(
			fmt.Sprintf("no %s device assigned to config %s", kind, configID), nil)
	}

	if ref := cfg.SessionIDFor(kind); ref != nil {
		old, err := s.Sessions.Get(ctx, *ref)
		if err != nil && !errors.IsNotFound(err) {
			return nil, err
		}
		if old != nil {
			if !retainData {
				deviceID := ""
				if d := cfg.DeviceIDFor(kind); d != nil {
					deviceID = *d
				}
				if err := s.Cleanup.PurgeSessionData(ctx, old.ID, deviceID); err != nil {
					return nil, errors.NewInternalError("failed to purge session data", err)
				}
			}
			if !old.Status.IsTerminal() {
				now := s.Clock.Now()
				old.Status = models.SessionCompleted
				old.CompletedAt = &now
				old.UpdatedAt = now
				if err := s.Sessions.Update(ctx, old); err != nil {
					return nil, err
				}
			}
			s.logEvent(ctx, old.ID, "", models.EventDatasetReset, models.JSON{
				"retain_data": retainData,
			})
		}
	}

	session, err := s.CreateSession(ctx, cfg, kind, "")
	if err != nil {
		return nil, err
	}

	nuts.L.Infof("[Streamer] Reset %s session for config %s -> %s (retainData=%v)", kind, configID, session.ID, retainData)
	return session, nil
}

// UpdateProgress advances the watermark after a successful batch
// delivery. Called once per batch, not per row, to bound write volume.
// A lost compare-and-swap surfaces as a conflict error.
func (s *Service) UpdateProgress(ctx context.Context, session *models.StreamingSession, toRow, rowsDelta int) error {
	if toRow < session.LastRowSent || toRow > session.TotalRows {
		return errors.NewValidationError(
			fmt.Sprintf("watermark %d out of range [%d,%d]", toRow, session.LastRowSent, session.TotalRows), nil)
	}

	now := s.Clock.Now()
	err := s.Sessions.AdvanceProgress(ctx, session.ID, session.LastRowSent, toRow, rowsDelta, now)
	if err != nil {
		return err
	}

	session.LastRowSent = toRow
	session.RowsStreamed += rowsDelta
	session.LastDataSentAt = &now
	session.ConsecutiveErrors = 0
	return nil
}

// RecordError tracks a delivery failure. Once the consecutive count
// reaches the configured threshold the session is forced to failed in
// the same atomic update; the return value lets the caller stop
// working the session for the rest of the tick.
func (s *Service) RecordError(ctx context.Context, session *models.StreamingSession, message, runID string) (bool, error) {
	now := s.Clock.Now()
	consecutive, forcedFail, err := s.Sessions.RecordError(ctx, session.ID, message, now, s.failureThreshold())
	if err != nil {
		return false, err
	}

	session.ErrorCount++
	session.ConsecutiveErrors = consecutive
	session.LastErrorAt = &now
	session.LastErrorMessage = message

	s.logEvent(ctx, session.ID, runID, models.EventErrorOccurred, models.JSON{
		"error":              message,
		"consecutive_errors": consecutive,
	})

	if forcedFail {
		session.Status = models.SessionFailed
		s.logEvent(ctx, session.ID, runID, models.EventSessionFailed, models.JSON{
			"reason": fmt.Sprintf("%d consecutive delivery errors", consecutive),
		})
	}
	return forcedFail, nil
}
