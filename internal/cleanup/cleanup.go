package cleanup

import (
	"context"
	"fmt"

	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/internal/repository"
)

// CleanupService coordinates deletion of a superseded session's data
// when a reset discards it: the session's audit trail and the raw
// readings attributed to its device.
type CleanupService struct {
	events   repository.EventRepository
	readings repository.ReadingRepository
	emitter  *nuts.EventEmitter
}

// New creates a new CleanupService
func New(events repository.EventRepository, readings repository.ReadingRepository) *CleanupService {
	return &CleanupService{
		events:   events,
		readings: readings,
		emitter:  nuts.NewEventEmitter(),
	}
}

// PurgeSessionData removes all event-log rows for a session and all
// raw readings attributed to its device. Only the explicit
// discard-data reset path calls this; the event log is append-only
// everywhere else.
func (s *CleanupService) PurgeSessionData(ctx context.Context, sessionID, deviceID string) error {
	deletedEvents, err := s.events.DeleteBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session events: %w", err)
	}
	s.emitter.Emit("events.purged", sessionID)

	var deletedReadings int64
	if deviceID != "" {
		deletedReadings, err = s.readings.DeleteByDevice(ctx, deviceID)
		if err != nil {
			return fmt.Errorf("failed to delete device readings: %w", err)
		}
		s.emitter.Emit("readings.purged", deviceID)
	}

	nuts.L.Infof("[Cleanup] Purged session %s: %d events, %d readings", sessionID, deletedEvents, deletedReadings)
	s.emitter.Emit("session.purged", sessionID)
	return nil
}

// OnCleanup registers a callback for cleanup events
func (s *CleanupService) OnCleanup(event string, handler func(id string)) {
	s.emitter.On(event, "cleanup_handler", func(args ...interface{}) {
		if len(args) > 0 {
			if id, ok := args[0].(string); ok {
				handler(id)
			}
		}
	})
}
