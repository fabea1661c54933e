// FilePath: api/resources/api.resource.sessions.go
package resources

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/models"
	"github.com/verdantio/aquahub/internal/streamer"
)

// SessionHandlers encapsulates the session-related HTTP handlers
type SessionHandlers struct {
	streamer *streamer.Service
}

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// @Summary Pause a streaming session
// @Description Suspend delivery for an active session; replay timing stops accumulating
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.StreamingSession
// @Failure 404 {object} errors.APIError
// @Failure 409 {object} errors.APIError
// @Router /sessions/{id}/pause [post]
// @Security BearerAuth
func (h *SessionHandlers) PauseSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	requestID := nuts.NID("req", 12)

	session, err := h.streamer.PauseSession(r.Context(), id)
	if err != nil {
		respondServiceError(w, requestID, err, "failed to pause session")
		return
	}

	respondWithJSON(w, http.StatusOK, session)
}

// @Summary Resume a streaming session
// @Description Reactivate a paused session; the elapsed pause is excluded from replay timing
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.StreamingSession
// @Failure 404 {object} errors.APIError
// @Failure 409 {object} errors.APIError
// @Router /sessions/{id}/resume [post]
// @Security BearerAuth
func (h *SessionHandlers) ResumeSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	requestID := nuts.NID("req", 12)

	session, err := h.streamer.ResumeSession(r.Context(), id)
	if err != nil {
		respondServiceError(w, requestID, err, "failed to resume session")
		return
	}

	respondWithJSON(w, http.StatusOK, session)
}

// @Summary Get session progress
// @Description Get replay progress for a session including projected completion
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionProgress
// @Failure 404 {object} errors.APIError
// @Router /sessions/{id}/progress [get]
// @Security BearerAuth
func (h *SessionHandlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	requestID := nuts.NID("req", 12)

	session, err := h.streamer.Sessions.Get(r.Context(), id)
	if err != nil {
		respondWithError(w, errors.NewNotFoundError("session not found", err).WithRequestID(requestID))
		return
	}

	cfg, err := h.streamer.Configs.Get(r.Context(), session.ConfigID)
	if err != nil {
		respondServiceError(w, requestID, err, "failed to load configuration")
		return
	}

	progress, err := h.streamer.CalculateProgress(session, cfg.DatasetVariant, cfg.Multiplier())
	if err != nil {
		respondServiceError(w, requestID, err, "failed to calculate progress")
		return
	}

	respondWithJSON(w, http.StatusOK, progress)
}

// @Summary List session events
// @Description Get a session's audit trail, newest first
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param kind query []string false "Filter by event kind"
// @Param limit query int false "Limit for pagination"
// @Param offset query int false "Offset for pagination"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Success 200 {object} resources.eventList
// @Router /sessions/{id}/events [get]
// @Security BearerAuth
func (h *SessionHandlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	requestID := nuts.NID("req", 12)

	filter, err := decodeEventFilter(r)
	if err != nil {
		respondWithError(w, errors.NewValidationError("invalid event filter", err).WithRequestID(requestID))
		return
	}

	total, events, err := h.streamer.GetEvents(r.Context(), id, filter)
	if err != nil {
		respondServiceError(w, requestID, err, "failed to list events")
		return
	}

	respondWithJSON(w, http.StatusOK, eventList{Total: total, Events: events})
}

// @Summary Get session event counts
// @Description Get a per-kind histogram of a session's events
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} map[string]int64
// @Router /sessions/{id}/events/counts [get]
// @Security BearerAuth
func (h *SessionHandlers) GetEventCounts(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	requestID := nuts.NID("req", 12)

	counts, err := h.streamer.GetEventCounts(r.Context(), id)
	if err != nil {
		respondServiceError(w, requestID, err, "failed to count events")
		return
	}

	respondWithJSON(w, http.StatusOK, counts)
}

type eventList struct {
	Total  int64                    `json:"total"`
	Events []*models.StreamingEvent `json:"events"`
}

func decodeEventFilter(r *http.Request) (models.EventFilter, error) {
	var filter models.EventFilter
	if err := queryDecoder.Decode(&filter, r.URL.Query()); err != nil {
		return filter, err
	}
	for _, kind := range filter.Kinds {
		if !kind.Valid() {
			return filter, errors.NewValidationError("unknown event kind: "+string(kind), nil)
		}
	}

	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.From = &from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.To = &to
	}
	return filter, nil
}

// Helper functions

func getPaginationParams(r *http.Request) (offset, limit int) {
	query := r.URL.Query()
	offset, _ = strconv.Atoi(query.Get("offset"))
	limit, _ = strconv.Atoi(query.Get("limit"))

	if limit <= 0 || limit > 100 {
		limit = 50 // Default limit
	}
	if offset < 0 {
		offset = 0
	}

	return offset, limit
}

func respondWithError(w http.ResponseWriter, err *errors.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
	nuts.L.Errorf("[API] %s", err.Error())
}

// respondServiceError passes typed service errors through with their
// own status code and wraps anything else as an internal error.
func respondServiceError(w http.ResponseWriter, requestID string, err error, fallback string) {
	if apiErr, ok := err.(*errors.APIError); ok {
		respondWithError(w, apiErr.WithRequestID(requestID))
		return
	}
	respondWithError(w, errors.NewInternalError(fallback, err).WithRequestID(requestID))
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
