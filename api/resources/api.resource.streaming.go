// FilePath: api/resources/api.resource.streaming.go
package resources

import (
	"encoding/json"
	"net/http"

	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/api/middleware"
	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/streamer"
)

// StreamingHandlers encapsulates the trigger, sync, and health HTTP
// handlers
type StreamingHandlers struct {
	streamer *streamer.Service
}

type tickRequest struct {
	Source string `json:"source"`
}

// @Summary Run a delivery tick
// @Description Invoked by the external scheduler; forwards all due readings for every enabled configuration
// @Tags streaming
// @Accept json
// @Produce json
// @Param tick body tickRequest false "Trigger source"
// @Success 200 {object} streamer.TickResult
// @Failure 401 {object} errors.APIError
// @Router /cron/tick [post]
func (h *StreamingHandlers) TriggerTick(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var req tickRequest
	if r.Body != nil {
		// body is optional; a bare POST means a generic external trigger
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Source == "" {
		req.Source = "external-cron"
	}

	result, err := h.streamer.RunDeliveryTick(r.Context(), req.Source)
	if err != nil {
		nuts.L.Errorf("[API] Delivery tick failed: %v", err)
		if result != nil {
			respondWithJSON(w, http.StatusInternalServerError, result)
			return
		}
		respondServiceError(w, requestID, err, "delivery tick failed")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// @Summary List recent trigger runs
// @Description Get the most recent cron execution records, newest first
// @Tags streaming
// @Produce json
// @Param limit query int false "Limit for pagination"
// @Success 200 {array} models.CronExecution
// @Router /cron/runs [get]
// @Security BearerAuth
func (h *StreamingHandlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	_, limit := getPaginationParams(r)

	runs, err := h.streamer.CronRuns.ListRecent(r.Context(), limit)
	if err != nil {
		respondServiceError(w, requestID, err, "failed to list trigger runs")
		return
	}

	respondWithJSON(w, http.StatusOK, runs)
}

// @Summary Synchronize streaming state
// @Description Reconcile the caller's configuration, devices, and sessions
// @Tags streaming
// @Produce json
// @Success 200 {object} models.SyncResult
// @Failure 409 {object} errors.APIError
// @Router /sync [post]
// @Security BearerAuth
func (h *StreamingHandlers) Sync(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		respondWithError(w, errors.NewAuthError("no user context found", nil).WithRequestID(requestID))
		return
	}

	result, err := h.streamer.PerformSync(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, requestID, err, "sync failed")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// @Summary Get streaming health
// @Description Get the caller's streaming health snapshot including overdue state
// @Tags streaming
// @Produce json
// @Success 200 {object} models.HealthCheck
// @Router /health-check [get]
// @Security BearerAuth
func (h *StreamingHandlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		respondWithError(w, errors.NewAuthError("no user context found", nil).WithRequestID(requestID))
		return
	}

	check, err := h.streamer.GetHealthCheck(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, requestID, err, "health check failed")
		return
	}

	respondWithJSON(w, http.StatusOK, check)
}

// @Summary List alerts
// @Description Get the caller's raised operational alerts, newest first
// @Tags streaming
// @Produce json
// @Param limit query int false "Limit for pagination"
// @Success 200 {array} models.Alert
// @Router /alerts [get]
// @Security BearerAuth
func (h *StreamingHandlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		respondWithError(w, errors.NewAuthError("no user context found", nil).WithRequestID(requestID))
		return
	}

	_, limit := getPaginationParams(r)
	alerts, err := h.streamer.Alerts.ListByUser(r.Context(), user.ID, limit)
	if err != nil {
		respondServiceError(w, requestID, err, "failed to list alerts")
		return
	}

	respondWithJSON(w, http.StatusOK, alerts)
}
