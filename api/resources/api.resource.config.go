// FilePath: api/resources/api.resource.config.go
package resources

import (
	"encoding/json"
	"net/http"

	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/api/middleware"
	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/models"
	"github.com/verdantio/aquahub/internal/streamer"
)

// ConfigHandlers encapsulates the configuration HTTP handlers
type ConfigHandlers struct {
	streamer *streamer.Service
}

// @Summary Get virtual device configuration status
// @Description Get the caller's configuration with per-kind device, session, and progress details
// @Tags config
// @Produce json
// @Success 200 {object} models.ConfigStatus
// @Failure 404 {object} errors.APIError
// @Router /config [get]
// @Security BearerAuth
func (h *ConfigHandlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		respondWithError(w, errors.NewAuthError("no user context found", nil).WithRequestID(requestID))
		return
	}

	status, err := h.streamer.GetConfigStatus(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, requestID, err, "failed to load configuration")
		return
	}

	// credential fields are stripped per the caller's read access
	for i, ks := range status.Kinds {
		if ks.Device == nil {
			continue
		}
		filtered, ferr := filterDeviceFields(ks.Device, user)
		if ferr != nil {
			respondWithError(w, errors.NewInternalError("failed to filter device fields", ferr).WithRequestID(requestID))
			return
		}
		status.Kinds[i].Device = filtered
	}

	respondWithJSON(w, http.StatusOK, status)
}

type resetRequest struct {
	Kind       models.DeviceKind `json:"kind"`
	RetainData bool              `json:"retain_data"`
}

// @Summary Reset a streaming session
// @Description Supersede the current session for one device kind with a fresh replay from row zero
// @Tags config
// @Accept json
// @Produce json
// @Param reset body resetRequest true "Reset parameters"
// @Success 201 {object} models.StreamingSession
// @Failure 400 {object} errors.APIError
// @Failure 404 {object} errors.APIError
// @Router /config/reset [post]
// @Security BearerAuth
func (h *ConfigHandlers) ResetConfig(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		respondWithError(w, errors.NewAuthError("no user context found", nil).WithRequestID(requestID))
		return
	}

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}
	if !req.Kind.Valid() {
		respondWithError(w, errors.NewValidationError("unknown device kind", nil).WithRequestID(requestID))
		return
	}

	cfg, err := h.streamer.Configs.GetByUser(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, requestID, err, "failed to load configuration")
		return
	}

	session, err := h.streamer.ResetSession(r.Context(), cfg.ID, req.Kind, req.RetainData)
	if err != nil {
		respondServiceError(w, requestID, err, "failed to reset session")
		return
	}

	respondWithJSON(w, http.StatusCreated, session)
}
