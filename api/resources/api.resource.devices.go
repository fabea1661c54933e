// FilePath: api/resources/api.resource.devices.go
package resources

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/itsatony/struccy"
	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/api/middleware"
	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/models"
	"github.com/verdantio/aquahub/internal/streamer"
)

// DeviceHandlers encapsulates the device-related HTTP handlers
type DeviceHandlers struct {
	streamer *streamer.Service
}

// @Summary Get a device
// @Description Get a registered device; the API key is only visible to the owner and system roles
// @Tags devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} models.Device
// @Failure 404 {object} errors.APIError
// @Router /devices/{id} [get]
// @Security BearerAuth
func (h *DeviceHandlers) GetDevice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	requestID := nuts.NID("req", 12)

	user := middleware.UserFromContext(r.Context())
	if user == nil {
		respondWithError(w, errors.NewAuthError("no user context found", nil).WithRequestID(requestID))
		return
	}

	device, err := h.streamer.Devices.Get(r.Context(), id)
	if err != nil {
		respondWithError(w, errors.NewNotFoundError("device not found", err).WithRequestID(requestID))
		return
	}

	filtered, err := filterDeviceFields(device, user)
	if err != nil {
		respondWithError(w, errors.NewInternalError("failed to filter device fields", err).WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, filtered)
}

// filterDeviceFields strips fields the caller's roles may not read.
// The owner role is injected when the device belongs to the caller.
func filterDeviceFields(device *models.Device, user *middleware.UserContext) (*models.Device, error) {
	roles := user.Roles
	if device.UserID == user.ID {
		roles = append(roles, "owner")
	}

	filteredMap, err := struccy.StructToMapFieldsWithReadXS(device, roles)
	if err != nil {
		return nil, err
	}
	filtered := &models.Device{}
	if _, err := struccy.MergeMapStringFieldsToStruct(filtered, filteredMap, roles); err != nil {
		return nil, err
	}
	return filtered, nil
}

type connectivityResult struct {
	DeviceID  string `json:"device_id"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// @Summary Test device connectivity
// @Description Verify the ingestion boundary accepts the device's credentials
// @Tags devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} connectivityResult
// @Failure 403 {object} errors.APIError
// @Failure 404 {object} errors.APIError
// @Router /devices/{id}/test [post]
// @Security BearerAuth
func (h *DeviceHandlers) TestDevice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	requestID := nuts.NID("req", 12)

	user := middleware.UserFromContext(r.Context())
	if user == nil {
		respondWithError(w, errors.NewAuthError("no user context found", nil).WithRequestID(requestID))
		return
	}

	device, err := h.streamer.Devices.Get(r.Context(), id)
	if err != nil {
		respondWithError(w, errors.NewNotFoundError("device not found", err).WithRequestID(requestID))
		return
	}
	if device.UserID != user.ID && !hasAnyRole(user.Roles, "system", "superadmin") {
		respondWithError(w, errors.NewAuthorizationError("not the device owner", nil).WithRequestID(requestID))
		return
	}

	result := connectivityResult{DeviceID: device.ID, Reachable: true}
	if err := h.streamer.Ingest.TestConnectivity(r.Context(), device); err != nil {
		result.Reachable = false
		result.Error = err.Error()
	}

	respondWithJSON(w, http.StatusOK, result)
}

func hasAnyRole(roles []string, wanted ...string) bool {
	for _, role := range roles {
		for _, w := range wanted {
			if role == w {
				return true
			}
		}
	}
	return false
}
