// FilePath: api/resources/resources.go
package resources

import (
	"net/http"

	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/internal/streamer"
)

// Resources holds all HTTP resource handlers
type Resources struct {
	Sessions  *SessionHandlers
	Streaming *StreamingHandlers
	Configs   *ConfigHandlers
	Devices   *DeviceHandlers
}

// NewResources creates a new Resources instance
func NewResources(svc *streamer.Service) *Resources {
	return &Resources{
		Sessions:  &SessionHandlers{streamer: svc},
		Streaming: &StreamingHandlers{streamer: svc},
		Configs:   &ConfigHandlers{streamer: svc},
		Devices:   &DeviceHandlers{streamer: svc},
	}
}

// Health is the public liveness endpoint.
func (r *Resources) Health(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","version":"` + nuts.GetVersion() + `"}`))
}
