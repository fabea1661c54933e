// FilePath: internal/dataset/rows.go
package dataset

import (
	"time"

	"github.com/verdantio/aquahub/internal/models"
)

// SensorValues is the kind-tagged payload of one dataset row. Each
// device kind has its own concrete type so kind-specific field access
// is checked at compile time.
type SensorValues interface {
	Kind() models.DeviceKind
	Fields() map[string]float64
}

// FishValues are the recorded aquarium measurements.
type FishValues struct {
	WaterTempC      float64 `json:"water_temp_c"`
	PH              float64 `json:"ph"`
	DissolvedOxygen float64 `json:"dissolved_oxygen"`
	TurbidityNTU    float64 `json:"turbidity_ntu"`
}

func (FishValues) Kind() models.DeviceKind { return models.KindFish }

func (v FishValues) Fields() map[string]float64 {
	return map[string]float64{
		"water_temp_c":     v.WaterTempC,
		"ph":               v.PH,
		"dissolved_oxygen": v.DissolvedOxygen,
		"turbidity_ntu":    v.TurbidityNTU,
	}
}

// PlantValues are the recorded grow-bed measurements.
type PlantValues struct {
	SoilMoisture float64 `json:"soil_moisture"`
	AirTempC     float64 `json:"air_temp_c"`
	Humidity     float64 `json:"humidity"`
	LightLux     float64 `json:"light_lux"`
}

func (PlantValues) Kind() models.DeviceKind { return models.KindPlant }

func (v PlantValues) Fields() map[string]float64 {
	return map[string]float64{
		"soil_moisture": v.SoilMoisture,
		"air_temp_c":    v.AirTempC,
		"humidity":      v.Humidity,
		"light_lux":     v.LightLux,
	}
}

// Row is one timestamped measurement of a recorded dataset. Immutable
// once loaded.
type Row struct {
	Index        int          `json:"index"`
	Timestamp    time.Time    `json:"timestamp"`
	RawTimestamp string       `json:"raw_timestamp"`
	Values       SensorValues `json:"values"`
}

// Summary is the derived metadata of one loaded dataset.
type Summary struct {
	Kind           models.DeviceKind     `json:"kind"`
	Variant        models.DatasetVariant `json:"variant"`
	RowCount       int                   `json:"row_count"`
	FirstTimestamp time.Time             `json:"first_timestamp"`
	LastTimestamp  time.Time             `json:"last_timestamp"`
	Duration       time.Duration         `json:"duration"`
	SkippedRows    int                   `json:"skipped_rows"`
}
