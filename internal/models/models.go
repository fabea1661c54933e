// FilePath: internal/models/models.go
package models

import (
	"database/sql/driver"
	"encoding/json"
)

// JSON is a wrapper around map[string]interface{} for database storage
type JSON map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSON) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, &j)
}

// DeviceKind identifies which recorded dataset a virtual device replays.
type DeviceKind string

const (
	KindFish  DeviceKind = "fish"
	KindPlant DeviceKind = "plant"
)

// AllKinds lists every device kind a configuration can stream.
var AllKinds = []DeviceKind{KindFish, KindPlant}

// Valid reports whether k is a known device kind.
func (k DeviceKind) Valid() bool {
	return k == KindFish || k == KindPlant
}

// DatasetVariant selects which recorded dataset a session replays.
type DatasetVariant string

const (
	VariantTraining   DatasetVariant = "training"
	VariantValidation DatasetVariant = "validation"
)
