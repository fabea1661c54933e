// FilePath: internal/dataset/dataset.go

// Package dataset loads the recorded sensor CSV datasets that virtual
// devices replay. Datasets are bundled into the binary; deployments can
// point at an on-disk directory instead. Loads are memoized per
// kind/variant in an explicit cache owned by the Reader so tests can
// force a fresh parse.
package dataset

import (
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"sync"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/internal/models"
)

//go:embed data/*.csv
var bundled embed.FS

// Native timestamp layouts of the recorded datasets: date plus
// hour:minute, no seconds. The hour may lack a leading zero, which
// time.Parse tolerates for the "15" verb; both spellings are listed so
// the intent is visible.
var timestampLayouts = []string{
	"2006-01-02 15:04",
	"2006-1-2 15:04",
	"2006-01-02 15:04:05",
}

type cacheKey struct {
	kind    models.DeviceKind
	variant models.DatasetVariant
}

type series struct {
	summary Summary
	rows    []Row
}

// Reader loads and caches recorded datasets. Safe for concurrent use;
// the cache is read-only after first load.
type Reader struct {
	fsys fs.FS

	mu    sync.RWMutex
	cache map[cacheKey]*series
}

// NewReader creates a Reader over an arbitrary filesystem.
func NewReader(fsys fs.FS) *Reader {
	return &Reader{
		fsys:  fsys,
		cache: make(map[cacheKey]*series),
	}
}

// NewBundledReader creates a Reader over the datasets compiled into the
// binary.
func NewBundledReader() *Reader {
	sub, err := fs.Sub(bundled, "data")
	if err != nil {
		// embed paths are fixed at compile time
		panic(err)
	}
	return NewReader(sub)
}

// NewReaderFromConfig prefers an on-disk dataset directory when one is
// configured and falls back to the bundled datasets.
func NewReaderFromConfig(basePath string) *Reader {
	if basePath == "" {
		return NewBundledReader()
	}
	nuts.L.Infof("[Dataset] Loading datasets from %s", basePath)
	return NewReader(os.DirFS(basePath))
}

// Load parses the dataset for a kind/variant and returns its summary.
// The parsed rows are cached for the lifetime of the Reader.
func (r *Reader) Load(kind models.DeviceKind, variant models.DatasetVariant) (*Summary, error) {
	s, err := r.load(kind, variant)
	if err != nil {
		return nil, err
	}
	summary := s.summary
	return &summary, nil
}

// Row returns the row at index, or false when the index is out of
// range.
func (r *Reader) Row(kind models.DeviceKind, variant models.DatasetVariant, index int) (*Row, bool) {
	s, err := r.load(kind, variant)
	if err != nil || index < 0 || index >= len(s.rows) {
		return nil, false
	}
	row := s.rows[index]
	return &row, true
}

// Range returns rows [start, end). Out-of-range bounds are clamped
// rather than rejected, so callers always get a (possibly empty) slice.
func (r *Reader) Range(kind models.DeviceKind, variant models.DatasetVariant, start, end int) []Row {
	s, err := r.load(kind, variant)
	if err != nil {
		return nil
	}
	if start < 0 {
		start = 0
	}
	if end > len(s.rows) {
		end = len(s.rows)
	}
	if start >= end {
		return []Row{}
	}
	out := make([]Row, end-start)
	copy(out, s.rows[start:end])
	return out
}

// ClearCache discards all memoized datasets. Exists for test isolation.
func (r *Reader) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[cacheKey]*series)
}

func (r *Reader) load(kind models.DeviceKind, variant models.DatasetVariant) (*series, error) {
	key := cacheKey{kind: kind, variant: variant}

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[key]; ok {
		return cached, nil
	}

	s, err := r.parse(kind, variant)
	if err != nil {
		return nil, err
	}
	r.cache[key] = s
	return s, nil
}

func (r *Reader) parse(kind models.DeviceKind, variant models.DatasetVariant) (*series, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown device kind %q", kind)
	}
	if variant == "" {
		variant = models.VariantTraining
	}

	name := fmt.Sprintf("%s_%s.csv", kind, variant)
	f, err := r.fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", name, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	// header
	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("failed to read dataset header %s: %w", name, err)
	}

	s := &series{summary: Summary{Kind: kind, Variant: variant}}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// a single bad historical line must not block the replay
			s.summary.SkippedRows++
			continue
		}

		row, perr := parseRecord(kind, record)
		if perr != nil {
			nuts.L.Warnf("[Dataset] Skipping malformed row in %s: %v", name, perr)
			s.summary.SkippedRows++
			continue
		}

		row.Index = len(s.rows)
		s.rows = append(s.rows, *row)
	}

	s.summary.RowCount = len(s.rows)
	if len(s.rows) > 0 {
		s.summary.FirstTimestamp = s.rows[0].Timestamp
		s.summary.LastTimestamp = s.rows[len(s.rows)-1].Timestamp
		s.summary.Duration = s.summary.LastTimestamp.Sub(s.summary.FirstTimestamp)
	}

	nuts.L.Infof("[Dataset] Loaded %s: %d rows spanning %s (%d skipped)",
		name, s.summary.RowCount, s.summary.Duration, s.summary.SkippedRows)
	return s, nil
}

func parseRecord(kind models.DeviceKind, record []string) (*Row, error) {
	if len(record) < 5 {
		return nil, fmt.Errorf("expected 5 fields, got %d", len(record))
	}

	ts, err := parseNativeTimestamp(record[0])
	if err != nil {
		return nil, err
	}

	nums := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i+1, err)
		}
		nums[i] = v
	}

	var values SensorValues
	switch kind {
	case models.KindFish:
		values = FishValues{
			WaterTempC:      nums[0],
			PH:              nums[1],
			DissolvedOxygen: nums[2],
			TurbidityNTU:    nums[3],
		}
	case models.KindPlant:
		values = PlantValues{
			SoilMoisture: nums[0],
			AirTempC:     nums[1],
			Humidity:     nums[2],
			LightLux:     nums[3],
		}
	default:
		return nil, fmt.Errorf("unknown device kind %q", kind)
	}

	return &Row{Timestamp: ts, RawTimestamp: record[0], Values: values}, nil
}

func parseNativeTimestamp(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, raw)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", raw, lastErr)
}
