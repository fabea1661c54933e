package streamer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/verdantio/aquahub/internal/config"
	"github.com/verdantio/aquahub/internal/database"
	"github.com/verdantio/aquahub/internal/dataset"
	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/models"
	"github.com/verdantio/aquahub/internal/repository"
)

// ---- clock ----

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// ---- repositories ----

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.StreamingSession
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: map[string]*models.StreamingSession{}}
}

func (r *memSessionRepo) BeginTx(ctx context.Context) (database.Transaction, error) {
	return nil, nil
}

func (r *memSessionRepo) Create(ctx context.Context, session *models.StreamingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *memSessionRepo) Get(ctx context.Context, id string) (*models.StreamingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.NewNotFoundError("session not found", nil)
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) Update(ctx context.Context, session *models.StreamingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return errors.NewNotFoundError("session not found", nil)
	}
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *memSessionRepo) AdvanceProgress(ctx context.Context, id string, fromRow, toRow, rowsDelta int, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return errors.NewNotFoundError("session not found", nil)
	}
	if s.LastRowSent != fromRow || s.Status != models.SessionActive {
		return repository.ErrStaleWatermark
	}
	s.LastRowSent = toRow
	s.RowsStreamed += rowsDelta
	s.LastDataSentAt = &sentAt
	s.ConsecutiveErrors = 0
	s.UpdatedAt = sentAt
	return nil
}

func (r *memSessionRepo) RecordError(ctx context.Context, id, message string, at time.Time, threshold int) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return 0, false, errors.NewNotFoundError("session not found", nil)
	}
	s.ErrorCount++
	s.ConsecutiveErrors++
	s.LastErrorAt = &at
	s.LastErrorMessage = message
	s.UpdatedAt = at

	forced := false
	if s.ConsecutiveErrors >= threshold && s.Status.IsOpen() {
		s.Status = models.SessionFailed
		s.CompletedAt = &at
		forced = true
	}
	return s.ConsecutiveErrors, forced, nil
}

func (r *memSessionRepo) ListOpenByConfig(ctx context.Context, configID string) ([]*models.StreamingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.StreamingSession{}
	for _, s := range r.sessions {
		if s.ConfigID == configID && s.Status.IsOpen() {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memConfigRepo struct {
	mu      sync.Mutex
	configs map[string]*models.VirtualDeviceConfig
}

func newMemConfigRepo() *memConfigRepo {
	return &memConfigRepo{configs: map[string]*models.VirtualDeviceConfig{}}
}

func (r *memConfigRepo) BeginTx(ctx context.Context) (database.Transaction, error) {
	return nil, nil
}

func (r *memConfigRepo) put(cfg *models.VirtualDeviceConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cfg
	r.configs[cfg.ID] = &cp
}

func (r *memConfigRepo) Get(ctx context.Context, id string) (*models.VirtualDeviceConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[id]
	if !ok {
		return nil, errors.NewNotFoundError("config not found", nil)
	}
	cp := *c
	return &cp, nil
}

func (r *memConfigRepo) GetByUser(ctx context.Context, userID string) (*models.VirtualDeviceConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.configs {
		if c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errors.NewNotFoundError("config not found", nil)
}

func (r *memConfigRepo) ListEnabled(ctx context.Context) ([]*models.VirtualDeviceConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.VirtualDeviceConfig{}
	for _, c := range r.configs {
		if c.Enabled {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memConfigRepo) SetSessionRef(ctx context.Context, configID string, kind models.DeviceKind, sessionID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[configID]
	if !ok {
		return errors.NewNotFoundError("config not found", nil)
	}
	if kind == models.KindFish {
		c.FishSessionID = sessionID
	} else {
		c.PlantSessionID = sessionID
	}
	return nil
}

func (r *memConfigRepo) ClearDeviceRef(ctx context.Context, configID string, kind models.DeviceKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[configID]
	if !ok {
		return errors.NewNotFoundError("config not found", nil)
	}
	if kind == models.KindFish {
		c.FishDeviceID = nil
		c.FishSessionID = nil
	} else {
		c.PlantDeviceID = nil
		c.PlantSessionID = nil
	}
	return nil
}

type memDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]*models.Device
}

func newMemDeviceRepo() *memDeviceRepo {
	return &memDeviceRepo{devices: map[string]*models.Device{}}
}

func (r *memDeviceRepo) put(d *models.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.devices[d.ID] = &cp
}

func (r *memDeviceRepo) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, id)
}

func (r *memDeviceRepo) Get(ctx context.Context, id string) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, errors.NewNotFoundError("device not found", nil)
	}
	cp := *d
	return &cp, nil
}

func (r *memDeviceRepo) Exists(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.devices[id]
	return ok, nil
}

type memReadingRepo struct {
	mu      sync.Mutex
	deleted []string
}

func (r *memReadingRepo) DeleteByDevice(ctx context.Context, deviceID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, deviceID)
	return 1, nil
}

type memEventRepo struct {
	mu     sync.Mutex
	events []*models.StreamingEvent
	nextID int
}

func (r *memEventRepo) Append(ctx context.Context, event *models.StreamingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *event
	cp.ID = fmt.Sprintf("evt_%04d", r.nextID)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.events = append(r.events, &cp)
	return nil
}

func (r *memEventRepo) List(ctx context.Context, sessionID string, filter models.EventFilter) (int64, []*models.StreamingEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := []*models.StreamingEvent{}
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if e.SessionID != sessionID {
			continue
		}
		if len(filter.Kinds) > 0 && !containsKind(filter.Kinds, e.Kind) {
			continue
		}
		if filter.From != nil && e.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.CreatedAt.After(*filter.To) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}

	total := int64(len(matched))
	offset := filter.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return total, matched, nil
}

func (r *memEventRepo) CountByKind(ctx context.Context, sessionID string) (map[models.EventKind]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[models.EventKind]int64{}
	for _, e := range r.events {
		if e.SessionID == sessionID {
			counts[e.Kind]++
		}
	}
	return counts, nil
}

func (r *memEventRepo) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	var deleted int64
	for _, e := range r.events {
		if e.SessionID == sessionID {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return deleted, nil
}

func (r *memEventRepo) kinds(sessionID string) []models.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.EventKind{}
	for _, e := range r.events {
		if e.SessionID == sessionID {
			out = append(out, e.Kind)
		}
	}
	return out
}

func containsKind(kinds []models.EventKind, kind models.EventKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type memCronRunRepo struct {
	mu   sync.Mutex
	runs []*models.CronExecution
}

func (r *memCronRunRepo) Create(ctx context.Context, run *models.CronExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs = append(r.runs, &cp)
	return nil
}

func (r *memCronRunRepo) Finalize(ctx context.Context, run *models.CronExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.runs {
		if existing.RunID == run.RunID && existing.Status == models.CronRunStarted {
			cp := *run
			*existing = cp
			return nil
		}
	}
	return errors.NewNotFoundError("cron run not found", nil)
}

func (r *memCronRunRepo) ListRecent(ctx context.Context, limit int) ([]*models.CronExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.CronExecution{}
	for i := len(r.runs) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *r.runs[i]
		out = append(out, &cp)
	}
	return out, nil
}

type memHealthRepo struct {
	mu      sync.Mutex
	metrics map[string]*models.HealthMetrics
}

func newMemHealthRepo() *memHealthRepo {
	return &memHealthRepo{metrics: map[string]*models.HealthMetrics{}}
}

func (r *memHealthRepo) Get(ctx context.Context, userID string) (*models.HealthMetrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.metrics[userID]
	if !ok {
		return nil, errors.NewNotFoundError("health metrics not found", nil)
	}
	cp := *m
	return &cp, nil
}

func (r *memHealthRepo) Upsert(ctx context.Context, metrics *models.HealthMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *metrics
	r.metrics[metrics.UserID] = &cp
	return nil
}

type memAlertRepo struct {
	mu     sync.Mutex
	alerts []*models.Alert
	nextID int
}

func (r *memAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	if alert.ID == "" {
		alert.ID = fmt.Sprintf("alr_%04d", r.nextID)
	}
	cp := *alert
	r.alerts = append(r.alerts, &cp)
	return nil
}

func (r *memAlertRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Alert{}
	for i := len(r.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if r.alerts[i].UserID == userID {
			cp := *r.alerts[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- locker ----

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}}
}

func (l *memLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}
	return release, true, nil
}

func (l *memLocker) hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = true
}

// ---- ingest ----

type fakeIngest struct {
	mu      sync.Mutex
	batches [][]dataset.Row
	fail    error
}

func (c *fakeIngest) SendReadings(ctx context.Context, device *models.Device, rows []dataset.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	batch := make([]dataset.Row, len(rows))
	copy(batch, rows)
	c.batches = append(c.batches, batch)
	return nil
}

func (c *fakeIngest) TestConnectivity(ctx context.Context, device *models.Device) error {
	return nil
}

func (c *fakeIngest) sentRows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

// ---- environment ----

// The test datasets are three rows per kind at t0, +5h, and +10h.
const testCSVHeaderFish = "created_at,water_temp,ph,dissolved_oxygen,turbidity\n"
const testCSVHeaderPlant = "created_at,soil_moisture,air_temp,humidity,light\n"

func testDatasetFS() fstest.MapFS {
	return fstest.MapFS{
		"fish_training.csv": &fstest.MapFile{Data: []byte(testCSVHeaderFish +
			"2025-03-01 0:00,23.4,6.9,6.2,3.8\n" +
			"2025-03-01 5:00,24.1,7.0,6.5,4.1\n" +
			"2025-03-01 10:00,24.8,7.1,6.7,4.4\n",
		)},
		"plant_training.csv": &fstest.MapFile{Data: []byte(testCSVHeaderPlant +
			"2025-03-01 0:00,55.1,18.2,49.0,0\n" +
			"2025-03-01 5:00,55.2,18.3,49.1,80\n" +
			"2025-03-01 10:00,55.3,18.4,49.2,120\n",
		)},
	}
}

type testEnv struct {
	svc      *Service
	clock    *fakeClock
	sessions *memSessionRepo
	configs  *memConfigRepo
	devices  *memDeviceRepo
	readings *memReadingRepo
	events   *memEventRepo
	cronRuns *memCronRunRepo
	health   *memHealthRepo
	alerts   *memAlertRepo
	locks    *memLocker
	ingest   *fakeIngest
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:    &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)},
		sessions: newMemSessionRepo(),
		configs:  newMemConfigRepo(),
		devices:  newMemDeviceRepo(),
		readings: &memReadingRepo{},
		events:   &memEventRepo{},
		cronRuns: &memCronRunRepo{},
		health:   newMemHealthRepo(),
		alerts:   &memAlertRepo{},
		locks:    newMemLocker(),
		ingest:   &fakeIngest{},
	}

	env.svc = New(
		env.sessions, env.configs, env.devices, env.readings,
		env.events, env.cronRuns, env.health, env.alerts,
		dataset.NewReader(testDatasetFS()), env.ingest, env.locks, env.clock,
		config.StreamingConfig{
			CronSecret:            "secret",
			FailureThreshold:      10,
			AlertThresholdMinutes: 360,
			SessionLockTTL:        4 * time.Minute,
		},
	)
	return env
}

// seedConfig registers a user with fish and plant devices and an
// enabled configuration.
func (e *testEnv) seedConfig(userID string) *models.VirtualDeviceConfig {
	fishDev := &models.Device{ID: "dev_fish_" + userID, UserID: userID, Kind: models.KindFish, MAC: "AA:00", APIKey: "key-f"}
	plantDev := &models.Device{ID: "dev_plant_" + userID, UserID: userID, Kind: models.KindPlant, MAC: "BB:00", APIKey: "key-p"}
	e.devices.put(fishDev)
	e.devices.put(plantDev)

	cfg := &models.VirtualDeviceConfig{
		ID:              "cfg_" + userID,
		UserID:          userID,
		FishDeviceID:    &fishDev.ID,
		PlantDeviceID:   &plantDev.ID,
		Enabled:         true,
		DatasetVariant:  models.VariantTraining,
		SpeedMultiplier: 1,
	}
	e.configs.put(cfg)
	return cfg
}

func (e *testEnv) config(t *testing.T, id string) *models.VirtualDeviceConfig {
	t.Helper()
	cfg, err := e.configs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("config %s not found: %v", id, err)
	}
	return cfg
}

func (e *testEnv) session(t *testing.T, id string) *models.StreamingSession {
	t.Helper()
	s, err := e.sessions.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("session %s not found: %v", id, err)
	}
	return s
}
