// FilePath: internal/ingest/ingest.go

// Package ingest is the client side of the platform's ingestion
// boundary. The delivery loop forwards batches of dataset rows here;
// any non-success response counts as a delivery failure for the
// session's error tracking.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/internal/config"
	"github.com/verdantio/aquahub/internal/dataset"
	"github.com/verdantio/aquahub/internal/models"
)

// Client forwards readings to the ingestion boundary.
type Client interface {
	SendReadings(ctx context.Context, device *models.Device, rows []dataset.Row) error
	TestConnectivity(ctx context.Context, device *models.Device) error
}

// Reading is one measurement in the ingestion wire format.
type Reading struct {
	Timestamp string             `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

type batchRequest struct {
	MAC      string    `json:"mac"`
	Readings []Reading `json:"readings"`
}

// HTTPClient is the resty-backed implementation. Sends run under a
// short bounded timeout; a timed-out send is a delivery failure, not a
// retry loop.
type HTTPClient struct {
	rc             *resty.Client
	connectTimeout time.Duration
}

func New(cfg config.IngestConfig) *HTTPClient {
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.SendTimeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")

	return &HTTPClient{rc: rc, connectTimeout: cfg.ConnectTimeout}
}

func (c *HTTPClient) SendReadings(ctx context.Context, device *models.Device, rows []dataset.Row) error {
	if len(rows) == 0 {
		return nil
	}

	body := batchRequest{MAC: device.MAC, Readings: make([]Reading, 0, len(rows))}
	for _, row := range rows {
		body.Readings = append(body.Readings, Reading{
			Timestamp: row.Timestamp.UTC().Format(time.RFC3339),
			Values:    row.Values.Fields(),
		})
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeader("X-Device-MAC", device.MAC).
		SetHeader("X-API-Key", device.APIKey).
		SetBody(body).
		Post("/api/v1/ingest")
	if err != nil {
		return fmt.Errorf("ingest request failed for device %s: %w", device.ID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("ingest rejected batch for device %s: %s (%s)",
			device.ID, resp.Status(), resp.String())
	}

	nuts.L.Infof("[Ingest] Forwarded %d readings for device %s", len(rows), device.ID)
	return nil
}

// TestConnectivity verifies the device can authenticate against the
// ingestion boundary; used by the operator-facing connectivity check.
func (c *HTTPClient) TestConnectivity(ctx context.Context, device *models.Device) error {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeader("X-Device-MAC", device.MAC).
		SetHeader("X-API-Key", device.APIKey).
		Get("/api/v1/ingest/ping")
	if err != nil {
		return fmt.Errorf("connectivity test failed for device %s: %w", device.ID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("connectivity test rejected for device %s: %s", device.ID, resp.Status())
	}
	return nil
}
