package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// AcuRiteSample is one time point on one channel. RawValues is keyed by unit
// string ("F", "RH", "MPH", "HPA", "IN", or "" for wind direction); values
// arrive as numbers or numeric strings depending on the channel firmware, so
// decoding stays loose and coercion happens in the normalizer.
type AcuRiteSample struct {
	HappenedAt string         `json:"happened_at"`
	RawValues  map[string]any `json:"raw_values"`
}

// AcuRitePayload maps opaque numeric channel IDs to chronologically ordered
// samples. Every channel carries one physical quantity's parallel time series.
type AcuRitePayload map[string][]AcuRiteSample

// EmptyAcuRitePayload is the degraded-response sentinel for AcuRite: the
// provider signals "no data available this cycle" with an empty object.
func EmptyAcuRitePayload() AcuRitePayload {
	return AcuRitePayload{}
}

// AcuRiteClient fetches hourly summary series from the AcuRite data API.
type AcuRiteClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewAcuRiteClient builds a client with a short timeout; AcuRite serves a
// single pre-built day file per request.
func NewAcuRiteClient(baseURL string, timeout time.Duration, logger *slog.Logger) *AcuRiteClient {
	return &AcuRiteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: newBreaker("acurite"),
		logger:  logger,
	}
}

// HourlySummaries fetches one calendar day (YYYY-MM-DD) of 1h summaries for a
// device.
func (c *AcuRiteClient) HourlySummaries(ctx context.Context, deviceID, date string) (AcuRitePayload, error) {
	endpoint := fmt.Sprintf("%s/mar-sensor-readings/%s/1h-summaries/%s.json", c.baseURL, deviceID, date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return EmptyAcuRitePayload(), err
	}

	c.logger.Debug("fetching acurite summaries", "device_id", deviceID, "date", date)

	body, err := doRequest(c.client, c.breaker, req)
	if err != nil {
		return EmptyAcuRitePayload(), fmt.Errorf("acurite summaries: %w", err)
	}
	defer body.Close()

	var payload AcuRitePayload
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return EmptyAcuRitePayload(), fmt.Errorf("decode acurite payload: %w", err)
	}
	return payload, nil
}
