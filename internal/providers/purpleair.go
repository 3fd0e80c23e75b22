package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// PurpleAirPayload mirrors the wire shape of the PurpleAir history endpoint:
// a field-name header plus positional rows. Null cells decode to nil.
type PurpleAirPayload struct {
	Fields []string     `json:"fields"`
	Data   [][]*float64 `json:"data"`
}

// EmptyPurpleAirPayload is the degraded-response sentinel: an empty but valid
// payload served when the upstream fetch fails, so callers can still render
// stored data.
func EmptyPurpleAirPayload() PurpleAirPayload {
	return PurpleAirPayload{Fields: []string{}, Data: [][]*float64{}}
}

// IsEmpty reports whether the payload carries no rows.
func (p PurpleAirPayload) IsEmpty() bool {
	return len(p.Data) == 0
}

// HistoryQuery holds the request parameters for a historical window.
type HistoryQuery struct {
	StartTimestamp int64
	Average        int
	Fields         string
}

// PurpleAirClient fetches averaged historical windows from the PurpleAir API.
type PurpleAirClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewPurpleAirClient builds a client with the given timeout. PurpleAir windows
// can cover hours of averaged rows, so the timeout is long relative to AcuRite.
func NewPurpleAirClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *PurpleAirClient {
	return &PurpleAirClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		breaker: newBreaker("purpleair"),
		logger:  logger,
	}
}

// History fetches the averaged history of one sensor starting at
// q.StartTimestamp (epoch seconds).
func (c *PurpleAirClient) History(ctx context.Context, sensorIndex int, q HistoryQuery) (PurpleAirPayload, error) {
	values := url.Values{}
	values.Set("start_timestamp", strconv.FormatInt(q.StartTimestamp, 10))
	values.Set("average", strconv.Itoa(q.Average))
	values.Set("fields", q.Fields)

	endpoint := fmt.Sprintf("%s/sensors/%d/history?%s", c.baseURL, sensorIndex, values.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return EmptyPurpleAirPayload(), err
	}
	req.Header.Set("X-API-Key", c.apiKey)

	c.logger.Debug("fetching purpleair history", "sensor_index", sensorIndex, "start_timestamp", q.StartTimestamp)

	body, err := doRequest(c.client, c.breaker, req)
	if err != nil {
		return EmptyPurpleAirPayload(), fmt.Errorf("purpleair history: %w", err)
	}
	defer body.Close()

	var payload PurpleAirPayload
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return EmptyPurpleAirPayload(), fmt.Errorf("decode purpleair payload: %w", err)
	}
	return payload, nil
}
