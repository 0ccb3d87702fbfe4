// Package client provides an HTTP client for the stophistoryd service, for
// ingestion pipelines and prediction engines running in other processes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/transitwatch/stophistory/pkg/transit"
)

// HistoryClient is an HTTP client for appending events to and reading day
// histories from stophistoryd. It is safe for concurrent use by multiple
// goroutines.
type HistoryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHistoryClient creates a client for the service at baseURL (scheme and
// host, e.g. "http://localhost:8084"). A default timeout of 5 seconds is
// used for HTTP requests.
func NewHistoryClient(baseURL string) *HistoryClient {
	return NewHistoryClientWithTimeout(baseURL, 5*time.Second)
}

// NewHistoryClientWithTimeout creates a client with a custom timeout.
func NewHistoryClientWithTimeout(baseURL string, timeout time.Duration) *HistoryClient {
	return &HistoryClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// appendRequest mirrors the POST /events body.
type appendRequest struct {
	StopID        string     `json:"stopId"`
	Kind          string     `json:"kind"`
	EventTime     time.Time  `json:"eventTime"`
	VehicleID     string     `json:"vehicleId,omitempty"`
	TripID        string     `json:"tripId,omitempty"`
	RouteID       string     `json:"routeId,omitempty"`
	ScheduledTime *time.Time `json:"scheduledTime,omitempty"`
}

// appendResponse mirrors the POST /events response.
type appendResponse struct {
	Key  string `json:"key"`
	Stop string `json:"stop"`
	Day  string `json:"day"`
}

// historyResponse mirrors the GET /history response.
type historyResponse struct {
	Stop   string                     `json:"stop"`
	Day    string                     `json:"day"`
	Events []transit.ArrivalDeparture `json:"events"`
}

// Append sends one event to the service and returns the store key it was
// filed under.
func (c *HistoryClient) Append(ctx context.Context, ev transit.ArrivalDeparture) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", fmt.Errorf("invalid event: %w", err)
	}

	body, err := json.Marshal(appendRequest{
		StopID:        ev.StopID,
		Kind:          string(ev.Kind),
		EventTime:     ev.EventTime,
		VehicleID:     ev.VehicleID,
		TripID:        ev.TripID,
		RouteID:       ev.RouteID,
		ScheduledTime: ev.ScheduledTime,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", c.errorFrom(resp)
	}

	var out appendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Key, nil
}

// History fetches the day history for stopID on the calendar day containing
// at. An empty slice with a nil error means no events have been observed.
func (c *HistoryClient) History(ctx context.Context, stopID string, at time.Time) ([]transit.ArrivalDeparture, error) {
	if stopID == "" {
		return nil, fmt.Errorf("stop id cannot be empty")
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = "/history"
	query := u.Query()
	query.Set("stop", stopID)
	query.Set("at", at.Format(time.RFC3339))
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFrom(resp)
	}

	var out historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Events, nil
}

// errorFrom extracts the service's error message from a non-success response.
func (c *HistoryClient) errorFrom(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("service returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
}
