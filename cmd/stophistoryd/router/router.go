// Package router configures HTTP routes for the stophistoryd API.
//
// Routes configured:
//   - POST /events - Append one arrival/departure event to its day history
//   - GET /history?stop=<id>&at=<RFC3339> - Retrieve a stop's day history
//   - GET /healthz - Health check endpoint backed by a store ping
//   - GET /metrics - Prometheus metrics endpoint
//
// The cache's error taxonomy maps onto status codes: invalid input is 400,
// an unresolved append conflict is 409, an undecodable entry is 500, and an
// unreachable store is 503. An absent history is a 200 with an empty event
// list, never an error.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/transitwatch/stophistory/cmd/stophistoryd/metrics"
	"github.com/transitwatch/stophistory/pkg/httpx"
	"github.com/transitwatch/stophistory/pkg/stophistory"
	"github.com/transitwatch/stophistory/pkg/transit"
)

// AppendRequest is the JSON body of POST /events.
type AppendRequest struct {
	StopID        string     `json:"stopId"`
	Kind          string     `json:"kind"`
	EventTime     time.Time  `json:"eventTime"`
	VehicleID     string     `json:"vehicleId,omitempty"`
	TripID        string     `json:"tripId,omitempty"`
	RouteID       string     `json:"routeId,omitempty"`
	ScheduledTime *time.Time `json:"scheduledTime,omitempty"`
}

// AppendResponse is the JSON body returned by POST /events.
type AppendResponse struct {
	Key  string `json:"key"`
	Stop string `json:"stop"`
	Day  string `json:"day"`
}

// HistoryResponse is the JSON body returned by GET /history.
type HistoryResponse struct {
	Stop   string                     `json:"stop"`
	Day    string                     `json:"day"`
	Events []transit.ArrivalDeparture `json:"events"`
}

// SetupRoutes configures HTTP endpoints for stophistoryd.
func SetupRoutes(cache *stophistory.Cache, healthCheck func() error, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/healthz", httpx.HealthHandlerWithCheck(healthCheck))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/events", handleAppend(cache, m, logger))
	mux.HandleFunc("/history", handleRead(cache, m, logger))

	return httpx.RecoveryMiddleware(logger)(httpx.LoggingMiddleware(logger)(mux))
}

// handleAppend returns the handler for POST /events.
func handleAppend(cache *stophistory.Cache, m *metrics.Metrics, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteErrorMessage(w, http.StatusMethodNotAllowed, "use POST")
			return
		}

		var req AppendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			m.RecordAppend("bad_request")
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "malformed JSON body")
			return
		}

		event := transit.ArrivalDeparture{
			StopID:        req.StopID,
			EventTime:     req.EventTime,
			Kind:          transit.EventKind(req.Kind),
			VehicleID:     req.VehicleID,
			TripID:        req.TripID,
			RouteID:       req.RouteID,
			ScheduledTime: req.ScheduledTime,
		}

		start := time.Now()
		key, err := cache.Append(r.Context(), event)
		m.ObserveRequest("append", time.Since(start).Seconds())

		if err != nil {
			status := statusFor(err)
			m.RecordAppend(errorLabel(err))
			if errors.Is(err, stophistory.ErrConflict) {
				m.RecordConflict()
			}
			if status >= http.StatusInternalServerError {
				logger.Error("append failed", "stop", req.StopID, "error", err)
			}
			httpx.WriteError(w, status, err)
			return
		}

		m.RecordAppend("ok")
		httpx.WriteJSON(w, http.StatusCreated, AppendResponse{
			Key:  key.StoreKey(cache.Prefix()),
			Stop: key.StopID,
			Day:  key.Day.Format("20060102"),
		})
	}
}

// handleRead returns the handler for GET /history?stop=<id>&at=<RFC3339>.
// When at is omitted the current time is used.
func handleRead(cache *stophistory.Cache, m *metrics.Metrics, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stop := r.URL.Query().Get("stop")
		if stop == "" {
			m.RecordRead("bad_request")
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "stop parameter required")
			return
		}

		at := time.Now()
		if s := r.URL.Query().Get("at"); s != "" {
			parsed, err := time.Parse(time.RFC3339, s)
			if err != nil {
				m.RecordRead("bad_request")
				httpx.WriteErrorMessage(w, http.StatusBadRequest, "at must be RFC3339")
				return
			}
			at = parsed
		}

		start := time.Now()
		events, err := cache.Read(r.Context(), stop, at)
		m.ObserveRequest("read", time.Since(start).Seconds())

		if err != nil {
			status := statusFor(err)
			m.RecordRead(errorLabel(err))
			if status >= http.StatusInternalServerError {
				logger.Error("read failed", "stop", stop, "error", err)
			}
			httpx.WriteError(w, status, err)
			return
		}

		if len(events) == 0 {
			m.RecordRead("miss")
		} else {
			m.RecordRead("hit")
		}
		m.ObserveHistoryLength(len(events))

		day := at.In(cache.Location())
		httpx.WriteJSON(w, http.StatusOK, HistoryResponse{
			Stop:   stop,
			Day:    time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, cache.Location()).Format("20060102"),
			Events: events,
		})
	}
}

// PingCheck adapts a store ping into the health handler's check function.
func PingCheck(ping func(context.Context) error, timeout time.Duration) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return ping(ctx)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, stophistory.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, stophistory.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, stophistory.ErrStoreUnreachable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorLabel maps a cache error onto the status label shared by the append
// and read counters, so store outages are distinguishable from decode faults.
func errorLabel(err error) string {
	switch {
	case errors.Is(err, stophistory.ErrInvalidInput):
		return "bad_request"
	case errors.Is(err, stophistory.ErrConflict):
		return "conflict"
	case errors.Is(err, stophistory.ErrStoreUnreachable):
		return "store_unreachable"
	default:
		return "error"
	}
}
