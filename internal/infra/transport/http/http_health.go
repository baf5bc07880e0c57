package http

import (
	"net/http"
	"time"
)

// HealthStatus is the payload of the health endpoint.
type HealthStatus struct {
	Uptime    float64   `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthHandler reports the process uptime in seconds since started.
func HealthHandler(started time.Time, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		current := now()

		_ = WriteSuccess(w, http.StatusOK, "ok", HealthStatus{
			Uptime:    current.Sub(started).Seconds(),
			Timestamp: current.UTC(),
		})
	}
}
