package healthcheck

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler serves /healthz. The updater counts as healthy while the
// last completed cycle is no older than two poll intervals; a wedged or
// persistently failing update loop therefore flips this endpoint to 503.
func HealthHandler(tracker *Tracker, pollInterval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(w, tracker, tracker.Healthy(time.Now().UTC(), pollInterval))
	}
}

// ReadyHandler serves /readyz, reporting ready once the first update cycle
// has written the datafile.
func ReadyHandler(tracker *Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(w, tracker, tracker.Ready())
	}
}

func respond(w http.ResponseWriter, tracker *Tracker, ok bool) {
	status := http.StatusServiceUnavailable
	if ok {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(tracker.Snapshot())
}
