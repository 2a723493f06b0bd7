package handler

import (
	"context"
	"net/http"
	"time"
)

type healthResponse struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	SchemaVersion int64  `json:"schema_version,omitempty"`
}

// healthHandler pings the database and reports the applied schema version.
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Database: "ok"}
		if checker == nil {
			writeJSON(w, http.StatusOK, resp)
			return
		}

		if err := checker.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
		} else if v, err := checker.SchemaVersion(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "schema unavailable"
		} else {
			resp.SchemaVersion = v
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
