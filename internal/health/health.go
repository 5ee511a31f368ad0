package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type Status struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message,omitempty"`
	Database bool   `json:"database,omitempty"`
}

// Pinger is the slice of pgxpool.Pool the health check needs; taking the
// interface keeps the handler testable without a live database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPHandler returns an HTTP handler that reports the health status of the service
func HTTPHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Status{OK: true, Message: "ok", Database: true}

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				st.OK = false
				st.Message = "db ping failed"
				st.Database = false
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}
