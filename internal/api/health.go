package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// health is a liveness probe. Always 200 while the process serves requests.
func health(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness reports whether the database is reachable. A nil pool degrades
// to a plain 200 so the endpoint works in database-less test setups.
func readiness(pool *pgxpool.Pool, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, logger)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "not_ready", "database unavailable", logger)
			return
		}

		stats := pool.Stat()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "ready",
			"pool_total":    stats.TotalConns(),
			"pool_idle":     stats.IdleConns(),
			"pool_acquired": stats.AcquiredConns(),
		}, logger)
	}
}
