// Package http exposes the operational endpoints of serve mode: liveness,
// readiness and Prometheus metrics. There is no request-driven API; all
// domain work runs on timers.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// RouterConfig holds dependencies for the ops router.
type RouterConfig struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
}

// NewRouter creates the ops HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	health := &healthHandler{pool: cfg.Pool, redisClient: cfg.RedisClient}

	r.Get("/health", health.Liveness)
	r.Get("/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

type healthHandler struct {
	pool        *pgxpool.Pool
	redisClient *redis.Client
}

// Liveness returns 200 if the service is alive.
func (h *healthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness returns 200 if both backing stores answer a ping.
func (h *healthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.pool.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable", "postgres": err.Error(),
		})
		return
	}

	redisState := "disabled"
	if h.redisClient != nil {
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable", "redis": err.Error(),
			})
			return
		}
		redisState = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"postgres": "ok",
		"redis":    redisState,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
