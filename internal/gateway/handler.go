// Package gateway exposes pooled socket exchanges over HTTP.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sockbench/internal/conn"
	"sockbench/internal/logger"
	"sockbench/internal/metrics"
	"sockbench/internal/pool"
)

const (
	DefaultWarmupCount   = 100
	DefaultWarmupSpacing = 25 * time.Millisecond
	maxWarmupCount       = 10000
)

type Handler struct {
	pool          *pool.Pool
	warmupSpacing time.Duration
	log           *slog.Logger
}

func NewHandler(p *pool.Pool, log *slog.Logger) *Handler {
	return &Handler{
		pool:          p,
		warmupSpacing: DefaultWarmupSpacing,
		log:           logger.Or(log).With("component", "gateway"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/exchange", h.Exchange)
	r.Get("/warmup", h.Warmup)
	r.Get("/healthz", h.Health)
	r.Handle("/metrics", metrics.Handler())
}

// Router builds the full gateway mux.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	h.RegisterRoutes(r)
	return r
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type WarmupResponse struct {
	Requested int    `json:"requested"`
	Connected int    `json:"connected"`
	Elapsed   string `json:"elapsed"`
}

// Exchange answers with the backend's raw response body.
func (h *Handler) Exchange(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("message") {
		writeError(w, http.StatusBadRequest, errors.New("missing message parameter"))
		return
	}
	message := r.URL.Query().Get("message")

	c, err := h.pool.Acquire(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	defer h.pool.Release(c)

	// a client hanging up must not abort the exchange mid-retry
	resp, err := c.Exchange(context.WithoutCancel(r.Context()), message)
	if err != nil {
		h.log.Warn("exchange failed", "request_id", middleware.GetReqID(r.Context()), "conn", c.ID(), "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, conn.ErrEmptyMessage) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(resp))
}

// Warmup pre-connects count pooled handles.
func (h *Handler) Warmup(w http.ResponseWriter, r *http.Request) {
	count := DefaultWarmupCount
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxWarmupCount {
			writeError(w, http.StatusBadRequest, errors.New("count must be an integer in [0, 10000]"))
			return
		}
		count = n
	}

	start := time.Now()
	connected, err := h.pool.Warmup(r.Context(), count, h.warmupSpacing)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	writeJSON(w, http.StatusOK, WarmupResponse{
		Requested: count,
		Connected: connected,
		Elapsed:   time.Since(start).Round(time.Millisecond).String(),
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.Stats())
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, err error) {
	writeJSON(w, statusCode, ErrorResponse{Error: err.Error()})
}
