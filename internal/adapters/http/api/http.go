// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/okian/tierlearn/internal/adapters/docstore"
	"github.com/okian/tierlearn/internal/adapters/mq/queue"
	service "github.com/okian/tierlearn/internal/app"
	"github.com/okian/tierlearn/internal/app/feed"
	"github.com/okian/tierlearn/internal/app/tracking"
	"github.com/okian/tierlearn/internal/domain/content"
	"github.com/okian/tierlearn/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	AnalyticsDependencies
	ContentDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	eventsHandler    *EventsHandler
	analyticsHandler *AnalyticsHandler
	contentHandler   *ContentHandler
	log              logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	maxTier int
}

// WithMaxTier sets the highest tier accepted in paths and query strings.
func WithMaxTier(tier int) ServerOption {
	return func(c *serverConfig) {
		if tier >= 1 {
			c.maxTier = tier
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	cfg := serverConfig{maxTier: content.DefaultMaxTier}
	for _, opt := range opts {
		opt(&cfg)
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		eventsHandler:    NewEventsHandler(deps, v),
		analyticsHandler: NewAnalyticsHandler(deps, v, cfg.maxTier),
		contentHandler:   NewContentHandler(deps, cfg.maxTier),
		log:              logger.Named("api"),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, RequestIDMiddleware(MetricsMiddleware(h, endpoint), s.log))
	}

	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealth)
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	route("GET /stats", "stats", s.statsHandler.HandleStats)
	route("POST /events", "events", s.eventsHandler.HandlePostEvent)
	route("GET /analytics/{address}", "analytics", s.analyticsHandler.HandleGetAnalytics)
	route("POST /analytics/{address}/init", "analytics_init", s.analyticsHandler.HandleInitialize)
	route("POST /analytics/{address}/refresh", "analytics_refresh", s.analyticsHandler.HandleRefresh)
	route("GET /content/{tier}", "content", s.contentHandler.HandleGetFeed)
	route("GET /courses/{id}/lessons", "lessons", s.contentHandler.HandleGetLessons)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates an upstream error into a status and error code.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracking.ErrNoData):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, tracking.ErrInvalidUser),
		errors.Is(err, tracking.ErrInvalidItem),
		errors.Is(err, tracking.ErrInvalidTier),
		errors.Is(err, tracking.ErrInvalidEvent),
		errors.Is(err, tracking.ErrUnknownEvent),
		errors.Is(err, feed.ErrInvalidTier):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", errors.Join(ErrBackpressure, err))
	case errors.Is(err, service.ErrNotStarted),
		errors.Is(err, queue.ErrClosed),
		errors.Is(err, docstore.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, docstore.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// parseTier parses a tier between 1 and maxTier.
func parseTier(raw string, maxTier int) (int, error) {
	tier, err := strconv.Atoi(raw)
	if err != nil || !content.ValidTier(tier, maxTier) {
		return 0, errors.Join(ErrBadRequest, fmt.Errorf("tier must be an integer between 1 and %d", maxTier))
	}
	return tier, nil
}

// queryTier parses an optional tier query parameter. Absent means zero.
func queryTier(r *http.Request, maxTier int) (int, error) {
	raw := r.URL.Query().Get("tier")
	if raw == "" {
		return 0, nil
	}
	return parseTier(raw, maxTier)
}

// Compile-time check that the application service satisfies the API.
var _ Dependencies = (*service.Service)(nil)
