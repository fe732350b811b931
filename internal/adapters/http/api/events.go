package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	service "github.com/okian/tierlearn/internal/app"
	"github.com/okian/tierlearn/internal/domain/model"
)

// EventDependencies defines the interface for event processing dependencies.
type EventDependencies interface {
	// Submit queues an event and returns its id. A replayed id returns
	// service.ErrDuplicate.
	Submit(ctx context.Context, ev model.TrackEvent) (string, error)
}

// eventRequest mirrors the OpenAPI schema for POST /events.
type eventRequest struct {
	EventID  string  `json:"event_id" validate:"omitempty,max=128"`
	Address  string  `json:"address" validate:"required,eth_addr"`
	Kind     string  `json:"kind" validate:"required,oneof=video_watched course_progress test_completed blog_read blog_shared call_attended"`
	ItemID   string  `json:"item_id" validate:"required,max=256"`
	Seconds  float64 `json:"seconds_watched" validate:"gte=0"`
	Percent  float64 `json:"percent" validate:"gte=0,lte=100"`
	LessonID string  `json:"lesson_id" validate:"max=256"`
	Score    float64 `json:"score" validate:"gte=0"`
	Passed   bool    `json:"passed"`
	Minutes  float64 `json:"minutes" validate:"gte=0"`
	Platform string  `json:"platform" validate:"required_if=Kind blog_shared,max=64"`
	TS       string  `json:"ts" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (e *eventRequest) event() model.TrackEvent {
	ev := model.TrackEvent{
		EventID:  e.EventID,
		UserID:   e.Address,
		Kind:     model.Kind(e.Kind),
		ItemID:   e.ItemID,
		Seconds:  e.Seconds,
		Percent:  e.Percent,
		LessonID: e.LessonID,
		Score:    e.Score,
		Passed:   e.Passed,
		Minutes:  e.Minutes,
		Platform: e.Platform,
	}
	if e.TS != "" {
		ev.TS, _ = time.Parse(time.RFC3339, e.TS)
	}
	return ev
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps     EventDependencies
	validate *validator.Validate
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies, v *validator.Validate) *EventsHandler {
	return &EventsHandler{deps: deps, validate: v}
}

// HandlePostEvent handles POST /events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.Join(ErrBadRequest, err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.Join(ErrBadRequest, err))
		return
	}

	id, err := h.deps.Submit(r.Context(), req.event())
	switch {
	case errors.Is(err, service.ErrDuplicate):
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: id, Duplicate: true})
	case err != nil:
		writeServiceError(w, err)
	default:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: id})
	}
}
