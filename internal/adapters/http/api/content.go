package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/tierlearn/internal/app/feed"
	"github.com/okian/tierlearn/internal/domain/content"
)

// ContentDependencies defines the interface for content feed reads.
type ContentDependencies interface {
	Feed(ctx context.Context, tier int) (feed.State, error)
	Lessons(ctx context.Context, courseID string) ([]content.Lesson, error)
}

// ContentHandler serves the tier feed and course lessons.
type ContentHandler struct {
	deps    ContentDependencies
	maxTier int
}

// NewContentHandler creates a new content handler accepting tiers up to
// maxTier.
func NewContentHandler(deps ContentDependencies, maxTier int) *ContentHandler {
	return &ContentHandler{deps: deps, maxTier: maxTier}
}

// HandleGetFeed handles GET /content/{tier} requests. A videos failure is
// reported in the state's error field with a 502 status.
func (h *ContentHandler) HandleGetFeed(w http.ResponseWriter, r *http.Request) {
	tier, err := parseTier(r.PathValue("tier"), h.maxTier)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	state, err := h.deps.Feed(r.Context(), tier)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if state.Error != "" {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, state)
}

// HandleGetLessons handles GET /courses/{id}/lessons requests.
func (h *ContentHandler) HandleGetLessons(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeServiceError(w, errors.Join(ErrBadRequest, errors.New("missing course id")))
		return
	}
	lessons, err := h.deps.Lessons(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lessons)
}
