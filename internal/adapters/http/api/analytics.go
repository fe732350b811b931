package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/okian/tierlearn/internal/domain/analytics"
)

// AnalyticsDependencies defines the interface for analytics reads and writes.
type AnalyticsDependencies interface {
	// Analytics returns the cumulative record when tier is zero and the
	// tier-exact view otherwise.
	Analytics(ctx context.Context, address string, tier int) (*analytics.Record, error)
	Initialize(ctx context.Context, address string, tier int) (*analytics.Record, error)
	Refresh(ctx context.Context, address string, tier int, exact bool) (*analytics.Record, error)
}

// AnalyticsHandler handles per-user analytics requests.
type AnalyticsHandler struct {
	deps     AnalyticsDependencies
	validate *validator.Validate
	maxTier  int
}

// NewAnalyticsHandler creates a new analytics handler accepting tiers up to
// maxTier.
func NewAnalyticsHandler(deps AnalyticsDependencies, v *validator.Validate, maxTier int) *AnalyticsHandler {
	return &AnalyticsHandler{deps: deps, validate: v, maxTier: maxTier}
}

func (h *AnalyticsHandler) address(r *http.Request) (string, error) {
	addr := r.PathValue("address")
	if err := h.validate.Var(addr, "required,eth_addr"); err != nil {
		return "", errors.Join(ErrBadRequest, errors.New("address must be a 0x-prefixed 20 byte hex address"))
	}
	return addr, nil
}

// HandleGetAnalytics handles GET /analytics/{address}[?tier=N] requests.
func (h *AnalyticsHandler) HandleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	addr, err := h.address(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	tier, err := queryTier(r, h.maxTier)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rec, err := h.deps.Analytics(r.Context(), addr, tier)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleInitialize handles POST /analytics/{address}/init?tier=N requests.
func (h *AnalyticsHandler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	addr, err := h.address(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	tier, err := queryTier(r, h.maxTier)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if tier == 0 {
		writeServiceError(w, errors.Join(ErrBadRequest, errors.New("tier is required")))
		return
	}
	rec, err := h.deps.Initialize(r.Context(), addr, tier)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleRefresh handles POST /analytics/{address}/refresh[?tier=N][&exact=true]
// requests. exact requires a tier.
func (h *AnalyticsHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	addr, err := h.address(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	tier, err := queryTier(r, h.maxTier)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	exact := false
	if raw := r.URL.Query().Get("exact"); raw != "" {
		exact, err = strconv.ParseBool(raw)
		if err != nil {
			writeServiceError(w, errors.Join(ErrBadRequest, errors.New("exact must be a boolean")))
			return
		}
	}
	if exact && tier == 0 {
		writeServiceError(w, errors.Join(ErrBadRequest, errors.New("exact requires a tier")))
		return
	}
	rec, err := h.deps.Refresh(r.Context(), addr, tier, exact)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
