package tracking

import (
	"context"
	"maps"
	"slices"

	"github.com/okian/tierlearn/internal/domain/analytics"
	"github.com/okian/tierlearn/internal/domain/content"
	"github.com/okian/tierlearn/pkg/logger"
	"github.com/okian/tierlearn/pkg/metrics"
)

// TierView presents one user's analytics restricted to content of exactly one
// tier. It is cheap to create and holds no state beyond its parameters.
type TierView struct {
	svc  *Service
	user string
	tier int
}

// TierView returns the tier-exact view of address at tier.
func (s *Service) TierView(address string, tier int) (*TierView, error) {
	user, err := canonicalUser(address)
	if err != nil {
		return nil, err
	}
	if err := s.checkTier(tier); err != nil {
		return nil, err
	}
	return &TierView{svc: s, user: user, tier: tier}, nil
}

// Tier returns the tier the view is restricted to.
func (v *TierView) Tier() int {
	return v.tier
}

// Analytics derives the tier-exact record from the cumulative one. It returns
// ErrNoData when the user has no record and never creates one. The stored
// record is not modified.
func (v *TierView) Analytics(ctx context.Context) (*analytics.Record, error) {
	base, err := v.svc.UserAnalytics(ctx, v.user)
	if err != nil {
		return nil, err
	}

	view := base.Clone()
	view.TierLevel = v.tier
	view.TotalContentAvailable = 0
	view.TotalContentEngaged = 0
	for _, t := range content.All {
		stats := view.Stats(t)
		inTier := v.resolve(ctx, t, slices.Sorted(maps.Keys(stats.Interactions)))
		*stats = sliceStats(t, *stats, inTier)
		stats.Total = v.svc.catalogue.CountByTier(ctx, t, v.tier, content.Exact)

		view.TotalContentAvailable += stats.Total
		view.TotalContentEngaged += stats.Completed
	}
	view.OverallCompletionRate = analytics.CompletionRate(view.TotalContentEngaged, view.TotalContentAvailable)
	return view, nil
}

// Refresh refreshes the cumulative content counts, then derives the view.
func (v *TierView) Refresh(ctx context.Context) (*analytics.Record, error) {
	if _, err := v.svc.RefreshContentCounts(ctx, v.user, 0); err != nil {
		return nil, err
	}
	return v.Analytics(ctx)
}

// resolve returns the ids whose item belongs exactly to the view's tier. Ids
// are looked up in one batch; if the batch fails each id is looked up alone
// and an id whose lookup fails is left out.
func (v *TierView) resolve(ctx context.Context, t content.Type, ids []string) map[string]bool {
	inTier := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return inTier
	}

	items, err := v.svc.catalogue.GetItems(ctx, t, ids)
	if err != nil {
		v.svc.log.Warn(ctx, "batch item lookup failed, resolving items one by one",
			logger.String("user", v.user),
			logger.String("content_type", t.String()),
			logger.Int("items", len(ids)),
			logger.Error(err))
		items = make(map[string]content.Item, len(ids))
		for _, id := range ids {
			item, err := v.svc.catalogue.GetItem(ctx, t, id)
			if err != nil {
				v.svc.log.Warn(ctx, "excluding item from tier view",
					logger.String("user", v.user),
					logger.String("content_type", t.String()),
					logger.String("item_id", id),
					logger.Error(err))
				metrics.RecordTierFilterExcluded(t.String())
				continue
			}
			items[id] = item
		}
	}

	for id, item := range items {
		if item.InTier(t, v.tier, content.Exact) {
			inTier[id] = true
		}
	}
	return inTier
}

// sliceStats recounts stats over the interactions whose id is in keep and
// drops the others from the interaction map. Minutes are summed for videos,
// blogs and calls; courses average progress and tests average score.
func sliceStats(t content.Type, stats analytics.TypeStats, keep map[string]bool) analytics.TypeStats {
	out := stats
	out.Engaged, out.Completed, out.Metric = 0, 0, 0
	out.Interactions = make(map[string]analytics.Interaction, len(keep))

	var sum float64
	for id, in := range stats.Interactions {
		if !keep[id] {
			continue
		}
		out.Interactions[id] = in
		out.Engaged++
		if in.Completed {
			out.Completed++
		}
		switch t {
		case content.Courses:
			sum += in.Progress
		case content.Tests:
			sum += in.Score
		default:
			sum += in.Minutes
		}
	}
	switch {
	case t == content.Courses || t == content.Tests:
		if out.Engaged > 0 {
			out.Metric = sum / float64(out.Engaged)
		}
	default:
		out.Metric = sum
	}
	return out
}
