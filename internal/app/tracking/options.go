package tracking

import "github.com/okian/tierlearn/pkg/logger"

const (
	defaultTier            = 1
	defaultMinContentTotal = 50
)

// Option configures the tracking service.
type Option func(*Service)

// WithDefaultTier sets the tier used when a record is created lazily.
func WithDefaultTier(tier int) Option {
	return func(s *Service) {
		if tier >= 1 {
			s.defaultTier = tier
		}
	}
}

// WithMaxTier sets the highest tier the service accepts.
func WithMaxTier(tier int) Option {
	return func(s *Service) {
		if tier >= 1 {
			s.maxTier = tier
		}
	}
}

// WithMinContentTotal sets the total seeded by InitializeUserAnalytics when no
// content is found. Zero disables seeding.
func WithMinContentTotal(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.minContentTotal = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}
