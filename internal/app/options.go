package service

import (
	"github.com/anthill-platform/anthill-leaderboard/internal/config"
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = *cfg
		}
	}
}

// WithFriends sets the friend-list capability. Without one every account
// has no friends.
func WithFriends(f Friends) Option {
	return func(s *Service) {
		if f != nil {
			s.friends = f
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
