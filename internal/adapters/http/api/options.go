package api

import "github.com/anthill-platform/anthill-leaderboard/pkg/logger"

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLimits sets the page size used when a request omits limit and the
// largest one it may ask for.
func WithLimits(def, max int) Option {
	return func(s *Server) {
		if def > 0 {
			s.defaultLimit = def
		}
		if max > 0 {
			s.maxLimit = max
		}
	}
}

// WithLogger sets a custom logger for the server.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
