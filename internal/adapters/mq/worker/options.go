package worker

import (
	"github.com/anthill-platform/anthill-leaderboard/pkg/logger"
)

// Option applies a configuration option to a Worker.
type Option func(*Worker)

// WithName sets the worker name used for logging.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithFailureHook registers fn for events the purger rejected.
func WithFailureHook(fn FailureHook) Option {
	return func(w *Worker) { w.onFailure = fn }
}
