package ranking

import "github.com/anthill-platform/anthill-leaderboard/pkg/logger"

// Option applies a configuration option to a ranking component.
type Option func(*options)

type options struct {
	log logger.Logger
}

func applyOptions(opts []Option) options {
	o := options{log: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the component logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
