package tracker

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/gosight/gosight/carttracker/internal/config"
)

type options struct {
	origin    string
	cors      bool
	cartPath  string
	selectors []string
	timeout   time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures a Tracker or Reporter.
type Option func(*options)

// WithOrigin sets the page origin. Relative endpoints resolve against it.
func WithOrigin(origin string) Option {
	return func(o *options) { o.origin = origin }
}

// WithCORS sends the page origin on report requests, the way a browser does
// for a cross-origin fetch.
func WithCORS(enabled bool) Option {
	return func(o *options) { o.cors = enabled }
}

func WithCartPath(path string) Option {
	return func(o *options) { o.cartPath = path }
}

func WithSelectors(selectors ...string) Option {
	return func(o *options) { o.selectors = selectors }
}

// WithTimeout bounds each report POST. Zero or a negative value means no
// timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// FromConfig maps the tracker section of a config file onto options.
func FromConfig(cfg config.TrackerConfig) []Option {
	opts := []Option{
		WithCORS(cfg.CORS),
		WithTimeout(cfg.Timeout),
	}
	if cfg.Origin != "" {
		opts = append(opts, WithOrigin(cfg.Origin))
	}
	if cfg.CartPath != "" {
		opts = append(opts, WithCartPath(cfg.CartPath))
	}
	if len(cfg.Selectors) > 0 {
		opts = append(opts, WithSelectors(cfg.Selectors...))
	}
	return opts
}

func newOptions(opts []Option) options {
	o := options{
		cartPath:  config.DefaultCartPath,
		selectors: config.DefaultSelectors,
		now:       time.Now,
		logger:    fallbackLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
