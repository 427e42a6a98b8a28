package verification

import (
	"log/slog"
	"net/http"
	"time"
)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes clients built by this package.
type Option func(*options)

// WithHTTPClient replaces the oracle transport. Its Timeout is overridden by
// the configured one.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithClock sets the time source for verified_at and chain timestamps.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "verification")
	return o
}
