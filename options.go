package canvaslease

import (
	"io"
	"log/slog"
	"time"
)

// options configures session behavior (internal only).
type options struct {
	leaseTTL        time.Duration
	staleAfter      time.Duration
	historyLimit    int
	teardownRetries int
	logger          *slog.Logger
	errorSink       func(message string)
}

// defaultOptions returns sensible defaults.
func defaultOptions() options {
	return options{
		leaseTTL:        10 * time.Second,
		staleAfter:      30 * time.Second,
		historyLimit:    5,
		teardownRetries: 3,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		errorSink:       func(string) {},
	}
}

// Option is a functional option for configuring a Session.
type Option func(*options)

// WithLeaseTTL sets how long a lease survives without an extend.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.leaseTTL = ttl
	}
}

// WithStaleAfter sets the server-side staleness window after which any
// client may treat a locked object as free.
func WithStaleAfter(window time.Duration) Option {
	return func(o *options) {
		o.staleAfter = window
	}
}

// WithHistoryLimit caps the per-user undo and redo stacks.
func WithHistoryLimit(limit int) Option {
	return func(o *options) {
		if limit > 0 {
			o.historyLimit = limit
		}
	}
}

// WithTeardownRetries sets how many times Close retries the best-effort
// remote release of held leases.
func WithTeardownRetries(retries int) Option {
	return func(o *options) {
		if retries > 0 {
			o.teardownRetries = retries
		}
	}
}

// WithLogger sets the logger for the session.
// If the logger is nil, the session will use a no-op logger.
// DEFAULT: A no-op logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
			return
		}

		o.logger = logger
	}
}

// WithErrorSink sets the callback that receives human-readable messages
// whenever undo/redo is blocked or fails.
func WithErrorSink(sink func(message string)) Option {
	return func(o *options) {
		if sink == nil {
			o.errorSink = func(string) {}
			return
		}

		o.errorSink = sink
	}
}
