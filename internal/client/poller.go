package client

import (
	"context"
	"time"

	"github.com/evalstudio/eval-studio/internal/store"
)

const (
	// DefaultPollInterval is the delay between run status fetches.
	DefaultPollInterval = 1500 * time.Millisecond

	// DefaultPollTimeout bounds how long a poll loop runs before giving up.
	DefaultPollTimeout = 10 * time.Minute
)

// Poller polls a run until it reaches a terminal state.
type Poller struct {
	client   *Client
	interval time.Duration
	timeout  time.Duration
}

// PollerConfig configures a Poller. Zero values take the defaults.
type PollerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// NewPoller creates a poller over an existing client.
func NewPoller(c *Client, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPollTimeout
	}
	return &Poller{client: c, interval: cfg.Interval, timeout: cfg.Timeout}
}

// Wait polls the run until it completes or fails, returning the last run
// state observed. The loop stops quietly on timeout or on a fetch error;
// the returned run may still be non-terminal and the caller refreshes
// manually in that case.
func (p *Poller) Wait(ctx context.Context, runID string) (*store.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last *store.Run
	for {
		detail, err := p.client.GetRun(ctx, runID)
		if err != nil {
			return last, nil
		}
		last = detail.Run
		if last.Status.Terminal() {
			return last, nil
		}

		select {
		case <-ctx.Done():
			return last, nil
		case <-ticker.C:
		}
	}
}
