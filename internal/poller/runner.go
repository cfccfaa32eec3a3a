// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run polls once immediately, then on every tick, and emits PollResult on out.
// One goroutine per device. No overlap. No retries.
// A slow consumer delays the next poll; ticks missed meanwhile are dropped.
func (p *Poller) Run(ctx context.Context, out chan<- PollResult) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case out <- p.PollOnce(ctx):
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
