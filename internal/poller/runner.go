package poller

import (
	"context"
	"time"
)

// Run invokes RunCycle once per interval until ctx is cancelled.
// Cycles never overlap; ticks that arrive while a cycle is blocked on the
// port are dropped by the ticker.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	var statsC <-chan time.Time
	if p.cfg.StatsInterval > 0 {
		statsTicker := time.NewTicker(p.cfg.StatsInterval)
		defer statsTicker.Stop()
		statsC = statsTicker.C
	}

	p.logger.Info("poll loop started", "interval", p.cfg.Interval)
	defer p.logStats()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunCycle()
		case <-statsC:
			p.logStats()
		}
	}
}
