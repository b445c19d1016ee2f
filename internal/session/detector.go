package session

import (
	"context"
	"time"

	"github.com/voxline-ai/voxline-core/internal/config"
)

// Detector drives turn-taking: one shared ticker sweeps every live
// session, and a session that has been silent past the threshold with a
// buffered partial gets its utterance committed. The upstream service's
// own end-of-speech events are not trusted for this; the silence
// heuristic is the canonical turn boundary.
type Detector struct {
	registry  *Registry
	interval  time.Duration
	threshold time.Duration
}

func NewDetector(registry *Registry, cfg config.TurnConfig) *Detector {
	return &Detector{
		registry:  registry,
		interval:  time.Duration(cfg.SweepIntervalMS) * time.Millisecond,
		threshold: time.Duration(cfg.SilenceThresholdMS) * time.Millisecond,
	}
}

// Run sweeps until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.registry.Sweep(now, d.threshold)
		}
	}
}
