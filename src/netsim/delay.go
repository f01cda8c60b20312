// Package netsim simulates the latency of a remote backend so UI code
// exercising loading states behaves realistically against the emulator.
package netsim

import (
	"context"
	"math/rand"
	"time"

	"github.com/forgeapps/localbase/src/config"
)

type Delay struct {
	min time.Duration
	max time.Duration
}

func NewDelay(cfg *config.LatencyConfig) *Delay {
	return &Delay{min: cfg.Min, max: cfg.Max}
}

// Wait sleeps for a uniformly random duration in [min, max]. Cancellation
// only shortens the sleep; it never aborts the operation that follows —
// once a request's delay has started the mutation always completes.
func (d *Delay) Wait(ctx context.Context) {
	dur := d.min
	if d.max > d.min {
		dur += time.Duration(rand.Int63n(int64(d.max - d.min + 1)))
	}
	if dur <= 0 {
		return
	}

	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
