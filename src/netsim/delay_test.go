package netsim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/forgeapps/localbase/src/config"
)

func TestDelay_ZeroReturnsImmediately(t *testing.T) {
	d := NewDelay(&config.LatencyConfig{})

	start := time.Now()
	d.Wait(context.Background())
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestDelay_WaitsWithinBounds(t *testing.T) {
	d := NewDelay(&config.LatencyConfig{Min: 20 * time.Millisecond, Max: 40 * time.Millisecond})

	start := time.Now()
	d.Wait(context.Background())
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestDelay_CancellationShortensSleep(t *testing.T) {
	d := NewDelay(&config.LatencyConfig{Min: time.Second, Max: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	d.Wait(ctx)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
