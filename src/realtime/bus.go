// Package realtime emulates the event layer of a hosted backend: table
// change notifications, presence and broadcast, scoped by named channels.
// Delivery is in-process only and — for table changes — never automatic:
// tests decide when "the server" pushes an update by calling Trigger.
package realtime

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/forgeapps/localbase/src/config"
	"github.com/forgeapps/localbase/src/models"
)

type Bus struct {
	mu sync.Mutex

	cfg    *config.RealtimeConfig
	logger zerolog.Logger

	channels map[string]*Channel
	failures map[string]error
}

func NewBus(cfg *config.RealtimeConfig, logger zerolog.Logger) *Bus {
	return &Bus{
		cfg:      cfg,
		logger:   logger.With().Str("component", "realtime").Logger(),
		channels: make(map[string]*Channel),
		failures: make(map[string]error),
	}
}

// Channel returns the channel with the given name, creating it on first
// reference. Repeated calls share one registry.
func (b *Bus) Channel(name string) *Channel {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.channels[name]; ok {
		return ch
	}
	ch := &Channel{
		bus:       b,
		name:      name,
		broadcast: make(map[string][]BroadcastListener),
		presence:  make(map[string][]models.Row),
	}
	b.channels[name] = ch
	return ch
}

// Trigger simulates a server-side push: it delivers a table change to every
// registration across all channels whose table, event and filter match.
func (b *Bus) Trigger(table string, event models.TableEvent, newRow, oldRow models.Row) {
	b.mu.Lock()
	channels := make([]*Channel, 0, len(b.channels))
	for _, ch := range b.channels {
		channels = append(channels, ch)
	}
	b.mu.Unlock()

	payload := models.TableChangePayload{
		EventType: event,
		Table:     table,
		New:       newRow,
		Old:       oldRow,
	}

	for _, ch := range channels {
		ch.deliverTableChange(payload)
	}
}

// Reset drops every channel and its registrations.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = make(map[string]*Channel)
	b.failures = make(map[string]error)
}

func (b *Bus) SimulateError(operation string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, operation)
		return
	}
	b.failures[operation] = err
}

func (b *Bus) checkFailure(operation string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[operation]
}

// guard runs a listener callback, recovering a panic so one faulty
// subscriber cannot prevent delivery to its siblings.
func (b *Bus) guard(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn().Interface("panic", r).Str("listener", kind).Msg("listener panicked")
		}
	}()
	fn()
}

// filterMatches evaluates a "column=eq.value" subscription filter against
// the new row, comparing the rendered value literally.
func filterMatches(filter string, row models.Row) bool {
	if filter == "" {
		return true
	}
	column, expr, ok := strings.Cut(filter, "=")
	if !ok {
		return false
	}
	value, ok := strings.CutPrefix(expr, "eq.")
	if !ok {
		return false
	}
	if row == nil {
		return false
	}
	return stringify(row[column]) == value
}
