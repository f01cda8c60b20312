package realtime

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeapps/localbase/src/models"
)

// Subscription status values reported to Subscribe callbacks.
const (
	StatusSubscribed   = "SUBSCRIBED"
	StatusChannelError = "CHANNEL_ERROR"
	StatusClosed       = "CLOSED"
)

// TableChangeFilter scopes a table-change registration. Event "*" matches
// every event type; Filter is an optional "column=eq.value" expression
// matched against the new row.
type TableChangeFilter struct {
	Event  models.TableEvent
	Schema string
	Table  string
	Filter string
}

type TableChangeListener func(models.TableChangePayload)

type BroadcastListener func(payload map[string]any)

type tableBinding struct {
	filter   TableChangeFilter
	listener TableChangeListener
}

type Channel struct {
	bus  *Bus
	name string

	mu          sync.Mutex
	tables      []tableBinding
	broadcast   map[string][]BroadcastListener
	presence    map[string][]models.Row
	presenceKey string
	joinCbs     []func(key string, states []models.Row)
	leaveCbs    []func(key string, states []models.Row)
	syncCbs     []func()
}

// OnTableChange registers a table-change listener. Chainable, so consumers
// can attach several registrations before subscribing.
func (c *Channel) OnTableChange(filter TableChangeFilter, listener TableChangeListener) *Channel {
	c.mu.Lock()
	c.tables = append(c.tables, tableBinding{filter: filter, listener: listener})
	c.mu.Unlock()
	return c
}

// OnBroadcast registers a listener for broadcast messages with the given
// event name on this channel.
func (c *Channel) OnBroadcast(event string, listener BroadcastListener) *Channel {
	c.mu.Lock()
	c.broadcast[event] = append(c.broadcast[event], listener)
	c.mu.Unlock()
	return c
}

func (c *Channel) OnPresenceJoin(cb func(key string, states []models.Row)) *Channel {
	c.mu.Lock()
	c.joinCbs = append(c.joinCbs, cb)
	c.mu.Unlock()
	return c
}

func (c *Channel) OnPresenceLeave(cb func(key string, states []models.Row)) *Channel {
	c.mu.Lock()
	c.leaveCbs = append(c.leaveCbs, cb)
	c.mu.Unlock()
	return c
}

func (c *Channel) OnPresenceSync(cb func()) *Channel {
	c.mu.Lock()
	c.syncCbs = append(c.syncCbs, cb)
	c.mu.Unlock()
	return c
}

// Subscribe asynchronously reports SUBSCRIBED after a short simulated
// handshake. The only failure path is explicit test-side error injection on
// the "subscribe" operation, reported as CHANNEL_ERROR.
func (c *Channel) Subscribe(statusCb func(status string, err error)) *Channel {
	delay := c.bus.cfg.SubscribeDelay
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		if statusCb == nil {
			return
		}
		if err := c.bus.checkFailure("subscribe"); err != nil {
			c.bus.guard("status", func() { statusCb(StatusChannelError, err) })
			return
		}
		c.bus.guard("status", func() { statusCb(StatusSubscribed, nil) })
	}()
	return c
}

// Unsubscribe drops every registration and the channel's presence. Calling
// it again is a no-op.
func (c *Channel) Unsubscribe() {
	c.mu.Lock()
	c.tables = nil
	c.broadcast = make(map[string][]BroadcastListener)
	c.presence = make(map[string][]models.Row)
	c.presenceKey = ""
	c.joinCbs = nil
	c.leaveCbs = nil
	c.syncCbs = nil
	c.mu.Unlock()
}

// Send synchronously delivers a broadcast message to every listener
// registered for the event on this channel. No cross-process delivery is
// simulated.
func (c *Channel) Send(event string, payload map[string]any) {
	c.mu.Lock()
	listeners := append([]BroadcastListener(nil), c.broadcast[event]...)
	c.mu.Unlock()

	for _, l := range listeners {
		listener := l
		c.bus.guard("broadcast", func() { listener(payload) })
	}
}

// Track records the caller's presence state under a generated key and fires
// join and sync listeners.
func (c *Channel) Track(state models.Row) {
	c.mu.Lock()
	if c.presenceKey == "" {
		c.presenceKey = newPresenceKey()
	}
	key := c.presenceKey
	c.presence[key] = append(c.presence[key], state)
	states := append([]models.Row(nil), c.presence[key]...)
	joins := append(([]func(string, []models.Row))(nil), c.joinCbs...)
	syncs := append(([]func())(nil), c.syncCbs...)
	c.mu.Unlock()

	for _, cb := range joins {
		join := cb
		c.bus.guard("presence-join", func() { join(key, states) })
	}
	for _, cb := range syncs {
		s := cb
		c.bus.guard("presence-sync", func() { s() })
	}
}

// Untrack clears the caller's presence and fires leave and sync listeners.
func (c *Channel) Untrack() {
	c.mu.Lock()
	key := c.presenceKey
	if key == "" {
		c.mu.Unlock()
		return
	}
	left := c.presence[key]
	delete(c.presence, key)
	c.presenceKey = ""
	leaves := append(([]func(string, []models.Row))(nil), c.leaveCbs...)
	syncs := append(([]func())(nil), c.syncCbs...)
	c.mu.Unlock()

	for _, cb := range leaves {
		leave := cb
		c.bus.guard("presence-leave", func() { leave(key, left) })
	}
	for _, cb := range syncs {
		s := cb
		c.bus.guard("presence-sync", func() { s() })
	}
}

// PresenceState returns a copy of the full key → states map.
func (c *Channel) PresenceState() map[string][]models.Row {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string][]models.Row, len(c.presence))
	for key, states := range c.presence {
		out[key] = append([]models.Row(nil), states...)
	}
	return out
}

func (c *Channel) deliverTableChange(payload models.TableChangePayload) {
	c.mu.Lock()
	bindings := append([]tableBinding(nil), c.tables...)
	c.mu.Unlock()

	for _, binding := range bindings {
		f := binding.filter
		if f.Table != payload.Table {
			continue
		}
		if f.Event != models.EventAll && f.Event != payload.EventType {
			continue
		}
		if !filterMatches(f.Filter, payload.New) {
			continue
		}
		listener := binding.listener
		c.bus.guard("table-change", func() { listener(payload) })
	}
}

func newPresenceKey() string {
	return "presence_" + uuid.New().String()
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
