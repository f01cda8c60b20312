package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeapps/localbase/src/config"
	"github.com/forgeapps/localbase/src/models"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	cfg := config.Instant()
	return NewBus(&cfg.Realtime, zerolog.Nop())
}

type payloadRecorder struct {
	mu       sync.Mutex
	payloads []models.TableChangePayload
}

func (r *payloadRecorder) record(p models.TableChangePayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
}

func (r *payloadRecorder) all() []models.TableChangePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TableChangePayload(nil), r.payloads...)
}

func TestBus_ChannelIsSharedByName(t *testing.T) {
	bus := newTestBus(t)
	assert.Same(t, bus.Channel("room"), bus.Channel("room"))
	assert.NotSame(t, bus.Channel("room"), bus.Channel("other"))
}

func TestBus_TriggerDeliversMatchingTableChange(t *testing.T) {
	bus := newTestBus(t)
	rec := &payloadRecorder{}

	bus.Channel("changes").OnTableChange(TableChangeFilter{
		Event: models.EventInsert,
		Table: "todos",
	}, rec.record)

	bus.Trigger("todos", models.EventInsert, models.Row{"id": "x"}, nil)

	payloads := rec.all()
	require.Len(t, payloads, 1, "delivered exactly once")
	assert.Equal(t, models.EventInsert, payloads[0].EventType)
	assert.Equal(t, models.Row{"id": "x"}, payloads[0].New)
	assert.Nil(t, payloads[0].Old)
}

func TestBus_TriggerSkipsOtherTablesAndEvents(t *testing.T) {
	bus := newTestBus(t)
	rec := &payloadRecorder{}

	bus.Channel("changes").OnTableChange(TableChangeFilter{
		Event: models.EventInsert,
		Table: "todos",
	}, rec.record)

	bus.Trigger("other", models.EventInsert, models.Row{"id": "x"}, nil)
	bus.Trigger("todos", models.EventDelete, nil, models.Row{"id": "x"})

	assert.Empty(t, rec.all())
}

func TestBus_WildcardEventMatchesAll(t *testing.T) {
	bus := newTestBus(t)
	rec := &payloadRecorder{}

	bus.Channel("changes").OnTableChange(TableChangeFilter{
		Event: models.EventAll,
		Table: "todos",
	}, rec.record)

	bus.Trigger("todos", models.EventInsert, models.Row{"id": "a"}, nil)
	bus.Trigger("todos", models.EventUpdate, models.Row{"id": "a"}, models.Row{"id": "a"})
	bus.Trigger("todos", models.EventDelete, nil, models.Row{"id": "a"})

	assert.Len(t, rec.all(), 3)
}

func TestBus_ColumnFilter(t *testing.T) {
	bus := newTestBus(t)
	rec := &payloadRecorder{}

	bus.Channel("changes").OnTableChange(TableChangeFilter{
		Event:  models.EventAll,
		Table:  "todos",
		Filter: "user_id=eq.u1",
	}, rec.record)

	bus.Trigger("todos", models.EventInsert, models.Row{"user_id": "u1"}, nil)
	bus.Trigger("todos", models.EventInsert, models.Row{"user_id": "u2"}, nil)
	bus.Trigger("todos", models.EventInsert, nil, nil)

	require.Len(t, rec.all(), 1)
}

func TestBus_ColumnFilterNumericValue(t *testing.T) {
	bus := newTestBus(t)
	rec := &payloadRecorder{}

	bus.Channel("changes").OnTableChange(TableChangeFilter{
		Event:  models.EventAll,
		Table:  "scores",
		Filter: "points=eq.3",
	}, rec.record)

	// Rows decoded from JSON carry numbers as float64.
	bus.Trigger("scores", models.EventInsert, models.Row{"points": float64(3)}, nil)
	assert.Len(t, rec.all(), 1)
}

func TestChannel_UnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus(t)
	rec := &payloadRecorder{}

	ch := bus.Channel("changes").OnTableChange(TableChangeFilter{
		Event: models.EventInsert,
		Table: "todos",
	}, rec.record)

	ch.Unsubscribe()
	ch.Unsubscribe() // double unsubscribe is a no-op

	bus.Trigger("todos", models.EventInsert, models.Row{"id": "x"}, nil)
	assert.Empty(t, rec.all())
}

func TestChannel_SubscribeReportsSubscribed(t *testing.T) {
	bus := newTestBus(t)
	statuses := make(chan string, 1)

	bus.Channel("room").Subscribe(func(status string, err error) {
		assert.NoError(t, err)
		statuses <- status
	})

	select {
	case status := <-statuses:
		assert.Equal(t, StatusSubscribed, status)
	case <-time.After(time.Second):
		t.Fatal("subscribe status never arrived")
	}
}

func TestChannel_SubscribeErrorInjection(t *testing.T) {
	bus := newTestBus(t)
	bus.SimulateError("subscribe", assert.AnError)

	type result struct {
		status string
		err    error
	}
	results := make(chan result, 1)

	bus.Channel("room").Subscribe(func(status string, err error) {
		results <- result{status, err}
	})

	select {
	case r := <-results:
		assert.Equal(t, StatusChannelError, r.status)
		assert.ErrorIs(t, r.err, assert.AnError)
	case <-time.After(time.Second):
		t.Fatal("subscribe status never arrived")
	}
}

func TestChannel_BroadcastIsSynchronousAndScoped(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var got []map[string]any
	bus.Channel("room").OnBroadcast("ping", func(payload map[string]any) {
		mu.Lock()
		got = append(got, payload)
		mu.Unlock()
	})
	bus.Channel("other").OnBroadcast("ping", func(payload map[string]any) {
		t.Error("other channel must not receive")
	})

	bus.Channel("room").Send("ping", map[string]any{"n": 1})
	bus.Channel("room").Send("pong", map[string]any{"n": 2})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1, "delivery is synchronous, same-event only")
	assert.Equal(t, 1, got[0]["n"])
}

func TestChannel_PanickingListenerDoesNotBlockSiblings(t *testing.T) {
	bus := newTestBus(t)
	rec := &payloadRecorder{}

	bus.Channel("changes").
		OnTableChange(TableChangeFilter{Event: models.EventAll, Table: "t"},
			func(models.TableChangePayload) { panic("boom") }).
		OnTableChange(TableChangeFilter{Event: models.EventAll, Table: "t"}, rec.record)

	bus.Trigger("t", models.EventInsert, models.Row{"id": "x"}, nil)
	assert.Len(t, rec.all(), 1)
}

func TestChannel_Presence(t *testing.T) {
	bus := newTestBus(t)
	ch := bus.Channel("room")

	var mu sync.Mutex
	joins, leaves, syncs := 0, 0, 0
	ch.OnPresenceJoin(func(key string, states []models.Row) {
		mu.Lock()
		joins++
		mu.Unlock()
		assert.NotEmpty(t, key)
		assert.NotEmpty(t, states)
	})
	ch.OnPresenceLeave(func(key string, states []models.Row) {
		mu.Lock()
		leaves++
		mu.Unlock()
	})
	ch.OnPresenceSync(func() {
		mu.Lock()
		syncs++
		mu.Unlock()
	})

	ch.Track(models.Row{"status": "online"})

	state := ch.PresenceState()
	require.Len(t, state, 1)
	for _, states := range state {
		require.Len(t, states, 1)
		assert.Equal(t, "online", states[0]["status"])
	}

	ch.Untrack()
	assert.Empty(t, ch.PresenceState())
	ch.Untrack() // no-op without tracked state

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, joins)
	assert.Equal(t, 1, leaves)
	assert.Equal(t, 2, syncs)
}

func TestBus_Reset(t *testing.T) {
	bus := newTestBus(t)
	rec := &payloadRecorder{}

	bus.Channel("changes").OnTableChange(TableChangeFilter{
		Event: models.EventAll,
		Table: "t",
	}, rec.record)

	bus.Reset()
	bus.Trigger("t", models.EventInsert, models.Row{"id": "x"}, nil)
	assert.Empty(t, rec.all())
}
