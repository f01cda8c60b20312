// Package query is the emulator's table engine: schema-less JSON rows in
// named tables, queried through an incrementally built filter/order/paginate
// pipeline that only evaluates when a terminal method runs.
package query

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/forgeapps/localbase/src/models"
	"github.com/forgeapps/localbase/src/netsim"
)

const databaseDoc = "database"

type Engine struct {
	mu sync.Mutex

	kv     models.DocStore
	delay  *netsim.Delay
	logger zerolog.Logger

	tables map[string]map[string]models.Row
	order  map[string][]string // per-table row ids in insertion order

	failures map[string]error
}

func NewEngine(store models.DocStore, delay *netsim.Delay, logger zerolog.Logger) *Engine {
	e := &Engine{
		kv:       store,
		delay:    delay,
		logger:   logger.With().Str("component", "query").Logger(),
		tables:   make(map[string]map[string]models.Row),
		order:    make(map[string][]string),
		failures: make(map[string]error),
	}
	e.restore(context.Background())
	return e
}

func (e *Engine) restore(ctx context.Context) {
	var doc map[string]map[string]models.Row
	if ok, _ := e.kv.GetJSON(ctx, databaseDoc, &doc); !ok {
		return
	}

	for table, rows := range doc {
		e.tables[table] = rows
		ids := make([]string, 0, len(rows))
		for id := range rows {
			ids = append(ids, id)
		}
		// xid row ids sort by creation time, so a lexical sort restores the
		// original insertion order after a restart.
		sort.Strings(ids)
		e.order[table] = ids
	}
}

// persist writes the whole database document. Callers hold e.mu.
func (e *Engine) persist(ctx context.Context) {
	if err := e.kv.SetJSON(ctx, databaseDoc, e.tables); err != nil {
		e.logger.Warn().Err(err).Msg("failed to persist database")
	}
}

// From starts a lazy query builder against the named table. Nothing touches
// the engine until a terminal method on the builder runs.
func (e *Engine) From(table string) *Builder {
	return &Builder{engine: e, table: table, op: opSelect, limit: -1}
}

// Seed replaces nothing and inserts the given rows directly, generating ids
// where absent. Intended for test setup; no latency is simulated.
func (e *Engine) Seed(ctx context.Context, table string, rows []models.Row) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, row := range rows {
		stored := cloneRow(row)
		id, ok := stored["id"].(string)
		if !ok || id == "" {
			id = newRowID()
			stored["id"] = id
		}
		e.insertLocked(table, id, stored)
	}
	e.persist(ctx)
}

// Snapshot returns a deep copy of the table's rows in insertion order.
func (e *Engine) Snapshot(table string) []models.Row {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows := make([]models.Row, 0, len(e.order[table]))
	for _, id := range e.order[table] {
		if row, ok := e.tables[table][id]; ok {
			rows = append(rows, cloneRow(row))
		}
	}
	return rows
}

// DeleteWhereOwner removes, from every table, rows whose id or user_id field
// equals userID. Part of the user-delete cascade.
func (e *Engine) DeleteWhereOwner(ctx context.Context, userID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for table, rows := range e.tables {
		for id, row := range rows {
			if row["id"] == userID || row["user_id"] == userID {
				e.removeLocked(table, id)
				removed++
			}
		}
	}
	if removed > 0 {
		e.persist(ctx)
	}
	return removed
}

func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables = make(map[string]map[string]models.Row)
	e.order = make(map[string][]string)
	e.failures = make(map[string]error)
}

func (e *Engine) SimulateError(operation string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, operation)
		return
	}
	e.failures[operation] = err
}

func (e *Engine) checkFailure(operation string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures[operation]
}

// insertLocked stores a row and records its insertion position.
func (e *Engine) insertLocked(table, id string, row models.Row) {
	if e.tables[table] == nil {
		e.tables[table] = make(map[string]models.Row)
	}
	if _, exists := e.tables[table][id]; !exists {
		e.order[table] = append(e.order[table], id)
	}
	e.tables[table][id] = row
}

func (e *Engine) removeLocked(table, id string) {
	delete(e.tables[table], id)
	ids := e.order[table]
	for i, existing := range ids {
		if existing == id {
			e.order[table] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// rowsLocked returns the table's live rows in insertion order.
func (e *Engine) rowsLocked(table string) []models.Row {
	rows := make([]models.Row, 0, len(e.order[table]))
	for _, id := range e.order[table] {
		if row, ok := e.tables[table][id]; ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// newRowID generates a table row id: xid encodes a timestamp plus a random
// suffix, so ids sort by creation time.
func newRowID() string {
	return xid.New().String()
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func cloneRow(row models.Row) models.Row {
	if row == nil {
		return nil
	}
	out := make(models.Row, len(row))
	for k, v := range row {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case models.Row:
		return cloneRow(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
