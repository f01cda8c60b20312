package query

import (
	"context"

	"github.com/forgeapps/localbase/src/models"
)

// Compat is the Convex-flavored table layer used by auth-scoped call sites.
// Unlike the general builder, its mutations intentionally affect only the
// FIRST row matching the criteria, in insertion order — the two behaviors
// are divergent on purpose and must not be unified without checking which
// call sites depend on which.
type Compat struct {
	engine *Engine
}

func (e *Engine) Compat() *Compat {
	return &Compat{engine: e}
}

// First returns a copy of the first row whose fields equal every entry in
// match, or nil when none does.
func (c *Compat) First(table string, match models.Row) models.Row {
	e := c.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if id, row := c.firstLocked(table, match); id != "" {
		return cloneRow(row)
	}
	return nil
}

// UpdateFirst patches the first matching row and returns a copy of it, or
// (nil, false) when nothing matched.
func (c *Compat) UpdateFirst(ctx context.Context, table string, match, patch models.Row) (models.Row, bool) {
	e := c.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	id, row := c.firstLocked(table, match)
	if id == "" {
		return nil, false
	}
	for k, v := range patch {
		row[k] = cloneValue(v)
	}
	row["updated_at"] = nowStamp()
	e.persist(ctx)
	return cloneRow(row), true
}

// DeleteFirst removes the first matching row and returns a copy of it, or
// (nil, false) when nothing matched.
func (c *Compat) DeleteFirst(ctx context.Context, table string, match models.Row) (models.Row, bool) {
	e := c.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	id, row := c.firstLocked(table, match)
	if id == "" {
		return nil, false
	}
	removed := cloneRow(row)
	e.removeLocked(table, id)
	e.persist(ctx)
	return removed, true
}

func (c *Compat) firstLocked(table string, match models.Row) (string, models.Row) {
	e := c.engine
	for _, id := range e.order[table] {
		row, ok := e.tables[table][id]
		if !ok {
			continue
		}
		matched := true
		for k, v := range match {
			if !valuesEqual(row[k], v) {
				matched = false
				break
			}
		}
		if matched {
			return id, row
		}
	}
	return "", nil
}
