package query

import (
	"context"
	"errors"

	"github.com/forgeapps/localbase/src/models"
)

var (
	ErrNoRows       = errors.New("No rows found")
	ErrMultipleRows = errors.New("Multiple rows found")
)

type operation int

const (
	opSelect operation = iota
	opInsert
	opUpdate
	opUpsert
	opDelete
)

type ordering struct {
	column    string
	ascending bool
}

// Builder accumulates an operation, filters, ordering and pagination for one
// table. It is lazy: consumers chain calls freely and nothing evaluates
// until Execute, Single or MaybeSingle runs.
type Builder struct {
	engine *Engine
	table  string

	op         operation
	payload    []models.Row
	patch      models.Row
	onConflict string

	filters   []predicate
	orderings []ordering
	limit     int
	rangeFrom int
	rangeTo   int
	hasRange  bool
}

func (b *Builder) Select() *Builder {
	b.op = opSelect
	return b
}

func (b *Builder) Insert(rows ...models.Row) *Builder {
	b.op = opInsert
	b.payload = rows
	return b
}

// Update applies patch to every row matching the attached filters.
func (b *Builder) Update(patch models.Row) *Builder {
	b.op = opUpdate
	b.patch = patch
	return b
}

// Upsert inserts rows, merging into any existing row that shares the
// identity column (id unless OnConflict changed it).
func (b *Builder) Upsert(rows ...models.Row) *Builder {
	b.op = opUpsert
	b.payload = rows
	return b
}

// OnConflict changes the identity column Upsert matches on.
func (b *Builder) OnConflict(column string) *Builder {
	b.onConflict = column
	return b
}

func (b *Builder) Delete() *Builder {
	b.op = opDelete
	return b
}

func (b *Builder) Eq(column string, value any) *Builder {
	return b.addFilter(predicate{op: opEq, column: column, value: value})
}

func (b *Builder) Neq(column string, value any) *Builder {
	return b.addFilter(predicate{op: opNeq, column: column, value: value})
}

func (b *Builder) Gt(column string, value any) *Builder {
	return b.addFilter(predicate{op: opGt, column: column, value: value})
}

func (b *Builder) Gte(column string, value any) *Builder {
	return b.addFilter(predicate{op: opGte, column: column, value: value})
}

func (b *Builder) Lt(column string, value any) *Builder {
	return b.addFilter(predicate{op: opLt, column: column, value: value})
}

func (b *Builder) Lte(column string, value any) *Builder {
	return b.addFilter(predicate{op: opLte, column: column, value: value})
}

// Like matches with % as wildcard, case sensitively.
func (b *Builder) Like(column, pattern string) *Builder {
	return b.addFilter(predicate{op: opLike, column: column, regex: compilePattern(pattern, false)})
}

// Ilike is Like, case insensitively.
func (b *Builder) Ilike(column, pattern string) *Builder {
	return b.addFilter(predicate{op: opIlike, column: column, regex: compilePattern(pattern, true)})
}

func (b *Builder) In(column string, values []any) *Builder {
	return b.addFilter(predicate{op: opIn, column: column, values: values})
}

func (b *Builder) addFilter(p predicate) *Builder {
	b.filters = append(b.filters, p)
	return b
}

// Order appends a sort key. Multiple calls sort by the first key, then the
// next; ties keep relative insertion order.
func (b *Builder) Order(column string, ascending bool) *Builder {
	b.orderings = append(b.orderings, ordering{column: column, ascending: ascending})
	return b
}

func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Range selects the inclusive [from, to] window. When both Range and Limit
// are set, Range wins.
func (b *Builder) Range(from, to int) *Builder {
	b.rangeFrom = from
	b.rangeTo = to
	b.hasRange = true
	return b
}

// Execute runs the accumulated operation and returns the affected rows.
func (b *Builder) Execute(ctx context.Context) ([]models.Row, error) {
	if err := b.engine.checkFailure(b.opName()); err != nil {
		return nil, err
	}
	b.engine.delay.Wait(ctx)

	switch b.op {
	case opInsert:
		return b.runInsert(ctx)
	case opUpdate:
		return b.runUpdate(ctx)
	case opUpsert:
		return b.runUpsert(ctx)
	case opDelete:
		return b.runDelete(ctx)
	default:
		return b.runSelect()
	}
}

// Single expects exactly one row.
func (b *Builder) Single(ctx context.Context) (models.Row, error) {
	rows, err := b.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	if len(rows) > 1 {
		return nil, ErrMultipleRows
	}
	return rows[0], nil
}

// MaybeSingle tolerates zero rows (nil, nil) but still rejects multiple.
func (b *Builder) MaybeSingle(ctx context.Context) (models.Row, error) {
	rows, err := b.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows) > 1 {
		return nil, ErrMultipleRows
	}
	return rows[0], nil
}

func (b *Builder) opName() string {
	switch b.op {
	case opInsert:
		return "insert"
	case opUpdate:
		return "update"
	case opUpsert:
		return "upsert"
	case opDelete:
		return "delete"
	default:
		return "select"
	}
}

func (b *Builder) matchesAll(row models.Row) bool {
	for _, p := range b.filters {
		if !p.matches(row) {
			return false
		}
	}
	return true
}

func (b *Builder) runSelect() ([]models.Row, error) {
	e := b.engine
	e.mu.Lock()
	matched := make([]models.Row, 0)
	for _, row := range e.rowsLocked(b.table) {
		if b.matchesAll(row) {
			matched = append(matched, cloneRow(row))
		}
	}
	e.mu.Unlock()

	b.sortRows(matched)
	return b.paginate(matched), nil
}

func (b *Builder) runInsert(ctx context.Context) ([]models.Row, error) {
	e := b.engine
	e.mu.Lock()
	inserted := make([]models.Row, 0, len(b.payload))
	for _, row := range b.payload {
		stored := cloneRow(row)
		id, ok := stored["id"].(string)
		if !ok || id == "" {
			id = newRowID()
			stored["id"] = id
		}
		stamp := nowStamp()
		if _, ok := stored["created_at"]; !ok {
			stored["created_at"] = stamp
		}
		stored["updated_at"] = stamp
		e.insertLocked(b.table, id, stored)
		inserted = append(inserted, cloneRow(stored))
	}
	e.persist(ctx)
	e.mu.Unlock()
	return inserted, nil
}

func (b *Builder) runUpdate(ctx context.Context) ([]models.Row, error) {
	e := b.engine
	e.mu.Lock()
	updated := make([]models.Row, 0)
	for _, id := range e.order[b.table] {
		row, ok := e.tables[b.table][id]
		if !ok || !b.matchesAll(row) {
			continue
		}
		for k, v := range b.patch {
			row[k] = cloneValue(v)
		}
		row["updated_at"] = nowStamp()
		updated = append(updated, cloneRow(row))
	}
	if len(updated) > 0 {
		e.persist(ctx)
	}
	e.mu.Unlock()
	return updated, nil
}

func (b *Builder) runUpsert(ctx context.Context) ([]models.Row, error) {
	identity := b.onConflict
	if identity == "" {
		identity = "id"
	}

	e := b.engine
	e.mu.Lock()
	affected := make([]models.Row, 0, len(b.payload))
	for _, row := range b.payload {
		stored := cloneRow(row)

		var existing models.Row
		var existingID string
		if key, ok := stored[identity]; ok {
			for _, id := range e.order[b.table] {
				candidate := e.tables[b.table][id]
				if candidate != nil && valuesEqual(candidate[identity], key) {
					existing = candidate
					existingID = id
					break
				}
			}
		}

		if existing != nil {
			for k, v := range stored {
				existing[k] = v
			}
			existing["updated_at"] = nowStamp()
			e.tables[b.table][existingID] = existing
			affected = append(affected, cloneRow(existing))
			continue
		}

		id, ok := stored["id"].(string)
		if !ok || id == "" {
			id = newRowID()
			stored["id"] = id
		}
		stamp := nowStamp()
		if _, ok := stored["created_at"]; !ok {
			stored["created_at"] = stamp
		}
		stored["updated_at"] = stamp
		e.insertLocked(b.table, id, stored)
		affected = append(affected, cloneRow(stored))
	}
	e.persist(ctx)
	e.mu.Unlock()
	return affected, nil
}

func (b *Builder) runDelete(ctx context.Context) ([]models.Row, error) {
	e := b.engine
	e.mu.Lock()
	deleted := make([]models.Row, 0)
	ids := append([]string(nil), e.order[b.table]...)
	for _, id := range ids {
		row, ok := e.tables[b.table][id]
		if !ok || !b.matchesAll(row) {
			continue
		}
		deleted = append(deleted, cloneRow(row))
		e.removeLocked(b.table, id)
	}
	if len(deleted) > 0 {
		e.persist(ctx)
	}
	e.mu.Unlock()
	return deleted, nil
}
