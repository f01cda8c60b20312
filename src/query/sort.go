package query

import (
	"sort"

	"github.com/forgeapps/localbase/src/models"
)

// sortRows applies the builder's order keys with a stable sort, so rows that
// compare equal keep their relative insertion order.
func (b *Builder) sortRows(rows []models.Row) {
	if len(b.orderings) == 0 {
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range b.orderings {
			cmp := orderCompare(rows[i][ord.column], rows[j][ord.column])
			if cmp == 0 {
				continue
			}
			if ord.ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

// orderCompare ranks two field values: nils first, then bools, numbers and
// strings. Cross-type or incomparable pairs rank equal, leaving the stable
// sort to keep their insertion order.
func orderCompare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0
		}
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	}

	if cmp, ok := compareValues(a, b); ok {
		return cmp
	}
	return 0
}

// paginate applies the range window or the limit, range taking precedence.
func (b *Builder) paginate(rows []models.Row) []models.Row {
	if b.hasRange {
		from, to := b.rangeFrom, b.rangeTo
		if from < 0 {
			from = 0
		}
		if from >= len(rows) {
			return []models.Row{}
		}
		if to >= len(rows)-1 {
			return rows[from:]
		}
		return rows[from : to+1]
	}

	if b.limit >= 0 && b.limit < len(rows) {
		return rows[:b.limit]
	}
	return rows
}
