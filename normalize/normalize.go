// Package normalize rebases multi-symbol price series to a common index.
package normalize

import (
	"sort"

	"marketlens/types"
	"marketlens/utils"

	"github.com/guregu/null/v6"
)

// IndexBase is the value every series starts at after rebasing
const IndexBase = 100.0

// Prices groups rows by groupKey and rebases valueColumn of each group to 100 at
// the group's first valid (non-null, non-zero) value. The coerced value is written
// back into valueColumn and the result into types.ColNormalizedPrice. Groups with
// no valid value get a null index on every row.
//
// Rows keep their order inside a group; groups are emitted in order of first
// appearance. The input slice and its rows are left untouched.
func Prices(rows []types.Row, groupKey, valueColumn string) []types.Row {
	if len(rows) == 0 {
		return []types.Row{}
	}

	order, groups := groupRows(rows, groupKey)

	out := make([]types.Row, 0, len(rows))
	for _, key := range order {
		idx := groups[key]

		values := make([]null.Float, len(idx))
		for i, ri := range idx {
			values[i] = utils.ToNullFloat(rows[ri][valueColumn])
		}

		normalized := Rebase(values)
		for i, ri := range idx {
			row := rows[ri].Clone()
			row[valueColumn] = values[i]
			row[types.ColNormalizedPrice] = normalized[i]
			out = append(out, row)
		}
	}

	return out
}

// Rebase scales a single series so its first valid value becomes 100.
func Rebase(values []null.Float) []null.Float {
	out := make([]null.Float, len(values))

	base, ok := firstValid(values)
	if !ok {
		return out
	}

	for i, v := range values {
		if v.Valid {
			out[i] = null.FloatFrom(IndexBase * (v.Float64 / base))
		}
	}
	return out
}

func firstValid(values []null.Float) (float64, bool) {
	for _, v := range values {
		if v.Valid && v.Float64 != 0 {
			return v.Float64, true
		}
	}
	return 0, false
}

// groupRows returns the distinct group keys in first-seen order and the row
// indexes belonging to each.
func groupRows(rows []types.Row, groupKey string) ([]string, map[string][]int) {
	order := make([]string, 0)
	groups := make(map[string][]int)

	for i, row := range rows {
		key, _ := utils.ToString(row[groupKey])
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	return order, groups
}

// SortByDate stably orders rows by the date in column. Rows whose date cannot be
// parsed keep their relative order after all dated rows.
func SortByDate(rows []types.Row, column string) []types.Row {
	type keyed struct {
		row   types.Row
		date  types.Date
		valid bool
	}

	items := make([]keyed, len(rows))
	for i, row := range rows {
		d, ok := utils.ToDate(row[column])
		items[i] = keyed{row: row, date: d, valid: ok}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.valid != b.valid {
			return a.valid
		}
		if !a.valid {
			return false
		}
		return a.date.Before(b.date.Time)
	})

	out := make([]types.Row, len(items))
	for i, it := range items {
		out[i] = it.row
	}
	return out
}
