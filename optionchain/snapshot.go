// Package optionchain aggregates an options snapshot into term and moneyness summaries.
package optionchain

import (
	"marketlens/types"
	"marketlens/utils"
)

// Snapshot holds the rows observed on the most recent date for a symbol.
type Snapshot struct {
	Date types.Date
	Rows []types.Row
}

// LatestSnapshot keeps only the rows whose observation date (date part of
// observedColumn) equals the latest one present. Rows with no usable observation
// date are discarded. ok is false when no row has one.
func LatestSnapshot(rows []types.Row, observedColumn string) (Snapshot, bool) {
	var (
		latest types.Date
		found  bool
	)
	dates := make([]types.Date, len(rows))
	valid := make([]bool, len(rows))

	for i, row := range rows {
		d, ok := utils.ToDate(row[observedColumn])
		if !ok {
			continue
		}
		dates[i], valid[i] = d, true
		if !found || d.After(latest.Time) {
			latest, found = d, true
		}
	}
	if !found {
		return Snapshot{}, false
	}

	snap := Snapshot{Date: latest, Rows: make([]types.Row, 0, len(rows))}
	for i, row := range rows {
		if valid[i] && dates[i].Equal(latest.Time) {
			snap.Rows = append(snap.Rows, row)
		}
	}
	return snap, true
}
