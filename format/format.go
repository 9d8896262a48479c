// Package format turns query and transform output into JSON-safe records.
package format

import (
	"math"
	"time"

	"marketlens/types"
	"marketlens/utils"

	"github.com/guregu/null/v6"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Record is one flat, JSON-ready output row
type Record map[string]interface{}

// Records formats every row. The result is never nil so it encodes as [].
func Records(rows []types.Row) []Record {
	out := make([]Record, len(rows))
	for i, row := range rows {
		rec := make(Record, len(row))
		for k, v := range row {
			rec[k] = Value(v)
		}
		out[i] = rec
	}
	return out
}

// Value maps a single column value to something encoding/json renders safely:
// dates become YYYY-MM-DD strings, NaN/Inf and missing markers become nil and
// every numeric width becomes float64 or int64.
func Value(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		if val.IsZero() {
			return nil
		}
		return types.NewDate(val).String()
	case *time.Time:
		if val == nil {
			return nil
		}
		return Value(*val)
	case types.Date:
		if val.IsZero() {
			return nil
		}
		return val.String()
	case *types.Date:
		if val == nil {
			return nil
		}
		return Value(*val)
	case pgtype.Date, pgtype.Timestamp, pgtype.Timestamptz, null.Time:
		d, ok := utils.ToDate(val)
		if !ok {
			return nil
		}
		return d.String()
	case float64:
		return finite(val)
	case float32:
		return finite(float64(val))
	case *float64:
		if val == nil {
			return nil
		}
		return finite(*val)
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return val
	case uint:
		return uint64(val)
	case null.Float, null.Int, pgtype.Numeric, pgtype.Float8, pgtype.Float4, decimal.Decimal:
		f, ok := utils.ToFloat(val)
		if !ok {
			return nil
		}
		return f
	case pgtype.Int8, pgtype.Int4:
		n, ok := utils.ToInt64(val)
		if !ok {
			return nil
		}
		return n
	case null.String, pgtype.Text:
		s, ok := utils.ToString(val)
		if !ok {
			return nil
		}
		return s
	case null.Bool:
		if !val.Valid {
			return nil
		}
		return val.Bool
	case []byte:
		return string(val)
	}
	return v
}

func finite(f float64) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// DropIncomplete coerces columns to numbers and removes every row where one of
// them is non-numeric or where any column at all is nil. Surviving rows carry
// the coerced float64.
func DropIncomplete(rows []types.Row, columns ...string) []types.Row {
	out := make([]types.Row, 0, len(rows))

rowLoop:
	for _, row := range rows {
		for _, v := range row {
			if v == nil {
				continue rowLoop
			}
		}
		clean := row.Clone()
		for _, col := range columns {
			f, ok := utils.ToFloat(row[col])
			if !ok {
				continue rowLoop
			}
			clean[col] = f
		}
		out = append(out, clean)
	}

	return out
}
