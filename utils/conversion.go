package utils

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"marketlens/types"

	"github.com/guregu/null/v6"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ToFloat coerces a loosely typed column value to a finite float64.
// ok is false for nil, unparseable strings, invalid pgtype/null values, NaN and ±Inf.
func ToFloat(v interface{}) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int8:
		f = float64(val)
	case int16:
		f = float64(val)
	case int32:
		f = float64(val)
	case int64:
		f = float64(val)
	case uint:
		f = float64(val)
	case uint8:
		f = float64(val)
	case uint16:
		f = float64(val)
	case uint32:
		f = float64(val)
	case uint64:
		f = float64(val)
	case string:
		return parseFloat(val)
	case []byte:
		return parseFloat(string(val))
	case json.Number:
		return parseFloat(val.String())
	case decimal.Decimal:
		f = val.InexactFloat64()
	case null.Float:
		if !val.Valid {
			return 0, false
		}
		f = val.Float64
	case null.Int:
		if !val.Valid {
			return 0, false
		}
		f = float64(val.Int64)
	case pgtype.Numeric:
		if !val.Valid || val.NaN {
			return 0, false
		}
		f8, err := val.Float64Value()
		if err != nil || !f8.Valid {
			return 0, false
		}
		f = f8.Float64
	case pgtype.Float8:
		if !val.Valid {
			return 0, false
		}
		f = val.Float64
	case pgtype.Float4:
		if !val.Valid {
			return 0, false
		}
		f = float64(val.Float32)
	case pgtype.Int8:
		if !val.Valid {
			return 0, false
		}
		f = float64(val.Int64)
	case pgtype.Int4:
		if !val.Valid {
			return 0, false
		}
		f = float64(val.Int32)
	case pgtype.Text:
		if !val.Valid {
			return 0, false
		}
		return parseFloat(val.String)
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToNullFloat is ToFloat wrapped as a nullable value.
func ToNullFloat(v interface{}) null.Float {
	f, ok := ToFloat(v)
	return null.NewFloat(f, ok)
}

// ToInt64 coerces a value to an integer, rounding fractional input the way a
// bigint cast does.
func ToInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	}
	f, ok := ToFloat(v)
	if !ok || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(math.Round(f)), true
}

// ToIntOrZero treats anything non-numeric as 0.
func ToIntOrZero(v interface{}) int64 {
	n, _ := ToInt64(v)
	return n
}

var dateLayouts = []string{
	types.DateLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006/01/02",
}

// ToDate coerces a value to a calendar date.
func ToDate(v interface{}) (types.Date, bool) {
	switch val := v.(type) {
	case nil:
		return types.Date{}, false
	case types.Date:
		return val, !val.IsZero()
	case *types.Date:
		if val == nil {
			return types.Date{}, false
		}
		return *val, !val.IsZero()
	case time.Time:
		if val.IsZero() {
			return types.Date{}, false
		}
		return types.NewDate(val), true
	case null.Time:
		if !val.Valid {
			return types.Date{}, false
		}
		return types.NewDate(val.Time), true
	case pgtype.Date:
		if !val.Valid || val.InfinityModifier != pgtype.Finite {
			return types.Date{}, false
		}
		return types.NewDate(val.Time), true
	case pgtype.Timestamp:
		if !val.Valid || val.InfinityModifier != pgtype.Finite {
			return types.Date{}, false
		}
		return types.NewDate(val.Time), true
	case pgtype.Timestamptz:
		if !val.Valid || val.InfinityModifier != pgtype.Finite {
			return types.Date{}, false
		}
		return types.NewDate(val.Time), true
	case []byte:
		return parseDate(string(val))
	case string:
		return parseDate(val)
	case pgtype.Text:
		if !val.Valid {
			return types.Date{}, false
		}
		return parseDate(val.String)
	}
	return types.Date{}, false
}

func parseDate(s string) (types.Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.Date{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return types.NewDate(t), true
		}
	}
	return types.Date{}, false
}

// ToString renders text-like values; numbers are not converted.
func ToString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case []byte:
		return string(val), true
	case pgtype.Text:
		return val.String, val.Valid
	case null.String:
		return val.String, val.Valid
	case int64:
		return strconv.FormatInt(val, 10), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int:
		return strconv.Itoa(val), true
	}
	return "", false
}
