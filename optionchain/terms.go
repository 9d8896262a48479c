package optionchain

import (
	"sort"
	"time"

	"marketlens/types"
	"marketlens/utils"
)

// Term boundaries in calendar days from the processing date, both inclusive.
// Three months is pinned to 91 days.
const (
	ShortTermDays = 14
	NearTermDays  = 91
)

// ClassifyTerm buckets an expiration by its distance from asOf.
func ClassifyTerm(asOf, expiration types.Date) types.Term {
	days := utils.DaysBetween(asOf, expiration)
	switch {
	case days <= ShortTermDays:
		return types.TermShort
	case days <= NearTermDays:
		return types.TermNear
	default:
		return types.TermFar
	}
}

type contractKey struct {
	strike     float64
	optionType types.OptionType
	expiration time.Time
}

// Summarize aggregates the latest snapshot in rows by (strike, option type,
// expiration), summing volume and open interest with non-numeric values counted
// as 0, and splits the result by term relative to asOf.
//
// Rows whose strike, option type or expiration cannot be parsed are dropped.
func Summarize(rows []types.Row, asOf types.Date) types.TermBuckets {
	result := types.TermBuckets{
		ShortTerm: []types.OptionSummary{},
		NearTerm:  []types.OptionSummary{},
		FarTerm:   []types.OptionSummary{},
	}

	snap, ok := LatestSnapshot(rows, types.ColObservedAt)
	if !ok {
		return result
	}
	latest := snap.Date
	result.LatestDate = &latest

	sums := make(map[contractKey]*types.OptionSummary)
	for _, row := range snap.Rows {
		strike, ok := utils.ToFloat(row[types.ColStrike])
		if !ok {
			continue
		}
		raw, _ := utils.ToString(row[types.ColOptionType])
		optionType, ok := types.ParseOptionType(raw)
		if !ok {
			continue
		}
		expiration, ok := utils.ToDate(row[types.ColExpirationDate])
		if !ok {
			continue
		}

		key := contractKey{strike: strike, optionType: optionType, expiration: expiration.Time}
		s, exists := sums[key]
		if !exists {
			s = &types.OptionSummary{
				Strike:         strike,
				OptionType:     optionType,
				ExpirationDate: expiration,
				Term:           ClassifyTerm(asOf, expiration),
			}
			sums[key] = s
		}
		s.TotalVolume += utils.ToIntOrZero(row[types.ColVolume])
		s.TotalOpenInterest += utils.ToIntOrZero(row[types.ColOpenInterest])
	}

	summaries := make([]types.OptionSummary, 0, len(sums))
	for _, s := range sums {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		if a.OptionType != b.OptionType {
			return a.OptionType == types.Call
		}
		return a.ExpirationDate.Before(b.ExpirationDate.Time)
	})

	for _, s := range summaries {
		switch s.Term {
		case types.TermShort:
			result.ShortTerm = append(result.ShortTerm, s)
		case types.TermNear:
			result.NearTerm = append(result.NearTerm, s)
		default:
			result.FarTerm = append(result.FarTerm, s)
		}
	}

	return result
}
