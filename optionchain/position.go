package optionchain

import (
	"math"

	"marketlens/types"
	"marketlens/utils"

	"github.com/shopspring/decimal"
)

const (
	// ContractMultiplier is the number of underlying shares per contract
	ContractMultiplier = 100.0
	// DisplayDivisor turns raw notional into the "billions" display unit
	DisplayDivisor = 100_000_000.0
	// MainBattleBand is the max relative strike distance from spot for the main bucket
	MainBattleBand = 0.10
)

// ClassifyMoneyness puts a strike in the main bucket when it lies within 10% of spot.
func ClassifyMoneyness(strike, spot float64) types.PositionType {
	if spot != 0 && math.Abs(strike-spot)/spot <= MainBattleBand {
		return types.PositionMain
	}
	return types.PositionSupport
}

// ResolveSpot returns the close of the first price row dated on date.
func ResolveSpot(prices []types.Row, date types.Date) (float64, bool) {
	for _, row := range prices {
		d, ok := utils.ToDate(row[types.ColTradeDate])
		if !ok || !d.Equal(date.Time) {
			continue
		}
		spot, ok := utils.ToFloat(row[types.ColClose])
		if !ok || spot == 0 {
			return 0, false
		}
		return spot, true
	}
	return 0, false
}

// PositionValues computes open-interest notional of the latest snapshot in
// options, split by option type and moneyness against the spot close found in
// prices for the snapshot date. Without a matching spot every cell stays 0.
func PositionValues(options, prices []types.Row) types.PositionValue {
	var result types.PositionValue

	snap, ok := LatestSnapshot(options, types.ColObservedAt)
	if !ok {
		return result
	}
	latest := snap.Date
	result.LatestDate = &latest

	spot, ok := ResolveSpot(prices, snap.Date)
	if !ok {
		return result
	}
	result.SpotPrice = &spot

	var main, support types.PositionCell
	for _, row := range snap.Rows {
		raw, _ := utils.ToString(row[types.ColOptionType])
		optionType, ok := types.ParseOptionType(raw)
		if !ok {
			continue
		}

		strike, ok := utils.ToFloat(row[types.ColStrike])
		if !ok {
			continue
		}
		oi := float64(utils.ToIntOrZero(row[types.ColOpenInterest]))
		value := oi * ContractMultiplier * strike / DisplayDivisor

		if ClassifyMoneyness(strike, spot) == types.PositionMain {
			main.Add(optionType, value)
		} else {
			support.Add(optionType, value)
		}
	}

	result.MainBattle = roundCell(main)
	result.Support = roundCell(support)
	result.Total = roundCell(types.PositionCell{
		Call: main.Call + support.Call,
		Put:  main.Put + support.Put,
	})
	return result
}

func roundCell(c types.PositionCell) types.PositionCell {
	return types.PositionCell{Call: round2(c.Call), Put: round2(c.Put)}
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
