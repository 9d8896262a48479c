package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketlens/logger"
	"marketlens/types"
	"marketlens/utils"
)

// MarketStore runs the dataset queries behind the API against a RowSource.
// Every user supplied value is passed as a bind parameter.
type MarketStore struct {
	src RowSource
	log *logger.Logger
}

func NewMarketStore(src RowSource) *MarketStore {
	return &MarketStore{
		src: src,
		log: logger.L(),
	}
}

const etfDailyQuery = `
	SELECT d.symbol AS etf_symbol, CAST(d."Date" AS date) AS trade_date, d."Close" AS close
	FROM t_etf_daily d
	WHERE CAST(d."Date" AS date) >= $1
	  AND NOT (d.symbol = ANY($2))
	  AND EXISTS (SELECT 1 FROM t_etf_holding h WHERE h.symbol = d.symbol)
	ORDER BY trade_date
`

// ETFDaily returns daily closes for every ETF that has holdings data
func (s *MarketStore) ETFDaily(ctx context.Context, start time.Time, excluded []string) ([]types.Row, error) {
	return s.query(ctx, "etf_daily", etfDailyQuery, start, nonNil(excluded))
}

const etfHoldingsQuery = `
	SELECT s.symbol AS stock_symbol, CAST(s."Date" AS date) AS trade_date, s."Close" AS close
	FROM t_etf_holding h
	JOIN t_yf_stock_daily s ON h.asset = s.symbol
	WHERE h.symbol = $1 AND CAST(s."Date" AS date) >= $2
	ORDER BY s."Date"
`

// ETFHoldings returns daily closes of the stocks held by an ETF
func (s *MarketStore) ETFHoldings(ctx context.Context, etfSymbol string, start time.Time) ([]types.Row, error) {
	return s.query(ctx, "etf_holdings", etfHoldingsQuery, etfSymbol, start)
}

const etfInfoQuery = `
	SELECT DISTINCT h.symbol AS etf_symbol, h.asset AS stock_symbol, h."Holding Percent" * 100 AS weight
	FROM t_etf_holding h
	WHERE h.symbol = $1
	ORDER BY 3 DESC
`

// ETFInfo returns an ETF's holdings and their weights in percent
func (s *MarketStore) ETFInfo(ctx context.Context, etfSymbol string) ([]types.Row, error) {
	return s.query(ctx, "etf_info", etfInfoQuery, etfSymbol)
}

const etfListQuery = `
	SELECT DISTINCT symbol
	FROM t_etf_daily
	WHERE NOT (symbol = ANY($1))
	ORDER BY symbol
`

// ETFList returns the distinct ETF symbols with daily data
func (s *MarketStore) ETFList(ctx context.Context, excluded []string) ([]string, error) {
	rows, err := s.query(ctx, "etf_list", etfListQuery, nonNil(excluded))
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(rows))
	for _, row := range rows {
		if sym, ok := utils.ToString(row["symbol"]); ok {
			symbols = append(symbols, sym)
		}
	}
	return symbols, nil
}

const bondsQuery = `
	SELECT CAST("Date" AS date) AS trade_date, CAST("10 Yr" AS float) AS yield
	FROM t_bonds_daily
	WHERE country = $1 AND CAST("Date" AS date) >= $2
	ORDER BY 1 DESC
`

// Bonds returns the 10 year yield of a country, newest first
func (s *MarketStore) Bonds(ctx context.Context, country string, start time.Time) ([]types.Row, error) {
	return s.query(ctx, "bonds", bondsQuery, strings.ToUpper(country), start)
}

const usBondsQuery = `
	SELECT
		CAST("Date" AS date) AS trade_date,
		CAST("1 Yr" AS float) AS yield_1y,
		CAST("10 Yr" AS float) AS yield_10y,
		CAST("20 Yr" AS float) AS yield_20y
	FROM t_bonds_daily
	WHERE country = 'US' AND CAST("Date" AS date) >= $1
	ORDER BY "Date" ASC
`

// USBonds returns the 1, 10 and 20 year US yields, oldest first
func (s *MarketStore) USBonds(ctx context.Context, start time.Time) ([]types.Row, error) {
	return s.query(ctx, "us_bonds", usBondsQuery, start)
}

const shortSellLatestQuery = `
	WITH latest_date AS (
		SELECT MAX(日期) AS max_date
		FROM eastmoney_hkstock_shortsell
	)
	SELECT
		股票代码 AS stock_code,
		股票名称 AS stock_name,
		最新价 AS last_price,
		"沽空数量(股)" AS short_volume,
		沽空平均价 AS short_price,
		"沽空金额(万港元)" AS short_amount,
		"总成交金额(万港元)" AS total_amount,
		"沽空占成交比例%" AS short_ratio,
		日期 AS trade_date
	FROM eastmoney_hkstock_shortsell, latest_date
	WHERE 日期 = latest_date.max_date
	ORDER BY "沽空占成交比例%" DESC
`

// ShortSellLatest returns every stock of the most recent short-sell day, by short ratio
func (s *MarketStore) ShortSellLatest(ctx context.Context) ([]types.Row, error) {
	return s.query(ctx, "shortsell_latest", shortSellLatestQuery)
}

const shortSellHistoryQuery = `
	SELECT
		股票代码 AS stock_code,
		股票名称 AS stock_name,
		"沽空数量(股)" AS short_volume,
		沽空平均价 AS short_price,
		"沽空金额(万港元)" AS short_amount,
		"总成交金额(万港元)" AS total_amount,
		"沽空占成交比例%" AS short_ratio,
		日期 AS trade_date
	FROM eastmoney_hkstock_shortsell
	WHERE 股票代码 = $1
	  AND 日期 >= CURRENT_DATE - make_interval(days => $2)
	ORDER BY 日期
`

// ShortSellHistory returns the last days of short-sell data for one stock
func (s *MarketStore) ShortSellHistory(ctx context.Context, stockCode int64, days int) ([]types.Row, error) {
	return s.query(ctx, "shortsell_history", shortSellHistoryQuery, stockCode, int32(days))
}

const optionsSnapshotQuery = `
	WITH latest_date AS (
		SELECT MAX(CAST(regular_market_datetime AS date)) AS max_date
		FROM options_data
		WHERE symbol = $1
	)
	SELECT
		CAST(regular_market_datetime AS date) AS observed_at,
		strike,
		option_type,
		expiration_date,
		volume,
		open_interest
	FROM options_data, latest_date
	WHERE symbol = $1
	  AND CAST(regular_market_datetime AS date) = latest_date.max_date
`

// OptionsSnapshot returns the contract rows of the latest options snapshot of a symbol.
// observed_at is the snapshot date computed by the database, the same expression
// SnapshotSpot resolves the spot close against.
func (s *MarketStore) OptionsSnapshot(ctx context.Context, symbol string) ([]types.Row, error) {
	return s.query(ctx, "options_snapshot", optionsSnapshotQuery, symbol)
}

const snapshotSpotQuery = `
	SELECT CAST("Date" AS date) AS trade_date, "Close" AS close
	FROM t_yf_stock_daily
	WHERE symbol = $1
	  AND CAST("Date" AS date) = (
		SELECT MAX(CAST(regular_market_datetime AS date))
		FROM options_data
		WHERE symbol = $1
	  )
`

// SnapshotSpot returns the daily close rows of symbol on its latest options snapshot date
func (s *MarketStore) SnapshotSpot(ctx context.Context, symbol string) ([]types.Row, error) {
	return s.query(ctx, "snapshot_spot", snapshotSpotQuery, symbol)
}

func (s *MarketStore) query(ctx context.Context, name, query string, args ...interface{}) ([]types.Row, error) {
	start := time.Now()

	rows, err := s.src.Query(ctx, query, args...)
	if err != nil {
		s.log.WithContext(ctx).Error("Dataset query failed", map[string]interface{}{
			"query": name,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	s.log.WithContext(ctx).Debug("Dataset query finished", map[string]interface{}{
		"query":    name,
		"rows":     len(rows),
		"duration": time.Since(start).String(),
	})
	return rows, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
