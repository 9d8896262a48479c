package types

// ExportRow is one line of a normalized series CSV export.
// Numeric columns are pre-formatted; an empty string stands for null.
type ExportRow struct {
	Symbol          string `csv:"symbol"`
	TradeDate       string `csv:"trade_date"`
	Close           string `csv:"close"`
	NormalizedPrice string `csv:"normalized_price"`
}
