package filestore

import (
	"fmt"
	"io"
	"strconv"

	"marketlens/types"
	"marketlens/utils"

	"github.com/gocarina/gocsv"
	"github.com/klauspost/pgzip"
)

// ExportFileName names the attachment for a series export starting at start
func ExportFileName(series string, start types.Date) string {
	return fmt.Sprintf("%s_%s.csv.gz", series, start.Format("20060102"))
}

// ToExportRows flattens a normalized series into CSV rows, symbol taken from groupKey
func ToExportRows(rows []types.Row, groupKey string) []*types.ExportRow {
	out := make([]*types.ExportRow, 0, len(rows))
	for _, row := range rows {
		symbol, _ := utils.ToString(row[groupKey])
		rec := &types.ExportRow{
			Symbol:          symbol,
			Close:           formatNumber(row[types.ColClose]),
			NormalizedPrice: formatNumber(row[types.ColNormalizedPrice]),
		}
		if d, ok := utils.ToDate(row[types.ColTradeDate]); ok {
			rec.TradeDate = d.String()
		}
		out = append(out, rec)
	}
	return out
}

func formatNumber(v interface{}) string {
	f, ok := utils.ToFloat(v)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WriteSeriesCSV writes rows as a gzip compressed CSV with a header line
func WriteSeriesCSV(w io.Writer, rows []*types.ExportRow) error {
	gzWriter := pgzip.NewWriter(w)

	if err := gocsv.Marshal(rows, gzWriter); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to write csv: %w", err)
	}

	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush gzip stream: %w", err)
	}
	return nil
}
