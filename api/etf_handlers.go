package api

import (
	"net/http"

	"marketlens/filestore"
	"marketlens/format"
	"marketlens/normalize"
	"marketlens/types"

	"github.com/gorilla/mux"
)

// handleETFDaily returns every ETF's closes rebased to 100 at its first valid close
func (s *Server) handleETFDaily(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.etfDailySeries(w, r)
	if !ok {
		return
	}
	sendJSON(w, format.Records(rows))
}

// handleETFDailyExport streams the same series as a gzip compressed CSV file
func (s *Server) handleETFDailyExport(w http.ResponseWriter, r *http.Request) {
	start, err := parseStartDate(r, s.cfg.Market.DefaultStartDate)
	if err != nil {
		SendValidationError(w, err.Error())
		return
	}

	rows, ok := s.etfDailySeries(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition",
		`attachment; filename="`+filestore.ExportFileName("etf_daily", start)+`"`)

	if err := filestore.WriteSeriesCSV(w, filestore.ToExportRows(rows, types.ColETFSymbol)); err != nil {
		// headers are already out; all we can do is log
		s.log.WithContext(r.Context()).Error("Failed to write export", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Server) etfDailySeries(w http.ResponseWriter, r *http.Request) ([]types.Row, bool) {
	start, err := parseStartDate(r, s.cfg.Market.DefaultStartDate)
	if err != nil {
		SendValidationError(w, err.Error())
		return nil, false
	}

	rows, err := s.store.ETFDaily(r.Context(), start.Time, s.cfg.Market.ExcludedETFs)
	if err != nil {
		s.serverError(w, r, "Failed to get ETF daily data", err)
		return nil, false
	}

	rows = normalize.SortByDate(rows, types.ColTradeDate)
	return normalize.Prices(rows, types.ColETFSymbol, types.ColClose), true
}

// handleETFHoldings returns the rebased closes of the stocks an ETF holds
func (s *Server) handleETFHoldings(w http.ResponseWriter, r *http.Request) {
	etfSymbol := mux.Vars(r)["etf_symbol"]

	start, err := parseStartDate(r, s.cfg.Market.DefaultStartDate)
	if err != nil {
		SendValidationError(w, err.Error())
		return
	}

	rows, err := s.store.ETFHoldings(r.Context(), etfSymbol, start.Time)
	if err != nil {
		s.serverError(w, r, "Failed to get ETF holdings", err)
		return
	}

	rows = normalize.SortByDate(rows, types.ColTradeDate)
	sendJSON(w, format.Records(normalize.Prices(rows, types.ColStockSymbol, types.ColClose)))
}

func (s *Server) handleETFInfo(w http.ResponseWriter, r *http.Request) {
	etfSymbol := mux.Vars(r)["etf_symbol"]

	rows, err := s.store.ETFInfo(r.Context(), etfSymbol)
	if err != nil {
		s.serverError(w, r, "Failed to get ETF info", err)
		return
	}
	sendJSON(w, format.Records(rows))
}

func (s *Server) handleETFList(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.store.ETFList(r.Context(), s.cfg.Market.ExcludedETFs)
	if err != nil {
		s.serverError(w, r, "Failed to get ETF list", err)
		return
	}
	sendJSON(w, symbols)
}
