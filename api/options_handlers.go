package api

import (
	"net/http"
	"strings"

	"marketlens/optionchain"

	"github.com/gorilla/mux"
)

// optionSymbol validates the {symbol} path variable against the allow-list
func (s *Server) optionSymbol(w http.ResponseWriter, r *http.Request) (string, bool) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	if !s.cfg.Market.IsOptionSymbol(symbol) {
		SendError(w, http.StatusBadRequest, "Invalid symbol", "Symbol is not tracked for options")
		return "", false
	}
	return symbol, true
}

// handleOptionsData returns the latest snapshot's volume and open interest by strike, split by term
func (s *Server) handleOptionsData(w http.ResponseWriter, r *http.Request) {
	symbol, ok := s.optionSymbol(w, r)
	if !ok {
		return
	}

	rows, err := s.store.OptionsSnapshot(r.Context(), symbol)
	if err != nil {
		s.serverError(w, r, "Failed to get options data", err)
		return
	}

	sendJSON(w, optionchain.Summarize(rows, s.today()))
}

// handleOptionsPositionValue returns open interest notional split by moneyness
func (s *Server) handleOptionsPositionValue(w http.ResponseWriter, r *http.Request) {
	symbol, ok := s.optionSymbol(w, r)
	if !ok {
		return
	}

	rows, err := s.store.OptionsSnapshot(r.Context(), symbol)
	if err != nil {
		s.serverError(w, r, "Failed to get options data", err)
		return
	}

	prices, err := s.store.SnapshotSpot(r.Context(), symbol)
	if err != nil {
		s.serverError(w, r, "Failed to get spot price", err)
		return
	}

	result := optionchain.PositionValues(rows, prices)
	if result.SpotPrice == nil && len(rows) > 0 {
		s.log.WithContext(r.Context()).Info("No spot price for options snapshot", map[string]interface{}{
			"symbol": symbol,
		})
	}
	sendJSON(w, result)
}
