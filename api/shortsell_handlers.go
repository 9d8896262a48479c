package api

import (
	"net/http"
	"strconv"

	"marketlens/format"
	"marketlens/types"
	"marketlens/utils"

	"github.com/gorilla/mux"
)

// ShortSellLatestResponse is the latest short-sell day with its date
type ShortSellLatestResponse struct {
	Data       []format.Record `json:"data"`
	LatestDate *types.Date     `json:"latest_date"`
}

func (s *Server) handleShortSellLatest(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ShortSellLatest(r.Context())
	if err != nil {
		s.serverError(w, r, "Failed to get latest short-sell data", err)
		return
	}

	resp := ShortSellLatestResponse{Data: format.Records(rows)}
	if len(rows) > 0 {
		if d, ok := utils.ToDate(rows[0][types.ColTradeDate]); ok {
			resp.LatestDate = &d
		}
	}
	sendJSON(w, resp)
}

func (s *Server) handleShortSellHistory(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["stock_code"]
	stockCode, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || stockCode < 0 {
		SendValidationError(w, "stock_code must be numeric")
		return
	}

	rows, err := s.store.ShortSellHistory(r.Context(), stockCode, s.cfg.Market.ShortSellHistoryDays)
	if err != nil {
		s.serverError(w, r, "Failed to get short-sell history", err)
		return
	}
	sendJSON(w, format.Records(rows))
}
