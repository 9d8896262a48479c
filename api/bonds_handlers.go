package api

import (
	"net/http"

	"marketlens/format"
	"marketlens/types"

	"github.com/gorilla/mux"
)

// Bond endpoints answer an empty list when the query fails.

func (s *Server) handleBonds(w http.ResponseWriter, r *http.Request) {
	country := mux.Vars(r)["country"]

	start, err := types.ParseDate(s.cfg.Market.BondsStartDate)
	if err != nil {
		s.serverError(w, r, "Invalid bonds start date", err)
		return
	}

	rows, err := s.store.Bonds(r.Context(), country, start.Time)
	if err != nil {
		s.log.WithContext(r.Context()).Error("Failed to get bonds data", map[string]interface{}{
			"error":   err.Error(),
			"country": country,
		})
		sendJSON(w, []format.Record{})
		return
	}

	sendJSON(w, format.Records(format.DropIncomplete(rows, "yield")))
}

func (s *Server) handleUSBonds(w http.ResponseWriter, r *http.Request) {
	start, err := types.ParseDate(s.cfg.Market.USBondsStartDate)
	if err != nil {
		s.serverError(w, r, "Invalid US bonds start date", err)
		return
	}

	rows, err := s.store.USBonds(r.Context(), start.Time)
	if err != nil {
		s.log.WithContext(r.Context()).Error("Failed to get US bonds data", map[string]interface{}{
			"error": err.Error(),
		})
		sendJSON(w, []format.Record{})
		return
	}

	clean := format.DropIncomplete(rows, "yield_1y", "yield_10y", "yield_20y")
	s.log.WithContext(r.Context()).Debug("Processed US bonds data", map[string]interface{}{
		"rows":    len(rows),
		"kept":    len(clean),
		"dropped": len(rows) - len(clean),
	})
	sendJSON(w, format.Records(clean))
}
