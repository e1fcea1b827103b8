package api

import (
	"fmt"
	"net/http"

	"signaltrack/internal/feed"
	"signaltrack/internal/model"
	"signaltrack/pkg/exception"
)

type feedResponse struct {
	State       feed.State         `json:"state"`
	Attempts    uint64             `json:"attempts"`
	Instruments []model.Instrument `json:"instruments"`
}

func (s *Server) handlePrices(w http.ResponseWriter, _ *http.Request) {
	out := s.cfg.Prices.Snapshot()
	if out == nil {
		out = []model.PriceSample{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	ins, err := model.NormalizeInstrument(r.PathValue("symbol"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sample, ok := s.cfg.Prices.Get(ins)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", exception.ErrPriceUnavailable, ins))
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (s *Server) handleFeed(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Feed == nil {
		writeJSON(w, http.StatusOK, feedResponse{Instruments: []model.Instrument{}})
		return
	}
	writeJSON(w, http.StatusOK, feedResponse{
		State:       s.cfg.Feed.State(),
		Attempts:    s.cfg.Feed.Attempts(),
		Instruments: s.cfg.Feed.Instruments(),
	})
}
