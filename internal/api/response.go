package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yanun0323/logs"

	"signaltrack/pkg/exception"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logs.Warnf("api: encode response, err: %+v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusOf maps a domain error onto an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, exception.ErrInvalidEvent),
		errors.Is(err, exception.ErrInvalidSide),
		errors.Is(err, exception.ErrInvalidInstrument),
		errors.Is(err, exception.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, exception.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
