package signal

import (
	"github.com/shopspring/decimal"

	"signaltrack/internal/model"
)

// Event is an inbound signal: OpenEvent or CloseEvent.
type Event interface {
	Kind() string
	TradeKey() string
}

// OpenEvent opens a position for TradeID.
type OpenEvent struct {
	TradeID         string
	Title           string
	Instrument      string
	Side            string
	Leverage        int
	StopLossPrice   decimal.NullDecimal
	TakeProfitPrice decimal.NullDecimal
}

func (OpenEvent) Kind() string        { return "open" }
func (e OpenEvent) TradeKey() string { return e.TradeID }

// CloseEvent closes the open position for TradeID, if any.
type CloseEvent struct {
	TradeID string
}

func (CloseEvent) Kind() string        { return "close" }
func (e CloseEvent) TradeKey() string { return e.TradeID }

// Outcome describes how an event was resolved.
type Outcome uint8

const (
	OutcomeOpened Outcome = iota + 1
	// OutcomeAlreadyOpen is a repeated open for a trade id that is still open.
	OutcomeAlreadyOpen
	OutcomeClosed
	// OutcomeNoMatchingPosition is a close without an open record. Not an error.
	OutcomeNoMatchingPosition
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOpened:
		return "opened"
	case OutcomeAlreadyOpen:
		return "already_open"
	case OutcomeClosed:
		return "closed"
	case OutcomeNoMatchingPosition:
		return "no_matching_position"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the outcome of one event and the affected record, if any.
type Result struct {
	Outcome Outcome
	Signal  *model.TradeSignal
}
