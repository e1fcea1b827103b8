package feed

import (
	"time"

	"github.com/shopspring/decimal"

	"signaltrack/internal/model"
)

// Kind classifies a decoded upstream message.
type Kind uint8

const (
	// KindIgnored is a well-formed message the feed has no use for.
	KindIgnored Kind = iota
	KindTick
	// KindAck confirms a subscribe request.
	KindAck
	// KindError is an application error reply to a request.
	KindError
)

// Tick is one price observation.
type Tick struct {
	Instrument model.Instrument
	Price      decimal.Decimal
	// EventTime is zero when the upstream does not provide one.
	EventTime time.Time
}

// Message is a decoded upstream message.
type Message struct {
	Kind      Kind
	Tick      Tick
	RequestID uint64
	ErrorCode int
	ErrorMsg  string
}

// Codec translates between the feed and an upstream wire format.
type Codec interface {
	// EncodeSubscribe builds one subscribe request for the instruments.
	EncodeSubscribe(requestID uint64, instruments []model.Instrument) ([]byte, error)
	// Decode parses one message. Malformed input returns exception.ErrFeedParse.
	Decode(payload []byte) (Message, error)
}
