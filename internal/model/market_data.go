package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is the latest observed price of an instrument.
// Seq is assigned by the price cache and only orders samples in-process.
type PriceSample struct {
	Instrument Instrument      `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
	Seq        uint64          `json:"-"`
}
