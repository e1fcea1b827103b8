package model

import (
	"strings"

	"signaltrack/pkg/exception"
)

// QuoteAsset is the quote suffix every instrument is priced in.
const QuoteAsset = "USDT"

// Instrument is a normalized trading pair such as BTCUSDT.
type Instrument string

// NormalizeInstrument uppercases s, strips separators and appends the quote
// asset when missing. Normalizing an already normalized value is a no-op.
func NormalizeInstrument(s string) (Instrument, error) {
	var b strings.Builder
	b.Grow(len(s) + len(QuoteAsset))
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		switch r {
		case '-', '/', '_', ' ', ':':
			continue
		}
		b.WriteRune(r)
	}

	base := b.String()
	if base == "" || base == QuoteAsset {
		return "", exception.ErrInvalidInstrument
	}
	if !strings.HasSuffix(base, QuoteAsset) {
		base += QuoteAsset
	}
	return Instrument(base), nil
}

func (i Instrument) String() string {
	return string(i)
}

// Base returns the base asset, BTC for BTCUSDT.
func (i Instrument) Base() string {
	return strings.TrimSuffix(string(i), QuoteAsset)
}

// StreamName returns the lowercase stream prefix used by the upstream, btcusdt for BTCUSDT.
func (i Instrument) StreamName() string {
	return strings.ToLower(string(i))
}
