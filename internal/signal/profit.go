package signal

import (
	"github.com/shopspring/decimal"

	"signaltrack/internal/model/enum"
)

var hundred = decimal.NewFromInt(100)

// profitPercentage returns the signed percentage move from open to close.
// Short positions profit when the price falls.
func profitPercentage(side enum.Side, open, close decimal.Decimal) decimal.Decimal {
	raw := close.Sub(open).Div(open).Mul(hundred)
	if side == enum.SideShort {
		return raw.Neg()
	}
	return raw
}
