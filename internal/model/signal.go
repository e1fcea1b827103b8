package model

import (
	"time"

	"github.com/shopspring/decimal"

	"signaltrack/internal/model/enum"
)

// TradeSignal is one opened position identified by TradeID.
// Closing fields are set together exactly when State is closed.
type TradeSignal struct {
	ID               uint64              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TradeID          string              `gorm:"column:trade_id;type:varchar(64);index;not null" json:"trade_id"`
	Title            string              `gorm:"column:title;type:varchar(128);index" json:"title"`
	Instrument       Instrument          `gorm:"column:instrument;type:varchar(32);not null" json:"instrument"`
	Side             enum.Side           `gorm:"column:side;type:varchar(8);not null" json:"side"`
	Leverage         int                 `gorm:"column:leverage" json:"leverage"`
	StopLossPrice    decimal.NullDecimal `gorm:"column:stop_loss_price;type:numeric" json:"stop_loss_price"`
	TakeProfitPrice  decimal.NullDecimal `gorm:"column:take_profit_price;type:numeric" json:"take_profit_price"`
	OpenPrice        decimal.Decimal     `gorm:"column:open_price;type:numeric;not null" json:"open_price"`
	ClosePrice       decimal.NullDecimal `gorm:"column:close_price;type:numeric" json:"close_price"`
	OpenedAt         time.Time           `gorm:"column:opened_at;not null" json:"opened_at"`
	ClosedAt         *time.Time          `gorm:"column:closed_at;index" json:"closed_at"`
	ProfitPercentage *float64            `gorm:"column:profit_percentage" json:"profit_percentage"`
	IsProfit         *bool               `gorm:"column:is_profit" json:"is_profit"`
	WinStreak        int                 `gorm:"column:win_streak;not null;default:0" json:"win_streak"`
	LoseStreak       int                 `gorm:"column:lose_streak;not null;default:0" json:"lose_streak"`
	State            enum.State          `gorm:"column:state;type:varchar(8);index;not null" json:"state"`
}

func (TradeSignal) TableName() string {
	return "trading_signals"
}

func (s TradeSignal) IsOpen() bool {
	return s.State == enum.StateOpen
}

func (s TradeSignal) IsClosed() bool {
	return s.State == enum.StateClosed
}
