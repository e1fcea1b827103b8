package signal

import (
	"context"
	"time"

	"signaltrack/internal/model"
)

// Store is the durable home of trade signals.
//
// Save inserts a record whose ID is zero and returns exception.ErrDuplicateOpen
// when another open record exists for the same trade id. Saving a closed record
// updates it only if the stored row is still open, otherwise it returns
// exception.ErrSignalNotOpen. Each call is atomic.
type Store interface {
	LoadOpenByTradeID(ctx context.Context, tradeID string) (model.TradeSignal, bool, error)
	// LoadLastClosed returns the most recent closed record for title by
	// closed_at then id, skipping excludingID.
	LoadLastClosed(ctx context.Context, title string, excludingID uint64) (model.TradeSignal, bool, error)
	Save(ctx context.Context, s *model.TradeSignal) error
	// ListLatest returns the newest record per trade id, newest first.
	ListLatest(ctx context.Context) ([]model.TradeSignal, error)
	// History returns closed records of title, most recently closed first.
	History(ctx context.Context, title string) ([]model.TradeSignal, error)
	// ClosedBetween returns records closed in [start, end).
	ClosedBetween(ctx context.Context, start, end time.Time) ([]model.TradeSignal, error)
}
