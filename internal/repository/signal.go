package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"signaltrack/internal/model"
	"signaltrack/internal/model/enum"
	"signaltrack/pkg/exception"
)

// openTradeIndex keeps at most one open record per trade id at the database level.
const openTradeIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_trading_signals_open_trade ON trading_signals (trade_id) WHERE state = 'open'`

// SignalRepository stores trade signals with gorm.
type SignalRepository struct {
	db *gorm.DB
}

func NewSignalRepository(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Migrate creates the trading_signals table and its indexes.
func (r *SignalRepository) Migrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(&model.TradeSignal{}); err != nil {
		return fmt.Errorf("migrate trading_signals: %w", err)
	}
	if err := db.Exec(openTradeIndex).Error; err != nil {
		return fmt.Errorf("create open trade index: %w", err)
	}
	return nil
}

func (r *SignalRepository) LoadOpenByTradeID(ctx context.Context, tradeID string) (model.TradeSignal, bool, error) {
	var rec model.TradeSignal
	err := r.db.WithContext(ctx).
		Where("trade_id = ? AND state = ?", tradeID, enum.StateOpen).
		Order("id DESC").
		Take(&rec).Error
	return found(rec, err)
}

func (r *SignalRepository) LoadLastClosed(ctx context.Context, title string, excludingID uint64) (model.TradeSignal, bool, error) {
	var rec model.TradeSignal
	err := r.db.WithContext(ctx).
		Where("title = ? AND state = ? AND id <> ?", title, enum.StateClosed, excludingID).
		Order("closed_at DESC").
		Order("id DESC").
		Take(&rec).Error
	return found(rec, err)
}

func (r *SignalRepository) Save(ctx context.Context, s *model.TradeSignal) error {
	s.OpenedAt = s.OpenedAt.UTC()
	if s.ClosedAt != nil {
		closedAt := s.ClosedAt.UTC()
		s.ClosedAt = &closedAt
	}

	if s.ID == 0 {
		return r.insert(ctx, s)
	}

	result := r.db.WithContext(ctx).
		Model(&model.TradeSignal{}).
		Where("id = ? AND state = ?", s.ID, enum.StateOpen).
		Updates(map[string]any{
			"close_price":       s.ClosePrice,
			"closed_at":         s.ClosedAt,
			"profit_percentage": s.ProfitPercentage,
			"is_profit":         s.IsProfit,
			"win_streak":        s.WinStreak,
			"lose_streak":       s.LoseStreak,
			"state":             s.State,
		})
	if result.Error != nil {
		return fmt.Errorf("update trade signal %d: %w", s.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return exception.ErrSignalNotOpen
	}
	return nil
}

func (r *SignalRepository) insert(ctx context.Context, s *model.TradeSignal) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.IsOpen() {
			var n int64
			if err := tx.Model(&model.TradeSignal{}).
				Where("trade_id = ? AND state = ?", s.TradeID, enum.StateOpen).
				Count(&n).Error; err != nil {
				return fmt.Errorf("count open trade %s: %w", s.TradeID, err)
			}
			if n > 0 {
				return exception.ErrDuplicateOpen
			}
		}
		if err := tx.Create(s).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return exception.ErrDuplicateOpen
			}
			return fmt.Errorf("insert trade signal %s: %w", s.TradeID, err)
		}
		return nil
	})
}

func (r *SignalRepository) ListLatest(ctx context.Context) ([]model.TradeSignal, error) {
	db := r.db.WithContext(ctx)
	latest := db.Model(&model.TradeSignal{}).Select("MAX(id)").Group("trade_id")

	var out []model.TradeSignal
	if err := db.Where("id IN (?)", latest).
		Order("opened_at DESC").
		Order("id DESC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list latest trade signals: %w", err)
	}
	return out, nil
}

func (r *SignalRepository) History(ctx context.Context, title string) ([]model.TradeSignal, error) {
	var out []model.TradeSignal
	if err := r.db.WithContext(ctx).
		Where("title = ? AND state = ?", title, enum.StateClosed).
		Order("closed_at DESC").
		Order("id DESC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("history of %s: %w", title, err)
	}
	return out, nil
}

func (r *SignalRepository) ClosedBetween(ctx context.Context, start, end time.Time) ([]model.TradeSignal, error) {
	var out []model.TradeSignal
	if err := r.db.WithContext(ctx).
		Where("state = ? AND closed_at >= ? AND closed_at < ?", enum.StateClosed, start.UTC(), end.UTC()).
		Order("closed_at DESC").
		Order("id DESC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("closed between %s and %s: %w", start, end, err)
	}
	return out, nil
}

func found(rec model.TradeSignal, err error) (model.TradeSignal, bool, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.TradeSignal{}, false, nil
	}
	if err != nil {
		return model.TradeSignal{}, false, err
	}
	return rec, true, nil
}
