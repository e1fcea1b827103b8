package signal

import (
	"sort"

	"signaltrack/internal/model"
)

// StrategyStats aggregates closed records of one strategy title.
type StrategyStats struct {
	Title       string              `json:"title"`
	CloseCount  int                 `json:"close_count"`
	WinCount    int                 `json:"win_count"`
	LoseCount   int                 `json:"lose_count"`
	TotalProfit float64             `json:"total_profit"`
	Records     []model.TradeSignal `json:"records"`
}

// Summarize groups closed records by title, busiest strategy first.
// Records without a title are skipped.
func Summarize(records []model.TradeSignal) []StrategyStats {
	byTitle := make(map[string]*StrategyStats)
	for _, r := range records {
		if r.Title == "" || !r.IsClosed() {
			continue
		}
		st, ok := byTitle[r.Title]
		if !ok {
			st = &StrategyStats{Title: r.Title}
			byTitle[r.Title] = st
		}
		st.CloseCount++
		if r.IsProfit != nil && *r.IsProfit {
			st.WinCount++
		} else {
			st.LoseCount++
		}
		if r.ProfitPercentage != nil {
			st.TotalProfit += *r.ProfitPercentage
		}
		st.Records = append(st.Records, r)
	}

	out := make([]StrategyStats, 0, len(byTitle))
	for _, st := range byTitle {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CloseCount != out[j].CloseCount {
			return out[i].CloseCount > out[j].CloseCount
		}
		return out[i].Title < out[j].Title
	})
	return out
}
