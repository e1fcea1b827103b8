package signal

// Streak is a pair of win/lose counters; at most one is positive.
type Streak struct {
	Win  int
	Lose int
}

// ComputeStreak extends the prior closed record's streak with the current result.
// A nil prior, or one with both counters zero, starts a new streak.
func ComputeStreak(prior *Streak, isProfit bool) Streak {
	if prior == nil || (prior.Win <= 0 && prior.Lose <= 0) {
		if isProfit {
			return Streak{Win: 1}
		}
		return Streak{Lose: 1}
	}

	if isProfit {
		if prior.Win > 0 {
			return Streak{Win: prior.Win + 1}
		}
		return Streak{Win: 1}
	}

	if prior.Lose > 0 {
		return Streak{Lose: prior.Lose + 1}
	}
	return Streak{Lose: 1}
}
