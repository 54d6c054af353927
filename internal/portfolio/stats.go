package portfolio

import (
	"math"
	"time"

	"github.com/newthinker/portsim/internal/core"
)

const tradingDaysPerYear = 252

// Stats holds performance statistics. Returns, drawdowns and volatility are
// percentages.
type Stats struct {
	Start                time.Time `json:"start"`
	End                  time.Time `json:"end"`
	DurationDays         int       `json:"duration_days"`
	TradingDays          int       `json:"trading_days"`
	FinalValue           float64   `json:"final_value"`
	PeakValue            float64   `json:"peak_value"`
	CumulativeReturn     float64   `json:"cumulative_return"`
	AnnualizedReturn     float64   `json:"annualized_return"`
	Volatility           float64   `json:"volatility"`        // daily
	AnnualVolatility     float64   `json:"annual_volatility"` // daily × √252
	SharpeRatio          float64   `json:"sharpe_ratio"`
	MaxDrawdown          float64   `json:"max_drawdown"` // largest peak-to-trough decline
	AvgDrawdown          float64   `json:"avg_drawdown"`
	PositiveDays         int       `json:"positive_days"`
	NegativeDays         int       `json:"negative_days"`
	WinRate              float64   `json:"win_rate"`
	ProfitFactor         float64   `json:"profit_factor"`
	MaxConsecutiveGains  int       `json:"max_consecutive_gains"`
	MaxConsecutiveLosses int       `json:"max_consecutive_losses"`
	TotalTrades          int       `json:"total_trades"`
}

// CalculateStats computes performance statistics from a snapshot sequence.
// Trades count purchases and rebalance legs.
func CalculateStats(snaps []Snapshot, rebalances []RebalanceEvent, purchases []Purchase) Stats {
	if len(snaps) == 0 {
		return Stats{}
	}

	first, last := snaps[0], snaps[len(snaps)-1]
	returns := make([]float64, len(snaps))
	var peak float64
	for i, s := range snaps {
		returns[i] = s.DailyReturn
		if s.AbsoluteValue > peak {
			peak = s.AbsoluteValue
		}
	}

	trades := len(purchases)
	for _, ev := range rebalances {
		trades += len(ev.Trades)
	}

	days := core.DaysBetween(first.Date, last.Date)
	var annualized float64
	if days > 0 && last.Value > 0 {
		annualized = math.Pow(last.Value, 365.25/float64(days)) - 1
	}

	var positive, negative int
	var gain, loss float64
	for _, r := range returns {
		switch {
		case r > 0:
			positive++
			gain += r
		case r < 0:
			negative++
			loss += r
		}
	}

	var profitFactor float64
	if loss < 0 {
		profitFactor = gain / math.Abs(loss)
	}

	std := stdDev(returns)
	maxDD, avgDD := calculateDrawdowns(returns)

	return Stats{
		Start:                first.Date,
		End:                  last.Date,
		DurationDays:         days,
		TradingDays:          len(snaps),
		FinalValue:           last.AbsoluteValue,
		PeakValue:            peak,
		CumulativeReturn:     (last.Value - 1) * 100, // Convert to percentage
		AnnualizedReturn:     annualized * 100,
		Volatility:           std * 100,
		AnnualVolatility:     std * math.Sqrt(tradingDaysPerYear) * 100,
		SharpeRatio:          calculateSharpeRatio(returns),
		MaxDrawdown:          maxDD * 100,
		AvgDrawdown:          avgDD * 100,
		PositiveDays:         positive,
		NegativeDays:         negative,
		WinRate:              float64(positive) / float64(len(returns)) * 100,
		ProfitFactor:         profitFactor,
		MaxConsecutiveGains:  maxConsecutive(returns, func(r float64) bool { return r > 0 }),
		MaxConsecutiveLosses: maxConsecutive(returns, func(r float64) bool { return r < 0 }),
		TotalTrades:          trades,
	}
}

// calculateDrawdowns walks the compounded return curve and returns the
// largest decline from a running peak and the mean decline over the days
// spent below a peak, both as positive fractions.
func calculateDrawdowns(returns []float64) (maxDD, avgDD float64) {
	if len(returns) == 0 {
		return 0, 0
	}

	peak := 1.0
	cumulative := 1.0
	var sum float64
	var under int

	for _, r := range returns {
		cumulative *= (1 + r)
		if cumulative > peak {
			peak = cumulative
		}
		if peak > 0 {
			dd := (peak - cumulative) / peak
			if dd > maxDD {
				maxDD = dd
			}
			if dd > 0 {
				sum += dd
				under++
			}
		}
	}

	if under > 0 {
		avgDD = sum / float64(under)
	}
	return maxDD, avgDD
}

// stdDev returns the sample standard deviation.
func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)-1))
}

// calculateSharpeRatio computes risk-adjusted return
// Assumes risk-free rate of 0 for simplicity
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	sd := stdDev(returns)
	if sd == 0 {
		return 0
	}

	// Annualize (assuming ~252 trading days)
	return (mean * tradingDaysPerYear) / (sd * math.Sqrt(tradingDaysPerYear))
}

func maxConsecutive(returns []float64, match func(float64) bool) int {
	var best, run int
	for _, r := range returns {
		if !match(r) {
			run = 0
			continue
		}
		run++
		if run > best {
			best = run
		}
	}
	return best
}
