package portfolio

import (
	"time"

	"github.com/newthinker/portsim/internal/schedule"
)

// Purchase is one executed buy from a lump sum or DCA schedule.
type Purchase struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
	Period int       `json:"period"` // 1-based
	Amount float64   `json:"amount"`
	Price  float64   `json:"price"`
	Shares float64   `json:"shares"`
}

// ApplyScheduledPurchases funds asset a on date. The first call with a
// usable price makes the initial purchase: the whole amount for a lump sum,
// the first period for DCA. Later DCA periods follow the asset's schedule
// until all periods are spent. Cash assets are funded once at face value.
// It returns the shares bought and the capital that flowed in.
func ApplyScheduledPurchases(s *State, a Allocation, date time.Time, price, commission float64) (shares, outflow float64) {
	id := a.ID
	if s.Delisted[id] {
		return 0, 0
	}

	if a.Kind == Cash {
		if s.Purchased[id] {
			return 0, 0
		}
		s.Purchased[id] = true
		s.Executed[id] = 1
		s.Cash[id] += a.Total
		return 0, a.Total
	}

	if price <= 0 {
		return 0, 0
	}

	var amount float64
	switch {
	case !s.Purchased[id]:
		s.Purchased[id] = true
		amount = a.Total
		if a.Investment == DCA {
			amount = a.PeriodAmount
			s.DCA[id] = schedule.NewTracker(a.Cadence, s.Anchor, date)
			s.DCA[id].Skip(date)
		}
	case a.Investment == DCA && s.Executed[id] < a.Periods && s.DCA[id] != nil && s.DCA[id].Fire(date):
		amount = a.PeriodAmount
	default:
		return 0, 0
	}

	s.Executed[id]++
	shares = amount * (1 - commission) / price
	s.Shares[id] += shares
	return shares, amount
}
