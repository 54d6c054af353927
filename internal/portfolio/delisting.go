package portfolio

import (
	"time"

	"github.com/newthinker/portsim/internal/core"
)

// DefaultGraceDays is how long a held asset may go without a price before
// it is treated as delisted.
const DefaultGraceDays = 30

// Delisting records an asset frozen at its last valid price.
type Delisting struct {
	Symbol    string    `json:"symbol"`
	Date      time.Time `json:"date"`
	LastSeen  time.Time `json:"last_seen"`
	LastPrice float64   `json:"last_price"`
}

// CheckAndFreeze records today's observation for asset id and reports
// whether the asset became delisted today. A held asset that was observed
// before and has gone graceDays or more calendar days without an
// observation is delisted; it keeps its last valid price and is never
// reinstated.
func CheckAndFreeze(s *State, id AssetID, date time.Time, observed bool, price float64, graceDays int) bool {
	if s.Delisted[id] {
		return false
	}
	if observed && price > 0 {
		s.LastPrice[id] = price
		s.LastSeen[id] = core.Day(date)
		return false
	}
	if s.LastSeen[id].IsZero() || s.Shares[id] <= 0 {
		return false
	}
	if core.DaysBetween(s.LastSeen[id], date) >= graceDays {
		s.Delisted[id] = true
		return true
	}
	return false
}
