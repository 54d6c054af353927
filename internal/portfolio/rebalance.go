package portfolio

import (
	"fmt"
	"math"
	"time"

	"github.com/newthinker/portsim/internal/core"
)

// DefaultRebalanceThreshold is the smallest trade, as a fraction of
// portfolio value, that a rebalance executes.
const DefaultRebalanceThreshold = 0.0001

// Direction is the sign of a trade.
type Direction int

const (
	Sell Direction = -1
	Buy  Direction = 1
)

// String returns "buy" or "sell".
func (d Direction) String() string {
	if d == Sell {
		return "sell"
	}
	return "buy"
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "buy":
		*d = Buy
	case "sell":
		*d = Sell
	default:
		return fmt.Errorf("unknown trade direction %q", b)
	}
	return nil
}

// Drift is how far an asset's weight sits from its target. Signed is
// current minus target; Clamped floors it at zero and only reports
// overweight positions.
type Drift struct {
	Signed  float64 `json:"signed"`
	Clamped float64 `json:"clamped"`
}

// WeightDrift compares a current weight with its target.
func WeightDrift(current, target float64) Drift {
	d := current - target
	return Drift{Signed: d, Clamped: math.Max(d, 0)}
}

// Trade is one leg of a rebalance. Shares and Amount are signed: positive
// for buys, negative for sells. Cash legs trade at a price of 1.
type Trade struct {
	Symbol     string    `json:"symbol"`
	Kind       Kind      `json:"kind"`
	Direction  Direction `json:"direction"`
	Shares     float64   `json:"shares"`
	Price      float64   `json:"price"`
	Amount     float64   `json:"amount"`
	Commission float64   `json:"commission"`
	Drift      Drift     `json:"drift"`
}

// RebalanceEvent is the record of one executed rebalance. Weights are
// fractions of the tradable value, which excludes delisted holdings.
type RebalanceEvent struct {
	Date          time.Time          `json:"date"`
	Trades        []Trade            `json:"trades"`
	WeightsBefore map[string]float64 `json:"weights_before"`
	WeightsAfter  map[string]float64 `json:"weights_after"`
	Commission    float64            `json:"commission"`
}

// AdjustedWeights zeroes the target of excluded (delisted) assets and
// scales the rest up pro rata so the result still sums to the original
// total. The input is returned as a copy when nothing is excluded or
// nothing is left to trade.
func AdjustedWeights(targets []float64, excluded []bool) []float64 {
	out := make([]float64, len(targets))
	copy(out, targets)

	var total, gone float64
	for i, w := range targets {
		total += w
		if excluded[i] {
			gone += w
		}
	}
	if gone <= 0 || total-gone <= 0 {
		return out
	}

	scale := total / (total - gone)
	for i := range out {
		if excluded[i] {
			out[i] = 0
			continue
		}
		out[i] *= scale
	}
	return out
}

// MaybeRebalance restores target weights when the rebalance schedule fires
// on date. prices holds the valuation price of each security by AssetID;
// securities without a price are left out along with delisted ones and
// their weight is spread over the rest. Commission on the traded notional
// is taken pro rata from every tradable holding. It returns nil unless at
// least one trade was executed.
func MaybeRebalance(s *State, assets []Allocation, date time.Time, prices []float64, commission, threshold float64) *RebalanceEvent {
	if s.Rebalance == nil || !s.Rebalance.Fire(date) {
		return nil
	}

	excluded := make([]bool, len(assets))
	targets := make([]float64, len(assets))
	for _, a := range assets {
		targets[a.ID] = a.TargetWeight
		if s.Delisted[a.ID] {
			excluded[a.ID] = true
			continue
		}
		if a.Kind == Security {
			if prices[a.ID] <= 0 {
				excluded[a.ID] = true
				continue
			}
			s.LastPrice[a.ID] = prices[a.ID]
		}
	}
	if !rebalanceable(s, assets) {
		return nil
	}

	total := s.Total()
	tradable := tradableValue(s, excluded)
	if total <= 0 || tradable <= 0 {
		return nil
	}
	adjusted := AdjustedWeights(targets, excluded)

	ev := &RebalanceEvent{
		Date:          core.Day(date),
		WeightsBefore: tradableWeights(s, assets, excluded, tradable),
	}

	for _, a := range assets {
		id := a.ID
		if excluded[id] {
			continue
		}
		price := 1.0
		if a.Kind == Security {
			price = prices[id]
		}

		current := s.Value(id)
		target := adjusted[id] * tradable
		amount := target - current
		if math.Abs(amount)/total <= threshold {
			continue
		}

		t := Trade{
			Symbol:    a.Symbol,
			Kind:      a.Kind,
			Direction: Buy,
			Price:     price,
			Amount:    amount,
			Shares:    amount / price,
			Drift:     WeightDrift(current/tradable, adjusted[id]),
		}
		if amount < 0 {
			t.Direction = Sell
		}

		if a.Kind == Cash {
			s.Cash[id] = target
		} else {
			s.Shares[id] = target / price
			t.Commission = math.Abs(amount) * commission
			ev.Commission += t.Commission
		}
		ev.Trades = append(ev.Trades, t)
	}

	if len(ev.Trades) == 0 {
		return nil
	}

	if ev.Commission > 0 && ev.Commission < tradable {
		scale := (tradable - ev.Commission) / tradable
		for _, a := range assets {
			if excluded[a.ID] {
				continue
			}
			s.Shares[a.ID] *= scale
			s.Cash[a.ID] *= scale
		}
	}

	s.LastRebalance = ev.Date
	ev.WeightsAfter = tradableWeights(s, assets, excluded, tradableValue(s, excluded))
	return ev
}

// rebalanceable reports whether more than one live asset is held and at
// least one of them is a security.
func rebalanceable(s *State, assets []Allocation) bool {
	var live int
	var security bool
	for _, a := range assets {
		if s.Delisted[a.ID] || !s.Held(a.ID) {
			continue
		}
		live++
		if a.Kind == Security {
			security = true
		}
	}
	return live > 1 && security
}

func tradableValue(s *State, excluded []bool) float64 {
	var v float64
	for i, x := range excluded {
		if !x {
			v += s.Value(AssetID(i))
		}
	}
	return v
}

func tradableWeights(s *State, assets []Allocation, excluded []bool, tradable float64) map[string]float64 {
	out := make(map[string]float64, len(assets))
	if tradable <= 0 {
		return out
	}
	for _, a := range assets {
		if excluded[a.ID] {
			continue
		}
		out[a.Symbol] = s.Value(a.ID) / tradable
	}
	return out
}
