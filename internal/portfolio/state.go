package portfolio

import (
	"time"

	"github.com/newthinker/portsim/internal/schedule"
)

// State is the mutable position of one run, indexed by AssetID.
type State struct {
	Shares    []float64
	Cash      []float64
	Executed  []int  // purchases made per asset
	Purchased []bool // initial purchase done

	Delisted  []bool
	LastPrice []float64
	LastSeen  []time.Time

	Anchor        schedule.Anchor
	LastRebalance time.Time
	Rebalance     *schedule.Tracker
	DCA           []*schedule.Tracker
}

// NewState returns an empty state for n assets.
func NewState(n int) *State {
	return &State{
		Shares:    make([]float64, n),
		Cash:      make([]float64, n),
		Executed:  make([]int, n),
		Purchased: make([]bool, n),
		Delisted:  make([]bool, n),
		LastPrice: make([]float64, n),
		LastSeen:  make([]time.Time, n),
		DCA:       make([]*schedule.Tracker, n),
	}
}

// Value returns the current value of one asset. Securities are valued at
// their last valid price, which is frozen once delisted.
func (s *State) Value(id AssetID) float64 {
	return s.Shares[id]*s.LastPrice[id] + s.Cash[id]
}

// Total returns the value of every holding.
func (s *State) Total() float64 {
	var v float64
	for i := range s.Shares {
		v += s.Value(AssetID(i))
	}
	return v
}

// Frozen returns the value held in delisted assets.
func (s *State) Frozen() float64 {
	var v float64
	for i, d := range s.Delisted {
		if d {
			v += s.Value(AssetID(i))
		}
	}
	return v
}

// Held reports whether the asset has a position.
func (s *State) Held(id AssetID) bool {
	return s.Shares[id] > 0 || s.Cash[id] > 0
}
