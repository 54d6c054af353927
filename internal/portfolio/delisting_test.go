package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckAndFreeze(t *testing.T) {
	s := NewState(1)
	s.Shares[0] = 10

	assert.False(t, CheckAndFreeze(s, 0, date(2024, 1, 2), true, 50, 3))
	assert.Equal(t, 50.0, s.LastPrice[0])

	assert.False(t, CheckAndFreeze(s, 0, date(2024, 1, 4), false, 0, 3), "within grace")
	assert.True(t, CheckAndFreeze(s, 0, date(2024, 1, 5), false, 0, 3), "three days without a price")
	assert.True(t, s.Delisted[0])
	assert.Equal(t, 50.0, s.LastPrice[0], "valuation frozen at last valid price")
	assert.InDelta(t, 500.0, s.Value(0), 1e-9)

	// never reinstated
	assert.False(t, CheckAndFreeze(s, 0, date(2024, 1, 9), true, 80, 3))
	assert.True(t, s.Delisted[0])
	assert.Equal(t, 50.0, s.LastPrice[0])
}

func TestCheckAndFreeze_StrictSameDay(t *testing.T) {
	s := NewState(1)
	s.Shares[0] = 1
	CheckAndFreeze(s, 0, date(2024, 1, 2), true, 10, 0)

	assert.True(t, CheckAndFreeze(s, 0, date(2024, 1, 3), false, 0, 0))
}

func TestCheckAndFreeze_RequiresHoldingAndHistory(t *testing.T) {
	s := NewState(2)

	// never observed
	s.Shares[0] = 5
	assert.False(t, CheckAndFreeze(s, 0, date(2024, 3, 1), false, 0, 0))

	// observed but not held
	CheckAndFreeze(s, 1, date(2024, 1, 2), true, 10, 0)
	assert.False(t, CheckAndFreeze(s, 1, date(2024, 3, 1), false, 0, 0))
	assert.False(t, s.Delisted[1])
}

func TestCheckAndFreeze_IgnoresNonPositivePrice(t *testing.T) {
	s := NewState(1)
	s.Shares[0] = 1
	CheckAndFreeze(s, 0, date(2024, 1, 2), true, 10, 5)
	CheckAndFreeze(s, 0, date(2024, 1, 3), true, 0, 5)

	assert.Equal(t, 10.0, s.LastPrice[0])
	assert.Equal(t, date(2024, 1, 2), s.LastSeen[0])
}
