// internal/core/types_test.go
package core

import (
	"testing"
	"time"
)

func TestDay(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	in := time.Date(2024, 3, 5, 23, 30, 0, 0, loc)
	got := Day(in)
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Day() = %v, want %v", got, want)
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
	b := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)
	if got := DaysBetween(a, b); got != 60 {
		t.Errorf("DaysBetween() = %d, want 60", got)
	}
}

func TestPriceSeries_Between(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := PriceSeries{Symbol: "AAPL", Currency: "USD"}
	for i := 0; i < 10; i++ {
		s.Bars = append(s.Bars, OHLCV{Symbol: "AAPL", Close: float64(100 + i), Time: base.AddDate(0, 0, i)})
	}

	sub := s.Between(base.AddDate(0, 0, 2), base.AddDate(0, 0, 4))
	if sub.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", sub.Len())
	}
	if sub.Bars[0].Close != 102 || sub.Bars[2].Close != 104 {
		t.Errorf("unexpected bars: %+v", sub.Bars)
	}
	if sub.Currency != "USD" {
		t.Errorf("Currency = %s, want USD", sub.Currency)
	}
}

func TestPriceSeries_Sort(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := PriceSeries{Bars: []OHLCV{
		{Close: 3, Time: base.AddDate(0, 0, 2)},
		{Close: 1, Time: base},
		{Close: 2, Time: base.AddDate(0, 0, 1)},
	}}
	s.Sort()
	for i, b := range s.Bars {
		if b.Close != float64(i+1) {
			t.Errorf("bar %d close = %v, want %d", i, b.Close, i+1)
		}
	}
}

func TestCurrencyPair(t *testing.T) {
	p := CurrencyPair{Base: "EUR", Quote: "USD"}
	if p.String() != "EUR/USD" {
		t.Errorf("String() = %s", p.String())
	}
	if p.Inverse() != (CurrencyPair{Base: "USD", Quote: "EUR"}) {
		t.Errorf("Inverse() = %v", p.Inverse())
	}
}
