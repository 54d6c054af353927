package fx

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Rhymond/go-money"

	"github.com/newthinker/portsim/internal/core"
)

// USD is the default reporting currency.
const USD = "USD"

// Currencies quoted as units of USD per one unit of the currency (EUR/USD).
var usdQuoted = map[string]bool{
	"EUR": true,
	"GBP": true,
	"AUD": true,
	"CAD": true,
	"CHF": true,
}

// Currencies quoted as units of the currency per one USD (USD/KRW).
var usdBased = map[string]bool{
	"KRW": true,
	"JPY": true,
	"CNY": true,
	"HKD": true,
	"TWD": true,
	"SGD": true,
	"INR": true,
}

// Supported returns the currencies with a known USD quoting convention.
func Supported() []string {
	out := []string{USD}
	for c := range usdQuoted {
		out = append(out, c)
	}
	for c := range usdBased {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Normalize upper-cases a currency code and checks it against ISO 4217.
func Normalize(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", core.WrapError(core.ErrConfigInvalid, fmt.Errorf("empty currency code"))
	}
	if money.GetCurrency(code) == nil {
		return "", core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown currency %q", code))
	}
	return code, nil
}

// PairFor returns the conventional pair used to convert native amounts into
// the reporting currency. USD reporting follows the market quoting
// convention of each supported currency; other reporting currencies use
// NATIVE/REPORTING.
func PairFor(native, reporting string) (core.CurrencyPair, error) {
	n, err := Normalize(native)
	if err != nil {
		return core.CurrencyPair{}, err
	}
	r, err := Normalize(reporting)
	if err != nil {
		return core.CurrencyPair{}, err
	}
	if n == r {
		return core.CurrencyPair{Base: n, Quote: r}, nil
	}

	switch {
	case r == USD && usdQuoted[n]:
		return core.CurrencyPair{Base: n, Quote: USD}, nil
	case r == USD && usdBased[n]:
		return core.CurrencyPair{Base: USD, Quote: n}, nil
	case r == USD:
		return core.CurrencyPair{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unsupported currency %s", n))
	default:
		return core.CurrencyPair{Base: n, Quote: r}, nil
	}
}

// YahooSymbol returns the Yahoo Finance ticker for a pair: "EURUSD=X" for
// EUR/USD, "KRW=X" for USD/KRW.
func YahooSymbol(p core.CurrencyPair) string {
	if p.Base == USD {
		return p.Quote + "=X"
	}
	return p.Base + p.Quote + "=X"
}
