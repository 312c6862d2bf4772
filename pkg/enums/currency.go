package enums

import (
	"fmt"
	"slices"
	"strings"
)

// Currency is an ISO 4217 code.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCAD Currency = "CAD"
	CurrencyAUD Currency = "AUD"
	CurrencyJPY Currency = "JPY"
	CurrencyMXN Currency = "MXN"
	CurrencyINR Currency = "INR"
)

var knownCurrencies = []Currency{
	CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyCAD,
	CurrencyAUD, CurrencyJPY, CurrencyMXN, CurrencyINR,
}

var currencySymbols = map[string]Currency{
	"$":   CurrencyUSD,
	"US$": CurrencyUSD,
	"€":   CurrencyEUR,
	"£":   CurrencyGBP,
	"C$":  CurrencyCAD,
	"CA$": CurrencyCAD,
	"A$":  CurrencyAUD,
	"¥":   CurrencyJPY,
	"MX$": CurrencyMXN,
	"₹":   CurrencyINR,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the value has the shape of an ISO 4217 code.
func (c Currency) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// IsKnown reports whether c is one of the declared currencies.
func (c Currency) IsKnown() bool {
	return slices.Contains(knownCurrencies, c)
}

// ParseCurrency accepts a three letter code in any case or a common symbol.
func ParseCurrency(value string) (Currency, error) {
	raw := strings.TrimSpace(value)
	if c, ok := currencySymbols[strings.ToUpper(raw)]; ok {
		return c, nil
	}
	c := Currency(strings.ToUpper(raw))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid currency %q", value)
	}
	return c, nil
}

// ParseKnownCurrency is ParseCurrency restricted to the declared currencies.
// Configured defaults go through it; extracted data keeps the open-ended parse.
func ParseKnownCurrency(value string) (Currency, error) {
	c, err := ParseCurrency(value)
	if err != nil {
		return "", err
	}
	if !c.IsKnown() {
		return "", fmt.Errorf("unsupported currency %q", value)
	}
	return c, nil
}
