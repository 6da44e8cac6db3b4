package model

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in a currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

// CurrencyExponent returns the number of minor-unit digits of a currency.
func CurrencyExponent(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// IsExact reports whether the amount has no digits below the currency's smallest unit.
func (m Money) IsExact() bool {
	shifted := m.Amount.Shift(CurrencyExponent(m.Currency))
	return shifted.Equal(shifted.Truncate(0))
}

// FitsMinorUnits reports whether MinorUnits can hold the amount without overflow.
func (m Money) FitsMinorUnits() bool {
	return m.Amount.Shift(CurrencyExponent(m.Currency)).Abs().LessThanOrEqual(maxMinorUnits)
}

// MinorUnits converts the amount to the currency's smallest unit, rounding half away from zero.
func (m Money) MinorUnits() int64 {
	return m.Amount.Shift(CurrencyExponent(m.Currency)).Round(0).IntPart()
}

// MajorString formats the amount with the currency's precision, e.g. "12.30".
func (m Money) MajorString() string {
	return m.Amount.StringFixed(CurrencyExponent(m.Currency))
}

// FromMinorUnits converts a smallest-unit amount back to Money.
func FromMinorUnits(units int64, currency string) Money {
	return Money{
		Amount:   decimal.New(units, -CurrencyExponent(currency)),
		Currency: strings.ToUpper(currency),
	}
}
