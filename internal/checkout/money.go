package checkout

import (
	"strings"

	"github.com/shopspring/decimal"
)

const defaultCurrency = "usd"

// zeroDecimalCurrencies are charged in whole units by the processor.
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true,
	"kmf": true, "krw": true, "mga": true, "pyg": true, "rwf": true,
	"ugx": true, "vnd": true, "vuv": true, "xaf": true, "xof": true,
	"xpf": true,
}

// NormalizeCurrency lower-cases the code and defaults to usd.
func NormalizeCurrency(currency string) string {
	c := strings.ToLower(strings.TrimSpace(currency))
	if c == "" {
		return defaultCurrency
	}
	return c
}

func exponent(currency string) int32 {
	if zeroDecimalCurrencies[NormalizeCurrency(currency)] {
		return 0
	}
	return 2
}

// MinorToMajor converts processor minor units to the stored major amount.
func MinorToMajor(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -exponent(currency))
}

// MajorToMinor converts a stored major amount back to minor units.
func MajorToMinor(major decimal.Decimal, currency string) int64 {
	return major.Shift(exponent(currency)).Round(0).IntPart()
}
