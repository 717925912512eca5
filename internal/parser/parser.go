package parser

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrParse       = errors.New("unparsable numeric text")
	ErrUnknownUnit = errors.New("unknown unit")
)

// BaseUnit is the normalized unit every packaging quantity is converted into.
type BaseUnit string

const (
	Kilogram BaseUnit = "kg"
	Liter    BaseUnit = "l"
)

// Round2 rounds to two decimals, half away from zero.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Round2Ptr is Round2 for optional values.
func Round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := Round2(*v)
	return &r
}

// FromCents converts an integer amount of cents (1399) to a currency value (13.99).
func FromCents(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}
