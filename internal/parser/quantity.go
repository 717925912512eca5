package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	multipackPattern = regexp.MustCompile(`(?i)(\d+)\s*[x×]\s*(\d+(?:[.,]\d+)?)\s*(kg|g|l|ml|cl|dl)\b`)
	singlePattern    = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(kg|g|l|ml|cl|dl)\b`)
)

// Quantity is a packaging size expressed in its base unit.
type Quantity struct {
	Amount float64
	Base   BaseUnit
}

type unitFactor struct {
	base   BaseUnit
	factor float64
}

var unitTable = map[string]unitFactor{
	"kg": {Kilogram, 1},
	"g":  {Kilogram, 0.001},
	"l":  {Liter, 1},
	"ml": {Liter, 0.001},
	"cl": {Liter, 0.01},
	"dl": {Liter, 0.1},
}

// ToBase converts value expressed in unit into kilograms or liters.
func ToBase(value float64, unit string) (float64, BaseUnit, error) {
	f, ok := unitTable[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return 0, "", fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	return value * f.factor, f.base, nil
}

// ParseQuantity recognizes "2 x 500 ml" style multipacks first and single sizes ("1,5 l") second.
// ok is false when no grammar matches, which is a miss rather than a failure.
func ParseQuantity(text string) (q Quantity, ok bool) {
	t := strings.TrimSpace(strings.ReplaceAll(strings.ToLower(text), "\u00a0", " "))
	if t == "" {
		return Quantity{}, false
	}

	if m := multipackPattern.FindStringSubmatch(t); m != nil {
		count, err := strconv.Atoi(m[1])
		if err != nil {
			return Quantity{}, false
		}
		each, err := ParseNumber(m[2])
		if err != nil {
			return Quantity{}, false
		}
		amount, base, err := ToBase(each, m[3])
		if err != nil {
			return Quantity{}, false
		}
		return Quantity{Amount: float64(count) * amount, Base: base}, true
	}

	if m := singlePattern.FindStringSubmatch(t); m != nil {
		v, err := ParseNumber(m[1])
		if err != nil {
			return Quantity{}, false
		}
		amount, base, err := ToBase(v, m[2])
		if err != nil {
			return Quantity{}, false
		}
		return Quantity{Amount: amount, Base: base}, true
	}

	return Quantity{}, false
}
