package parser

// DefaultUnitPriceCeiling is the highest per-kg/per-liter price accepted as plausible.
const DefaultUnitPriceCeiling = 200.0

// UnitPrice is a price per base unit.
type UnitPrice struct {
	Value float64
	Base  BaseUnit
}

// UnitPricer derives sanity-checked unit prices.
type UnitPricer struct {
	Ceiling float64
}

func NewUnitPricer(ceiling float64) *UnitPricer {
	if ceiling <= 0 {
		ceiling = DefaultUnitPriceCeiling
	}
	return &UnitPricer{Ceiling: ceiling}
}

// Derive divides price by the packaging quantity and rounds to cents.
// Results that are non-positive or above the ceiling are rejected; a misread
// amount ("1" instead of "1 kg") tends to produce exactly those.
func (u *UnitPricer) Derive(price float64, packaging string) (UnitPrice, bool) {
	q, ok := ParseQuantity(packaging)
	if !ok || q.Amount <= 0 {
		return UnitPrice{}, false
	}

	v := Round2(price / q.Amount)
	if v <= 0 || v > u.Ceiling {
		return UnitPrice{}, false
	}
	return UnitPrice{Value: v, Base: q.Base}, true
}

// DeriveUnitPrice uses the default ceiling.
func DeriveUnitPrice(price float64, packaging string) (UnitPrice, bool) {
	return NewUnitPricer(DefaultUnitPriceCeiling).Derive(price, packaging)
}
