package domain

import "math"

// scrapPerRefined is the number of smallest tradable increments in one unit of
// refined metal. All metal prices are rounded to this grid before emission.
const scrapPerRefined = 9

// Currency is a two-denomination price: a coarse "key" unit and a fine
// "metal" unit. Converting to a single scalar requires the current
// key-to-metal pivot rate.
type Currency struct {
	Keys  float64 `json:"keys"`
	Metal float64 `json:"metal"`
}

// ToMetal collapses the price into metal using the given pivot rate
// (metal value of one key).
func (c Currency) ToMetal(pivot float64) float64 {
	return c.Keys*pivot + c.Metal
}

// IsZero reports whether both denominations are zero.
func (c Currency) IsZero() bool {
	return c.Keys == 0 && c.Metal == 0
}

// MetalToCurrency splits a scalar metal value into whole keys plus remainder
// metal, rounding the metal part to the scrap grid. A non-positive pivot
// leaves the value entirely in metal.
func MetalToCurrency(metal, pivot float64) Currency {
	if pivot <= 0 {
		return Currency{Metal: RoundMetal(metal)}
	}
	keys := math.Floor(metal / pivot)
	rem := RoundMetal(metal - keys*pivot)
	// Rounding can push the remainder up to a full key.
	if rem >= RoundMetal(pivot) && pivot > 0 {
		keys++
		rem = 0
	}
	return Currency{Keys: keys, Metal: rem}
}

// RoundMetal rounds a metal value to the nearest scrap, then to two decimals
// for display stability.
func RoundMetal(v float64) float64 {
	scrapped := math.Round(v*scrapPerRefined) / scrapPerRefined
	return math.Round(scrapped*100) / 100
}
