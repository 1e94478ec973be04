// Package units tags measurement columns with their physical unit and converts
// values into the canonical units used for aggregation (°C, km/h, mm).
package units

import "fmt"

type Unit int

const (
	Unknown Unit = iota
	Celsius
	Fahrenheit
	KilometresPerHour
	MilesPerHour
	MetresPerSecond
	Millimetres
	Inches
)

const (
	mphToKmh  = 1.60934
	msToKmh   = 3.6
	inchToMM  = 25.4
	fToCScale = 5.0 / 9.0
)

func (u Unit) String() string {
	switch u {
	case Celsius:
		return "°C"
	case Fahrenheit:
		return "°F"
	case KilometresPerHour:
		return "km/h"
	case MilesPerHour:
		return "mph"
	case MetresPerSecond:
		return "m/s"
	case Millimetres:
		return "mm"
	case Inches:
		return "in"
	default:
		return "unknown"
	}
}

// Conversion is a linear transform applied as v*Scale + Offset. The same
// coefficients are used in Go and in cache SQL so both paths agree.
type Conversion struct {
	Scale  float64
	Offset float64
}

// Identity leaves values unchanged.
var Identity = Conversion{Scale: 1}

// Apply returns v*Scale + Offset. The explicit conversion prevents fused
// multiply-add so results match SQLite.
func (c Conversion) Apply(v float64) float64 {
	return float64(v*c.Scale) + c.Offset
}

func (c Conversion) IsIdentity() bool {
	return c.Scale == 1 && c.Offset == 0
}

func (c Conversion) String() string {
	if c.IsIdentity() {
		return "identity"
	}
	return fmt.Sprintf("v*%g%+g", c.Scale, c.Offset)
}

// ToCanonical returns the conversion from u to its canonical unit. Unknown and
// already-canonical units map to Identity.
func (u Unit) ToCanonical() Conversion {
	switch u {
	case Fahrenheit:
		return Conversion{Scale: fToCScale, Offset: -32 * fToCScale}
	case MilesPerHour:
		return Conversion{Scale: mphToKmh}
	case MetresPerSecond:
		return Conversion{Scale: msToKmh}
	case Inches:
		return Conversion{Scale: inchToMM}
	default:
		return Identity
	}
}

func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

func InchesToMillimetres(in float64) float64 {
	return in * inchToMM
}

func MphToKmh(mph float64) float64 {
	return mph * mphToKmh
}
