// Package vpd holds the psychrometric math and the control decisions derived from it.
// Every function here is pure.
package vpd

import "math"

// Tetens coefficients for saturation vapor pressure over water, kPa.
const (
	tetensA = 0.61078
	tetensB = 17.27
	tetensC = 237.3
)

// SaturationVaporPressure returns the saturated vapor pressure in kPa at temperature °C.
func SaturationVaporPressure(temperature float64) float64 {
	return tetensA * math.Exp((tetensB*temperature)/(temperature+tetensC))
}

// CalculateVPD returns the vapor pressure deficit in kPa, rounded to 2 decimals.
// Humidity outside 0-100 is not rejected.
func CalculateVPD(temperature, relativeHumidity float64) float64 {
	vpSat := SaturationVaporPressure(temperature)
	vpAir := vpSat * (relativeHumidity / 100)
	return Round(vpSat-vpAir, 2)
}

// Round rounds x half away from zero to the given number of decimals.
func Round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}
