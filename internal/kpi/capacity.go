package kpi

import (
	"math"

	"turbine-wpa/internal/analytics"
	"turbine-wpa/internal/models"
)

// halfAirDensity 0.5·ρ при стандартной плотности 1.225
const halfAirDensity = 0.6125

// CapacityFactor по интервалам 0.5 м/с: mean(P) / (0.6125·A·mean(V)).
// Скорость входит в первой степени.
func CapacityFactor(wind, power []float64, idx []int, sweptArea float64) []models.CapacityFactorBin {
	bins := analytics.HalfMeterBins(wind, idx)
	out := make([]models.CapacityFactorBin, 0, len(bins))
	for _, b := range bins {
		v := analytics.Mean(analytics.At(wind, b.Members))
		p := analytics.Mean(analytics.At(power, b.Members))
		cf := p / (halfAirDensity * sweptArea * v)
		if math.IsNaN(cf) || math.IsInf(cf, 0) {
			continue
		}
		out = append(out, models.CapacityFactorBin{WindSpeed: b.Center, CapacityFactor: cf})
	}
	return out
}
