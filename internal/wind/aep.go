package wind

import (
	"math"
	"strconv"

	"turbine-wpa/internal/models"
)

const (
	// HoursPerYear часов в году для AEP
	HoursPerYear = 8760.0
	binWidth     = 0.5
)

// RayleighMeans средние скорости, для которых считается AEP по Рэлею
var RayleighMeans = []int{4, 5, 6, 7, 8, 9, 10, 11}

// RayleighCDF функция распределения Рэлея со средним mean
func RayleighCDF(v, mean float64) float64 {
	if v <= 0 {
		return 0
	}
	return 1 - math.Exp(-math.Pi/4*(v/mean)*(v/mean))
}

// AEP сумма трапеций: Σ [F(v_i) − F(v_i − 0.5)]·(P_{i−1} + P_i)/2 × 8760,
// где P_{−1} = 0
func AEP(centers, power []float64, cdf func(float64) float64) float64 {
	sum := 0.0
	prev := 0.0
	for i, v := range centers {
		sum += (cdf(v) - cdf(v-binWidth)) * (prev + power[i]) / 2
		prev = power[i]
	}
	return sum * HoursPerYear
}

// Extrapolate продолжает кривую шагом 0.5 м/с от первого центра до V_cutout,
// пропуски заполняются последним известным значением
func Extrapolate(curve []models.CurvePoint, vCutout float64) (centers, power []float64) {
	if len(curve) == 0 {
		return nil, nil
	}
	first := curve[0].WindSpeed
	known := make(map[int]float64, len(curve))
	for _, p := range curve {
		known[int(math.Round((p.WindSpeed-first)/binWidth))] = p.ActivePower
	}

	last := curve[0].ActivePower
	for k := 0; first+float64(k)*binWidth <= vCutout+1e-9; k++ {
		if p, ok := known[k]; ok {
			last = p
		}
		centers = append(centers, first+float64(k)*binWidth)
		power = append(power, last)
	}
	return centers, power
}

// Estimate оценки годовой выработки по измеренной и продолженной кривой
type Estimate struct {
	Measured     map[string]float64
	Extrapolated map[string]float64

	// Weibull NaN, если распределение не оценено
	Weibull float64
}

// ComputeAEP AEP по Рэлею для средних 4..11 м/с и по подобранному Вейбуллу
func ComputeAEP(curve []models.CurvePoint, vCutout float64, w *Weibull) Estimate {
	measuredV := make([]float64, len(curve))
	measuredP := make([]float64, len(curve))
	for i, p := range curve {
		measuredV[i], measuredP[i] = p.WindSpeed, p.ActivePower
	}
	extV, extP := Extrapolate(curve, vCutout)

	est := Estimate{
		Measured:     make(map[string]float64, len(RayleighMeans)),
		Extrapolated: make(map[string]float64, len(RayleighMeans)),
		Weibull:      math.NaN(),
	}
	for _, m := range RayleighMeans {
		mean := float64(m)
		cdf := func(v float64) float64 { return RayleighCDF(v, mean) }
		key := strconv.Itoa(m)
		est.Measured[key] = AEP(measuredV, measuredP, cdf)
		est.Extrapolated[key] = AEP(extV, extP, cdf)
	}
	if w != nil {
		est.Weibull = AEP(extV, extP, w.CDF)
	}
	return est
}
