package wind

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbine-wpa/internal/models"
)

func TestFitWeibull_RecoversParameters(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	speeds := make([]float64, 20000)
	for i := range speeds {
		u := 1 - rng.Float64()
		speeds[i] = 8 * math.Pow(-math.Log(u), 1/2.0)
	}

	w, err := FitWeibull(speeds)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, w.Shape, 0.05)
	assert.InDelta(t, 8.0, w.Scale, 0.1)
}

func TestFitWeibull_IgnoresNonPositive(t *testing.T) {
	w1, err := FitWeibull([]float64{3, 5, 7, 9, 11})
	require.NoError(t, err)
	w2, err := FitWeibull([]float64{0, 3, -1, 5, 7, math.NaN(), 9, 11})
	require.NoError(t, err)

	assert.InDelta(t, w1.Shape, w2.Shape, 1e-9)
	assert.InDelta(t, w1.Scale, w2.Scale, 1e-9)
}

func TestFitWeibull_Errors(t *testing.T) {
	_, err := FitWeibull(nil)
	assert.ErrorIs(t, err, ErrWeibullFit)

	_, err = FitWeibull([]float64{6, 6, 6})
	assert.ErrorIs(t, err, ErrWeibullFit)
}

func TestRayleighCDF(t *testing.T) {
	assert.Equal(t, 0.0, RayleighCDF(0, 8))
	assert.InDelta(t, 1-math.Exp(-math.Pi/4), RayleighCDF(8, 8), 1e-12)
	assert.Less(t, RayleighCDF(5, 8), RayleighCDF(6, 8))
}

func TestAEP_ConstantPower(t *testing.T) {
	var centers, power []float64
	for v := 0.5; v <= 30; v += 0.5 {
		centers = append(centers, v)
		power = append(power, 1000)
	}
	cdf := func(v float64) float64 { return RayleighCDF(v, 8) }

	want := HoursPerYear * 1000 * (cdf(30) - cdf(0.5)/2)
	assert.InDelta(t, want, AEP(centers, power, cdf), 1e-6*want)
}

func TestExtrapolate(t *testing.T) {
	curve := []models.CurvePoint{{WindSpeed: 1, ActivePower: 100}, {WindSpeed: 2, ActivePower: 300}}

	centers, power := Extrapolate(curve, 3)

	assert.Equal(t, []float64{1, 1.5, 2, 2.5, 3}, centers)
	assert.Equal(t, []float64{100, 100, 300, 300, 300}, power)

	centers, power = Extrapolate(nil, 25)
	assert.Nil(t, centers)
	assert.Nil(t, power)
}

func TestComputeAEP(t *testing.T) {
	var curve []models.CurvePoint
	for v := 3.0; v <= 12; v += 0.5 {
		curve = append(curve, models.CurvePoint{WindSpeed: v, ActivePower: math.Min(2000, 2000*math.Pow((v-3)/9, 3))})
	}

	est := ComputeAEP(curve, 25, nil)
	require.Len(t, est.Measured, 8)
	require.Len(t, est.Extrapolated, 8)
	assert.True(t, math.IsNaN(est.Weibull))
	assert.Greater(t, est.Extrapolated["8"], est.Measured["8"])
	assert.Greater(t, est.Measured["11"], est.Measured["4"])

	est = ComputeAEP(curve, 25, &Weibull{Shape: 2, Scale: 9})
	assert.Greater(t, est.Weibull, 0.0)
}
