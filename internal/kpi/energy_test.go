package kpi

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbine-wpa/internal/models"
)

func TestComputeEnergy(t *testing.T) {
	s := Series{
		Time: timesOf(6, time.Hour),
		Status: []models.Status{
			models.StatusNormal, models.StatusNormal, models.StatusNormal, models.StatusNormal,
			models.StatusStop, models.StatusUnderproduction,
		},
		Step: time.Hour,
	}
	exp := &Expected{
		Wind:      []float64{5, 6, 7, 8, 9, 7},
		Power:     []float64{100, 200, 300, 400, 0, 100},
		Estimated: []float64{100, 200, 300, 400, 500, 300},
		Model:     ModelLogistic,
	}

	e := ComputeEnergy(s, exp, time.UTC)

	assert.InDelta(t, 7.0, e.AverageWindSpeed, 1e-9)
	assert.Equal(t, 1800.0, e.ReachableEnergy)
	assert.Equal(t, 1100.0, e.RealEnergy)
	assert.Equal(t, 700.0, e.LossEnergy)
	assert.InDelta(t, 700.0/1800, *e.LossPercent, 1e-12)
	assert.Equal(t, 500.0, e.StopLoss)
	assert.Equal(t, 200.0, e.UnderProductionLoss)
	assert.Zero(t, e.CurtailmentLoss)
	assert.InDelta(t, 5.0/6, *e.Tba, 1e-12)
	assert.InDelta(t, 1100.0/1800, *e.Pba, 1e-12)
	assert.Equal(t, 3600.0, e.TimeStep)
	assert.Equal(t, 5*3600.0, e.TotalDuration)
	assert.Equal(t, 4*3600.0, e.DurationWithoutError)

	require.Len(t, e.DailyProduction, 2)
	assert.Equal(t, models.DailyProduction{Date: "2024-01-01", Energy: 300}, e.DailyProduction[0])
	assert.Equal(t, models.DailyProduction{Date: "2024-01-02", Energy: 800}, e.DailyProduction[1])

	var ind models.Indicators
	e.Apply(&ind)
	assert.Equal(t, 1, ind.TotalStopPoints)
	assert.Equal(t, 1, ind.TotalUnderProductionPoints)
	assert.Equal(t, 5, ind.UpPeriodsCount)
	assert.Equal(t, 3600.0, ind.DownPeriodsDuration)
	assert.Equal(t, ModelLogistic, ind.EnergyModel)
}

func TestComputeEnergy_LossNeverNegative(t *testing.T) {
	s := Series{
		Time:   timesOf(2, step),
		Status: []models.Status{models.StatusOverproduction, models.StatusUnderproduction},
		Step:   step,
	}
	exp := &Expected{
		Wind:      []float64{8, 8},
		Power:     []float64{1200, 900},
		Estimated: []float64{1000, 800},
	}

	e := ComputeEnergy(s, exp, nil)

	assert.Zero(t, e.LossEnergy)
	assert.Zero(t, e.UnderProductionLoss)
	assert.Equal(t, math.Max(0, e.ReachableEnergy-e.RealEnergy), e.LossEnergy)
}

func TestComputeEnergy_ErrorSamplesExcludedFromPba(t *testing.T) {
	s := Series{
		Time:   timesOf(2, step),
		Status: []models.Status{models.StatusNormal, models.StatusMeasurementError},
		Step:   step,
	}
	exp := &Expected{
		Wind:      []float64{8, 8},
		Power:     []float64{500, 10},
		Estimated: []float64{1000, 1000},
	}

	e := ComputeEnergy(s, exp, nil)

	assert.InDelta(t, 0.5, *e.Pba, 1e-12)
	require.NotNil(t, e.Tba)
	assert.Equal(t, 1.0, *e.Tba)
}

func logisticSeries(n int) Series {
	truth := Logistic5PL{A: 0, B: 4, C: 9, D: 2000, E: 1}
	s := Series{
		Time:   timesOf(n, step),
		Wind:   make([]float64, n),
		Power:  make([]float64, n),
		Status: make([]models.Status, n),
		Step:   step,
	}
	for i := 0; i < n; i++ {
		w := 3 + 12*float64(i)/float64(n-1)
		s.Wind[i] = w
		s.Power[i] = truth.Predict(w)
	}
	return s
}

func TestEstimatePower_Logistic(t *testing.T) {
	s := logisticSeries(241)

	exp, err := EstimatePower(s, nil)
	require.NoError(t, err)

	assert.Equal(t, ModelLogistic, exp.Model)
	for i := 0; i < len(s.Wind); i += 40 {
		assert.InDelta(t, s.Power[i], exp.Estimated[i], 40, "wind %.2f", s.Wind[i])
	}
}

func TestEstimatePower_FallbackToBinnedMedian(t *testing.T) {
	s := Series{
		Time:   timesOf(4, step),
		Wind:   []float64{5, 7, 9, math.NaN()},
		Power:  []float64{300, 700, 1200, 50},
		Status: []models.Status{models.StatusNormal, models.StatusNormal, models.StatusNormal, models.StatusStop},
		Step:   step,
	}

	exp, err := EstimatePower(s, nil)
	require.NoError(t, err)

	assert.Equal(t, ModelBinnedMedian, exp.Model)
	assert.Equal(t, []float64{300, 700, 1200, 1200}, exp.Estimated)
	assert.Equal(t, 9.0, exp.Wind[3], "trailing gap filled")
}

func TestEstimatePower_NoNormals(t *testing.T) {
	s := Series{
		Time:   timesOf(2, step),
		Wind:   []float64{5, 6},
		Power:  []float64{0, 0},
		Status: []models.Status{models.StatusStop, models.StatusStop},
		Step:   step,
	}
	_, err := EstimatePower(s, nil)
	assert.ErrorIs(t, err, ErrNoNormalSamples)
}

func TestFitLogistic_TooFewPoints(t *testing.T) {
	_, err := FitLogistic([]float64{1, 2}, []float64{3, 4})
	assert.ErrorIs(t, err, ErrNotConverged)
}

func TestCapacityFactor(t *testing.T) {
	out := CapacityFactor([]float64{5.0, 5.1, 0}, []float64{500, 520, 0}, []int{0, 1, 2}, 100)

	require.Len(t, out, 1)
	assert.Equal(t, 5.0, out[0].WindSpeed)
	assert.InDelta(t, 510/(0.6125*100*5.05), out[0].CapacityFactor, 1e-12)
}

func TestNormalizeAngle(t *testing.T) {
	assert.Equal(t, -170.0, NormalizeAngle(190))
	assert.Equal(t, 180.0, NormalizeAngle(-180))
	assert.Equal(t, 180.0, NormalizeAngle(180))
	assert.Equal(t, 10.0, NormalizeAngle(370))
}

func TestYawMisalignment(t *testing.T) {
	y, err := YawMisalignment([]float64{10, 20, 350, math.NaN()}, []float64{0, 0, 0, 5}, 10)
	require.NoError(t, err)
	require.NotNil(t, y)

	assert.Len(t, y.BinEdges, 37)
	assert.Len(t, y.Counts, 36)
	assert.Equal(t, 1, y.Counts[19])
	assert.Equal(t, 1, y.Counts[20])
	assert.Equal(t, 1, y.Counts[17])
	assert.InDelta(t, 20.0/3, y.Mean, 1e-9)
	assert.Equal(t, 10.0, y.Median)
	assert.InDelta(t, math.Sqrt(1400.0/9), y.StdDev, 1e-9)

	_, err = YawMisalignment(nil, nil, 7)
	assert.Error(t, err)

	y, err = YawMisalignment(nil, []float64{1}, 5)
	assert.NoError(t, err)
	assert.Nil(t, y)
}
