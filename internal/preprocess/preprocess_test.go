package preprocess

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbine-wpa/internal/models"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func uniformFrame(n int, step time.Duration) *models.Frame {
	f := &models.Frame{
		Time:  make([]time.Time, n),
		Wind:  make([]float64, n),
		Power: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		f.Time[i] = t0.Add(time.Duration(i) * step)
		f.Wind[i] = 5 + float64(i%7)
		f.Power[i] = 100 * float64(i%7)
	}
	return f
}

func TestPrepare_UniformSeriesUnchanged(t *testing.T) {
	in := uniformFrame(50, TargetStep)
	out, err := New(Options{}, nil).Prepare(in)
	require.NoError(t, err)
	require.Equal(t, in.Len(), out.Len())
	assert.Equal(t, in.Time, out.Time)
	assert.Equal(t, in.Wind, out.Wind)
	assert.Equal(t, in.Power, out.Power)
}

func TestPrepare_DeduplicateKeepsFirstAndSorts(t *testing.T) {
	f := &models.Frame{
		Time:  []time.Time{t0.Add(20 * time.Minute), t0, t0.Add(10 * time.Minute), t0},
		Wind:  []float64{3, 1, 2, 99},
		Power: []float64{30, 10, 20, 990},
	}
	out, err := New(Options{}, nil).Prepare(f)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, out.Wind)
}

func TestPrepare_ResampleFinerSeries(t *testing.T) {
	in := uniformFrame(60, time.Minute)
	for i := range in.Wind {
		in.Wind[i] = float64(i)
	}
	out, err := New(Options{}, nil).Prepare(in)
	require.NoError(t, err)
	require.Equal(t, 6, out.Len())
	assert.Equal(t, t0, out.Time[0])
	assert.InDelta(t, 4.5, out.Wind[0], 1e-12)
	assert.InDelta(t, 54.5, out.Wind[5], 1e-12)
}

func TestPrepare_ResolutionTooLow(t *testing.T) {
	_, err := New(Options{}, nil).Prepare(uniformFrame(10, 30*time.Minute))
	require.True(t, errors.Is(err, ErrResolutionTooLow))

	_, err = New(Options{}, nil).Prepare(uniformFrame(10, 2*time.Hour))
	require.True(t, errors.Is(err, ErrResolutionTooLow))
}

func TestPrepare_GapsBecomeNaN(t *testing.T) {
	in := uniformFrame(10, TargetStep)
	idx := []int{0, 1, 2, 3, 6, 7, 8, 9}
	out, err := New(Options{}, nil).Prepare(in.Subset(idx))
	require.NoError(t, err)
	require.Equal(t, 10, out.Len())
	assert.True(t, math.IsNaN(out.Wind[4]))
	assert.True(t, math.IsNaN(out.Power[5]))
	assert.Equal(t, in.Wind[6], out.Wind[6])
}

func TestPrepare_TemperatureCelsiusAndOutliers(t *testing.T) {
	in := uniformFrame(40, TargetStep)
	in.Temperature = make([]float64, 40)
	for i := range in.Temperature {
		in.Temperature[i] = 10
	}
	in.Temperature[20] = 120 // 393 K после перевода

	out, err := New(Options{}, nil).Prepare(in)
	require.NoError(t, err)
	assert.InDelta(t, 283.15, out.Temperature[0], 1e-9)
	assert.InDelta(t, 283.15, out.Temperature[20], 1e-9)
}

func TestPrepare_HumidityPercentAndPressure(t *testing.T) {
	in := uniformFrame(30, TargetStep)
	in.Humidity = make([]float64, 30)
	in.Pressure = make([]float64, 30)
	for i := range in.Humidity {
		in.Humidity[i] = 60
		in.Pressure[i] = 101325
	}
	in.Pressure[3] = 10

	out, err := New(Options{}, nil).Prepare(in)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, out.Humidity[0], 1e-12)
	assert.InDelta(t, 101325, out.Pressure[3], 1e-9)
}

func TestResolution_TiesPickSmaller(t *testing.T) {
	times := []time.Time{t0, t0.Add(5 * time.Minute), t0.Add(15 * time.Minute)}
	assert.Equal(t, 5*time.Minute, Resolution(times))
}

func TestAirDensity(t *testing.T) {
	f := uniformFrame(2, TargetStep)

	rho := New(Options{FallbackDensity: 1.2}, nil).AirDensity(f)
	assert.Equal(t, []float64{1.2, 1.2}, rho)

	temp, pres, hum := 288.15, 101325.0, 0.0
	rho = New(Options{AmbientTemperature: &temp, AmbientPressure: &pres, AmbientHumidity: &hum}, nil).AirDensity(f)
	assert.InDelta(t, 1.2250, rho[0], 1e-3)

	f.Temperature = []float64{288.15, 288.15}
	f.Pressure = []float64{101325, 101325}
	f.Humidity = []float64{0.5, 0.5}
	rho = New(Options{}, nil).AirDensity(f)
	assert.Less(t, rho[0], 1.2250)
}

func TestNormalize(t *testing.T) {
	w, p := Normalize([]float64{10}, []float64{1000}, []float64{1.225 * 8})
	assert.InDelta(t, 20, w[0], 1e-9)
	assert.InDelta(t, 125, p[0], 1e-9)

	w, p = Normalize([]float64{10}, []float64{1000}, []float64{math.NaN()})
	assert.Equal(t, 10.0, w[0])
	assert.Equal(t, 1000.0, p[0])
}

func TestImputeOutOfRange(t *testing.T) {
	values := []float64{1, 2, 100, 4, math.NaN()}
	n := ImputeOutOfRange(values, 0, 10, 2)
	assert.Equal(t, 1, n)
	assert.InDelta(t, 3, values[2], 1e-12)
	assert.True(t, math.IsNaN(values[4]))
}
