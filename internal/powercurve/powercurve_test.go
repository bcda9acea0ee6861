package powercurve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurve_HalfMeterMeans(t *testing.T) {
	wind := []float64{0.3, 0.5, 0.6, 0.74, 0.76, 12}
	power := []float64{10, 20, 30, 50, 100, 2000}

	c := Curve(wind, power, []int{0, 1, 2, 3, 4, 5})

	require.Len(t, c, 3)
	assert.Equal(t, 0.5, c[0].WindSpeed)
	assert.InDelta(t, 27.5, c[0].ActivePower, 1e-9)
	assert.Equal(t, 4, c[0].Count)
	assert.Equal(t, 1.0, c[1].WindSpeed)
	assert.Equal(t, 100.0, c[1].ActivePower)
	assert.Equal(t, 12.0, c[2].WindSpeed)
}

func TestBuild_Groupings(t *testing.T) {
	times := []time.Time{
		time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 17, 0, 0, 0, time.UTC),
	}
	wind := []float64{5, 5, 8, 8}
	power := []float64{200, 300, 900, 1100}

	pc := Build(times, wind, power, []int{0, 1, 2, 3}, time.UTC)

	global := GlobalCurve(pc)
	require.Len(t, global, 2)
	assert.Equal(t, 250.0, global[0].ActivePower)
	assert.Equal(t, 1000.0, global[1].ActivePower)

	assert.Contains(t, pc[Yearly], "2023")
	assert.Contains(t, pc[Yearly], "2024")
	assert.Len(t, pc[Quarterly]["2"], 1)
	assert.Len(t, pc[Monthly]["12"], 1)
	assert.Equal(t, 300.0, pc[Monthly]["1"][0].ActivePower)
	assert.Len(t, pc[DayNight]["night"], 1)
	assert.Len(t, pc[DayNight]["day"], 2)
}

func TestBuild_LocalTimeZone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	// 16:00 UTC соответствует 19:00 по местному времени
	times := []time.Time{time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)}

	pc := Build(times, []float64{6}, []float64{500}, []int{0}, loc)

	assert.Contains(t, pc[DayNight], "night")
	assert.NotContains(t, pc[DayNight], "day")
}
