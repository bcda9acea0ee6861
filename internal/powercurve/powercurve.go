package powercurve

import (
	"math"
	"strconv"
	"time"

	"turbine-wpa/internal/analytics"
	"turbine-wpa/internal/models"
)

// Группировки кривых мощности
const (
	Global    = "global"
	Yearly    = "yearly"
	Quarterly = "quarterly"
	Monthly   = "monthly"
	DayNight  = "day_night"

	// GlobalKey единственный ключ глобальной группы
	GlobalKey = "all"

	dayStartHour = 6
	dayEndHour   = 18
)

var groupings = []struct {
	name string
	key  func(time.Time) string
}{
	{Global, func(time.Time) string { return GlobalKey }},
	{Yearly, func(t time.Time) string { return strconv.Itoa(t.Year()) }},
	{Quarterly, func(t time.Time) string { return strconv.Itoa((int(t.Month())-1)/3 + 1) }},
	{Monthly, func(t time.Time) string { return strconv.Itoa(int(t.Month())) }},
	{DayNight, dayOrNight},
}

func dayOrNight(t time.Time) string {
	if h := t.Hour(); h >= dayStartHour && h < dayEndHour {
		return "day"
	}
	return "night"
}

// Build кривые для строк idx по всем группировкам; время переводится в loc
func Build(times []time.Time, wind, power []float64, idx []int, loc *time.Location) models.PowerCurves {
	if loc == nil {
		loc = time.UTC
	}
	out := make(models.PowerCurves, len(groupings))
	for _, g := range groupings {
		groups := make(map[string][]int)
		for _, i := range idx {
			k := g.key(times[i].In(loc))
			groups[k] = append(groups[k], i)
		}
		curves := make(map[string][]models.CurvePoint, len(groups))
		for k, members := range groups {
			if c := Curve(wind, power, members); len(c) > 0 {
				curves[k] = c
			}
		}
		out[g.name] = curves
	}
	return out
}

// Curve средняя мощность по интервалам 0.5 м/с (центры 0.5, 1.0, ...)
func Curve(wind, power []float64, idx []int) []models.CurvePoint {
	bins := analytics.HalfMeterBins(wind, idx)
	out := make([]models.CurvePoint, 0, len(bins))
	for _, b := range bins {
		p := analytics.Mean(analytics.At(power, b.Members))
		if math.IsNaN(p) {
			continue
		}
		out = append(out, models.CurvePoint{
			WindSpeed:   b.Center,
			ActivePower: p,
			Count:       len(b.Members),
		})
	}
	return out
}

// GlobalCurve глобальная кривая из набора кривых
func GlobalCurve(pc models.PowerCurves) []models.CurvePoint {
	return pc[Global][GlobalKey]
}
