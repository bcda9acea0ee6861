package classifier

import (
	"math"

	"turbine-wpa/internal/models"
)

const (
	maxValidWind   = 32.0
	cutMargin      = 1.0
	maxWindJump    = 10.0
	frozenRunLimit = 6
)

// TagErrors первичная разметка: STOP по мощности и ошибки измерений.
// Возвращает статусы и копии ветра/мощности, где у отсчетов со скачком
// ветра значения обнулены в NaN. Остальные отсчеты остаются UNKNOWN.
func TagErrors(f *models.Frame, c models.Constants) (status []models.Status, wind, power []float64) {
	n := f.Len()
	status = make([]models.Status, n)
	wind = make([]float64, n)
	power = make([]float64, n)
	copy(wind, f.Wind)
	copy(power, f.Power)

	for i := 0; i < n; i++ {
		w, p := f.Wind[i], f.Power[i]

		switch {
		case p <= 0:
			status[i] = models.StatusStop
		case w < 0:
			status[i] = models.StatusMeasurementError
		default:
			status[i] = models.StatusUnknown
		}

		if w < 0 || w > maxValidWind || p < -0.05*c.PRated || p > 1.10*c.PRated {
			status[i] = models.StatusMeasurementError
		}
		if math.IsNaN(w) || math.IsNaN(p) {
			status[i] = models.StatusMeasurementError
		}
		if p > 0 && (w < c.VCutin-cutMargin || w > c.VCutout+cutMargin) {
			status[i] = models.StatusMeasurementError
		}
	}

	// скачок считается по исходным значениям
	for i := 1; i < n; i++ {
		if math.Abs(f.Wind[i]-f.Wind[i-1]) > maxWindJump {
			status[i] = models.StatusMeasurementError
			wind[i] = math.NaN()
			power[i] = math.NaN()
		}
	}

	markFrozen(status, wind)
	return status, wind, power
}

// markFrozen: серии из 6 и более подряд UNKNOWN с одинаковым ветром,
// все кроме первого отсчета становятся ошибкой
func markFrozen(status []models.Status, wind []float64) {
	flush := func(start, end int) {
		if end-start+1 >= frozenRunLimit {
			for j := start + 1; j <= end; j++ {
				status[j] = models.StatusMeasurementError
			}
		}
	}

	start := -1
	for i := range status {
		if status[i] != models.StatusUnknown {
			if start >= 0 {
				flush(start, i-1)
				start = -1
			}
			continue
		}
		if start >= 0 && wind[i] != wind[start] {
			flush(start, i-1)
			start = -1
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		flush(start, len(status)-1)
	}
}
