package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"turbine-wpa/internal/models"
)

const (
	minNormalSpan     = 180 * time.Hour
	coverageBinWidth  = 0.5
	minPointsPerBin   = 3
	ratedPowerReached = 0.85
	cutinMargin       = 1.0
)

// ValidateInput проверка входного контракта до начала расчета
func ValidateInput(ds models.Dataset, c models.ConstantsInput, estimate bool) error {
	if err := ValidateDataset(ds); err != nil {
		return err
	}

	var missing []string
	if c.SweptArea == nil {
		missing = append(missing, "Swept_area")
	}
	if !estimate {
		for name, v := range map[string]*float64{
			"V_cutin":  c.VCutin,
			"V_cutout": c.VCutout,
			"V_rated":  c.VRated,
			"P_rated":  c.PRated,
		} {
			if v == nil {
				missing = append(missing, name)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing constants %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// ValidateDataset проверка колонок и наличия отсчетов
func ValidateDataset(ds models.Dataset) error {
	known := make(map[string]bool, len(models.RequiredColumns)+len(models.OptionalColumns))
	for _, col := range models.RequiredColumns {
		known[col] = true
	}
	for _, col := range models.OptionalColumns {
		known[col] = true
	}
	for _, col := range ds.Columns {
		if !known[col] {
			return fmt.Errorf("%w: unknown column %q", ErrInvalidInput, col)
		}
	}
	for _, col := range models.RequiredColumns {
		if !ds.HasColumn(col) {
			return fmt.Errorf("%w: missing required column %q", ErrInvalidInput, col)
		}
	}
	if len(ds.Samples) == 0 {
		return fmt.Errorf("%w: dataset has no samples", ErrInvalidInput)
	}
	return nil
}

// VerifyNormal проверка достаточности нормальной работы после классификации.
// Возвращает все нарушения одной ошибкой.
func VerifyNormal(times []time.Time, wind, power []float64, status []models.Status, c models.Constants) error {
	var normals []int
	for i, s := range status {
		if s == models.StatusNormal && !math.IsNaN(wind[i]) && !math.IsNaN(power[i]) {
			normals = append(normals, i)
		}
	}
	if len(normals) == 0 {
		return fmt.Errorf("%w: no normal operation samples", ErrInsufficientData)
	}

	var problems []string
	first, last := times[normals[0]], times[normals[0]]
	maxPower, minWind := math.Inf(-1), math.Inf(1)
	var inside []float64
	for _, i := range normals {
		if times[i].Before(first) {
			first = times[i]
		}
		if times[i].After(last) {
			last = times[i]
		}
		maxPower = math.Max(maxPower, power[i])
		minWind = math.Min(minWind, wind[i])
		if wind[i] >= c.VCutin && wind[i] <= c.VCutout {
			inside = append(inside, wind[i])
		}
	}

	if span := last.Sub(first); span < minNormalSpan {
		problems = append(problems, fmt.Sprintf("normal operation spans %s, need %s", span, minNormalSpan))
	}
	if bin, ok := sparseBin(inside, c); !ok {
		problems = append(problems, fmt.Sprintf("wind bin %d between cut-in and cut-out has fewer than %d normal points", bin, minPointsPerBin))
	}
	if maxPower < ratedPowerReached*c.PRated {
		problems = append(problems, fmt.Sprintf("normal max power %.1f kW is below %.0f%% of rated", maxPower, ratedPowerReached*100))
	}
	if minWind > c.VCutin-cutinMargin {
		problems = append(problems, fmt.Sprintf("normal min wind %.2f m/s is above cut-in minus %.0f m/s", minWind, cutinMargin))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientData, strings.Join(problems, "; "))
	}
	return nil
}

// sparseBin делит диапазон скоростей нормальной работы внутри [cut-in, cut-out]
// на round((cut-out − cut-in)/0.5) равных интервалов и ищет первый интервал
// с числом точек меньше трех
func sparseBin(inside []float64, c models.Constants) (int, bool) {
	nb := int(math.Round((c.VCutout - c.VCutin) / coverageBinWidth))
	if nb < 1 {
		nb = 1
	}
	if len(inside) == 0 {
		return 0, false
	}

	lo, hi := inside[0], inside[0]
	for _, v := range inside {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	counts := make([]int, nb)
	width := (hi - lo) / float64(nb)
	for _, v := range inside {
		k := 0
		if width > 0 {
			k = int((v - lo) / width)
		}
		if k >= nb {
			k = nb - 1
		}
		counts[k]++
	}
	for k, n := range counts {
		if n < minPointsPerBin {
			return k, false
		}
	}
	return 0, true
}
