package classifier

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"turbine-wpa/internal/analytics"
)

const (
	curveBinWidth = 0.25

	bandStep      = 10.0
	bandMax       = 1000.0
	bandThreshold = 0.002
)

// BandCeilingPolicy поведение, когда поиск полосы дошел до 1000 kW
type BandCeilingPolicy int

const (
	// BandCeilingCap использовать потолок и записать предупреждение
	BandCeilingCap BandCeilingPolicy = iota
	// BandCeilingError вернуть ErrBandCeiling
	BandCeilingError
)

// ParseBandCeilingPolicy "cap" или "error"
func ParseBandCeilingPolicy(s string) (BandCeilingPolicy, error) {
	switch s {
	case "", "cap":
		return BandCeilingCap, nil
	case "error":
		return BandCeilingError, nil
	}
	return BandCeilingCap, fmt.Errorf("unknown band ceiling policy %q", s)
}

var (
	// ErrBandCeiling полоса не сошлась до потолка
	ErrBandCeiling = errors.New("healthy band search reached the 1000 kW ceiling")
	// ErrNoNormalCandidates после фильтрации не осталось точек для эталонной кривой
	ErrNoNormalCandidates = errors.New("no normal candidates for reference curve")
)

// ReferenceCurve эталонная кривая мощности и полоса нормальной работы
type ReferenceCurve struct {
	Centers   []float64 `json:"centers"`
	Median    []float64 `json:"median"`
	LowerBand float64   `json:"lower_band"`
	UpperBand float64   `json:"upper_band"`

	// Capped хотя бы одна сторона полосы уперлась в потолок
	Capped bool `json:"capped"`

	theoretical analytics.Curve
	lower       analytics.Curve
	upper       analytics.Curve
}

// Theoretical теоретическая мощность при скорости w
func (c *ReferenceCurve) Theoretical(w float64) float64 { return c.theoretical.Predict(w) }

// Lower нижняя граница полосы
func (c *ReferenceCurve) Lower(w float64) float64 { return c.lower.Predict(w) }

// Upper верхняя граница полосы
func (c *ReferenceCurve) Upper(w float64) float64 { return c.upper.Predict(w) }

// FitReferenceCurve медианная кривая по интервалам 0.25 м/с от минимальной
// скорости кандидатов. Центр интервала равен среднему ветру его точек; пустые
// интервалы получают геометрический центр и мощность соседей.
func FitReferenceCurve(wind, power []float64, candidates []int) (*ReferenceCurve, error) {
	if len(candidates) == 0 {
		return nil, ErrNoNormalCandidates
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, i := range candidates {
		lo = math.Min(lo, wind[i])
		hi = math.Max(hi, wind[i])
	}
	count := max(1, int(math.Ceil((hi-lo)/curveBinWidth)))
	bins := analytics.GroupLeftClosed(wind, candidates, lo, curveBinWidth, count)

	centers := make([]float64, count)
	medians := make([]float64, count)
	for k, b := range bins {
		if len(b.Members) == 0 {
			centers[k] = b.Center
			medians[k] = math.NaN()
			continue
		}
		centers[k] = analytics.Mean(analytics.At(wind, b.Members))
		medians[k] = analytics.Median(analytics.At(power, b.Members))
	}
	fillGaps(medians)

	theoretical, err := analytics.FitCurve(centers, medians)
	if err != nil {
		return nil, fmt.Errorf("fit reference curve: %w", err)
	}
	return &ReferenceCurve{Centers: centers, Median: medians, theoretical: theoretical}, nil
}

// FitBands подбирает нижнюю и верхнюю полуширину полосы по отклонениям
// строк idx от теоретической кривой и строит граничные кривые
func (c *ReferenceCurve) FitBands(wind, power []float64, idx []int, policy BandCeilingPolicy, logger *zap.Logger) error {
	var lowerDev, upperDev []float64
	for _, i := range idx {
		if math.IsNaN(wind[i]) || math.IsNaN(power[i]) {
			continue
		}
		t := c.Theoretical(wind[i])
		if d := t - power[i]; d >= 0 {
			lowerDev = append(lowerDev, d)
		}
		if d := power[i] - t; d >= 0 {
			upperDev = append(upperDev, d)
		}
	}

	var capped bool
	c.LowerBand, capped = SearchBand(lowerDev)
	c.Capped = capped
	if capped {
		if policy == BandCeilingError {
			return fmt.Errorf("%w: lower side", ErrBandCeiling)
		}
		logger.Warn("lower band reached ceiling", zap.Float64("band", bandMax))
	}
	c.UpperBand, capped = SearchBand(upperDev)
	c.Capped = c.Capped || capped
	if capped {
		if policy == BandCeilingError {
			return fmt.Errorf("%w: upper side", ErrBandCeiling)
		}
		logger.Warn("upper band reached ceiling", zap.Float64("band", bandMax))
	}

	lower := make([]float64, len(c.Median))
	upper := make([]float64, len(c.Median))
	for k, m := range c.Median {
		lower[k] = m - c.LowerBand
		upper[k] = m + c.UpperBand
	}
	var err error
	if c.lower, err = analytics.FitCurve(c.Centers, lower); err != nil {
		return fmt.Errorf("fit lower bound: %w", err)
	}
	if c.upper, err = analytics.FitCurve(c.Centers, upper); err != nil {
		return fmt.Errorf("fit upper bound: %w", err)
	}
	return nil
}

// SearchBand первая ширина из 10, 20, ..., 1000 kW, расширение за которой
// добавляет меньше 0.2% точек к уже охваченным. capped=true, если такой
// ширины нет при непустых отклонениях.
func SearchBand(devs []float64) (width float64, capped bool) {
	if len(devs) == 0 {
		return bandMax, false
	}
	sorted := append([]float64(nil), devs...)
	sort.Float64s(sorted)

	prev := 0
	for edge := bandStep; edge <= bandMax; edge += bandStep {
		inBand := sort.Search(len(sorted), func(i int) bool { return sorted[i] > edge })
		added := inBand - prev
		if prev > 0 && float64(added)/float64(prev) < bandThreshold {
			return edge, false
		}
		prev = inBand
	}
	return bandMax, true
}

// fillGaps заполняет NaN предыдущим значением, ведущие NaN следующим
func fillGaps(values []float64) {
	last := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = last
		} else {
			last = v
		}
	}
	next := math.NaN()
	for i := len(values) - 1; i >= 0; i-- {
		if math.IsNaN(values[i]) {
			values[i] = next
		} else {
			next = values[i]
		}
	}
}
