package turbine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"turbine-wpa/internal/analytics"
	"turbine-wpa/internal/models"
)

// Пороговые значения, доли P_rated
const (
	binWidth         = 0.5
	minSamplesPerBin = 30

	cutinAlpha       = 0.05
	zeroPowerAlpha   = 0.02
	ratedAlpha       = 0.98
	cutoutPowerAlpha = 0.2
	cutoutZeroRatio  = 0.7

	pRatedTopFraction = 0.005
	pRatedMinPoints   = 20

	minWind  = 0.0
	maxWind  = 32.0
	minPower = -500.0
	maxPower = 10000.0

	longSeriesSpan    = 120 * 24 * time.Hour
	longSeriesSamples = 17000
	cutinHoldSamples  = 3
)

var (
	// ErrNoValidData нет данных после грубой фильтрации
	ErrNoValidData = errors.New("no valid data after basic outlier filtering")
	// ErrNoConstantCandidate ни один метод не дал оценку
	ErrNoConstantCandidate = errors.New("no candidate for turbine constant")
	// ErrSweptAreaRequired площадь ометания не оценивается и обязательна
	ErrSweptAreaRequired = errors.New("Swept_area is required")
)

// Методы оценки
const (
	MethodSupplied   = "supplied"
	MethodTopPercent = "top_percentile"
	MethodBinned     = "binned"
	MethodBinnedSoft = "binned_soft"
	MethodMaxMean    = "max_mean_bin"
	MethodTimeSeries = "time_series"
	MethodMaxWind    = "max_wind"
)

// BinStat статистика интервала скорости
type BinStat struct {
	Bin       float64 `json:"bin"`
	N         int     `json:"n"`
	PMean     float64 `json:"p_mean"`
	ZeroRatio float64 `json:"zero_ratio"`
}

// Estimate результат оценки констант с отладочными таблицами
type Estimate struct {
	Constants  models.Constants  `json:"constants"`
	Methods    map[string]string `json:"methods"`
	RatedBins  []BinStat         `json:"rated_bins,omitempty"`
	CutinBins  []BinStat         `json:"cutin_bins,omitempty"`
	CutoutBins []BinStat         `json:"cutout_bins,omitempty"`
}

// Estimator оценивает рабочие константы турбины по данным SCADA
type Estimator struct {
	logger *zap.Logger
}

// NewEstimator создает оценщик
func NewEstimator(logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{logger: logger}
}

// Resolve возвращает эффективные константы: заданные клиентом значения
// имеют приоритет, недостающие оцениваются по ряду
func (e *Estimator) Resolve(input models.ConstantsInput, f *models.Frame) (*Estimate, error) {
	if input.SweptArea == nil {
		return nil, ErrSweptAreaRequired
	}

	est := &Estimate{
		Constants: models.Constants{SweptArea: *input.SweptArea},
		Methods:   map[string]string{},
	}
	if input.Complete() {
		est.Constants.PRated = *input.PRated
		est.Constants.VRated = *input.VRated
		est.Constants.VCutin = *input.VCutin
		est.Constants.VCutout = *input.VCutout
		for _, name := range []string{"P_rated", "V_rated", "V_cutin", "V_cutout"} {
			est.Methods[name] = MethodSupplied
		}
		return est, nil
	}

	wind, power, valid := prefilter(f)
	if len(valid) == 0 {
		return nil, ErrNoValidData
	}

	// P_rated
	if input.PRated != nil {
		est.Constants.PRated = *input.PRated
		est.Methods["P_rated"] = MethodSupplied
	} else {
		p, err := estimatePRated(power, valid)
		if err != nil {
			return nil, err
		}
		est.Constants.PRated = p
		est.Methods["P_rated"] = MethodTopPercent
		est.Constants.Estimated = append(est.Constants.Estimated, "P_rated")
	}
	pRated := est.Constants.PRated

	// V_rated
	est.RatedBins = binStats(wind, power, filter(valid, func(i int) bool { return power[i] >= 0 }), pRated)
	if input.VRated != nil {
		est.Constants.VRated = *input.VRated
		est.Methods["V_rated"] = MethodSupplied
	} else {
		v, method, err := estimateVRated(est.RatedBins, pRated)
		if err != nil {
			return nil, err
		}
		est.Constants.VRated = v
		est.Methods["V_rated"] = method
		est.Constants.Estimated = append(est.Constants.Estimated, "V_rated")
	}
	vRated := est.Constants.VRated

	longSeries := isLongSeries(f, valid)

	// V_cutin
	est.CutinBins = binStats(wind, power, filter(valid, func(i int) bool {
		return power[i] >= 0 && wind[i] < vRated
	}), pRated)
	if input.VCutin != nil {
		est.Constants.VCutin = *input.VCutin
		est.Methods["V_cutin"] = MethodSupplied
	} else {
		v, method, ok := 0.0, "", false
		if longSeries {
			v, ok = cutinTimeSeries(wind, power, pRated)
			method = MethodTimeSeries
		}
		if !ok {
			v, method, ok = cutinBinned(est.CutinBins, pRated)
		}
		if !ok {
			return nil, fmt.Errorf("%w: V_cutin", ErrNoConstantCandidate)
		}
		if method != MethodTimeSeries && longSeries {
			e.logger.Warn("cut-in time series method found no transitions, using bins")
		}
		est.Constants.VCutin = v
		est.Methods["V_cutin"] = method
		est.Constants.Estimated = append(est.Constants.Estimated, "V_cutin")
	}

	// V_cutout
	est.CutoutBins = binStats(wind, power, filter(valid, func(i int) bool {
		return power[i] >= 0 && wind[i] > vRated
	}), pRated)
	if input.VCutout != nil {
		est.Constants.VCutout = *input.VCutout
		est.Methods["V_cutout"] = MethodSupplied
	} else {
		v, method, ok := 0.0, "", false
		if longSeries {
			v, ok = cutoutTimeSeries(wind, power, vRated, pRated)
			method = MethodTimeSeries
		}
		if !ok {
			v, method, ok = cutoutBinned(est.CutoutBins, pRated)
		}
		if !ok {
			maxWind := math.Inf(-1)
			for _, i := range valid {
				maxWind = math.Max(maxWind, wind[i])
			}
			v = math.Max(math.Floor(maxWind/binWidth)*binWidth, vRated)
			method = MethodMaxWind
			e.logger.Warn("cut-out estimated from maximum observed wind speed",
				zap.Float64("v_cutout", v))
		}
		est.Constants.VCutout = v
		est.Methods["V_cutout"] = method
		est.Constants.Estimated = append(est.Constants.Estimated, "V_cutout")
	}

	e.logger.Debug("turbine constants resolved",
		zap.Float64("p_rated", est.Constants.PRated),
		zap.Float64("v_rated", est.Constants.VRated),
		zap.Float64("v_cutin", est.Constants.VCutin),
		zap.Float64("v_cutout", est.Constants.VCutout),
		zap.Strings("estimated", est.Constants.Estimated))

	return est, nil
}

// prefilter копирует ветер и мощность; строки вне физических диапазонов
// помечаются NaN и не входят в valid
func prefilter(f *models.Frame) (wind, power []float64, valid []int) {
	n := f.Len()
	wind = make([]float64, n)
	power = make([]float64, n)
	for i := 0; i < n; i++ {
		w, p := f.Wind[i], f.Power[i]
		if math.IsNaN(w) || math.IsNaN(p) || w < minWind || w > maxWind || p < minPower || p > maxPower {
			wind[i], power[i] = math.NaN(), math.NaN()
			continue
		}
		wind[i], power[i] = w, p
		valid = append(valid, i)
	}
	return wind, power, valid
}

func isLongSeries(f *models.Frame, valid []int) bool {
	if len(valid) >= longSeriesSamples {
		return true
	}
	if len(valid) < 2 {
		return false
	}
	return f.Time[valid[len(valid)-1]].Sub(f.Time[valid[0]]) >= longSeriesSpan
}

func filter(idx []int, keep func(int) bool) []int {
	out := make([]int, 0, len(idx))
	for _, i := range idx {
		if keep(i) {
			out = append(out, i)
		}
	}
	return out
}

// estimatePRated медиана верхних 0.5% (не менее 20) неотрицательных значений
func estimatePRated(power []float64, valid []int) (float64, error) {
	var values []float64
	for _, i := range valid {
		if power[i] >= 0 {
			values = append(values, power[i])
		}
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: no non-negative power for P_rated", ErrNoConstantCandidate)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(values)))
	top := max(pRatedMinPoints, int(math.Ceil(float64(len(values))*pRatedTopFraction)))
	top = min(top, len(values))
	return analytics.Median(values[:top]), nil
}

func binStats(wind, power []float64, idx []int, pRated float64) []BinStat {
	bins := analytics.HalfMeterBins(wind, idx)
	out := make([]BinStat, 0, len(bins))
	zeroThr := zeroPowerAlpha * pRated
	for _, b := range bins {
		zeros := 0
		for _, i := range b.Members {
			if power[i] < zeroThr {
				zeros++
			}
		}
		out = append(out, BinStat{
			Bin:       b.Center,
			N:         len(b.Members),
			PMean:     analytics.Mean(analytics.At(power, b.Members)),
			ZeroRatio: float64(zeros) / float64(len(b.Members)),
		})
	}
	return out
}

func estimateVRated(stats []BinStat, pRated float64) (float64, string, error) {
	if len(stats) == 0 {
		return 0, "", fmt.Errorf("%w: V_rated", ErrNoConstantCandidate)
	}
	thr := ratedAlpha * pRated
	for _, s := range stats {
		if s.N >= minSamplesPerBin && s.PMean >= thr {
			return s.Bin, MethodBinned, nil
		}
	}
	best := stats[0]
	for _, s := range stats[1:] {
		if s.PMean > best.PMean {
			best = s
		}
	}
	return best.Bin, MethodMaxMean, nil
}

func cutinBinned(stats []BinStat, pRated float64) (float64, string, bool) {
	thr := cutinAlpha * pRated
	for _, s := range stats {
		if s.N >= minSamplesPerBin && s.PMean > thr {
			return s.Bin, MethodBinned, true
		}
	}
	for _, s := range stats {
		if s.PMean > thr {
			return s.Bin, MethodBinnedSoft, true
		}
	}
	return 0, "", false
}

func cutoutBinned(stats []BinStat, pRated float64) (float64, string, bool) {
	match := func(s BinStat) bool {
		return s.PMean < cutoutPowerAlpha*pRated && s.ZeroRatio > cutoutZeroRatio
	}
	for _, s := range stats {
		if s.N >= minSamplesPerBin && match(s) {
			return s.Bin, MethodBinned, true
		}
	}
	for _, s := range stats {
		if match(s) {
			return s.Bin, MethodBinnedSoft, true
		}
	}
	return 0, "", false
}

// cutinTimeSeries медиана скорости в моменты пуска: мощность выходит из
// нуля выше 5% P_rated на растущем ветре и держится не меньше трех отсчетов
func cutinTimeSeries(wind, power []float64, pRated float64) (float64, bool) {
	lo, hi := zeroPowerAlpha*pRated, cutinAlpha*pRated
	var speeds []float64
	for i := 1; i+cutinHoldSamples-1 < len(power); i++ {
		if !(power[i-1] < lo && power[i] > hi && wind[i] > wind[i-1]) {
			continue
		}
		held := true
		for j := i; j < i+cutinHoldSamples; j++ {
			if !(power[j] > hi) {
				held = false
				break
			}
		}
		if held {
			speeds = append(speeds, wind[i])
		}
	}
	if len(speeds) == 0 {
		return 0, false
	}
	return analytics.Median(speeds), true
}

// cutoutTimeSeries медиана скорости в моменты останова по сильному ветру:
// мощность падает до нуля не позже чем через два отсчета после номинала,
// а ветер все это время выше 0.9·V_rated
func cutoutTimeSeries(wind, power []float64, vRated, pRated float64) (float64, bool) {
	zero, rated := zeroPowerAlpha*pRated, ratedAlpha*pRated
	var speeds []float64
	for i := 1; i < len(power); i++ {
		if !(wind[i] > vRated && power[i] < zero) {
			continue
		}
		for lag := 1; lag <= 2 && i-lag >= 0; lag++ {
			j := i - lag
			if !(power[j] >= rated) {
				continue
			}
			windy := true
			for k := j; k <= i; k++ {
				if !(wind[k] > 0.9*vRated) {
					windy = false
					break
				}
			}
			if windy {
				speeds = append(speeds, wind[i])
				break
			}
		}
	}
	if len(speeds) == 0 {
		return 0, false
	}
	return analytics.Median(speeds), true
}
