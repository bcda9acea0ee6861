package preprocess

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

// TargetStep целевой шаг ряда
const TargetStep = 10 * time.Minute

// ReferenceDensity стандартная плотность воздуха, kg/m³
const ReferenceDensity = 1.225

const (
	rAir   = 287.05
	rVapor = 461.5

	imputeNeighbors = 15

	minTemperature = 223.0
	maxTemperature = 323.0
	minPressure    = 50000.0
	maxPressure    = 108500.0
)

// ErrResolutionTooLow шаг исходного ряда грубее 10 минут
var ErrResolutionTooLow = errors.New("time resolution is too low")

// Options параметры предобработки
type Options struct {
	// FallbackDensity плотность, если нет каналов и не заданы внешние условия
	FallbackDensity float64

	// Внешние условия (K, Pa, доля 0..1); используются, только если заданы все три
	AmbientTemperature *float64
	AmbientPressure    *float64
	AmbientHumidity    *float64
}

// Preprocessor приводит ряд к равномерной 10-минутной сетке
type Preprocessor struct {
	opts   Options
	logger *zap.Logger
}

// New создает препроцессор
func New(opts Options, logger *zap.Logger) *Preprocessor {
	if opts.FallbackDensity <= 0 {
		opts.FallbackDensity = ReferenceDensity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preprocessor{opts: opts, logger: logger}
}

// Prepare дедупликация, пересэмплирование, заполнение сетки и чистка
// метеоканалов. Входной кадр не изменяется.
func (p *Preprocessor) Prepare(f *models.Frame) (*models.Frame, error) {
	out := Deduplicate(f)

	resolution := Resolution(out.Time)
	switch {
	case resolution == 0 || resolution == TargetStep:
	case resolution < TargetStep:
		p.logger.Debug("resampling to 10 min",
			zap.Duration("resolution", resolution),
			zap.Int("samples", out.Len()))
		out = Resample(out, TargetStep)
	case resolution <= time.Hour:
		return nil, fmt.Errorf("%w: %s", ErrResolutionTooLow, resolution)
	default:
		return nil, fmt.Errorf("%w: %s is coarser than one hour", ErrResolutionTooLow, resolution)
	}

	out = Reindex(out, TargetStep)

	if out.Temperature != nil {
		if analytics.Mean(out.Temperature) < minTemperature {
			for i := range out.Temperature {
				out.Temperature[i] += 273.15
			}
		}
		p.impute("temperature", out.Temperature, minTemperature, maxTemperature)
	}
	if out.Humidity != nil {
		if analytics.Mean(out.Humidity) > 1 {
			for i := range out.Humidity {
				out.Humidity[i] /= 100
			}
		}
		p.impute("humidity", out.Humidity, 0, 1)
	}
	if out.Pressure != nil {
		p.impute("pressure", out.Pressure, minPressure, maxPressure)
	}

	return out, nil
}

func (p *Preprocessor) impute(channel string, values []float64, lo, hi float64) {
	if n := ImputeOutOfRange(values, lo, hi, imputeNeighbors); n > 0 {
		p.logger.Debug("imputed out of range values",
			zap.String("channel", channel),
			zap.Int("count", n))
	}
}

// AirDensity плотность влажного воздуха по каждой строке
func (p *Preprocessor) AirDensity(f *models.Frame) []float64 {
	n := f.Len()
	out := make([]float64, n)
	switch {
	case f.Temperature != nil && f.Pressure != nil && f.Humidity != nil:
		for i := range out {
			out[i] = MoistAirDensity(f.Temperature[i], f.Pressure[i], f.Humidity[i])
		}
	case p.opts.AmbientTemperature != nil && p.opts.AmbientPressure != nil && p.opts.AmbientHumidity != nil:
		rho := MoistAirDensity(*p.opts.AmbientTemperature, *p.opts.AmbientPressure, *p.opts.AmbientHumidity)
		for i := range out {
			out[i] = rho
		}
	default:
		for i := range out {
			out[i] = p.opts.FallbackDensity
		}
	}
	return out
}

// MoistAirDensity ρ = 1/T·(P/R_air − H·0.0631846·T·(1/R_air − 1/R_vapor))
func MoistAirDensity(temperature, pressure, humidity float64) float64 {
	return 1 / temperature * (pressure/rAir - humidity*0.0631846*temperature*(1/rAir-1/rVapor))
}

// Normalize приводит скорость и мощность к стандартной плотности.
// Строки без плотности остаются без изменений.
func Normalize(wind, power, density []float64) ([]float64, []float64) {
	w := make([]float64, len(wind))
	pw := make([]float64, len(power))
	for i := range wind {
		rho := density[i]
		if math.IsNaN(rho) || rho <= 0 {
			w[i], pw[i] = wind[i], power[i]
			continue
		}
		w[i] = wind[i] * math.Cbrt(rho/ReferenceDensity)
		pw[i] = power[i] * (ReferenceDensity / rho)
	}
	return w, pw
}

// Deduplicate оставляет первое вхождение каждой отметки и сортирует по времени
func Deduplicate(f *models.Frame) *models.Frame {
	seen := make(map[int64]struct{}, f.Len())
	idx := make([]int, 0, f.Len())
	for i, ts := range f.Time {
		key := ts.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		idx = append(idx, i)
	}
	sort.SliceStable(idx, func(a, b int) bool { return f.Time[idx[a]].Before(f.Time[idx[b]]) })
	return f.Subset(idx)
}

// Resolution мода интервалов между соседними отметками; при равенстве
// частот выбирается меньший интервал
func Resolution(times []time.Time) time.Duration {
	counts := make(map[time.Duration]int)
	for i := 1; i < len(times); i++ {
		counts[times[i].Sub(times[i-1])]++
	}
	var best time.Duration
	bestCount := 0
	for d, c := range counts {
		if c > bestCount || (c == bestCount && d < best) {
			best, bestCount = d, c
		}
	}
	return best
}

// Resample усредняет значения по интервалам step, выровненным от эпохи;
// метка интервала равна его началу. Пустые интервалы внутри диапазона
// появляются как NaN.
func Resample(f *models.Frame, step time.Duration) *models.Frame {
	if f.Len() == 0 {
		return f
	}
	first := f.Time[0].Truncate(step)
	last := f.Time[f.Len()-1].Truncate(step)
	buckets := int(last.Sub(first)/step) + 1

	out := &models.Frame{Time: make([]time.Time, buckets)}
	for b := range out.Time {
		out.Time[b] = first.Add(time.Duration(b) * step)
	}

	bucketOf := make([]int, f.Len())
	for i, ts := range f.Time {
		bucketOf[i] = int(ts.Truncate(step).Sub(first) / step)
	}

	src := f.Channels()
	dst := out.Channels()
	sums := make([]float64, buckets)
	counts := make([]int, buckets)
	for c := range src {
		if *src[c] == nil {
			continue
		}
		clear(sums)
		clear(counts)
		for i, v := range *src[c] {
			if math.IsNaN(v) {
				continue
			}
			sums[bucketOf[i]] += v
			counts[bucketOf[i]]++
		}
		col := make([]float64, buckets)
		for b := range col {
			if counts[b] == 0 {
				col[b] = math.NaN()
			} else {
				col[b] = sums[b] / float64(counts[b])
			}
		}
		*dst[c] = col
	}
	return out
}

// Reindex раскладывает строки на полную сетку от первой до последней
// отметки с шагом step; строки вне сетки отбрасываются, пропуски заполняются NaN
func Reindex(f *models.Frame, step time.Duration) *models.Frame {
	if f.Len() == 0 {
		return f
	}
	start := f.Time[0]
	n := int(f.Time[f.Len()-1].Sub(start)/step) + 1

	out := &models.Frame{Time: make([]time.Time, n)}
	for k := range out.Time {
		out.Time[k] = start.Add(time.Duration(k) * step)
	}

	src := f.Channels()
	dst := out.Channels()
	for c := range src {
		if *src[c] == nil {
			continue
		}
		col := make([]float64, n)
		for k := range col {
			col[k] = math.NaN()
		}
		*dst[c] = col
	}

	for i, ts := range f.Time {
		offset := ts.Sub(start)
		if offset%step != 0 {
			continue
		}
		k := int(offset / step)
		for c := range src {
			if *src[c] != nil {
				(*dst[c])[k] = (*src[c])[i]
			}
		}
	}
	return out
}

// ImputeOutOfRange заменяет значения вне [lo, hi] средним k ближайших по
// времени допустимых значений. NaN не трогаются. Возвращает число замен.
func ImputeOutOfRange(values []float64, lo, hi float64, k int) int {
	valid := func(v float64) bool { return !math.IsNaN(v) && v >= lo && v <= hi }

	var bad []int
	for i, v := range values {
		if !math.IsNaN(v) && !valid(v) {
			bad = append(bad, i)
		}
	}
	if len(bad) == 0 {
		return 0
	}

	orig := make([]float64, len(values))
	copy(orig, values)
	for _, i := range bad {
		sum, found := 0.0, 0
		for d := 1; found < k && (i-d >= 0 || i+d < len(orig)); d++ {
			if j := i - d; j >= 0 && valid(orig[j]) {
				sum += orig[j]
				found++
			}
			if j := i + d; found < k && j < len(orig) && valid(orig[j]) {
				sum += orig[j]
				found++
			}
		}
		if found == 0 {
			values[i] = math.NaN()
			continue
		}
		values[i] = sum / float64(found)
	}
	return len(bad)
}
