package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Finite возвращает только конечные значения
func Finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// At значения по индексам
func At(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for j, i := range idx {
		out[j] = values[i]
	}
	return out
}

// Mean среднее конечных значений, NaN для пустого набора
func Mean(values []float64) float64 {
	v := Finite(values)
	if len(v) == 0 {
		return math.NaN()
	}
	return stat.Mean(v, nil)
}

// PopStdDev популяционное стандартное отклонение (ddof=0)
func PopStdDev(values []float64) float64 {
	v := Finite(values)
	if len(v) == 0 {
		return math.NaN()
	}
	_, std := stat.PopMeanStdDev(v, nil)
	return std
}

// SampleStdDev выборочное стандартное отклонение (ddof=1), NaN при n < 2
func SampleStdDev(values []float64) float64 {
	v := Finite(values)
	if len(v) < 2 {
		return math.NaN()
	}
	return stat.StdDev(v, nil)
}

// Median медиана конечных значений; для четного n среднее двух центральных
func Median(values []float64) float64 {
	v := Finite(values)
	n := len(v)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(v)
	if n%2 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}

// Sum сумма конечных значений
func Sum(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			sum += v
		}
	}
	return sum
}

// RollingStd скользящее выборочное отклонение по окну из window отсчетов.
// NaN в окне пропускаются; при числе наблюдений меньше minPeriods или
// меньше двух результат NaN.
func RollingStd(values []float64, window, minPeriods int) []float64 {
	out := make([]float64, len(values))
	buf := make([]float64, 0, window)
	for i := range values {
		buf = buf[:0]
		for j := max(0, i-window+1); j <= i; j++ {
			if !math.IsNaN(values[j]) {
				buf = append(buf, values[j])
			}
		}
		if len(buf) < minPeriods || len(buf) < 2 {
			out[i] = math.NaN()
			continue
		}
		out[i] = stat.StdDev(buf, nil)
	}
	return out
}
