package wind

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	maxNewtonIterations = 100
	newtonTolerance     = 1e-10
)

// ErrWeibullFit недостаточно данных для оценки распределения
var ErrWeibullFit = errors.New("weibull fit needs at least two distinct positive speeds")

// Weibull двухпараметрическое распределение скорости ветра (положение 0)
type Weibull struct {
	Shape float64 `json:"shape"`
	Scale float64 `json:"scale"`
}

// CDF функция распределения
func (w Weibull) CDF(v float64) float64 {
	return distuv.Weibull{K: w.Shape, Lambda: w.Scale}.CDF(v)
}

// FitWeibull оценка максимального правдоподобия по положительным скоростям.
// Форма k решается методом Ньютона из уравнения профиля правдоподобия,
// масштаб получается в замкнутом виде.
func FitWeibull(speeds []float64) (Weibull, error) {
	var x []float64
	peak := 0.0
	for _, v := range speeds {
		if v > 0 && !math.IsInf(v, 0) {
			x = append(x, v)
			peak = math.Max(peak, v)
		}
	}
	if len(x) < 2 {
		return Weibull{}, ErrWeibullFit
	}

	// нормировка на максимум не меняет k
	logs := make([]float64, len(x))
	for i, v := range x {
		x[i] = v / peak
		logs[i] = math.Log(x[i])
	}
	meanLog := stat.Mean(logs, nil)
	mean, std := stat.MeanStdDev(x, nil)
	if std == 0 || math.IsNaN(std) {
		return Weibull{}, ErrWeibullFit
	}

	k := math.Pow(std/mean, -1.086)
	for iter := 0; iter < maxNewtonIterations; iter++ {
		var s0, s1, s2 float64
		for i, v := range x {
			p := math.Pow(v, k)
			s0 += p
			s1 += p * logs[i]
			s2 += p * logs[i] * logs[i]
		}
		g := s1/s0 - 1/k - meanLog
		dg := (s2*s0-s1*s1)/(s0*s0) + 1/(k*k)
		next := k - g/dg
		if next <= 0 || math.IsNaN(next) {
			next = k / 2
		}
		if math.Abs(next-k) < newtonTolerance*k {
			k = next
			break
		}
		k = next
	}

	var s0 float64
	for _, v := range x {
		s0 += math.Pow(v, k)
	}
	scale := peak * math.Pow(s0/float64(len(x)), 1/k)
	if math.IsNaN(k) || math.IsNaN(scale) {
		return Weibull{}, ErrWeibullFit
	}
	return Weibull{Shape: k, Scale: scale}, nil
}
