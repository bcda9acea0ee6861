package kpi

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/optimize"

	"turbine-wpa/internal/analytics"
)

const (
	minLogisticPoints = 5
	maxFitEvaluations = 50000
	maxFitPoints      = 5000
)

// ErrNotConverged подбор 5PL не сошелся
var ErrNotConverged = errors.New("5PL fit did not converge")

// Logistic5PL D + (A − D)/(1 + (x/C)^B)^E
type Logistic5PL struct {
	A, B, C, D, E float64
}

// Predict значение кривой
func (l Logistic5PL) Predict(x float64) float64 {
	return l.D + (l.A-l.D)/math.Pow(1+math.Pow(x/l.C, l.B), l.E)
}

// FitLogistic наименьшие квадраты методом Нелдера-Мида. Подбор идет в
// нормированных координатах: скорость делится на медиану, мощность на
// максимум модуля. Больше 5000 точек прореживаются.
func FitLogistic(x, y []float64) (Logistic5PL, error) {
	var xs, ys []float64
	for i := range x {
		if finite(x[i]) && finite(y[i]) && x[i] >= 0 {
			xs = append(xs, x[i])
			ys = append(ys, y[i])
		}
	}
	if len(xs) < minLogisticPoints {
		return Logistic5PL{}, ErrNotConverged
	}
	if len(xs) > maxFitPoints {
		xs, ys = thin(xs, ys, maxFitPoints)
	}

	xScale := analytics.Median(xs)
	yMin, yMax := ys[0], ys[0]
	for _, v := range ys {
		yMin, yMax = math.Min(yMin, v), math.Max(yMax, v)
	}
	yScale := math.Max(math.Abs(yMin), math.Abs(yMax))
	if xScale <= 0 || yScale == 0 {
		return Logistic5PL{}, ErrNotConverged
	}
	for i := range xs {
		xs[i] /= xScale
		ys[i] /= yScale
	}

	sse := func(p []float64) float64 {
		if p[2] <= 0 {
			return math.Inf(1)
		}
		m := Logistic5PL{A: p[0], B: p[1], C: p[2], D: p[3], E: p[4]}
		sum := 0.0
		for i, v := range xs {
			d := m.Predict(v) - ys[i]
			sum += d * d
		}
		if math.IsNaN(sum) {
			return math.Inf(1)
		}
		return sum
	}

	p0 := []float64{yMin / yScale, 1, 1, yMax / yScale, 1}
	res, err := optimize.Minimize(
		optimize.Problem{Func: sse},
		p0,
		&optimize.Settings{
			FuncEvaluations: maxFitEvaluations,
			Converger:       &optimize.FunctionConverge{Absolute: 1e-9, Relative: 1e-9, Iterations: 200},
		},
		&optimize.NelderMead{},
	)
	if err != nil || res.Status.Early() || math.IsInf(res.F, 0) {
		return Logistic5PL{}, ErrNotConverged
	}

	p := res.X
	fit := Logistic5PL{A: p[0] * yScale, B: p[1], C: p[2] * xScale, D: p[3] * yScale, E: p[4]}
	for _, v := range []float64{fit.A, fit.B, fit.C, fit.D, fit.E} {
		if !finite(v) {
			return Logistic5PL{}, ErrNotConverged
		}
	}
	return fit, nil
}

// thin равномерная по порядку выборка из n точек
func thin(xs, ys []float64, n int) ([]float64, []float64) {
	stride := float64(len(xs)) / float64(n)
	tx := make([]float64, n)
	ty := make([]float64, n)
	for k := 0; k < n; k++ {
		i := int(float64(k) * stride)
		tx[k], ty[k] = xs[i], ys[i]
	}
	return tx, ty
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
