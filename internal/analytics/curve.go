package analytics

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// ErrNoPoints нет точек для построения кривой
var ErrNoPoints = errors.New("no finite points to fit")

// Curve функция скорости ветра
type Curve interface {
	Predict(x float64) float64
}

type constantCurve float64

func (c constantCurve) Predict(float64) float64 { return float64(c) }

// FitCurve строит not-a-knot кубический сплайн; при двух-трех точках
// кусочно-линейную интерполяцию, при одной точке константу. Вне диапазона
// узлов значение постоянно. Повторяющиеся x усредняются.
func FitCurve(xs, ys []float64) (Curve, error) {
	px, py := prepareNodes(xs, ys)
	switch {
	case len(px) == 0:
		return nil, ErrNoPoints
	case len(px) == 1:
		return constantCurve(py[0]), nil
	case len(px) >= 4:
		var nak interp.NotAKnotCubic
		if err := nak.Fit(px, py); err == nil {
			return &nak, nil
		}
	}
	return fitLinear(px, py)
}

// FitLinear кусочно-линейная интерполяция с постоянным продолжением за краями
func FitLinear(xs, ys []float64) (Curve, error) {
	px, py := prepareNodes(xs, ys)
	switch len(px) {
	case 0:
		return nil, ErrNoPoints
	case 1:
		return constantCurve(py[0]), nil
	}
	return fitLinear(px, py)
}

func fitLinear(px, py []float64) (Curve, error) {
	var pl interp.PiecewiseLinear
	if err := pl.Fit(px, py); err != nil {
		return nil, err
	}
	return &pl, nil
}

// InterpolateGaps линейно заполняет NaN внутри ряда и после последнего
// значения; NaN до первого значения сохраняются
func InterpolateGaps(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)

	var xs, ys []float64
	for i, v := range values {
		if !math.IsNaN(v) {
			xs = append(xs, float64(i))
			ys = append(ys, v)
		}
	}
	switch len(xs) {
	case 0:
		return out
	case 1:
		for i := int(xs[0]) + 1; i < len(out); i++ {
			out[i] = ys[0]
		}
		return out
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return out
	}
	for i := int(xs[0]); i < len(out); i++ {
		if math.IsNaN(out[i]) {
			out[i] = pl.Predict(float64(i))
		}
	}
	return out
}

func prepareNodes(xs, ys []float64) ([]float64, []float64) {
	type node struct{ x, y float64 }
	nodes := make([]node, 0, len(xs))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) || math.IsInf(xs[i], 0) || math.IsInf(ys[i], 0) {
			continue
		}
		nodes = append(nodes, node{xs[i], ys[i]})
	}
	sort.SliceStable(nodes, func(a, b int) bool { return nodes[a].x < nodes[b].x })

	var px, py []float64
	for i := 0; i < len(nodes); {
		j := i
		sum := 0.0
		for j < len(nodes) && nodes[j].x == nodes[i].x {
			sum += nodes[j].y
			j++
		}
		px = append(px, nodes[i].x)
		py = append(py, sum/float64(j-i))
		i = j
	}
	return px, py
}
