package classifier

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"turbine-wpa/internal/analytics"
)

const noise = -1

// point стандартизированная пара (ветер, мощность) с позицией во входном срезе
type point struct {
	x, y float64
	pos  int
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	if d == 0 {
		return p.x - q.x
	}
	return p.y - q.y
}

func (p point) Dims() int { return 2 }

func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Pivot(d kdtree.Dim) int                { return plane{points: p, Dim: d}.Pivot() }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

type plane struct {
	kdtree.Dim
	points
}

func (p plane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.points[i].x < p.points[j].x
	}
	return p.points[i].y < p.points[j].y
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
func (p plane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }

// newTree строит дерево по копии: kdtree.New переупорядочивает вход
func newTree(pts []point) *kdtree.Tree {
	cp := make(points, len(pts))
	copy(cp, pts)
	return kdtree.New(cp, false)
}

// standardize z-нормировка ветра и мощности строк idx (ddof=0);
// нулевое отклонение заменяется единицей
func standardize(wind, power []float64, idx []int) []point {
	w := analytics.At(wind, idx)
	p := analytics.At(power, idx)
	mw, sw := analytics.Mean(w), analytics.PopStdDev(w)
	mp, sp := analytics.Mean(p), analytics.PopStdDev(p)
	if sw == 0 || math.IsNaN(sw) {
		sw = 1
	}
	if sp == 0 || math.IsNaN(sp) {
		sp = 1
	}
	pts := make([]point, len(idx))
	for j := range idx {
		pts[j] = point{x: (w[j] - mw) / sw, y: (p[j] - mp) / sp, pos: j}
	}
	return pts
}

// estimateEps подбирает ε по излому графика расстояний до k-го соседа
// (сама точка считается первым соседом)
func estimateEps(pts []point, k int) float64 {
	if len(pts) == 0 {
		return 0
	}
	tree := newTree(pts)
	dists := make([]float64, len(pts))
	for i, q := range pts {
		keep := kdtree.NewNKeeper(k)
		tree.NearestSet(keep, q)
		kth := 0.0
		for _, c := range keep.Heap {
			kth = math.Max(kth, c.Dist)
		}
		dists[i] = math.Sqrt(kth)
	}
	sort.Float64s(dists)
	return kneeValue(dists)
}

// kneeValue значение в точке с максимальным расстоянием до прямой,
// проведенной через первую и последнюю точки отсортированной кривой
func kneeValue(sorted []float64) float64 {
	n := len(sorted)
	if n < 3 {
		return sorted[0]
	}
	lx, ly := float64(n-1), sorted[n-1]-sorted[0]
	norm := math.Hypot(lx, ly)
	best, bestDist := 0, -1.0
	for i, d := range sorted {
		vx, vy := float64(i), d-sorted[0]
		dist := math.Abs(vx*ly-vy*lx) / norm
		if dist > bestDist {
			best, bestDist = i, dist
		}
	}
	return sorted[best]
}

// dbscan метки кластеров для pts; шум помечается -1. Ядро кластера:
// точка, у которой в радиусе eps не меньше minSamples точек, включая ее саму.
func dbscan(pts []point, eps float64, minSamples int) []int {
	const unvisited = -2
	labels := make([]int, len(pts))
	for i := range labels {
		labels[i] = unvisited
	}
	if len(pts) == 0 {
		return labels
	}

	local := make([]point, len(pts))
	for i, p := range pts {
		p.pos = i
		local[i] = p
	}
	tree := newTree(local)

	region := func(i int) []int {
		keep := kdtree.NewDistKeeper(eps * eps)
		tree.NearestSet(keep, local[i])
		out := make([]int, 0, len(keep.Heap))
		for _, c := range keep.Heap {
			out = append(out, c.Comparable.(point).pos)
		}
		return out
	}

	cluster := 0
	for i := range local {
		if labels[i] != unvisited {
			continue
		}
		nb := region(i)
		if len(nb) < minSamples {
			labels[i] = noise
			continue
		}
		labels[i] = cluster
		queue := append([]int(nil), nb...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if labels[j] == noise {
				labels[j] = cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			if jn := region(j); len(jn) >= minSamples {
				queue = append(queue, jn...)
			}
		}
		cluster++
	}
	return labels
}

// removeOutliers кластеризует строки idx по частям и возвращает
// не-шумовые строки в исходном порядке
func removeOutliers(pts []point, idx []int, eps float64, minSamples int, chunks []Chunk) []int {
	survivors := make([]int, 0, len(idx))
	for _, ch := range chunks {
		labels := dbscan(pts[ch.Start:ch.End], eps, minSamples)
		for j := ch.CoreStart; j < ch.CoreEnd; j++ {
			if labels[j-ch.Start] != noise {
				survivors = append(survivors, idx[j])
			}
		}
	}
	return survivors
}
