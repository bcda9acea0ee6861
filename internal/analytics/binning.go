package analytics

import (
	"math"
	"sort"
)

// Bin интервал скорости ветра и индексы попавших в него строк
type Bin struct {
	Index   int
	Center  float64
	Members []int
}

// RightClosedIndex номер интервала (start+k*w, start+(k+1)*w]; значение,
// равное start, попадает в нулевой интервал
func RightClosedIndex(v, start, width float64) (int, bool) {
	if math.IsNaN(v) || v < start {
		return 0, false
	}
	if v == start {
		return 0, true
	}
	return int(math.Ceil((v-start)/width)) - 1, true
}

// GroupRightClosed группирует строки idx по x в правозамкнутые интервалы.
// Пустые интервалы не возвращаются.
func GroupRightClosed(x []float64, idx []int, start, width float64) []Bin {
	groups := make(map[int][]int)
	for _, i := range idx {
		k, ok := RightClosedIndex(x[i], start, width)
		if !ok {
			continue
		}
		groups[k] = append(groups[k], i)
	}
	return sortedBins(groups, func(k int) float64 {
		return start + (float64(k)+0.5)*width
	})
}

// GroupLeftClosed делит [start, start+count*width) на count интервалов;
// значения правее последней границы попадают в последний интервал.
// Возвращаются все интервалы, включая пустые.
func GroupLeftClosed(x []float64, idx []int, start, width float64, count int) []Bin {
	bins := make([]Bin, count)
	for k := range bins {
		bins[k] = Bin{Index: k, Center: start + (float64(k)+0.5)*width}
	}
	for _, i := range idx {
		v := x[i]
		if math.IsNaN(v) || v < start {
			continue
		}
		k := int(math.Floor((v - start) / width))
		if k >= count {
			k = count - 1
		}
		bins[k].Members = append(bins[k].Members, i)
	}
	return bins
}

// HalfMeterBins интервалы 0.5 м/с с центрами 0.5, 1.0, ...
func HalfMeterBins(x []float64, idx []int) []Bin {
	return GroupRightClosed(x, idx, 0.25, 0.5)
}

func sortedBins(groups map[int][]int, center func(int) float64) []Bin {
	bins := make([]Bin, 0, len(groups))
	for k, members := range groups {
		bins = append(bins, Bin{Index: k, Center: center(k), Members: members})
	}
	sort.Slice(bins, func(a, b int) bool { return bins[a].Index < bins[b].Index })
	return bins
}
