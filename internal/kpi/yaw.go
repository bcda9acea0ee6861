package kpi

import (
	"fmt"
	"math"

	"turbine-wpa/internal/analytics"
	"turbine-wpa/internal/models"
)

// NormalizeAngle приводит угол к (−180, 180]
func NormalizeAngle(a float64) float64 {
	return a - (math.Ceil((a+180)/360)-1)*360
}

// YawMisalignment гистограмма и статистика δ = nacelle − wind по парам без
// пропусков. nil, если каналов нет или пар не осталось.
func YawMisalignment(nacelle, windDir []float64, binWidth float64) (*models.YawMisalignment, error) {
	if binWidth != 5 && binWidth != 10 {
		return nil, fmt.Errorf("yaw bin width must be 5 or 10, got %g", binWidth)
	}
	if nacelle == nil || windDir == nil {
		return nil, nil
	}

	var deltas []float64
	for i := range nacelle {
		if finite(nacelle[i]) && finite(windDir[i]) {
			deltas = append(deltas, NormalizeAngle(nacelle[i]-windDir[i]))
		}
	}
	if len(deltas) == 0 {
		return nil, nil
	}

	nBins := int(360 / binWidth)
	edges := make([]float64, nBins+1)
	for k := range edges {
		edges[k] = -180 + float64(k)*binWidth
	}
	counts := make([]int, nBins)
	for _, d := range deltas {
		k := min(int(math.Floor((d+180)/binWidth)), nBins-1)
		counts[k]++
	}

	return &models.YawMisalignment{
		BinEdges: edges,
		Counts:   counts,
		Mean:     analytics.Mean(deltas),
		Median:   analytics.Median(deltas),
		StdDev:   analytics.PopStdDev(deltas),
	}, nil
}
