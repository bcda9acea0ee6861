package models

import (
	"math"
	"time"
)

// Frame колоночное представление ряда; пропуски хранятся как NaN.
// Необязательные каналы равны nil, если колонки нет во входных данных.
type Frame struct {
	Time        []time.Time
	Wind        []float64
	Power       []float64
	WindDir     []float64
	NacelleDir  []float64
	Pitch       []float64
	Temperature []float64
	Pressure    []float64
	Humidity    []float64
}

// Len количество строк
func (f *Frame) Len() int { return len(f.Time) }

// NewFrameFromDataset переводит набор данных в колоночный вид
func NewFrameFromDataset(ds Dataset) *Frame {
	n := len(ds.Samples)
	f := &Frame{
		Time:  make([]time.Time, n),
		Wind:  make([]float64, n),
		Power: make([]float64, n),
	}
	if ds.HasColumn(ColDirectionWind) {
		f.WindDir = make([]float64, n)
	}
	if ds.HasColumn(ColDirectionNacelle) {
		f.NacelleDir = make([]float64, n)
	}
	if ds.HasColumn(ColPitchAngle) {
		f.Pitch = make([]float64, n)
	}
	if ds.HasColumn(ColTemperature) {
		f.Temperature = make([]float64, n)
	}
	if ds.HasColumn(ColPressure) {
		f.Pressure = make([]float64, n)
	}
	if ds.HasColumn(ColHumidity) {
		f.Humidity = make([]float64, n)
	}

	for i, s := range ds.Samples {
		f.Time[i] = s.Timestamp
		f.Wind[i] = deref(s.WindSpeed)
		f.Power[i] = deref(s.ActivePower)
		setChannel(f.WindDir, i, s.WindDirection)
		setChannel(f.NacelleDir, i, s.NacelleDirection)
		setChannel(f.Pitch, i, s.PitchAngle)
		setChannel(f.Temperature, i, s.Temperature)
		setChannel(f.Pressure, i, s.Pressure)
		setChannel(f.Humidity, i, s.Humidity)
	}
	return f
}

// Channels все каналы кадра (включая отсутствующие как nil), кроме времени
func (f *Frame) Channels() []*[]float64 {
	return []*[]float64{
		&f.Wind, &f.Power, &f.WindDir, &f.NacelleDir, &f.Pitch,
		&f.Temperature, &f.Pressure, &f.Humidity,
	}
}

// Subset копия строк с заданными индексами
func (f *Frame) Subset(idx []int) *Frame {
	out := &Frame{Time: make([]time.Time, len(idx))}
	for j, i := range idx {
		out.Time[j] = f.Time[i]
	}
	src := f.Channels()
	dst := out.Channels()
	for c := range src {
		if *src[c] == nil {
			continue
		}
		col := make([]float64, len(idx))
		for j, i := range idx {
			col[j] = (*src[c])[i]
		}
		*dst[c] = col
	}
	return out
}

// Clone полная копия кадра
func (f *Frame) Clone() *Frame {
	idx := make([]int, f.Len())
	for i := range idx {
		idx[i] = i
	}
	return f.Subset(idx)
}

// TimeStep шаг ряда по первым двум отметкам
func (f *Frame) TimeStep() time.Duration {
	if f.Len() < 2 {
		return 0
	}
	return f.Time[1].Sub(f.Time[0])
}

func deref(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func setChannel(col []float64, i int, v *float64) {
	if col != nil {
		col[i] = deref(v)
	}
}
