package kpi

import (
	"time"

	"turbine-wpa/internal/models"
)

// State состояние надежности
type State int

const (
	StateOther State = iota
	StateUp
	StateDown
)

// StateOf UP: NORMAL и OVERPRODUCTION, DOWN: STOP, остальное не учитывается
func StateOf(s models.Status) State {
	switch s {
	case models.StatusNormal, models.StatusOverproduction:
		return StateUp
	case models.StatusStop:
		return StateDown
	}
	return StateOther
}

// FailureEvent непрерывный интервал простоя
type FailureEvent struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration float64   `json:"duration"`
}

// Reliability показатели надежности окна, времена в секундах
type Reliability struct {
	Events        []FailureEvent
	FailureCount  int
	TotalDownTime float64
	TotalUpTime   float64
	MTTR          *float64
	MTTF          *float64
	MTBF          *float64
}

// ComputeReliability один проход по статусам. Отказ открывается только
// переходом UP → DOWN, отсчеты OTHER не открывают, не закрывают и не
// продлевают событие.
func ComputeReliability(times []time.Time, status []models.Status, step time.Duration) Reliability {
	var r Reliability
	dt := step.Seconds()
	if dt <= 0 {
		return r
	}

	var (
		last     = StateOther
		inDown   bool
		start    time.Time
		lastDown time.Time
		count    int
		upCount  int
	)
	closeEvent := func() {
		r.Events = append(r.Events, FailureEvent{Start: start, End: lastDown, Duration: float64(count) * dt})
		inDown, count = false, 0
	}

	for i, s := range status {
		switch StateOf(s) {
		case StateDown:
			if !inDown && last == StateUp {
				inDown, start, count = true, times[i], 0
			}
			if inDown {
				count++
				lastDown = times[i]
			}
			last = StateDown
		case StateUp:
			upCount++
			if inDown {
				closeEvent()
			}
			last = StateUp
		}
	}
	if inDown {
		closeEvent()
	}

	r.FailureCount = len(r.Events)
	for _, e := range r.Events {
		r.TotalDownTime += e.Duration
	}
	r.TotalUpTime = float64(upCount) * dt
	if r.FailureCount > 0 {
		n := float64(r.FailureCount)
		mttr := r.TotalDownTime / n
		mttf := r.TotalUpTime / n
		r.MTTR = &mttr
		r.MTTF = &mttf
		r.MTBF = models.Float64(mttr + mttf)
	}
	return r
}

// Apply переносит показатели в индикаторы
func (r Reliability) Apply(ind *models.Indicators) {
	ind.FailureCount = r.FailureCount
	ind.TotalDownTime = r.TotalDownTime
	ind.TotalUpTime = r.TotalUpTime
	ind.MTTR = r.MTTR
	ind.MTTF = r.MTTF
	ind.MTBF = r.MTBF
}
