package classifier

import (
	"time"

	"turbine-wpa/internal/analytics"
	"turbine-wpa/internal/models"
)

const (
	curtailmentWindow = 30 * time.Minute
	curtailmentMaxStd = 100.0
	normalAnchorMin   = 40 * time.Minute
	stopAnchorMin     = 240 * time.Minute
)

// Run непрерывная серия отсчетов [Start, End], границы включены
type Run struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len длина серии в отсчетах
func (r Run) Len() int { return r.End - r.Start + 1 }

func runsOf(n int, match func(int) bool) []Run {
	var runs []Run
	start := -1
	for i := 0; i < n; i++ {
		if match(i) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, Run{Start: start, End: i - 1})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, Run{Start: start, End: n - 1})
	}
	return runs
}

func samplesIn(d, step time.Duration) int {
	if step <= 0 {
		return 1
	}
	return max(1, int(d/step))
}

// MarkCurtailment помечает CURTAILMENT устойчивые серии недовыработки:
// скользящее отклонение мощности за 30 минут меньше 100 kW, серия длиннее
// одного отсчета и охватывает не меньше 30 минут
func MarkCurtailment(status []models.Status, power []float64, times []time.Time, step time.Duration) []Run {
	std := analytics.RollingStd(power, samplesIn(curtailmentWindow, step), 1)
	candidates := runsOf(len(status), func(i int) bool {
		return status[i] == models.StatusUnderproduction && std[i] < curtailmentMaxStd
	})

	var confirmed []Run
	for _, r := range candidates {
		if r.Len() > 1 && times[r.End].Sub(times[r.Start]) >= curtailmentWindow {
			confirmed = append(confirmed, r)
		}
	}
	for _, r := range confirmed {
		for i := r.Start; i <= r.End; i++ {
			status[i] = models.StatusCurtailment
		}
	}
	return confirmed
}

// PartialCurtailment переносит метку на мосты между серией ограничения и
// ближайшими длинными сериями NORMAL, если в мосте нет CURTAILMENT.
// Мост включает крайний отсчет серии NORMAL.
func PartialCurtailment(status []models.Status, curtailed []Run, step time.Duration) {
	backfill(status, curtailed, step, models.StatusPartialCurtailment, func(s models.Status) bool {
		return s != models.StatusCurtailment
	})
}

// PartialStops то же для остановов не короче 4 часов; мост может состоять
// только из NORMAL, UNDERPRODUCTION и OVERPRODUCTION
func PartialStops(status []models.Status, step time.Duration) {
	minLen := samplesIn(stopAnchorMin, step)
	var anchors []Run
	for _, r := range runsOf(len(status), func(i int) bool { return status[i] == models.StatusStop }) {
		if r.Len() >= minLen {
			anchors = append(anchors, r)
		}
	}
	backfill(status, anchors, step, models.StatusPartialStop, func(s models.Status) bool {
		return s == models.StatusNormal || s == models.StatusUnderproduction || s == models.StatusOverproduction
	})
}

// ForceStop любой отсчет с неположительной мощностью становится STOP
func ForceStop(status []models.Status, power []float64) {
	for i, p := range power {
		if p <= 0 {
			status[i] = models.StatusStop
		}
	}
}

// backfill решения принимаются по снимку статусов, изменения применяются разом
func backfill(status []models.Status, anchors []Run, step time.Duration, label models.Status, allowed func(models.Status) bool) {
	if len(anchors) == 0 {
		return
	}
	minLen := samplesIn(normalAnchorMin, step)
	var normals []Run
	for _, r := range runsOf(len(status), func(i int) bool { return status[i] == models.StatusNormal }) {
		if r.Len() >= minLen {
			normals = append(normals, r)
		}
	}
	if len(normals) == 0 {
		return
	}

	// мост включает крайний отсчет серии NORMAL и потому не бывает пустым
	snapshot := append([]models.Status(nil), status...)
	bridgeOK := func(from, to int) bool {
		for i := from; i <= to; i++ {
			if !allowed(snapshot[i]) {
				return false
			}
		}
		return true
	}

	var updates []Run
	for _, a := range anchors {
		if front, ok := precedingRun(normals, a.Start); ok && bridgeOK(front.End, a.Start-1) {
			updates = append(updates, Run{Start: front.End, End: a.Start - 1})
		}
		if back, ok := followingRun(normals, a.End); ok && bridgeOK(a.End+1, back.Start) {
			updates = append(updates, Run{Start: a.End + 1, End: back.Start})
		}
	}
	for _, u := range updates {
		for i := u.Start; i <= u.End; i++ {
			status[i] = label
		}
	}
}

func precedingRun(runs []Run, before int) (Run, bool) {
	for k := len(runs) - 1; k >= 0; k-- {
		if runs[k].End < before {
			return runs[k], true
		}
	}
	return Run{}, false
}

func followingRun(runs []Run, after int) (Run, bool) {
	for _, r := range runs {
		if r.Start > after {
			return r, true
		}
	}
	return Run{}, false
}
