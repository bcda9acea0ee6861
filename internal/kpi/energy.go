package kpi

import (
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"turbine-wpa/internal/analytics"
	"turbine-wpa/internal/models"
)

// Модели ожидаемой мощности
const (
	ModelLogistic     = "logistic_5pl"
	ModelBinnedMedian = "binned_median"
)

// ErrNoNormalSamples нет отсчетов NORMAL для модели мощности
var ErrNoNormalSamples = errors.New("no normal samples for power model")

// Series классифицированный ряд окна
type Series struct {
	Time   []time.Time
	Wind   []float64
	Power  []float64
	Status []models.Status
	Step   time.Duration
}

// Expected ожидаемая мощность по модели, обученной на NORMAL
type Expected struct {
	Wind      []float64
	Power     []float64
	Estimated []float64
	Model     string
}

// EstimatePower заполняет пропуски ветра и мощности линейно по времени,
// подбирает 5PL по NORMAL и считает ожидаемую мощность для всех отсчетов.
// Если 5PL не сходится, используется кусочно-линейная медианная кривая.
func EstimatePower(s Series, logger *zap.Logger) (*Expected, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	wind := analytics.InterpolateGaps(s.Wind)
	power := analytics.InterpolateGaps(s.Power)

	var normals []int
	for i, st := range s.Status {
		if st == models.StatusNormal && finite(wind[i]) && finite(power[i]) {
			normals = append(normals, i)
		}
	}
	if len(normals) == 0 {
		return nil, ErrNoNormalSamples
	}

	var model analytics.Curve
	name := ModelLogistic
	fit, err := FitLogistic(analytics.At(wind, normals), analytics.At(power, normals))
	if err == nil {
		model = fit
	} else {
		logger.Warn("5PL fit failed, using binned median curve",
			zap.Error(err),
			zap.Int("normal_samples", len(normals)),
		)
		name = ModelBinnedMedian
		if model, err = binnedMedianCurve(wind, power, normals); err != nil {
			return nil, err
		}
	}

	est := make([]float64, len(wind))
	for i, w := range wind {
		if math.IsNaN(w) {
			est[i] = math.NaN()
			continue
		}
		est[i] = model.Predict(w)
	}
	return &Expected{Wind: wind, Power: power, Estimated: est, Model: name}, nil
}

func binnedMedianCurve(wind, power []float64, idx []int) (analytics.Curve, error) {
	bins := analytics.HalfMeterBins(wind, idx)
	xs := make([]float64, 0, len(bins))
	ys := make([]float64, 0, len(bins))
	for _, b := range bins {
		xs = append(xs, b.Center)
		ys = append(ys, analytics.Median(analytics.At(power, b.Members)))
	}
	return analytics.FitLinear(xs, ys)
}

// Energy энергетические показатели и доступность окна
type Energy struct {
	AverageWindSpeed       float64
	ReachableEnergy        float64
	RealEnergy             float64
	LossEnergy             float64
	LossPercent            *float64
	Tba                    *float64
	Pba                    *float64
	StopLoss               float64
	PartialStopLoss        float64
	UnderProductionLoss    float64
	CurtailmentLoss        float64
	PartialCurtailmentLoss float64
	Model                  string

	Points map[models.Status]int

	TimeStep             float64
	TotalDuration        float64
	DurationWithoutError float64
	UpPeriodsCount       int
	DownPeriodsCount     int

	DailyProduction []models.DailyProduction
}

func isAvailable(s models.Status) bool {
	switch s {
	case models.StatusNormal, models.StatusOverproduction, models.StatusUnderproduction,
		models.StatusCurtailment, models.StatusPartialCurtailment:
		return true
	}
	return false
}

func isUnavailable(s models.Status) bool {
	return s == models.StatusStop || s == models.StatusPartialStop
}

// ComputeEnergy энергия в kWh, длительности в секундах; сутки берутся в loc
func ComputeEnergy(s Series, expected *Expected, loc *time.Location) Energy {
	if loc == nil {
		loc = time.UTC
	}
	h := s.Step.Hours()
	e := Energy{
		AverageWindSpeed: analytics.Mean(expected.Wind),
		Model:            expected.Model,
		Points:           make(map[models.Status]int),
		TimeStep:         s.Step.Seconds(),
	}

	var reachable, actual, okReal, okEst float64
	lossBy := make(map[models.Status]float64)
	for i, st := range s.Status {
		est, p := expected.Estimated[i], expected.Power[i]
		e.Points[st]++
		if finite(est) {
			reachable += est
		}
		if finite(p) {
			actual += p
		}
		if finite(est) && finite(p) {
			lossBy[st] += est - p
			if st != models.StatusMeasurementError {
				okReal += p
				okEst += est
			}
		}
	}

	e.ReachableEnergy = reachable * h
	e.RealEnergy = actual * h
	e.LossEnergy = math.Max(0, e.ReachableEnergy-e.RealEnergy)
	if e.ReachableEnergy != 0 {
		e.LossPercent = models.Float64(e.LossEnergy / e.ReachableEnergy)
	}
	loss := func(st models.Status) float64 { return math.Max(0, lossBy[st]*h) }
	e.StopLoss = loss(models.StatusStop)
	e.PartialStopLoss = loss(models.StatusPartialStop)
	e.UnderProductionLoss = loss(models.StatusUnderproduction)
	e.CurtailmentLoss = loss(models.StatusCurtailment)
	e.PartialCurtailmentLoss = loss(models.StatusPartialCurtailment)

	for st, n := range e.Points {
		if isAvailable(st) {
			e.UpPeriodsCount += n
		}
		if isUnavailable(st) {
			e.DownPeriodsCount += n
		}
	}
	if total := e.UpPeriodsCount + e.DownPeriodsCount; total > 0 {
		e.Tba = models.Float64(float64(e.UpPeriodsCount) / float64(total))
	}
	if okEst != 0 {
		e.Pba = models.Float64(okReal / okEst)
	}

	if n := len(s.Time); n > 0 {
		e.TotalDuration = s.Time[n-1].Sub(s.Time[0]).Seconds()
	}
	e.DurationWithoutError = e.TotalDuration - e.TimeStep*float64(e.DownPeriodsCount)
	e.DailyProduction = dailyProduction(s.Time, expected.Power, h, loc)
	return e
}

func dailyProduction(times []time.Time, power []float64, h float64, loc *time.Location) []models.DailyProduction {
	var out []models.DailyProduction
	for i, t := range times {
		day := t.In(loc).Format(time.DateOnly)
		if len(out) == 0 || out[len(out)-1].Date != day {
			out = append(out, models.DailyProduction{Date: day})
		}
		if finite(power[i]) {
			out[len(out)-1].Energy += power[i] * h
		}
	}
	return out
}

// Apply переносит показатели в индикаторы
func (e Energy) Apply(ind *models.Indicators) {
	ind.AverageWindSpeed = e.AverageWindSpeed
	ind.ReachableEnergy = e.ReachableEnergy
	ind.RealEnergy = e.RealEnergy
	ind.LossEnergy = e.LossEnergy
	ind.LossPercent = e.LossPercent
	ind.Tba = e.Tba
	ind.Pba = e.Pba
	ind.StopLoss = e.StopLoss
	ind.PartialStopLoss = e.PartialStopLoss
	ind.UnderProductionLoss = e.UnderProductionLoss
	ind.CurtailmentLoss = e.CurtailmentLoss
	ind.PartialCurtailmentLoss = e.PartialCurtailmentLoss
	ind.EnergyModel = e.Model

	ind.TotalStopPoints = e.Points[models.StatusStop]
	ind.TotalPartialStopPoints = e.Points[models.StatusPartialStop]
	ind.TotalUnderProductionPoints = e.Points[models.StatusUnderproduction]
	ind.TotalCurtailmentPoints = e.Points[models.StatusCurtailment]
	ind.TotalPartialCurtailmentPoints = e.Points[models.StatusPartialCurtailment]

	ind.TimeStep = e.TimeStep
	ind.TotalDuration = e.TotalDuration
	ind.DurationWithoutError = e.DurationWithoutError
	ind.UpPeriodsCount = e.UpPeriodsCount
	ind.DownPeriodsCount = e.DownPeriodsCount
	ind.UpPeriodsDuration = float64(e.UpPeriodsCount) * e.TimeStep
	ind.DownPeriodsDuration = float64(e.DownPeriodsCount) * e.TimeStep
	ind.DailyProduction = e.DailyProduction
}
