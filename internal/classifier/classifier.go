package classifier

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"turbine-wpa/internal/models"
)

// Options параметры классификатора
type Options struct {
	// Eps радиус DBSCAN в стандартизированных координатах; при 0 подбирается по излому
	Eps        float64
	MinSamples int
	ChunkSize  int
	Overlap    int
	BandPolicy BandCeilingPolicy
}

// DefaultOptions 15 соседей, части по 25000 строк с перекрытием 10%
func DefaultOptions() Options {
	return Options{
		MinSamples: 15,
		ChunkSize:  25000,
		Overlap:    2500,
		BandPolicy: BandCeilingCap,
	}
}

// Result итог классификации окна
type Result struct {
	Status      []models.Status
	Curve       *ReferenceCurve
	Eps         float64
	Candidates  []int
	Curtailment []Run

	// Wind и Power после правила скачка (обнуленные отсчеты равны NaN)
	Wind  []float64
	Power []float64
}

// Classifier присваивает каждому отсчету ровно одно состояние
type Classifier struct {
	opts   Options
	logger *zap.Logger
}

// New создает классификатор
func New(opts Options, logger *zap.Logger) *Classifier {
	def := DefaultOptions()
	if opts.MinSamples <= 0 {
		opts.MinSamples = def.MinSamples
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{opts: opts, logger: logger}
}

// Classify разметка ошибок, очистка выбросов, эталонная кривая,
// классификация производительности и добор частичных состояний
func (c *Classifier) Classify(ctx context.Context, f *models.Frame, consts models.Constants) (*Result, error) {
	status, wind, power := TagErrors(f, consts)

	unknown := make([]int, 0, len(status))
	for i, s := range status {
		if s == models.StatusUnknown {
			unknown = append(unknown, i)
		}
	}
	if len(unknown) == 0 {
		return nil, ErrNoNormalCandidates
	}

	pts := standardize(wind, power, unknown)
	eps := c.opts.Eps
	if eps <= 0 {
		eps = estimateEps(pts, c.opts.MinSamples)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunks := PlanChunks(len(unknown), c.opts.ChunkSize, c.opts.Overlap)
	candidates := removeOutliers(pts, unknown, eps, c.opts.MinSamples, chunks)
	c.logger.Debug("Outliers removed",
		zap.Int("unknown", len(unknown)),
		zap.Int("candidates", len(candidates)),
		zap.Int("chunks", len(chunks)),
		zap.Float64("eps", eps),
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	curve, err := FitReferenceCurve(wind, power, candidates)
	if err != nil {
		return nil, err
	}
	if err := ClassifyPerformance(status, wind, power, curve, c.opts.BandPolicy, c.logger); err != nil {
		return nil, err
	}

	step := f.TimeStep()
	curtailed := MarkCurtailment(status, power, f.Time, step)
	PartialCurtailment(status, curtailed, step)
	PartialStops(status, step)
	ForceStop(status, power)

	return &Result{
		Status:      status,
		Wind:        wind,
		Power:       power,
		Curve:       curve,
		Eps:         eps,
		Candidates:  candidates,
		Curtailment: curtailed,
	}, nil
}

// ClassifyPerformance подбирает полосу по всем отсчетам с конечными ветром и
// мощностью, включая уже размеченные STOP, и переводит отсчеты UNKNOWN в
// UNDERPRODUCTION, OVERPRODUCTION или NORMAL
func ClassifyPerformance(status []models.Status, wind, power []float64, curve *ReferenceCurve, policy BandCeilingPolicy, logger *zap.Logger) error {
	all := make([]int, 0, len(status))
	var unknown []int
	for i, s := range status {
		all = append(all, i)
		if s == models.StatusUnknown {
			unknown = append(unknown, i)
		}
	}
	if err := curve.FitBands(wind, power, all, policy, logger); err != nil {
		return err
	}
	for _, i := range unknown {
		switch p := power[i]; {
		case p < curve.Lower(wind[i]):
			status[i] = models.StatusUnderproduction
		case p > curve.Upper(wind[i]):
			status[i] = models.StatusOverproduction
		default:
			status[i] = models.StatusNormal
		}
	}
	return nil
}

// Summary счетчики и доли состояний, компактный список точек и легенда
func Summary(times []time.Time, wind, power []float64, status []models.Status) models.Classification {
	counts := make(map[string]int, len(models.LegendStatuses))
	for _, s := range models.LegendStatuses {
		counts[s.String()] = 0
	}
	points := make([]models.ClassificationPoint, len(status))
	for i, s := range status {
		counts[s.String()]++
		points[i] = models.ClassificationPoint{
			Timestamp:   times[i],
			WindSpeed:   models.OptionalFloat(wind[i]),
			ActivePower: models.OptionalFloat(power[i]),
			Status:      s,
		}
	}
	pct := make(map[string]float64, len(counts))
	for name, n := range counts {
		if len(status) == 0 {
			pct[name] = 0
			continue
		}
		pct[name] = math.Round(float64(n)/float64(len(status))*10000) / 100
	}
	return models.Classification{
		Counts:      counts,
		Percentages: pct,
		Points:      points,
		Legend:      models.StatusLegend(),
	}
}
