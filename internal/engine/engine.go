package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"turbine-wpa/internal/analytics"
	"turbine-wpa/internal/classifier"
	"turbine-wpa/internal/config"
	"turbine-wpa/internal/kpi"
	"turbine-wpa/internal/metrics"
	"turbine-wpa/internal/models"
	"turbine-wpa/internal/powercurve"
	"turbine-wpa/internal/preprocess"
	"turbine-wpa/internal/turbine"
	"turbine-wpa/internal/wind"
)

// Options параметры движка
type Options struct {
	Location          *time.Location
	Preprocess        preprocess.Options
	Classifier        classifier.Options
	EstimateConstants bool
	YawBinWidth       float64
	SkipDataGate      bool
}

// DefaultOptions UTC, автоматический eps, оценка недостающих констант
func DefaultOptions() Options {
	return Options{
		Location:          time.UTC,
		Preprocess:        preprocess.Options{FallbackDensity: preprocess.ReferenceDensity},
		Classifier:        classifier.DefaultOptions(),
		EstimateConstants: true,
		YawBinWidth:       10,
	}
}

// OptionsFromConfig собирает параметры движка из конфигурации сервиса
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := DefaultOptions()

	loc, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		return opts, fmt.Errorf("failed to load timezone: %w", err)
	}
	policy, err := classifier.ParseBandCeilingPolicy(cfg.Engine.BandPolicy)
	if err != nil {
		return opts, err
	}

	opts.Location = loc
	opts.Preprocess.FallbackDensity = cfg.Engine.AirDensity
	if cfg.Engine.AmbientTemperature > 0 {
		opts.Preprocess.AmbientTemperature = models.Float64(cfg.Engine.AmbientTemperature)
	}
	if cfg.Engine.AmbientPressure > 0 {
		opts.Preprocess.AmbientPressure = models.Float64(cfg.Engine.AmbientPressure)
	}
	if cfg.Engine.AmbientHumidity >= 0 {
		opts.Preprocess.AmbientHumidity = models.Float64(cfg.Engine.AmbientHumidity)
	}
	opts.Classifier.Eps = cfg.Engine.DBSCANEps
	opts.Classifier.BandPolicy = policy
	opts.EstimateConstants = cfg.Engine.EstimateConstants
	opts.YawBinWidth = cfg.Engine.YawBinWidth
	opts.SkipDataGate = cfg.Engine.SkipDataGate
	return opts, nil
}

// Request окно данных одной турбины. ComputationID назначается заранее
// для асинхронных расчетов, иначе генерируется движком.
type Request struct {
	ComputationID string `json:"-"`
	TurbineID     string `json:"turbine_id"`
	models.Dataset
	Constants models.ConstantsInput `json:"constants"`
}

// Engine конвейер анализа производительности. Не хранит состояния между
// вызовами и безопасен для параллельного использования.
type Engine struct {
	opts       Options
	logger     *zap.Logger
	pre        *preprocess.Preprocessor
	estimator  *turbine.Estimator
	classifier *classifier.Classifier
}

// New создает движок
func New(opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.YawBinWidth == 0 {
		opts.YawBinWidth = 10
	}
	return &Engine{
		opts:       opts,
		logger:     logger,
		pre:        preprocess.New(opts.Preprocess, logger),
		estimator:  turbine.NewEstimator(logger),
		classifier: classifier.New(opts.Classifier, logger),
	}
}

// EstimateConstants только оценка констант турбины с отладочными таблицами
func (e *Engine) EstimateConstants(ctx context.Context, req Request) (*turbine.Estimate, error) {
	if err := ValidateInput(req.Dataset, req.Constants, true); err != nil {
		return nil, err
	}
	frame, err := e.prepare(req.Dataset)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	est, err := e.resolve(req.Constants, frame)
	if err != nil {
		return nil, err
	}
	return est, nil
}

// Compute полный расчет окна: предобработка, константы, классификация,
// проверка достаточности, кривые мощности и показатели
func (e *Engine) Compute(ctx context.Context, req Request) (result *models.Result, err error) {
	started := time.Now()
	defer func() {
		metrics.ComputationsTotal.WithLabelValues(outcome(err)).Inc()
		if err != nil {
			e.logger.Warn("Computation failed",
				zap.String("turbine_id", req.TurbineID),
				zap.Error(err),
			)
		}
	}()

	if err := ValidateInput(req.Dataset, req.Constants, e.opts.EstimateConstants); err != nil {
		return nil, err
	}

	frame, err := e.prepare(req.Dataset)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	est, err := e.resolve(req.Constants, frame)
	if err != nil {
		return nil, err
	}
	consts := est.Constants
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stage := time.Now()
	cls, err := e.classifier.Classify(ctx, frame, consts)
	observe("classify", stage)
	if err != nil {
		return nil, wrapStageError(err)
	}
	if cls.Curve.Capped {
		metrics.FallbacksUsed.WithLabelValues("band_ceiling").Inc()
	}
	for _, s := range cls.Status {
		metrics.SamplesClassified.WithLabelValues(s.String()).Inc()
	}

	if !e.opts.SkipDataGate {
		if err := VerifyNormal(frame.Time, cls.Wind, cls.Power, cls.Status, consts); err != nil {
			return nil, err
		}
	}

	stage = time.Now()
	out, err := e.aggregate(ctx, frame, cls, consts)
	observe("aggregate", stage)
	if err != nil {
		return nil, wrapStageError(err)
	}

	out.ComputationID = req.ComputationID
	if out.ComputationID == "" {
		out.ComputationID = uuid.NewString()
	}
	out.TurbineID = req.TurbineID
	out.Constants = consts
	out.StartTime = frame.Time[0]
	out.EndTime = frame.Time[frame.Len()-1]

	e.logger.Info("Computation completed",
		zap.String("computation_id", out.ComputationID),
		zap.String("turbine_id", req.TurbineID),
		zap.Int("samples", frame.Len()),
		zap.Int("normal", out.Classification.Counts[models.StatusNormal.String()]),
		zap.String("energy_model", out.Indicators.EnergyModel),
		zap.Duration("duration", time.Since(started)),
	)
	return out, nil
}

func (e *Engine) prepare(ds models.Dataset) (*models.Frame, error) {
	stage := time.Now()
	defer observe("preprocess", stage)

	frame, err := e.pre.Prepare(models.NewFrameFromDataset(ds))
	if err != nil {
		return nil, wrapStageError(err)
	}
	if frame.Len() == 0 {
		return nil, fmt.Errorf("%w: no samples after preprocessing", ErrInsufficientData)
	}
	e.logger.Debug("Preprocessing finished",
		zap.Int("input_samples", len(ds.Samples)),
		zap.Int("samples", frame.Len()),
	)
	return frame, nil
}

func (e *Engine) resolve(input models.ConstantsInput, frame *models.Frame) (*turbine.Estimate, error) {
	stage := time.Now()
	defer observe("constants", stage)

	est, err := e.estimator.Resolve(input, frame)
	if err != nil {
		return nil, wrapStageError(err)
	}
	for name, method := range est.Methods {
		switch method {
		case turbine.MethodBinnedSoft, turbine.MethodMaxMean, turbine.MethodMaxWind:
			metrics.FallbacksUsed.WithLabelValues("constant_" + method).Inc()
			e.logger.Warn("Constant estimated by fallback method",
				zap.String("constant", name),
				zap.String("method", method),
			)
		}
	}
	return est, nil
}

// aggregate независимые расчеты по классифицированному ряду
func (e *Engine) aggregate(ctx context.Context, frame *models.Frame, cls *classifier.Result, consts models.Constants) (*models.Result, error) {
	var normals []int
	for i, s := range cls.Status {
		if s == models.StatusNormal {
			normals = append(normals, i)
		}
	}
	density := e.pre.AirDensity(frame)
	normWind, normPower := preprocess.Normalize(cls.Wind, cls.Power, density)

	var (
		curves         models.PowerCurves
		weibull        *wind.Weibull
		reliability    kpi.Reliability
		energy         kpi.Energy
		capacity       []models.CapacityFactorBin
		yaw            *models.YawMisalignment
		classification models.Classification
	)
	series := kpi.Series{
		Time:   frame.Time,
		Wind:   cls.Wind,
		Power:  cls.Power,
		Status: cls.Status,
		Step:   preprocess.TargetStep,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer observe("power_curves", time.Now())
		curves = powercurve.Build(frame.Time, normWind, normPower, normals, e.opts.Location)
		return gctx.Err()
	})
	g.Go(func() error {
		w, err := wind.FitWeibull(analytics.At(cls.Wind, normals))
		if err != nil {
			e.logger.Warn("Weibull fit failed", zap.Error(err))
			return nil
		}
		weibull = &w
		return nil
	})
	g.Go(func() error {
		reliability = kpi.ComputeReliability(frame.Time, cls.Status, preprocess.TargetStep)
		return nil
	})
	g.Go(func() error {
		defer observe("energy", time.Now())
		expected, err := kpi.EstimatePower(series, e.logger)
		if err != nil {
			return err
		}
		if expected.Model == kpi.ModelBinnedMedian {
			metrics.FallbacksUsed.WithLabelValues("power_model").Inc()
		}
		energy = kpi.ComputeEnergy(series, expected, e.opts.Location)
		return gctx.Err()
	})
	g.Go(func() error {
		capacity = kpi.CapacityFactor(normWind, normPower, normals, consts.SweptArea)
		return nil
	})
	g.Go(func() error {
		var err error
		yaw, err = kpi.YawMisalignment(frame.NacelleDir, frame.WindDir, e.opts.YawBinWidth)
		return err
	})
	g.Go(func() error {
		classification = classifier.Summary(frame.Time, cls.Wind, cls.Power, cls.Status)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	aep := wind.ComputeAEP(powercurve.GlobalCurve(curves), consts.VCutout, weibull)

	var ind models.Indicators
	energy.Apply(&ind)
	reliability.Apply(&ind)
	ind.RatedPower = consts.PRated
	if weibull != nil {
		ind.WeibullShape = models.Float64(weibull.Shape)
		ind.WeibullScale = models.Float64(weibull.Scale)
	}
	ind.AEPRayleighMeasured = aep.Measured
	ind.AEPRayleighExtrapolated = aep.Extrapolated
	ind.AEPWeibull = models.OptionalFloat(aep.Weibull)
	if yaw != nil {
		ind.YawLag = models.OptionalFloat(yaw.Mean)
		ind.YawMisalignment = yaw
	}
	ind.CapacityFactor = capacity

	return &models.Result{
		PowerCurves:    curves,
		Indicators:     ind,
		Classification: classification,
	}, nil
}

func observe(stage string, started time.Time) {
	metrics.StageLatency.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}
