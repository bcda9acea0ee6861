package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"turbine-wpa/internal/cache"
	"turbine-wpa/internal/engine"
	"turbine-wpa/internal/ingest"
	"turbine-wpa/internal/metrics"
	"turbine-wpa/internal/models"
	"turbine-wpa/internal/repository"
	"turbine-wpa/internal/turbine"
	"turbine-wpa/internal/worker"
)

// maxBodyBytes ограничение тела запроса с измерениями
const maxBodyBytes = 256 << 20

// Computer движок расчета
type Computer interface {
	Compute(ctx context.Context, req engine.Request) (*models.Result, error)
	EstimateConstants(ctx context.Context, req engine.Request) (*turbine.Estimate, error)
}

// ResultCache кэш результатов
type ResultCache interface {
	GetResult(ctx context.Context, key string) (*models.Result, bool, error)
	StoreResult(ctx context.Context, key string, res *models.Result) error
	GetComputation(ctx context.Context, computationID string) (*models.Result, *cache.Failure, error)
	RecentComputations(ctx context.Context, turbineID string, limit int) ([]string, error)
	IncrementCounter(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	GetStats() map[string]interface{}
}

// SampleStore хранилище измерений
type SampleStore interface {
	LoadWindow(ctx context.Context, turbineID string, start, end time.Time) (models.Dataset, error)
	SaveSamples(ctx context.Context, turbineID string, ds models.Dataset) (int64, error)
}

// ResultStore хранилище результатов
type ResultStore interface {
	SaveResult(ctx context.Context, res *models.Result) error
	LatestComputation(ctx context.Context, turbineID string) (*repository.StoredComputation, error)
}

// Publisher публикация событий о расчетах
type Publisher interface {
	PublishResult(ctx context.Context, res *models.Result) error
}

// Queue очередь асинхронных расчетов
type Queue interface {
	Submit(job worker.Job) error
	GetStats() map[string]interface{}
}

// Deps зависимости обработчика; Samples, Results, Publisher и Queue необязательны
type Deps struct {
	Engine    Computer
	Cache     ResultCache
	Samples   SampleStore
	Results   ResultStore
	Publisher Publisher
	Queue     Queue
	Location  *time.Location
}

// Handler обработчик HTTP запросов
type Handler struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewHandler создает новый обработчик
func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Handler{deps: deps, logger: logger, now: time.Now}
}

// Register регистрирует маршруты API
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/computations", h.Compute).Methods(http.MethodPost)
	r.HandleFunc("/computations/async", h.ComputeAsync).Methods(http.MethodPost)
	r.HandleFunc("/computations/{id}", h.GetComputation).Methods(http.MethodGet)
	r.HandleFunc("/computations/{turbine}/recent", h.RecentComputations).Methods(http.MethodGet)
	r.HandleFunc("/turbines/{id}/computations", h.ComputeStored).Methods(http.MethodPost)
	r.HandleFunc("/turbines/{id}/computations/latest", h.LatestComputation).Methods(http.MethodGet)
	r.HandleFunc("/turbines/{id}/samples", h.UploadSamples).Methods(http.MethodPost)
	r.HandleFunc("/constants/estimate", h.EstimateConstants).Methods(http.MethodPost)
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)
}

// Compute обрабатывает POST /computations
func (h *Handler) Compute(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/computations"
	defer h.track(r, endpoint, time.Now())

	req, err := decodeRequest(r)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	key, err := cache.ResultKey(req.TurbineID, req.Dataset, req.Constants)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	if res, ok, err := h.deps.Cache.GetResult(r.Context(), key); err != nil {
		h.logger.Warn("Cache lookup failed", zap.Error(err))
	} else if ok {
		w.Header().Set("X-Cache", "HIT")
		h.respond(w, r, endpoint, http.StatusOK, res)
		return
	}

	res, err := h.deps.Engine.Compute(r.Context(), req)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.complete(r.Context(), key, res, false)

	w.Header().Set("X-Cache", "MISS")
	h.respond(w, r, endpoint, http.StatusOK, res)
}

// ComputeAsync обрабатывает POST /computations/async
func (h *Handler) ComputeAsync(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/computations/async"
	defer h.track(r, endpoint, time.Now())

	if h.deps.Queue == nil {
		h.fail(w, r, endpoint, errUnavailable("async computations are disabled"))
		return
	}
	req, err := decodeRequest(r)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	// вход проверяется сразу, чтобы не ставить в очередь заведомо неверный расчет
	if err := engine.ValidateInput(req.Dataset, req.Constants, true); err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	key, err := cache.ResultKey(req.TurbineID, req.Dataset, req.Constants)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	req.ComputationID = uuid.NewString()
	if err := h.deps.Queue.Submit(worker.Job{Request: req, CacheKey: key}); err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	h.respond(w, r, endpoint, http.StatusAccepted, map[string]string{
		"status":         "accepted",
		"computation_id": req.ComputationID,
		"turbine_id":     req.TurbineID,
	})
}

// GetComputation обрабатывает GET /computations/{id}
func (h *Handler) GetComputation(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/computations/{id}"
	defer h.track(r, endpoint, time.Now())

	id := mux.Vars(r)["id"]
	res, failure, err := h.deps.Cache.GetComputation(r.Context(), id)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		h.fail(w, r, endpoint, errNotFound("computation %s not found", id))
	case err != nil:
		h.fail(w, r, endpoint, err)
	case failure != nil:
		h.respond(w, r, endpoint, http.StatusOK, map[string]interface{}{
			"computation_id": id,
			"status":         "failed",
			"error":          failure,
		})
	default:
		h.respond(w, r, endpoint, http.StatusOK, res)
	}
}

// RecentComputations обрабатывает GET /computations/{turbine}/recent
func (h *Handler) RecentComputations(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/computations/{turbine}/recent"
	defer h.track(r, endpoint, time.Now())

	turbineID := mux.Vars(r)["turbine"]
	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.fail(w, r, endpoint, errBadRequest("invalid limit %q", s))
			return
		}
		limit = n
	}

	ids, err := h.deps.Cache.RecentComputations(r.Context(), turbineID, limit)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.respond(w, r, endpoint, http.StatusOK, map[string]interface{}{
		"turbine_id":   turbineID,
		"count":        len(ids),
		"computations": ids,
	})
}

// ComputeStored обрабатывает POST /turbines/{id}/computations?start=&end=.
// Тело необязательно и содержит только константы.
func (h *Handler) ComputeStored(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/turbines/{id}/computations"
	defer h.track(r, endpoint, time.Now())

	if h.deps.Samples == nil {
		h.fail(w, r, endpoint, errUnavailable("sample storage is disabled"))
		return
	}
	turbineID := mux.Vars(r)["id"]
	start, end, err := h.window(r)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	var body struct {
		Constants models.ConstantsInput `json:"constants"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			h.fail(w, r, endpoint, errBadRequest("invalid JSON: %v", err))
			return
		}
	}

	ds, err := h.deps.Samples.LoadWindow(r.Context(), turbineID, start, end)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	req := engine.Request{TurbineID: turbineID, Dataset: ds, Constants: body.Constants}
	res, err := h.deps.Engine.Compute(r.Context(), req)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	key, err := cache.ResultKey(turbineID, ds, body.Constants)
	if err != nil {
		h.logger.Warn("Failed to derive cache key", zap.Error(err))
		key = ""
	}
	h.complete(r.Context(), key, res, true)
	h.respond(w, r, endpoint, http.StatusOK, res)
}

// LatestComputation обрабатывает GET /turbines/{id}/computations/latest
func (h *Handler) LatestComputation(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/turbines/{id}/computations/latest"
	defer h.track(r, endpoint, time.Now())

	if h.deps.Results == nil {
		h.fail(w, r, endpoint, errUnavailable("result storage is disabled"))
		return
	}
	turbineID := mux.Vars(r)["id"]
	sc, err := h.deps.Results.LatestComputation(r.Context(), turbineID)
	if errors.Is(err, repository.ErrNotFound) {
		h.fail(w, r, endpoint, errNotFound("no computations for turbine %s", turbineID))
		return
	}
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.respond(w, r, endpoint, http.StatusOK, sc)
}

// UploadSamples обрабатывает POST /turbines/{id}/samples с телом CSV
func (h *Handler) UploadSamples(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/turbines/{id}/samples"
	defer h.track(r, endpoint, time.Now())

	if h.deps.Samples == nil {
		h.fail(w, r, endpoint, errUnavailable("sample storage is disabled"))
		return
	}
	turbineID := mux.Vars(r)["id"]
	ds, err := ingest.ReadCSV(http.MaxBytesReader(w, r.Body, maxBodyBytes), h.deps.Location)
	if err != nil {
		h.fail(w, r, endpoint, errBadRequest("%v", err))
		return
	}
	if err := engine.ValidateDataset(ds); err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	inserted, err := h.deps.Samples.SaveSamples(r.Context(), turbineID, ds)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.respond(w, r, endpoint, http.StatusCreated, map[string]interface{}{
		"turbine_id": turbineID,
		"received":   len(ds.Samples),
		"inserted":   inserted,
	})
}

// EstimateConstants обрабатывает POST /constants/estimate
func (h *Handler) EstimateConstants(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/constants/estimate"
	defer h.track(r, endpoint, time.Now())

	req, err := decodeRequest(r)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	est, err := h.deps.Engine.EstimateConstants(r.Context(), req)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.respond(w, r, endpoint, http.StatusOK, est)
}

// HealthCheck обрабатывает GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	// Проверяем Redis
	redisOK := h.deps.Cache.Ping(r.Context()) == nil

	status := "healthy"
	httpStatus := http.StatusOK

	if !redisOK {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"redis":     redisOK,
		"timestamp": h.now(),
	})
}

// GetStats обрабатывает GET /stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/stats"
	defer h.track(r, endpoint, time.Now())

	stats := map[string]interface{}{
		"redis":     h.deps.Cache.GetStats(),
		"timestamp": h.now(),
	}
	if h.deps.Queue != nil {
		stats["workers"] = h.deps.Queue.GetStats()
	}
	h.respond(w, r, endpoint, http.StatusOK, stats)
}

// complete кэширует, сохраняет и публикует готовый результат. Ошибки
// побочных хранилищ только логируются: результат уже получен.
func (h *Handler) complete(ctx context.Context, key string, res *models.Result, persist bool) {
	if key != "" {
		if err := h.deps.Cache.StoreResult(ctx, key, res); err != nil {
			h.logger.Warn("Failed to cache result", zap.String("computation_id", res.ComputationID), zap.Error(err))
		}
	}
	if err := h.deps.Cache.IncrementCounter(ctx, cache.DailyCounterKey(h.now())); err != nil {
		h.logger.Debug("Failed to increment daily counter", zap.Error(err))
	}
	if persist && h.deps.Results != nil {
		if err := h.deps.Results.SaveResult(ctx, res); err != nil {
			h.logger.Error("Failed to store result", zap.String("computation_id", res.ComputationID), zap.Error(err))
		}
	}
	if persist && h.deps.Publisher != nil {
		if err := h.deps.Publisher.PublishResult(ctx, res); err != nil {
			h.logger.Error("Failed to publish result", zap.String("computation_id", res.ComputationID), zap.Error(err))
		}
	}
}

// window границы окна из параметров start и end
func (h *Handler) window(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	if q.Get("start") == "" || q.Get("end") == "" {
		return time.Time{}, time.Time{}, errBadRequest("start and end query parameters are required")
	}
	start, err := ingest.ParseTimestamp(q.Get("start"), h.deps.Location)
	if err != nil {
		return time.Time{}, time.Time{}, errBadRequest("invalid start: %v", err)
	}
	end, err := ingest.ParseTimestamp(q.Get("end"), h.deps.Location)
	if err != nil {
		return time.Time{}, time.Time{}, errBadRequest("invalid end: %v", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, errBadRequest("end must be after start")
	}
	return start, end, nil
}

func decodeRequest(r *http.Request) (engine.Request, error) {
	var req engine.Request
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return req, errBadRequest("invalid JSON: %v", err)
	}
	if req.TurbineID == "" {
		return req, errBadRequest("turbine_id is required")
	}
	return req, nil
}

// httpError ошибка уровня HTTP с готовым статусом
type httpError struct {
	status int
	code   string
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func errBadRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, code: "BAD_REQUEST", msg: fmt.Sprintf(format, args...)}
}

func errNotFound(format string, args ...any) error {
	return &httpError{status: http.StatusNotFound, code: "NOT_FOUND", msg: fmt.Sprintf(format, args...)}
}

func errUnavailable(msg string) error {
	return &httpError{status: http.StatusServiceUnavailable, code: "UNAVAILABLE", msg: msg}
}

// classify статус и код ответа для ошибки
func classify(err error) (int, string) {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status, he.code
	case errors.Is(err, engine.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, engine.ErrInsufficientData):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_DATA"
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrStopped):
		return http.StatusServiceUnavailable, "QUEUE_FULL"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// FailureFor описание ошибки асинхронного расчета для кэша
func FailureFor(err error) cache.Failure {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return cache.Failure{Code: code, Message: msg}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("endpoint", endpoint), zap.Error(err))
		msg = "internal error"
	}
	h.respond(w, r, endpoint, status, ErrorResponse{Code: code, Message: msg})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, endpoint string, status int, body any) {
	metrics.RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
	writeJSON(w, status, body)
}

func (h *Handler) track(r *http.Request, endpoint string, start time.Time) {
	metrics.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
