package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"turbine-wpa/internal/metrics"
	"turbine-wpa/internal/models"
)

const recentLimit = 100

// ErrNotFound расчет отсутствует в кэше
var ErrNotFound = errors.New("computation not found")

// Failure ошибка асинхронного расчета
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RedisCache кэш результатов расчета в Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache создает новый Redis кэш
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, ttl), nil
}

// NewWithClient кэш поверх готового клиента
func NewWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, now: time.Now}
}

// ResultKey ключ результата по турбине, набору данных и константам
func ResultKey(turbineID string, ds models.Dataset, c models.ConstantsInput) (string, error) {
	h := xxhash.New()
	payload, err := json.Marshal(struct {
		Dataset   models.Dataset        `json:"dataset"`
		Constants models.ConstantsInput `json:"constants"`
	}{ds, c})
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache key payload: %w", err)
	}
	_, _ = h.Write(payload)
	return fmt.Sprintf("result:%s:%016x", turbineID, h.Sum64()), nil
}

func computationKey(id string) string { return "computation:" + id }

func failureKey(id string) string { return "failure:" + id }

func recentKey(turbineID string) string { return "recent:" + turbineID }

// GetResult результат по ключу; ok=false при промахе
func (r *RedisCache) GetResult(ctx context.Context, key string) (*models.Result, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.record("get", nil)
		r.misses.Add(1)
		r.updateHitRate()
		return nil, false, nil
	}
	r.record("get", err)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get result: %w", err)
	}

	var res models.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	r.hits.Add(1)
	r.updateHitRate()
	return &res, true, nil
}

// StoreResult сохраняет результат, индекс по идентификатору расчета
// и добавляет расчет в список последних по турбине
func (r *RedisCache) StoreResult(ctx context.Context, key string, res *models.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	listKey := recentKey(res.TurbineID)
	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, data, r.ttl)
	pipe.Set(ctx, computationKey(res.ComputationID), key, r.ttl)
	pipe.ZAdd(ctx, listKey, redis.Z{Score: float64(r.now().UnixMilli()), Member: res.ComputationID})
	pipe.ZRemRangeByRank(ctx, listKey, 0, -recentLimit-1)
	pipe.Expire(ctx, listKey, r.ttl)

	_, err = pipe.Exec(ctx)
	r.record("store", err)
	if err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

// StoreFailure сохраняет ошибку асинхронного расчета
func (r *RedisCache) StoreFailure(ctx context.Context, computationID string, f Failure) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal failure: %w", err)
	}
	err = r.client.Set(ctx, failureKey(computationID), data, r.ttl).Err()
	r.record("store_failure", err)
	return err
}

// GetComputation результат или ошибка расчета по идентификатору
func (r *RedisCache) GetComputation(ctx context.Context, computationID string) (*models.Result, *Failure, error) {
	key, err := r.client.Get(ctx, computationKey(computationID)).Result()
	switch {
	case err == nil:
		res, ok, err := r.GetResult(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, ErrNotFound
		}
		return res, nil, nil
	case !errors.Is(err, redis.Nil):
		r.record("get", err)
		return nil, nil, fmt.Errorf("failed to get computation: %w", err)
	}

	data, err := r.client.Get(ctx, failureKey(computationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil, ErrNotFound
	}
	r.record("get", err)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get failure: %w", err)
	}
	var f Failure
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal failure: %w", err)
	}
	return nil, &f, nil
}

// RecentComputations идентификаторы последних расчетов турбины, новые первыми
func (r *RedisCache) RecentComputations(ctx context.Context, turbineID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	results, err := r.client.ZRevRange(ctx, recentKey(turbineID), 0, int64(limit-1)).Result()
	r.record("recent", err)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent computations: %w", err)
	}
	return results, nil
}

// IncrementCounter увеличивает счетчик
func (r *RedisCache) IncrementCounter(ctx context.Context, key string) error {
	return r.client.Incr(ctx, key).Err()
}

// GetCounter получает значение счетчика
func (r *RedisCache) GetCounter(ctx context.Context, key string) (int64, error) {
	val, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return val, err
}

// Close закрывает соединение с Redis
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Ping проверяет доступность Redis
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// GetStats возвращает статистику Redis
func (r *RedisCache) GetStats() map[string]interface{} {
	stats := r.client.PoolStats()

	return map[string]interface{}{
		"hits":          stats.Hits,
		"misses":        stats.Misses,
		"timeouts":      stats.Timeouts,
		"total_conns":   stats.TotalConns,
		"idle_conns":    stats.IdleConns,
		"stale_conns":   stats.StaleConns,
		"result_hits":   r.hits.Load(),
		"result_misses": r.misses.Load(),
	}
}

func (r *RedisCache) record(operation string, err error) {
	metrics.RedisOperations.WithLabelValues(operation, metrics.Outcome(err)).Inc()
}

func (r *RedisCache) updateHitRate() {
	hits, misses := r.hits.Load(), r.misses.Load()
	if total := hits + misses; total > 0 {
		metrics.CacheHitRate.WithLabelValues("result").Set(float64(hits) / float64(total))
	}
}

// DailyCounterKey ключ суточного счетчика расчетов
func DailyCounterKey(day time.Time) string {
	return "computations:" + day.Format("20060102")
}
