package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbine-wpa/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewWithClient(client, time.Hour)
	clock := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return mr, c
}

func testResult(id, turbine string) *models.Result {
	return &models.Result{
		ComputationID: id,
		TurbineID:     turbine,
		StartTime:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndTime:       time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		Constants:     models.Constants{VCutin: 3, VCutout: 25, VRated: 12, PRated: 2000, SweptArea: 5000},
		PowerCurves: models.PowerCurves{
			"global": {"all": {{WindSpeed: 8, ActivePower: 900, Count: 12}}},
		},
		Indicators: models.Indicators{RealEnergy: 1200, MTTR: models.Float64(3600)},
		Classification: models.Classification{
			Counts: map[string]int{"NORMAL": 10, "STOP": 2},
			Legend: models.StatusLegend(),
		},
	}
}

func TestRedisCache_StoreAndGetResult(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	res := testResult("c-1", "T01")
	require.NoError(t, c.StoreResult(ctx, "result:T01:abc", res))

	got, ok, err := c.GetResult(ctx, "result:T01:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c-1", got.ComputationID)
	assert.Equal(t, 1200.0, got.Indicators.RealEnergy)
	require.NotNil(t, got.Indicators.MTTR)
	assert.Equal(t, 3600.0, *got.Indicators.MTTR)
	assert.Equal(t, 900.0, got.PowerCurves["global"]["all"][0].ActivePower)
	assert.Equal(t, models.StatusLegend(), got.Classification.Legend)

	assert.True(t, mr.Exists("computation:c-1"))
	assert.Equal(t, time.Hour, mr.TTL("result:T01:abc"))
}

func TestRedisCache_Miss(t *testing.T) {
	_, c := setupTestRedis(t)

	got, ok, err := c.GetResult(context.Background(), "result:T01:none")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Equal(t, int64(1), c.misses.Load())
}

func TestRedisCache_RecentComputations(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("c-%d", i)
		require.NoError(t, c.StoreResult(ctx, "result:T01:"+id, testResult(id, "T01")))
	}
	require.NoError(t, c.StoreResult(ctx, "result:T02:x", testResult("other", "T02")))

	ids, err := c.RecentComputations(ctx, "T01", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c-3", "c-2"}, ids)

	ids, err = c.RecentComputations(ctx, "T01", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c-3", "c-2", "c-1"}, ids)
}

func TestRedisCache_RecentListIsBounded(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	for i := 0; i < recentLimit+5; i++ {
		id := fmt.Sprintf("c-%03d", i)
		require.NoError(t, c.StoreResult(ctx, "result:T01:"+id, testResult(id, "T01")))
	}

	ids, err := c.RecentComputations(ctx, "T01", 1000)
	require.NoError(t, err)
	assert.Len(t, ids, recentLimit)
	assert.Equal(t, fmt.Sprintf("c-%03d", recentLimit+4), ids[0])
}

func TestRedisCache_GetComputation(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.StoreResult(ctx, "result:T01:abc", testResult("c-1", "T01")))
	require.NoError(t, c.StoreFailure(ctx, "c-2", Failure{Code: "INSUFFICIENT_DATA", Message: "not enough history"}))

	res, failure, err := c.GetComputation(ctx, "c-1")
	require.NoError(t, err)
	assert.Nil(t, failure)
	assert.Equal(t, "T01", res.TurbineID)

	res, failure, err = c.GetComputation(ctx, "c-2")
	require.NoError(t, err)
	assert.Nil(t, res)
	require.NotNil(t, failure)
	assert.Equal(t, "INSUFFICIENT_DATA", failure.Code)

	_, _, err = c.GetComputation(ctx, "c-3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisCache_ExpiredResultIsNotFound(t *testing.T) {
	mr, c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.StoreResult(ctx, "result:T01:abc", testResult("c-1", "T01")))
	mr.FastForward(2 * time.Hour)

	_, _, err := c.GetComputation(ctx, "c-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResultKey(t *testing.T) {
	ds := models.Dataset{
		Columns: []string{models.ColTimestamp, models.ColWindSpeed, models.ColActivePower},
		Samples: []models.Sample{{
			Timestamp:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			WindSpeed:   models.Float64(8),
			ActivePower: models.Float64(900),
		}},
	}
	c := models.ConstantsInput{SweptArea: models.Float64(5000)}

	k1, err := ResultKey("T01", ds, c)
	require.NoError(t, err)
	k2, err := ResultKey("T01", ds, c)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Contains(t, k1, "result:T01:")

	c.PRated = models.Float64(2000)
	k3, err := ResultKey("T01", ds, c)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestRedisCache_Counter(t *testing.T) {
	_, c := setupTestRedis(t)
	ctx := context.Background()
	key := DailyCounterKey(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "computations:20240301", key)

	n, err := c.GetCounter(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, c.IncrementCounter(ctx, key))
	require.NoError(t, c.IncrementCounter(ctx, key))
	n, err = c.GetCounter(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, c.Ping(ctx))
}
