package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbine-wpa/internal/models"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testResult() *models.Result {
	return &models.Result{
		ComputationID: "c-1",
		TurbineID:     "T01",
		StartTime:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		EndTime:       time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		Indicators: models.Indicators{
			RealEnergy:      1200,
			DailyProduction: []models.DailyProduction{{Date: "2024-03-01", Energy: 100}},
		},
		Classification: models.Classification{
			Counts: map[string]int{"NORMAL": 10},
			Points: []models.ClassificationPoint{{Status: models.StatusNormal}},
		},
	}
}

func TestPublishResult(t *testing.T) {
	w := &fakeWriter{}
	p := New(w, "wpa.computations", nil)

	require.NoError(t, p.PublishResult(context.Background(), testResult()))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "T01", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, EventComputationCompleted, string(msg.Headers[0].Value))

	var ev ComputationCompleted
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, EventComputationCompleted, ev.Type)
	assert.Equal(t, "c-1", ev.ComputationID)
	assert.Equal(t, 10, ev.Counts["NORMAL"])
	assert.Equal(t, 1200.0, ev.Indicators.RealEnergy)
	assert.Empty(t, ev.Indicators.DailyProduction)
	assert.NotContains(t, string(msg.Value), `"points":`)
}

func TestPublishResult_WriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := New(w, "wpa.computations", nil)

	err := p.PublishResult(context.Background(), testResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c-1")
	assert.Contains(t, err.Error(), "broker unavailable")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewComputationCompleted_DoesNotMutateResult(t *testing.T) {
	res := testResult()
	ev := NewComputationCompleted(res, time.Date(2024, 3, 9, 1, 0, 0, 0, time.FixedZone("X", 3600)))

	assert.Nil(t, ev.Indicators.DailyProduction)
	assert.Len(t, res.Indicators.DailyProduction, 1)
	assert.Equal(t, time.UTC, ev.PublishedAt.Location())
}
