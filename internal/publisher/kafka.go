package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"turbine-wpa/internal/metrics"
	"turbine-wpa/internal/models"
)

// EventComputationCompleted тип события о завершенном расчете
const EventComputationCompleted = "ComputationCompleted"

// ComputationCompleted краткое событие без точек классификации и кривых
type ComputationCompleted struct {
	Type          string            `json:"type"`
	ComputationID string            `json:"computation_id"`
	TurbineID     string            `json:"turbine_id"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	Constants     models.Constants  `json:"constants"`
	Counts        map[string]int    `json:"counts"`
	Indicators    models.Indicators `json:"indicators"`
	PublishedAt   time.Time         `json:"published_at"`
}

// NewComputationCompleted событие по результату расчета
func NewComputationCompleted(res *models.Result, now time.Time) ComputationCompleted {
	ind := res.Indicators
	ind.DailyProduction = nil
	return ComputationCompleted{
		Type:          EventComputationCompleted,
		ComputationID: res.ComputationID,
		TurbineID:     res.TurbineID,
		StartTime:     res.StartTime,
		EndTime:       res.EndTime,
		Constants:     res.Constants,
		Counts:        res.Classification.Counts,
		Indicators:    ind,
		PublishedAt:   now.UTC(),
	}
}

// MessageWriter часть kafka.Writer, нужная издателю
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher публикует события расчетов в Kafka
type Publisher struct {
	writer MessageWriter
	topic  string
	logger *zap.Logger
}

// NewWriter синхронный writer с подтверждением от лидера
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// New создает издателя
func New(writer MessageWriter, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{writer: writer, topic: topic, logger: logger}
}

// PublishResult отправляет ComputationCompleted с ключом турбины, чтобы
// события одной турбины попадали в одну партицию
func (p *Publisher) PublishResult(ctx context.Context, res *models.Result) error {
	payload, err := json.Marshal(NewComputationCompleted(res, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(res.TurbineID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventComputationCompleted)},
		},
	})
	metrics.KafkaPublishes.WithLabelValues(p.topic, metrics.Outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to publish computation %s: %w", res.ComputationID, err)
	}

	p.logger.Debug("Computation event published",
		zap.String("computation_id", res.ComputationID),
		zap.String("topic", p.topic),
	)
	return nil
}

// Close закрывает writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}
