package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/statuswatch/statuswatch/pkg/types"
	"github.com/statuswatch/statuswatch/watcher/internal/config"
)

const kafkaWriteTimeout = 10 * time.Second

// messageWriter is the subset of *kafka.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaRecord is the value of every record the kafka channel produces.
type kafkaRecord struct {
	CycleID    string      `json:"cycle_id"`
	DetectedAt time.Time   `json:"detected_at"`
	Alert      types.Alert `json:"alert"`
}

type kafkaNotifier struct {
	writer messageWriter
	topic  string
}

func newKafka(cfg config.KafkaConfig) (*kafkaNotifier, error) {
	if strings.TrimSpace(cfg.Brokers) == "" {
		return nil, fmt.Errorf("notify: kafka: brokers cannot be empty")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("notify: kafka: topic cannot be empty")
	}
	brokers := strings.Split(cfg.Brokers, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}

	slog.Info("notify: kafka writer configured", "brokers", brokers, "topic", cfg.Topic)

	// Hash balancer keeps every alert for one institution or incident on
	// one partition.
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: kafkaWriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &kafkaNotifier{writer: w, topic: cfg.Topic}, nil
}

func (k *kafkaNotifier) Name() string { return "kafka" }

// Notify writes one record per alert in a single synchronous call.
func (k *kafkaNotifier) Notify(ctx context.Context, batch Batch) error {
	msgs := make([]kafka.Message, 0, len(batch.Alerts))
	for _, a := range batch.Alerts {
		value, err := json.Marshal(kafkaRecord{CycleID: batch.CycleID, DetectedAt: batch.DetectedAt, Alert: a})
		if err != nil {
			return &DeliveryError{Channel: "kafka", Err: fmt.Errorf("encode alert: %w", err)}
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(a.Key()),
			Value: value,
			Headers: []kafka.Header{
				{Key: "cycle_id", Value: []byte(batch.CycleID)},
				{Key: "kind", Value: []byte(a.Kind)},
				{Key: "severity", Value: []byte(a.Severity)},
			},
			Time: batch.DetectedAt,
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return &DeliveryError{Channel: "kafka", Retryable: ctx.Err() == nil, Err: fmt.Errorf("write to %s: %w", k.topic, err)}
	}
	return nil
}

func (k *kafkaNotifier) Close() error {
	slog.Info("notify: closing kafka writer", "topic", k.topic)
	return k.writer.Close()
}
