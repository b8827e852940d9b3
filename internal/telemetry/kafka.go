package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of kafka.Writer the sink uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes records to a Kafka topic keyed by greenhouse ID
type KafkaSink struct {
	writer messageWriter
	logger zerolog.Logger
}

// NewKafkaSink creates a writer for topic. No connection is made until the first batch.
func NewKafkaSink(brokers []string, topic string, logger zerolog.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	logger.Info().Strs("brokers", brokers).Str("topic", topic).Msg("Kafka sink ready")
	return newKafkaSink(w, logger)
}

func newKafkaSink(w messageWriter, logger zerolog.Logger) *KafkaSink {
	return &KafkaSink{writer: w, logger: logger}
}

// Name implements Sink
func (k *KafkaSink) Name() string { return "kafka" }

// Send implements Sink
func (k *KafkaSink) Send(ctx context.Context, batch []Record) error {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, r := range batch {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(r.GreenhouseID), Value: b, Time: r.Timestamp})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close implements Sink
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
