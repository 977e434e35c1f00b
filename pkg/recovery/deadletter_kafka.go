//go:build kafka

package recovery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"
)

// KafkaSink persists dead-lettered entries to a Kafka topic so they
// survive a process restart. It requires the "kafka" build tag, kept
// separate from the default build the way the teacher isolates its own
// optional broker-backed endpoints.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaSink dials brokers with strong delivery guarantees: wait for
// all in-sync replicas to acknowledge, retry up to 10 times.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 10
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka dead letter sink: %w", err)
	}
	return &KafkaSink{producer: producer, topic: topic}, nil
}

type kafkaDeadLetterRecord struct {
	Stage      string      `json:"stage"`
	Data       interface{} `json:"data"`
	Error      string      `json:"error"`
	EnqueuedAt string      `json:"enqueuedAt"`
}

// Send implements Sink. The message key is left unset so entries
// distribute randomly across partitions.
func (k *KafkaSink) Send(ctx context.Context, entry DeadLetterEntry) error {
	rec := kafkaDeadLetterRecord{
		Stage:      entry.Stage,
		Data:       entry.Data,
		EnqueuedAt: entry.EnqueuedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if entry.Err != nil {
		rec.Error = entry.Err.Error()
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dead letter entry: %w", err)
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("send dead letter entry: %w", err)
	}
	return nil
}

// Close releases the underlying producer.
func (k *KafkaSink) Close() error {
	return k.producer.Close()
}
