package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"

	"violation-service/internal/config"
	"violation-service/internal/domain/violation"
)

// KafkaNotifier publishes violation events keyed by violation id. Produce is
// asynchronous; delivery failures are logged by the report loop.
type KafkaNotifier struct {
	producer *kafka.Producer
	topic    string
	log      zerolog.Logger

	sent   atomic.Int64
	acked  atomic.Int64
	failed atomic.Int64

	wg sync.WaitGroup
}

func NewKafkaNotifier(cfg config.KafkaConfig, log zerolog.Logger) (*KafkaNotifier, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":   cfg.Brokers,
		"client.id":           cfg.ClientID,
		"acks":                cfg.Acks,
		"enable.idempotence":  true,
		"linger.ms":           10,
		"delivery.timeout.ms": 120000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	n := &KafkaNotifier{
		producer: p,
		topic:    cfg.Topic,
		log:      log,
	}

	n.wg.Add(1)
	go n.handleDeliveryReports()

	log.Info().Str("topic", cfg.Topic).Str("brokers", cfg.Brokers).Msg("kafka notifier initialized")
	return n, nil
}

func (n *KafkaNotifier) handleDeliveryReports() {
	defer n.wg.Done()

	for e := range n.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				n.failed.Add(1)
				n.log.Error().
					Err(ev.TopicPartition.Error).
					Str("key", string(ev.Key)).
					Msg("violation event delivery failed")
				continue
			}
			n.acked.Add(1)
		case kafka.Error:
			n.log.Error().Err(ev).Msg("kafka error")
		}
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, v violation.Confirmed) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(NewEvent(v))
	if err != nil {
		return fmt.Errorf("failed to encode violation event: %w", err)
	}

	err = n.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &n.topic, Partition: kafka.PartitionAny},
		Key:            []byte(v.ID.String()),
		Value:          value,
		Headers: []kafka.Header{
			{Key: "violation_type", Value: []byte(v.Type.Key())},
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce violation event: %w", err)
	}
	n.sent.Add(1)
	return nil
}

// Close flushes pending messages for up to timeoutMs and closes the producer.
func (n *KafkaNotifier) Close(timeoutMs int) {
	if remaining := n.producer.Flush(timeoutMs); remaining > 0 {
		n.log.Warn().Int("remaining", remaining).Msg("kafka flush timed out")
	}
	n.producer.Close()
	n.wg.Wait()

	n.log.Info().
		Int64("sent", n.sent.Load()).
		Int64("acked", n.acked.Load()).
		Int64("failed", n.failed.Load()).
		Msg("kafka notifier closed")
}
