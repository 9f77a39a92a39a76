package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Timeout time.Duration
}

// Kafka publishes events keyed by user id, so one user's events stay ordered
// within a partition.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	const op = "notify.NewKafka"

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Timeout = cfg.Timeout
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return newKafka(producer, cfg.Topic), nil
}

func newKafka(producer sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

func (k *Kafka) Publish(ctx context.Context, ev Event) error {
	const op = "notify.Kafka.Publish"

	body, err := ev.encode()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(ev.UserID, 10)),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_id"), Value: []byte(ev.ID.String())},
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
		},
		Timestamp: ev.OccurredAt,
	}

	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (k *Kafka) Close() error {
	return k.producer.Close()
}
