package dataset

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	EventUploaded = "uploaded"
	EventDeleted  = "deleted"
)

// Event describes a change to the store, published for downstream consumers.
type Event struct {
	Type      string    `json:"type"`
	Filename  string    `json:"filename"`
	Category  string    `json:"category"`
	Size      string    `json:"size,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// publishBatchTimeout bounds how long a single synchronous event waits for
// batch companions before the writer flushes.
const publishBatchTimeout = 10 * time.Millisecond

type kafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) EventPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           publishBatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return &kafkaPublisher{writer: writer}
}

func (p *kafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	message := kafka.Message{
		Key:   []byte(event.Category + "/" + event.Filename),
		Value: payload,
		Time:  event.Timestamp,
	}

	return p.writer.WriteMessages(ctx, message)
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }

func (noopPublisher) Close() error { return nil }
