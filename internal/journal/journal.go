package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/rabbitmq-stream-go-client/pkg/amqp"
	"github.com/rabbitmq/rabbitmq-stream-go-client/pkg/stream"
)

// Entry is one appended domain event.
type Entry struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Journal appends domain events to a RabbitMQ stream. It is the durable
// trail of everything the fan-out trigger handled; consumers replay it for
// audit purposes. A nil *Journal discards appends, so callers never have to
// guard for a deployment without a stream broker.
type Journal struct {
	env      *stream.Environment
	producer *stream.Producer
}

func Open(url, name string) (*Journal, error) {
	env, err := stream.NewEnvironment(stream.NewEnvironmentOptions().SetUri(url))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream broker: %w", err)
	}

	err = env.DeclareStream(name, &stream.StreamOptions{
		MaxLengthBytes: stream.ByteCapacity{}.GB(2),
	})
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to declare stream %s: %w", name, err)
	}

	producer, err := env.NewProducer(name, stream.NewProducerOptions())
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to create stream producer: %w", err)
	}

	return &Journal{env: env, producer: producer}, nil
}

func (j *Journal) Append(eventType string, payload any) error {
	if j == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal journal payload: %w", err)
	}
	entry := Entry{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   raw,
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	if err := j.producer.Send(amqp.NewMessage(data)); err != nil {
		return fmt.Errorf("failed to append to stream: %w", err)
	}
	return nil
}

func (j *Journal) Close() {
	if j == nil {
		return
	}
	j.producer.Close()
	j.env.Close()
}
