package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

const groupExchange = "courtd.groups"

// AMQPBridge extends a Memory bus across nodes. Local publishes are mirrored
// to a topic exchange under the routing key "group.<name>"; deliveries from
// other nodes are folded back into the local bus. Frames carry the publishing
// node's id so a node never re-delivers its own traffic.
type AMQPBridge struct {
	local   *Memory
	log     *slog.Logger
	nodeID  string
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPBridge(url, nodeID string, local *Memory, log *slog.Logger) (*AMQPBridge, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		groupExchange, // name
		"topic",       // type
		true,          // durable
		false,         // auto-deleted
		false,         // internal
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare group exchange: %w", err)
	}

	b := &AMQPBridge{
		local:   local,
		log:     log,
		nodeID:  nodeID,
		conn:    conn,
		channel: ch,
	}
	if err := b.consume(); err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

func (b *AMQPBridge) Subscribe(group string, ch chan<- []byte) {
	b.local.Subscribe(group, ch)
}

func (b *AMQPBridge) Unsubscribe(group string, ch chan<- []byte) {
	b.local.Unsubscribe(group, ch)
}

func (b *AMQPBridge) Publish(ctx context.Context, group string, payload any) error {
	if err := b.local.Publish(ctx, group, payload); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for group %s: %w", group, err)
	}
	err = b.channel.PublishWithContext(ctx,
		groupExchange,    // exchange
		"group."+group,   // routing key
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Headers:     amqp.Table{"x-origin-node": b.nodeID},
			Body:        data,
		},
	)
	if err != nil {
		// Local subscribers were already served; cross-node delivery is
		// best-effort.
		b.log.Error("amqp publish failed", "group", group, "error", err)
	}
	return nil
}

// consume binds an exclusive auto-named queue to every group routing key and
// replays remote frames into the local bus.
func (b *AMQPBridge) consume() error {
	q, err := b.channel.QueueDeclare(
		"",    // name (auto-generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare bridge queue: %w", err)
	}

	if err := b.channel.QueueBind(q.Name, "group.#", groupExchange, false, nil); err != nil {
		return fmt.Errorf("bind bridge queue: %w", err)
	}

	deliveries, err := b.channel.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register bridge consumer: %w", err)
	}

	go func() {
		for d := range deliveries {
			if origin, _ := d.Headers["x-origin-node"].(string); origin == b.nodeID {
				continue
			}
			group := strings.TrimPrefix(d.RoutingKey, "group.")
			b.local.deliver(group, d.Body)
		}
	}()
	return nil
}

func (b *AMQPBridge) Close() {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
