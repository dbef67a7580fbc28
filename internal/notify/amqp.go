package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPNotifier 把每条消息以 JSON 事件发布到 fanout 交换机，供其它服务订阅
type AMQPNotifier struct {
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

type amqpEvent struct {
	ChannelID string    `json:"channelId"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sentAt"`
}

func NewAMQPNotifier(url, exchange string) (*AMQPNotifier, error) {
	if exchange == "" {
		return nil, fmt.Errorf("amqp: exchange name is required")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: failed to dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: failed to open a channel: %w", err)
	}

	log.Printf("amqp: declaring exchange '%s' (type: fanout, durable: true)", exchange)
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPNotifier{exchange: exchange, conn: conn, channel: ch}, nil
}

func (a *AMQPNotifier) Deliver(ctx context.Context, channelID, text string) error {
	body, err := json.Marshal(amqpEvent{ChannelID: channelID, Text: text, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	// amqp.Channel 不能并发发布
	a.mu.Lock()
	defer a.mu.Unlock()

	err = a.channel.PublishWithContext(ctx,
		a.exchange,
		"",    // fanout 忽略 routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("amqp: publish to %s: %w", a.exchange, err)
	}
	return nil
}

func (a *AMQPNotifier) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.channel != nil {
		_ = a.channel.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
