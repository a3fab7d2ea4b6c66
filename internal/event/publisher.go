package event

import (
	"encoding/json"
	"fmt"
	"sync"
	"toeic_prep_backend/pkg/logger"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Publisher 向 topic 交换机投递领域事件，供学情分析、徽章等下游消费。
// MQ 不可用时系统照常运行，事件静默丢弃。
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	url      string
}

func NewPublisher(amqpURL, exchange string) (*Publisher, error) {
	p := &Publisher{url: amqpURL, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("exchange declare: %w", err)
	}

	p.conn = conn
	p.channel = channel
	return nil
}

// Publish 投递一条事件，nil 接收者安全（未配置 MQ 时直接跳过）
func (p *Publisher) Publish(routingKey string, payload interface{}) error {
	if p == nil {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.Publish(
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		// 连接可能已断，重连后重试一次
		logger.Log.Warn("event publish failed, reconnecting", zap.Error(err))
		if rerr := p.connect(); rerr != nil {
			return rerr
		}
		return p.channel.Publish(p.exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		})
	}
	return nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
