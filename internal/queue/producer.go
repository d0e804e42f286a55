package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher 投递订单事件，Producer 与测试替身都实现它。
type Publisher interface {
	Publish(ctx context.Context, msg OrderEvent) error
}

// Producer 封装 Kafka 写入器。
type Producer struct {
	w *kafka.Writer
}

// NewProducer 创建生产者：
// - Hash + Key: 同一订单的事件落到同一分区。
// - RequireAll: 等待 ISR 副本确认，降低消息丢失风险。
// - MaxAttempts/Timeout: 控制重试与超时边界。
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *Producer) Close() error { return p.w.Close() }

// 消息头，消费方不解 value 也能按事件类型、配送方式路由。
const (
	HeaderEvent    = "event"
	HeaderUserID   = "user_id"
	HeaderDelivery = "delivery"
	HeaderPayment  = "payment"

	EventOrderPlaced = "order.placed"
)

// Publish 同步写入一条事件，以订单号作为消息 key。
func (p *Producer) Publish(ctx context.Context, msg OrderEvent) error {
	m, err := orderMessage(msg)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, m)
}

// orderMessage 组装 Kafka 消息；游客订单不带 user_id 头。
func orderMessage(msg OrderEvent) (kafka.Message, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, err
	}
	headers := []kafka.Header{
		{Key: HeaderEvent, Value: []byte(EventOrderPlaced)},
		{Key: HeaderDelivery, Value: []byte(msg.Delivery)},
		{Key: HeaderPayment, Value: []byte(msg.Payment)},
	}
	if msg.UserID != nil {
		headers = append(headers, kafka.Header{Key: HeaderUserID, Value: []byte(strconv.FormatInt(*msg.UserID, 10))})
	}
	return kafka.Message{
		Key:     []byte(msg.OrderID),
		Value:   b,
		Headers: headers,
		Time:    msg.CreatedAt,
	}, nil
}
