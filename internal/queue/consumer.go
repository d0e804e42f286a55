package queue

import (
	"context"
	"encoding/json"
	"errors"

	"storefront/internal/apperr"
	"storefront/internal/model"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// StatusSetter 由 order.Journal 实现。
type StatusSetter interface {
	SetStatus(ctx context.Context, id string, status model.OrderStatus) (model.Order, error)
}

// Consumer 消费订单状态变更并写回订单流水。
type Consumer struct {
	r      *kafka.Reader
	orders StatusSetter
	log    *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, orders StatusSetter, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		orders: orders,
		log:    log.With(zap.String("component", "status-consumer")),
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

// Run 阻塞直到 ctx 取消或连接关闭。
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return
		}
		if err := c.handle(ctx, m.Value); err != nil {
			c.log.Warn("apply status update failed", zap.ByteString("key", m.Key), zap.Error(err))
		}
	}
}

// handle 对同一状态的重复消息是幂等的；订单不存在或状态不合法的消息直接丢弃。
func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var msg StatusUpdate
	if err := json.Unmarshal(value, &msg); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := c.orders.SetStatus(ctx, msg.OrderID, msg.Status)
	if errors.Is(err, apperr.ErrNotFound) {
		c.log.Info("status update for unknown order", zap.String("order_id", msg.OrderID))
		return nil
	}
	return err
}
