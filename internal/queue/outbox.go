package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/model"

	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Outbox 把订单事件追加到 Redis Stream，由 Relay 异步转发到 Kafka。
type Outbox struct {
	rdb    *rd.Client
	stream string
}

func NewOutbox(rdb *rd.Client, stream string) *Outbox {
	return &Outbox{rdb: rdb, stream: stream}
}

// Append 以扁平字段写入 stream；游客订单的 user_id 为空串。
func (o *Outbox) Append(ctx context.Context, msg OrderEvent) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	user := ""
	if msg.UserID != nil {
		user = strconv.FormatInt(*msg.UserID, 10)
	}
	return o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		Values: map[string]any{
			"order_id":   msg.OrderID,
			"user_id":    user,
			"item_count": msg.ItemCount,
			"total":      msg.Total,
			"delivery":   msg.Delivery,
			"payment":    msg.Payment,
			"created_at": msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}

// Forwarder 把 "order placed" 通知送往 outbox（有 redis 时）或直接送往 Kafka。
type Forwarder struct {
	outbox    *Outbox
	publisher Publisher
	timeout   time.Duration
	log       *zap.Logger
}

// NewForwarder outbox 与 publisher 至少一个非空；两者都有时只写 outbox。
func NewForwarder(outbox *Outbox, publisher Publisher, log *zap.Logger) *Forwarder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Forwarder{outbox: outbox, publisher: publisher, timeout: 5 * time.Second, log: log}
}

// Handle 适合直接作为 order.Journal.OnPlaced 的回调。订单已经落库，投递失败只记录日志。
func (f *Forwarder) Handle(o model.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.forward(ctx, NewOrderEvent(o)); err != nil {
		f.log.Error("forward order event failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (f *Forwarder) forward(ctx context.Context, ev OrderEvent) error {
	switch {
	case f.outbox != nil:
		if err := f.outbox.Append(ctx, ev); err != nil {
			return fmt.Errorf("append outbox: %w", err)
		}
	case f.publisher != nil:
		if err := f.publisher.Publish(ctx, ev); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}
	return nil
}
