package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// noBlock 让 XREADGROUP 不带 BLOCK 参数，立即返回。
const noBlock = -1

// Relay 将 Redis Stream 中的订单事件转发到 Kafka。
// 发布成功后才 ACK，失败则留在 pending 列表等待下一轮重试。
type Relay struct {
	rdb       *rd.Client
	publisher Publisher
	log       *zap.Logger

	stream   string
	group    string
	consumer string
}

func NewRelay(rdb *rd.Client, publisher Publisher, stream, group, consumer string, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		rdb:       rdb,
		publisher: publisher,
		log:       log.With(zap.String("component", "relay")),
		stream:    stream,
		group:     group,
		consumer:  consumer,
	}
}

// Run 阻塞直到 ctx 取消。
func (r *Relay) Run(ctx context.Context) {
	if err := r.ensureGroup(ctx); err != nil {
		r.log.Error("ensure consumer group failed", zap.Error(err))
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		// 先处理本消费者遗留的 pending，再读新消息。
		msgs, err := r.readGroup(ctx, "0", noBlock)
		if err == nil && len(msgs) == 0 {
			msgs, err = r.readGroup(ctx, ">", 2*time.Second)
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			r.log.Warn("read stream failed", zap.Error(err))
			sleep(ctx, 300*time.Millisecond)
			continue
		}

		for _, xm := range msgs {
			if err := r.processOne(ctx, xm); err != nil {
				r.log.Warn("relay message failed", zap.String("id", xm.ID), zap.Error(err))
				sleep(ctx, 200*time.Millisecond)
				break
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (r *Relay) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err == nil || strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (r *Relay) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	streams, err := r.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, streamID},
		Count:    16,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out []rd.XMessage
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (r *Relay) processOne(ctx context.Context, xm rd.XMessage) error {
	msg, err := parseOrderEvent(xm.Values)
	if err != nil {
		// 脏消息直接 ACK 丢弃，避免阻塞队列。
		r.log.Warn("drop malformed order event", zap.String("id", xm.ID), zap.Error(err))
		if ackErr := r.ackAndDelete(ctx, xm.ID); ackErr != nil {
			return fmt.Errorf("parse failed: %v, ack failed: %w", err, ackErr)
		}
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.publisher.Publish(pubCtx, msg); err != nil {
		return err
	}
	return r.ackAndDelete(ctx, xm.ID)
}

func (r *Relay) ackAndDelete(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.XAck(ctx, r.stream, r.group, id)
	pipe.XDel(ctx, r.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}

func parseOrderEvent(values map[string]any) (OrderEvent, error) {
	var (
		msg OrderEvent
		err error
	)
	if msg.OrderID, err = streamString(values, "order_id"); err != nil {
		return OrderEvent{}, err
	}
	if msg.Total, err = streamString(values, "total"); err != nil {
		return OrderEvent{}, err
	}
	countStr, err := streamString(values, "item_count")
	if err != nil {
		return OrderEvent{}, err
	}
	if msg.ItemCount, err = strconv.Atoi(countStr); err != nil {
		return OrderEvent{}, fmt.Errorf("invalid item_count %q", countStr)
	}
	if userStr, _ := streamString(values, "user_id"); userStr != "" {
		id, err := strconv.ParseInt(userStr, 10, 64)
		if err != nil {
			return OrderEvent{}, fmt.Errorf("invalid user_id %q", userStr)
		}
		msg.UserID = &id
	}
	msg.Delivery, _ = streamString(values, "delivery")
	msg.Payment, _ = streamString(values, "payment")
	if ts, _ := streamString(values, "created_at"); ts != "" {
		if msg.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return OrderEvent{}, fmt.Errorf("invalid created_at %q", ts)
		}
	}
	if err := msg.Validate(); err != nil {
		return OrderEvent{}, err
	}
	return msg, nil
}

func streamString(values map[string]any, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
