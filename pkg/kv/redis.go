package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore 以 Redis 字符串保存每个 key。
// 写入走 MULTI/EXEC，并在同一事务里向 channel 发布 "<origin>|<key>"，
// 订阅到的非本句柄消息以 Remote 变更派发，实现跨进程的 storage 事件。
type RedisStore struct {
	changeHub
	rdb     *rd.Client
	channel string
	origin  string
	log     *zap.Logger

	mu     sync.Mutex
	pubsub *rd.PubSub
	done   chan struct{}
}

// NewRedisStore 订阅 channel 并启动监听 goroutine；Close 会等待其退出。
func NewRedisStore(ctx context.Context, rdb *rd.Client, channel string, log *zap.Logger) (*RedisStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ps := rdb.Subscribe(ctx, channel)
	// 等待订阅确认，保证返回后不会漏掉后续消息。
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	s := &RedisStore{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log,
		pubsub:  ps,
		done:    make(chan struct{}),
	}
	go s.listen(ps.Channel())
	return s, nil
}

func (s *RedisStore) listen(ch <-chan *rd.Message) {
	defer close(s.done)
	for m := range ch {
		origin, key, ok := strings.Cut(m.Payload, "|")
		if !ok {
			s.log.Warn("kv: malformed change message", zap.String("payload", m.Payload))
			continue
		}
		if origin == s.origin {
			continue
		}
		s.publish([]string{key}, true)
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, rd.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.Update(ctx, func(tx Txn) error { return tx.Set(ctx, key, value) })
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return s.Update(ctx, func(tx Txn) error { return tx.Remove(ctx, key) })
}

// Update 读直接打到 Redis，写集合通过 TxPipeline 原子提交。
// 不做 WATCH：跨进程并发写按最后写入为准。
func (s *RedisStore) Update(ctx context.Context, fn func(tx Txn) error) error {
	s.mu.Lock()
	if s.pubsub == nil {
		s.mu.Unlock()
		return ErrClosed
	}
	btx := newBufferedTxn(s.Get)
	if err := fn(btx); err != nil {
		s.mu.Unlock()
		return err
	}
	keys := btx.keys()
	if len(keys) > 0 {
		pipe := s.rdb.TxPipeline()
		_ = btx.each(func(key string, w pendingWrite) error {
			if w.deleted {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, w.value, 0)
			}
			pipe.Publish(ctx, s.channel, s.origin+"|"+key)
			return nil
		})
		if _, err := pipe.Exec(ctx); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("commit: %w", err)
		}
	}
	s.mu.Unlock()
	s.publish(keys, false)
	return nil
}

// Close 取消订阅并等待监听 goroutine 退出；不会关闭传入的 redis client。
func (s *RedisStore) Close() error {
	s.mu.Lock()
	ps := s.pubsub
	s.pubsub = nil
	s.mu.Unlock()
	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-s.done
	return err
}
