package kv

import (
	"context"
	"errors"

	"storefront/pkg/notify"
)

// ErrClosed 表示 store 已关闭。
var ErrClosed = errors.New("kv: store closed")

// Reader 读取原始值；found=false 表示 key 不存在。
type Reader interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
}

// Writer 写入或删除原始值。
type Writer interface {
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Txn 是 Update 回调内可见的读写视图：读能看到本事务尚未提交的写。
type Txn interface {
	Reader
	Writer
}

// Store 是全部持久化后端的统一约定。
//
// Set/Remove 各自是单 key 事务；Update 中的全部写入作为一个整体提交，
// 提交成功后按写入顺序对每个 key 触发一次 Change。
// 回调返回 error 时不落任何写入。
type Store interface {
	Txn
	Update(ctx context.Context, fn func(tx Txn) error) error
	Subscribe(fn func(Change)) (cancel func())
	Close() error
}

// Change 描述某个 key 被修改。Remote=true 表示修改来自共享同一底层存储的其他句柄/进程。
type Change struct {
	Key    string
	Remote bool
}

// changeHub 为各后端提供订阅与派发。
type changeHub struct {
	feed notify.Feed[Change]
}

func (h *changeHub) Subscribe(fn func(Change)) func() { return h.feed.Subscribe(fn) }

func (h *changeHub) publish(keys []string, remote bool) {
	for _, k := range keys {
		h.feed.Emit(Change{Key: k, Remote: remote})
	}
}
