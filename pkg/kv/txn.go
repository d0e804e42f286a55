package kv

import (
	"bytes"
	"context"
)

type pendingWrite struct {
	value   []byte
	deleted bool
}

// bufferedTxn 把写入缓存在内存里，读时优先命中缓存，否则回落到底层 read。
// 各后端在自己的锁/事务内用它收集写集合，再一次性提交。
type bufferedTxn struct {
	read   func(ctx context.Context, key string) ([]byte, bool, error)
	writes map[string]pendingWrite
	order  []string
}

func newBufferedTxn(read func(ctx context.Context, key string) ([]byte, bool, error)) *bufferedTxn {
	return &bufferedTxn{read: read, writes: make(map[string]pendingWrite)}
}

func (t *bufferedTxn) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if w, ok := t.writes[key]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return bytes.Clone(w.value), true, nil
	}
	return t.read(ctx, key)
}

func (t *bufferedTxn) Set(_ context.Context, key string, value []byte) error {
	t.record(key, pendingWrite{value: bytes.Clone(value)})
	return nil
}

func (t *bufferedTxn) Remove(_ context.Context, key string) error {
	t.record(key, pendingWrite{deleted: true})
	return nil
}

func (t *bufferedTxn) record(key string, w pendingWrite) {
	if _, seen := t.writes[key]; !seen {
		t.order = append(t.order, key)
	}
	t.writes[key] = w
}

// each 按首次写入顺序遍历写集合。
func (t *bufferedTxn) each(fn func(key string, w pendingWrite) error) error {
	for _, k := range t.order {
		if err := fn(k, t.writes[k]); err != nil {
			return err
		}
	}
	return nil
}

func (t *bufferedTxn) keys() []string {
	return append([]string(nil), t.order...)
}
