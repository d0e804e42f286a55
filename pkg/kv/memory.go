package kv

import (
	"bytes"
	"context"
	"sync"
)

// memoryBacking 是多个 MemoryStore 句柄共享的底层数据。
type memoryBacking struct {
	mu      sync.Mutex
	data    map[string][]byte
	handles map[*MemoryStore]struct{}
}

// MemoryStore 是进程内后端。通过 Share 得到的句柄共享同一份数据，
// 一个句柄的写入会以 Remote 变更通知其他句柄（相当于浏览器的多个标签页）。
type MemoryStore struct {
	changeHub
	b      *memoryBacking
	closed bool
}

// NewMemoryStore 创建一个空的内存 store。
func NewMemoryStore() *MemoryStore {
	b := &memoryBacking{
		data:    make(map[string][]byte),
		handles: make(map[*MemoryStore]struct{}),
	}
	return b.attach()
}

func (b *memoryBacking) attach() *MemoryStore {
	s := &MemoryStore{b: b}
	b.mu.Lock()
	b.handles[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Share 返回共享同一份数据的新句柄。
func (s *MemoryStore) Share() *MemoryStore {
	return s.b.attach()
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	return s.getLocked(ctx, key)
}

func (s *MemoryStore) getLocked(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.b.data[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	return s.Update(ctx, func(tx Txn) error { return tx.Set(ctx, key, value) })
}

func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	return s.Update(ctx, func(tx Txn) error { return tx.Remove(ctx, key) })
}

// Update 在底层锁内执行 fn，成功后一次性应用写集合。
// 变更通知在释放锁之后派发，回调里可以继续读写 store。
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Txn) error) error {
	s.b.mu.Lock()
	if s.closed {
		s.b.mu.Unlock()
		return ErrClosed
	}
	tx := newBufferedTxn(s.getLocked)
	if err := fn(tx); err != nil {
		s.b.mu.Unlock()
		return err
	}
	_ = tx.each(func(key string, w pendingWrite) error {
		if w.deleted {
			delete(s.b.data, key)
		} else {
			s.b.data[key] = w.value
		}
		return nil
	})
	peers := make([]*MemoryStore, 0, len(s.b.handles))
	for h := range s.b.handles {
		if h != s {
			peers = append(peers, h)
		}
	}
	s.b.mu.Unlock()

	keys := tx.keys()
	s.publish(keys, false)
	for _, p := range peers {
		p.publish(keys, true)
	}
	return nil
}

// Close 断开当前句柄，其余句柄不受影响。
func (s *MemoryStore) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.closed = true
	delete(s.b.handles, s)
	return nil
}
