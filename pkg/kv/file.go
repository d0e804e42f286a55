package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileStore 把全部 key 保存在一个 JSON 文档里（值为字符串，形同浏览器 localStorage）。
// 写入先落临时文件再 rename，保证其他进程只会看到完整的文档。
// fsnotify 监听所在目录，文件被其他进程替换后比较新旧文档，对变化的 key 派发 Remote 变更。
type FileStore struct {
	changeHub
	path string
	log  *zap.Logger

	mu      sync.Mutex
	known   map[string]string
	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  bool
}

// OpenFileStore 打开 path 处的文档（不存在则视为空）并开始监听。
func OpenFileStore(path string, log *zap.Logger) (*FileStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// rename 会替换 inode，所以监听目录而不是文件本身。
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	s := &FileStore{
		path:    abs,
		log:     log,
		watcher: w,
		done:    make(chan struct{}),
	}
	s.known = s.loadLocked()
	go s.run()
	return s, nil
}

// loadLocked 读取整个文档；文件缺失或损坏时返回空文档。
func (s *FileStore) loadLocked() map[string]string {
	doc := make(map[string]string)
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc
	}
	if err != nil {
		s.log.Warn("kv: read data file", zap.String("path", s.path), zap.Error(err))
		return doc
	}
	if len(b) == 0 {
		return doc
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		s.log.Warn("kv: corrupt data file, treating as empty", zap.String("path", s.path), zap.Error(err))
		return make(map[string]string)
	}
	return doc
}

func (s *FileStore) writeLocked(doc map[string]string) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".kv-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	v, ok := s.loadLocked()[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	return s.Update(ctx, func(tx Txn) error { return tx.Set(ctx, key, value) })
}

func (s *FileStore) Remove(ctx context.Context, key string) error {
	return s.Update(ctx, func(tx Txn) error { return tx.Remove(ctx, key) })
}

func (s *FileStore) Update(_ context.Context, fn func(tx Txn) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	doc := s.loadLocked()
	btx := newBufferedTxn(func(_ context.Context, key string) ([]byte, bool, error) {
		v, ok := doc[key]
		if !ok {
			return nil, false, nil
		}
		return []byte(v), true, nil
	})
	if err := fn(btx); err != nil {
		s.mu.Unlock()
		return err
	}
	_ = btx.each(func(key string, w pendingWrite) error {
		if w.deleted {
			delete(doc, key)
		} else {
			doc[key] = string(w.value)
		}
		return nil
	})
	if err := s.writeLocked(doc); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("write data file: %w", err)
	}
	// 先更新 known，随后到达的 fsnotify 事件 diff 为空，不会重复派发。
	s.known = doc
	s.mu.Unlock()

	s.publish(btx.keys(), false)
	return nil
}

func (s *FileStore) run() {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			s.reconcile()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("kv: file watcher error", zap.Error(err))
		}
	}
}

// reconcile 重新读取文档，与上次已知内容比较后派发变化的 key。
func (s *FileStore) reconcile() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fresh := s.loadLocked()
	changed := diffKeys(s.known, fresh)
	s.known = fresh
	s.mu.Unlock()

	s.publish(changed, true)
}

func diffKeys(before, after map[string]string) []string {
	var out []string
	for k, v := range after {
		if old, ok := before[k]; !ok || old != v {
			out = append(out, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Close 停止监听并等待 goroutine 退出。
func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.watcher.Close()
	<-s.done
	return err
}
