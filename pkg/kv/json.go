package kv

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetJSON 读取 key 并解码为 T。
// key 不存在时返回 def 与 nil；读失败或内容损坏时返回 def 与描述原因的 error，
// 调用方只需记录日志，返回值始终可用。
func GetJSON[T any](ctx context.Context, r Reader, key string, def T) (T, error) {
	raw, found, err := r.Get(ctx, key)
	if err != nil {
		return def, fmt.Errorf("read %s: %w", key, err)
	}
	if !found || len(raw) == 0 {
		return def, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return def, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

// PutJSON 编码 v 并写入 key。
func PutJSON(ctx context.Context, w Writer, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return w.Set(ctx, key, b)
}
