package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// entry 是 kv_entries 表的一行。
type entry struct {
	Key       string    `gorm:"column:entry_key;primaryKey;size:191"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (entry) TableName() string { return "kv_entries" }

// SQLiteStore 把 key/value 存在 SQLite 的一张表里，Update 映射为一个数据库事务。
// 只在本句柄内派发变更；其他进程的写入在下一次读取时可见。
type SQLiteStore struct {
	changeHub
	db *gorm.DB
	mu sync.Mutex
}

// OpenSQLite 打开（必要时创建）path 处的数据库并自动建表。
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLiteStore(db)
}

// NewSQLiteStore 复用已有连接。
func NewSQLiteStore(db *gorm.DB) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("migrate kv_entries: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return getEntry(s.db.WithContext(ctx), key)
}

func getEntry(db *gorm.DB, key string) ([]byte, bool, error) {
	var e entry
	err := db.Where("entry_key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return e.Value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	return s.Update(ctx, func(tx Txn) error { return tx.Set(ctx, key, value) })
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	return s.Update(ctx, func(tx Txn) error { return tx.Remove(ctx, key) })
}

func (s *SQLiteStore) Update(ctx context.Context, fn func(tx Txn) error) error {
	// SQLite 单写者，进程内先串行化，避免 database is locked。
	s.mu.Lock()
	var keys []string
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		btx := newBufferedTxn(func(_ context.Context, key string) ([]byte, bool, error) {
			return getEntry(db, key)
		})
		if err := fn(btx); err != nil {
			return err
		}
		now := time.Now()
		if err := btx.each(func(key string, w pendingWrite) error {
			if w.deleted {
				return db.Where("entry_key = ?", key).Delete(&entry{}).Error
			}
			return db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "entry_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&entry{Key: key, Value: w.value, UpdatedAt: now}).Error
		}); err != nil {
			return err
		}
		keys = btx.keys()
		return nil
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(keys, false)
	return nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
