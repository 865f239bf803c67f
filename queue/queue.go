// Package queue keeps recordings whose transcription failed so they can be
// replayed later. Audio is stored FLAC-compressed next to a small SQLite
// index.
package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/butancak6/constructionos/encoder"
	"github.com/butancak6/constructionos/records"
)

const (
	StatusPending   = "pending"
	StatusUploading = "uploading"
	StatusFailed    = "failed"
)

var ErrNotFound = errors.New("queue item not found")

type Item struct {
	ID         string    `gorm:"column:id;primaryKey"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	Status     string    `gorm:"column:status;not null;default:pending"`
	RetryCount int       `gorm:"column:retry_count;not null;default:0"`
	Path       string    `gorm:"column:path;not null"`
	LastError  string    `gorm:"column:last_error;not null;default:''"`
}

func (Item) TableName() string { return "offline_queue" }

type Queue struct {
	dir string
	db  *gorm.DB
	now func() time.Time
}

// Open opens or creates the queue under dir.
func Open(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "queue.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open queue index: %w", err)
	}
	if err := db.AutoMigrate(&Item{}); err != nil {
		return nil, fmt.Errorf("failed to migrate queue index: %w", err)
	}
	return &Queue{dir: dir, db: db, now: time.Now}, nil
}

func (q *Queue) Close() error {
	sqlDB, err := q.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newID(now time.Time) string {
	return fmt.Sprintf("queue_%d_%s", now.UnixMilli(), records.ShortID())
}

// Add compresses wav and enqueues it as pending.
func (q *Queue) Add(ctx context.Context, wav []byte) (Item, error) {
	flacData, err := encoder.CompressWAV(wav)
	if err != nil {
		return Item{}, fmt.Errorf("compress recording: %w", err)
	}

	now := q.now()
	item := Item{
		ID:        newID(now),
		CreatedAt: now,
		Status:    StatusPending,
	}
	item.Path = filepath.Join(q.dir, item.ID+".flac")
	if err := os.WriteFile(item.Path, flacData, 0644); err != nil {
		return Item{}, fmt.Errorf("write recording: %w", err)
	}
	if err := q.db.WithContext(ctx).Create(&item).Error; err != nil {
		os.Remove(item.Path)
		return Item{}, fmt.Errorf("failed to save queue item %s: %w", item.ID, err)
	}
	return item, nil
}

// List returns every item, oldest first.
func (q *Queue) List(ctx context.Context) ([]Item, error) {
	var items []Item
	if err := q.db.WithContext(ctx).Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	return items, nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int64
	if err := q.db.WithContext(ctx).Model(&Item{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// Audio returns the item's recording as WAV.
func (q *Queue) Audio(item Item) ([]byte, error) {
	data, err := os.ReadFile(item.Path)
	if err != nil {
		return nil, fmt.Errorf("read recording %s: %w", item.ID, err)
	}
	return encoder.DecompressToWAV(data)
}

// MarkUploading flags an item as being replayed.
func (q *Queue) MarkUploading(ctx context.Context, id string) error {
	return q.update(ctx, id, map[string]any{"status": StatusUploading})
}

// MarkFailed records a failed replay attempt.
func (q *Queue) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return q.update(ctx, id, map[string]any{
		"status":      StatusFailed,
		"retry_count": gorm.Expr("retry_count + 1"),
		"last_error":  msg,
	})
}

func (q *Queue) update(ctx context.Context, id string, fields map[string]any) error {
	result := q.db.WithContext(ctx).Model(&Item{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update queue item %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Remove deletes the item and its audio.
func (q *Queue) Remove(ctx context.Context, id string) error {
	var item Item
	if err := q.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}
	if err := q.db.WithContext(ctx).Where("id = ?", id).Delete(&Item{}).Error; err != nil {
		return fmt.Errorf("failed to delete queue item %s: %w", id, err)
	}
	if err := os.Remove(item.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
