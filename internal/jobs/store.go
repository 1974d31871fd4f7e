package jobs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"phRestore/internal/database"
)

// ErrNotFound 表示任务不存在或不属于该用户。
var ErrNotFound = errors.New("processing job not found")

// ErrStatusConflict 表示任务已处于不允许该变更的状态。
var ErrStatusConflict = errors.New("processing job status conflict")

// Store 抽象任务表的读写，便于 handler 与 worker 测试。
type Store interface {
	ListByUser(ctx context.Context, userID string) ([]database.ProcessingJob, error)
	Create(ctx context.Context, job *database.ProcessingJob) error
	Get(ctx context.Context, id string) (*database.ProcessingJob, error)
	GetForUser(ctx context.Context, id, userID string) (*database.ProcessingJob, error)
	SetTaskID(ctx context.Context, id, taskID string) error
	MarkProcessing(ctx context.Context, id string, at time.Time) error
	MarkCompleted(ctx context.Context, id, restoredKey string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error
	FailStale(ctx context.Context, olderThan time.Time, reason string) (int64, error)
}

// GormStore 基于 GORM 实现 Store。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 构造 GormStore。
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// ListByUser 返回用户的全部任务，按创建时间倒序。
func (s *GormStore) ListByUser(ctx context.Context, userID string) ([]database.ProcessingJob, error) {
	jobs := make([]database.ProcessingJob, 0)
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *GormStore) Create(ctx context.Context, job *database.ProcessingJob) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *GormStore) Get(ctx context.Context, id string) (*database.ProcessingJob, error) {
	var job database.ProcessingJob
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (s *GormStore) GetForUser(ctx context.Context, id, userID string) (*database.ProcessingJob, error) {
	var job database.ProcessingJob
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (s *GormStore) SetTaskID(ctx context.Context, id, taskID string) error {
	return s.db.WithContext(ctx).
		Model(&database.ProcessingJob{}).
		Where("id = ?", id).
		Update("task_id", taskID).Error
}

// MarkProcessing 仅允许 pending 或 processing（重试）任务进入处理中。
func (s *GormStore) MarkProcessing(ctx context.Context, id string, at time.Time) error {
	return s.transition(ctx, id, []string{StatusPending, StatusProcessing}, map[string]any{
		"status":        StatusProcessing,
		"started_at":    at,
		"error_message": "",
	})
}

func (s *GormStore) MarkCompleted(ctx context.Context, id, restoredKey string, at time.Time) error {
	return s.transition(ctx, id, []string{StatusPending, StatusProcessing}, map[string]any{
		"status":              StatusCompleted,
		"restored_object_key": restoredKey,
		"completed_at":        at,
		"error_message":       "",
	})
}

func (s *GormStore) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	return s.transition(ctx, id, []string{StatusPending, StatusProcessing}, map[string]any{
		"status":        StatusFailed,
		"error_message": truncate(reason, 1024),
		"completed_at":  at,
	})
}

// FailStale 将长时间停留在 processing 的任务标记为失败，返回受影响行数。
func (s *GormStore) FailStale(ctx context.Context, olderThan time.Time, reason string) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&database.ProcessingJob{}).
		Where("status = ? AND started_at < ?", StatusProcessing, olderThan).
		Updates(map[string]any{
			"status":        StatusFailed,
			"error_message": truncate(reason, 1024),
			"completed_at":  time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (s *GormStore) transition(ctx context.Context, id string, from []string, updates map[string]any) error {
	res := s.db.WithContext(ctx).
		Model(&database.ProcessingJob{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&database.ProcessingJob{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStatusConflict
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
