package database

import (
	"time"

	"gorm.io/datatypes"
)

// User 表示系统中的账号信息。ID 为 UUID 字符串，对外即 user_id。
type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Email        string    `gorm:"uniqueIndex;size:255" json:"email"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProcessingJob 表示一次照片修复任务。
// 列名即对外 JSON 字段名，列表接口整行返回。
type ProcessingJob struct {
	ID                string         `gorm:"primaryKey;size:36" json:"id"`
	UserID            string         `gorm:"index;size:64;not null" json:"user_id"`
	Status            string         `gorm:"size:32;index;not null" json:"status"`
	OriginalFilename  string         `gorm:"size:255" json:"original_filename"`
	OriginalObjectKey string         `gorm:"size:512" json:"original_object_key"`
	RestoredObjectKey string         `gorm:"size:512" json:"restored_object_key"`
	ContentType       string         `gorm:"size:64" json:"content_type"`
	SizeBytes         int64          `json:"size_bytes"`
	Options           datatypes.JSON `gorm:"type:jsonb" json:"options"`
	ErrorMessage      string         `gorm:"size:1024" json:"error_message"`
	TaskID            string         `gorm:"size:64" json:"task_id"`
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	StartedAt         *time.Time     `json:"started_at"`
	CompletedAt       *time.Time     `json:"completed_at"`
}
