package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
)

// 任务状态，completed 与 failed 为终态。
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// IsTerminal 判断状态是否不可再变更。
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Options 是提交任务时用户选择的修复选项，以 JSONB 存储。
type Options struct {
	Colorize       bool `json:"colorize"`
	Upscale        int  `json:"upscale"`
	FaceEnhance    bool `json:"face_enhance"`
	ScratchRemoval bool `json:"scratch_removal"`
}

// DefaultOptions 返回未指定选项时的默认值。
func DefaultOptions() Options {
	return Options{Upscale: 1, FaceEnhance: true, ScratchRemoval: true}
}

var ErrInvalidOptions = errors.New("invalid restoration options")

// Validate 校验选项取值。
func (o Options) Validate() error {
	switch o.Upscale {
	case 1, 2, 4:
	default:
		return fmt.Errorf("%w: upscale must be 1, 2 or 4", ErrInvalidOptions)
	}
	return nil
}

// DecodeOptions 解析存储的 JSON 选项，空值返回默认选项。
func DecodeOptions(raw []byte) (Options, error) {
	opts := DefaultOptions()
	if len(raw) == 0 || string(raw) == "null" {
		return opts, nil
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return Options{}, fmt.Errorf("decode options: %w", err)
	}
	return opts, nil
}
