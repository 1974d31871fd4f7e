package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeRestorationProcess = "restoration:process"
	TypeRestorationReap    = "restoration:reap"
)

// RestorationPayload 描述处理一次修复任务所需的最小信息。
type RestorationPayload struct {
	JobID         string `json:"job_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewRestorationTask 构造修复任务。TaskID 与 job id 一致，重复入队会被 asynq 拒绝。
func NewRestorationTask(jobID, correlationID string, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(RestorationPayload{
		JobID:         jobID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal restoration payload: %w", err)
	}
	opts = append([]asynq.Option{asynq.TaskID(jobID)}, opts...)
	return asynq.NewTask(TypeRestorationProcess, payload, opts...), nil
}

// ParseRestorationPayload 解析任务负载。
func ParseRestorationPayload(task *asynq.Task) (RestorationPayload, error) {
	var payload RestorationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RestorationPayload{}, fmt.Errorf("unmarshal restoration payload: %w", err)
	}
	if payload.JobID == "" {
		return RestorationPayload{}, fmt.Errorf("restoration payload missing job_id")
	}
	return payload, nil
}

// NewReapTask 构造周期性清理超时任务的任务。
func NewReapTask() *asynq.Task {
	return asynq.NewTask(TypeRestorationReap, nil)
}
