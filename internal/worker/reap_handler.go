package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"phRestore/internal/jobs"
	"phRestore/internal/metrics"
)

const reasonTimedOut = "processing timed out"

// ReapTaskHandler 将长时间停留在 processing 的任务标记为失败（worker 崩溃或任务丢失）。
type ReapTaskHandler struct {
	store      jobs.Store
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewReapTaskHandler(store jobs.Store, staleAfter time.Duration, logger *slog.Logger) *ReapTaskHandler {
	return &ReapTaskHandler{store: store, staleAfter: staleAfter, logger: logger, now: time.Now}
}

// ProcessTask 实现 asynq.Handler。
func (h *ReapTaskHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	cutoff := h.now().Add(-h.staleAfter)
	n, err := h.store.FailStale(ctx, cutoff, reasonTimedOut)
	if err != nil {
		h.logger.Error("reap stale jobs failed", slog.Any("error", err))
		return err
	}
	if n > 0 {
		metrics.JobsReaped(n)
		h.logger.Warn("reaped stale processing jobs", slog.Int64("count", n), slog.Time("cutoff", cutoff))
	}
	return nil
}
