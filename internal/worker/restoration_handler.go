package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"phRestore/internal/database"
	"phRestore/internal/errcode"
	"phRestore/internal/jobs"
	"phRestore/internal/metrics"
	"phRestore/internal/restorer"
	"phRestore/internal/storage"
	"phRestore/internal/tasks"
)

// 原图读取上限，与上传限制保持同一量级。
const maxOriginalBytes = 64 << 20

// 写入任务记录、对用户可见的失败原因。详细错误只进日志。
const (
	reasonOriginalMissing = "original image is missing"
	reasonRejected        = "the image could not be processed"
	reasonFailed          = "restoration failed, please try again later"
)

type objectStore interface {
	ReadObject(ctx context.Context, objectKey string, maxBytes int64) ([]byte, string, error)
	UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
}

type restoreClient interface {
	Restore(ctx context.Context, image []byte, contentType string, opts jobs.Options) (restorer.Result, error)
}

// RestorationTaskHandler 负责消费照片修复任务。
type RestorationTaskHandler struct {
	store    jobs.Store
	storage  objectStore
	restorer restoreClient
	redis    redisPublisher
	logger   *slog.Logger
	now      func() time.Time
	// finalAttempt 判断本次是否为最后一次重试。
	finalAttempt func(context.Context) bool
}

// NewRestorationTaskHandler 创建任务处理器。
func NewRestorationTaskHandler(
	store jobs.Store,
	storageClient objectStore,
	restorerClient restoreClient,
	redisClient redisPublisher,
	logger *slog.Logger,
) *RestorationTaskHandler {
	return &RestorationTaskHandler{
		store:    store,
		storage:  storageClient,
		restorer: restorerClient,
		redis:    redisClient,
		logger:   logger,
		now:      time.Now,

		finalAttempt: isFinalAsynqAttempt,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *RestorationTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := tasks.ParseRestorationPayload(t)
	if err != nil {
		h.logger.Error("invalid restoration payload", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("job_id", payload.JobID),
	)

	job, err := h.store.Get(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			log.Warn("processing job not found, skipping task")
			return nil
		}
		log.Error("query processing job failed", slog.Any("error", err))
		return err
	}
	if jobs.IsTerminal(job.Status) {
		log.Info("processing job already finished, skipping task", slog.String("status", job.Status))
		return nil
	}

	log = log.With(slog.String("user_id", job.UserID))

	if err := h.store.MarkProcessing(ctx, job.ID, h.now()); err != nil {
		if errors.Is(err, jobs.ErrStatusConflict) || errors.Is(err, jobs.ErrNotFound) {
			log.Info("processing job changed concurrently, skipping task")
			return nil
		}
		log.Error("mark job processing failed", slog.Any("error", err))
		return err
	}
	h.notify(ctx, log, job.UserID, JobStatusNotifyMessage{
		JobID:         job.ID,
		Status:        jobs.StatusProcessing,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	})

	restoredKey, err := h.restore(ctx, job)
	if err != nil {
		return h.handleFailure(ctx, log, job, payload.CorrelationID, err)
	}

	if err := h.store.MarkCompleted(ctx, job.ID, restoredKey, h.now()); err != nil {
		log.Error("mark job completed failed", slog.Any("error", err))
		return err
	}
	metrics.JobFinished(jobs.StatusCompleted)

	h.notify(ctx, log, job.UserID, JobStatusNotifyMessage{
		JobID:         job.ID,
		Status:        jobs.StatusCompleted,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	})

	log.Info("restoration task completed", slog.String("restored_object_key", restoredKey))
	return nil
}

// restoreFailure 记录失败的错误码与对用户展示的原因，retryable 为 false 时立即终止。
type restoreFailure struct {
	err       error
	code      int
	reason    string
	retryable bool
}

func (f *restoreFailure) Error() string { return f.err.Error() }
func (f *restoreFailure) Unwrap() error { return f.err }

func (h *RestorationTaskHandler) restore(ctx context.Context, job *database.ProcessingJob) (string, error) {
	opts, err := jobs.DecodeOptions(job.Options)
	if err != nil {
		return "", &restoreFailure{err: err, code: errcode.RejectedByEngine, reason: reasonRejected}
	}

	original, contentType, err := h.storage.ReadObject(ctx, job.OriginalObjectKey, maxOriginalBytes)
	if err != nil {
		if storage.IsNoSuchKey(err) {
			return "", &restoreFailure{err: err, code: errcode.OriginalMissing, reason: reasonOriginalMissing}
		}
		return "", &restoreFailure{err: err, code: errcode.SystemError, reason: reasonFailed, retryable: true}
	}
	if contentType == "" {
		contentType = job.ContentType
	}

	result, err := h.restorer.Restore(ctx, original, contentType, opts)
	if err != nil {
		if errors.Is(err, restorer.ErrRejected) {
			return "", &restoreFailure{err: err, code: errcode.RejectedByEngine, reason: reasonRejected}
		}
		return "", &restoreFailure{err: err, code: errcode.SystemError, reason: reasonFailed, retryable: true}
	}

	ext, ok := storage.ExtForContentType(result.ContentType)
	if !ok {
		err := fmt.Errorf("restorer returned unsupported content type %q", result.ContentType)
		return "", &restoreFailure{err: err, code: errcode.RejectedByEngine, reason: reasonRejected}
	}
	restoredKey := storage.RestoredKey(job.UserID, job.ID, ext)
	if err := h.storage.UploadFile(ctx, restoredKey, bytes.NewReader(result.Data), int64(len(result.Data)), result.ContentType); err != nil {
		return "", &restoreFailure{err: err, code: errcode.SystemError, reason: reasonFailed, retryable: true}
	}
	return restoredKey, nil
}

func (h *RestorationTaskHandler) handleFailure(ctx context.Context, log *slog.Logger, job *database.ProcessingJob, correlationID string, err error) error {
	failure := &restoreFailure{err: err, code: errcode.SystemError, reason: reasonFailed, retryable: true}
	_ = errors.As(err, &failure)

	log.Error("restoration failed",
		slog.Any("error", err),
		slog.Int("error_code", failure.code),
		slog.Bool("retryable", failure.retryable),
	)

	if failure.retryable && !h.finalAttempt(ctx) {
		return err
	}

	if markErr := h.store.MarkFailed(ctx, job.ID, failure.reason, h.now()); markErr != nil && !errors.Is(markErr, jobs.ErrStatusConflict) {
		log.Error("mark job failed failed", slog.Any("error", markErr))
		return markErr
	}
	metrics.JobFinished(jobs.StatusFailed)

	h.notify(ctx, log, job.UserID, JobStatusNotifyMessage{
		JobID:         job.ID,
		Status:        jobs.StatusFailed,
		CorrelationID: correlationID,
		ErrorCode:     failure.code,
		ErrorMessage:  failure.reason,
	})

	if !failure.retryable {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func (h *RestorationTaskHandler) notify(ctx context.Context, log *slog.Logger, userID string, msg JobStatusNotifyMessage) {
	if h.redis == nil {
		return
	}
	if err := publishJobStatus(ctx, h.redis, userID, msg); err != nil {
		log.Warn("publish job status failed", slog.String("status", msg.Status), slog.Any("error", err))
	}
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
