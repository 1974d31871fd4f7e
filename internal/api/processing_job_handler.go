package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"

	"phRestore/internal/api/middleware"
	"phRestore/internal/database"
	"phRestore/internal/jobs"
	"phRestore/internal/metrics"
	"phRestore/internal/scan"
	"phRestore/internal/storage"
	"phRestore/internal/tasks"
)

const (
	msgUserIDRequired  = "user_id is required"
	msgListJobsFailed  = "failed to fetch processing jobs"
	msgJobNotFound     = "processing job not found"
	msgQueryJobFailed  = "failed to query processing job"
	msgRestoreNotReady = "restoration not ready"
	msgFileTooLarge    = "file too large"
)

// multipartOverhead 为 multipart 边界与表单字段预留的额外字节。
const multipartOverhead = 64 << 10

type objectStorage interface {
	UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	ListObjects(ctx context.Context, prefix string, limit int) ([]storage.ObjectMeta, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type uploadScanner interface {
	Scan(r io.Reader) error
}

// ProcessingJobHandler 负责修复任务的提交与查询。
type ProcessingJobHandler struct {
	store          jobs.Store
	storage        objectStorage
	queue          taskEnqueuer
	scanner        uploadScanner
	maxUploadBytes int64
	maxRetry       int
	downloadTTL    time.Duration
}

// NewProcessingJobHandler 构造 ProcessingJobHandler。scanner 可为 nil。
func NewProcessingJobHandler(
	store jobs.Store,
	storageClient objectStorage,
	queue taskEnqueuer,
	scanner uploadScanner,
	maxUploadBytes int64,
	maxRetry int,
	downloadTTL time.Duration,
) *ProcessingJobHandler {
	if downloadTTL <= 0 {
		downloadTTL = 5 * time.Minute
	}
	return &ProcessingJobHandler{
		store:          store,
		storage:        storageClient,
		queue:          queue,
		scanner:        scanner,
		maxUploadBytes: maxUploadBytes,
		maxRetry:       maxRetry,
		downloadTTL:    downloadTTL,
	}
}

// ListJobs 返回 user_id 名下的全部任务，按创建时间倒序。
// 缺少 user_id 时直接返回 400，不访问数据库；数据库错误只记录日志，对外返回固定文案。
func (h *ProcessingJobHandler) ListJobs(c *gin.Context) {
	log := middleware.LoggerFromContext(c)

	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		log.Warn("list processing jobs: missing user_id")
		BadRequest(c, msgUserIDRequired)
		return
	}

	jobList, err := h.store.ListByUser(c.Request.Context(), userID)
	if err != nil {
		log.Error("list processing jobs failed", slog.String("user_id", userID), slog.Any("error", err))
		Internal(c, msgListJobsFailed)
		return
	}

	Data(c, http.StatusOK, jobList)
}

// CreateJob 接收上传的照片，存入对象存储并投递修复任务，立即返回 202。
func (h *ProcessingJobHandler) CreateJob(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(slog.String("user_id", userID))

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	}

	file, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			Error(c, http.StatusRequestEntityTooLarge, msgFileTooLarge)
			return
		}
		BadRequest(c, "missing file")
		return
	}
	if file.Size <= 0 {
		BadRequest(c, "empty file")
		return
	}
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		Error(c, http.StatusRequestEntityTooLarge, msgFileTooLarge)
		return
	}

	opts, err := optionsFromForm(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	data, err := readUpload(file)
	if err != nil {
		log.Error("read upload failed", slog.Any("error", err))
		Internal(c, "failed to read file")
		return
	}

	contentType := http.DetectContentType(data)
	ext, ok := storage.ExtForContentType(contentType)
	if !ok {
		Error(c, http.StatusUnsupportedMediaType, "unsupported image type")
		return
	}

	if h.scanner != nil {
		if err := h.scanner.Scan(bytes.NewReader(data)); err != nil {
			if errors.Is(err, scan.ErrInfected) {
				log.Warn("malicious upload rejected", slog.String("filename", file.Filename))
				BadRequest(c, "malicious file detected")
				return
			}
			log.Error("scan upload failed", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
	}

	optionsJSON, err := json.Marshal(opts)
	if err != nil {
		Internal(c, "failed to encode options")
		return
	}

	jobID := uuid.NewString()
	job := database.ProcessingJob{
		ID:                jobID,
		UserID:            userID,
		Status:            jobs.StatusPending,
		OriginalFilename:  sanitizeFilename(file.Filename),
		OriginalObjectKey: storage.OriginalKey(userID, jobID, ext),
		ContentType:       contentType,
		SizeBytes:         int64(len(data)),
		Options:           datatypes.JSON(optionsJSON),
	}
	log = log.With(slog.String("job_id", jobID))

	if err := h.storage.UploadFile(ctx, job.OriginalObjectKey, bytes.NewReader(data), job.SizeBytes, contentType); err != nil {
		log.Error("upload original failed", slog.Any("error", err))
		Internal(c, "failed to store file")
		return
	}

	if err := h.store.Create(ctx, &job); err != nil {
		log.Error("create processing job failed", slog.Any("error", err))
		if delErr := h.storage.DeleteObject(ctx, job.OriginalObjectKey); delErr != nil {
			log.Warn("cleanup original failed", slog.Any("error", delErr))
		}
		Internal(c, "failed to create processing job")
		return
	}

	task, err := tasks.NewRestorationTask(jobID, middleware.GetCorrelationID(c))
	if err != nil {
		log.Error("build restoration task failed", slog.Any("error", err))
		Internal(c, "failed to create task")
		return
	}

	info, err := h.queue.EnqueueContext(ctx, task, asynq.MaxRetry(h.maxRetry))
	if err != nil {
		log.Error("enqueue restoration failed", slog.Any("error", err))
		if markErr := h.store.MarkFailed(ctx, jobID, "could not be queued", time.Now()); markErr != nil {
			log.Warn("mark unqueued job failed", slog.Any("error", markErr))
		}
		Internal(c, "failed to enqueue restoration")
		return
	}

	if err := h.store.SetTaskID(ctx, jobID, info.ID); err != nil {
		log.Warn("record task id failed", slog.Any("error", err))
	} else {
		job.TaskID = info.ID
	}

	metrics.JobSubmitted()
	log.Info("processing job submitted", slog.String("task_id", info.ID))
	Data(c, http.StatusAccepted, job)
}

// GetJob 返回当前用户的单个任务。
func (h *ProcessingJobHandler) GetJob(c *gin.Context) {
	job, ok := h.jobForUser(c)
	if !ok {
		return
	}
	Data(c, http.StatusOK, job)
}

// GetDownloadLink 生成修复结果的预签名下载链接。
func (h *ProcessingJobHandler) GetDownloadLink(c *gin.Context) {
	job, ok := h.jobForUser(c)
	if !ok {
		return
	}

	if job.Status != jobs.StatusCompleted || job.RestoredObjectKey == "" {
		Conflict(c, msgRestoreNotReady)
		return
	}

	signedURL, err := h.storage.GeneratePresignedURL(c.Request.Context(), job.RestoredObjectKey, h.downloadTTL)
	if err != nil {
		middleware.LoggerFromContext(c).Error("generate download link failed", slog.String("job_id", job.ID), slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}

	Data(c, http.StatusOK, gin.H{
		"url":        signedURL,
		"expires_in": int(h.downloadTTL.Seconds()),
	})
}

func (h *ProcessingJobHandler) jobForUser(c *gin.Context) (*database.ProcessingJob, bool) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}

	job, err := h.store.GetForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			NotFound(c, msgJobNotFound)
			return nil, false
		}
		middleware.LoggerFromContext(c).Error("query processing job failed", slog.Any("error", err))
		Internal(c, msgQueryJobFailed)
		return nil, false
	}
	return job, true
}

func optionsFromForm(c *gin.Context) (jobs.Options, error) {
	opts := jobs.DefaultOptions()

	boolFields := map[string]*bool{
		"colorize":        &opts.Colorize,
		"face_enhance":    &opts.FaceEnhance,
		"scratch_removal": &opts.ScratchRemoval,
	}
	for field, target := range boolFields {
		raw, ok := c.GetPostForm(field)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return jobs.Options{}, errors.New("invalid " + field)
		}
		*target = v
	}

	if raw, ok := c.GetPostForm("upscale"); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return jobs.Options{}, errors.New("invalid upscale")
		}
		opts.Upscale = v
	}

	if err := opts.Validate(); err != nil {
		return jobs.Options{}, err
	}
	return opts, nil
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	// 部分 multipart 解析路径不会包装原始错误
	return strings.Contains(err.Error(), "request body too large")
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
