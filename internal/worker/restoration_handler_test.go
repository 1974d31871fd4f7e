package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"phRestore/internal/database"
	"phRestore/internal/errcode"
	"phRestore/internal/jobs"
	"phRestore/internal/restorer"
	"phRestore/internal/tasks"
)

type fakeObjects struct {
	objects  map[string][]byte
	readErr  error
	uploaded map[string]string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, uploaded: map[string]string{}}
}

func (f *fakeObjects) ReadObject(_ context.Context, key string, _ int64) ([]byte, string, error) {
	if f.readErr != nil {
		return nil, "", f.readErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("stat object %q: %w", key, minio.ErrorResponse{Code: "NoSuchKey"})
	}
	return data, "image/jpeg", nil
}

func (f *fakeObjects) UploadFile(_ context.Context, key string, reader io.Reader, _ int64, contentType string) error {
	data, _ := io.ReadAll(reader)
	f.objects[key] = data
	f.uploaded[key] = contentType
	return nil
}

type fakeRestorer struct {
	calls       int
	opts        jobs.Options
	err         error
	contentType string
}

func (f *fakeRestorer) Restore(_ context.Context, image []byte, _ string, opts jobs.Options) (restorer.Result, error) {
	f.calls++
	f.opts = opts
	if f.err != nil {
		return restorer.Result{}, f.err
	}
	contentType := f.contentType
	if contentType == "" {
		contentType = "image/png"
	}
	return restorer.Result{Data: append([]byte("restored:"), image...), ContentType: contentType}, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages map[string][]JobStatusNotifyMessage
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.mu.Lock()
	defer p.mu.Unlock()
	var msg JobStatusNotifyMessage
	_ = json.Unmarshal(message.([]byte), &msg)
	if p.messages == nil {
		p.messages = map[string][]JobStatusNotifyMessage{}
	}
	p.messages[channel] = append(p.messages[channel], msg)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func (p *fakePublisher) statuses(channel string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.messages[channel]))
	for _, m := range p.messages[channel] {
		out = append(out, m.Status)
	}
	return out
}

type handlerFixture struct {
	store     *jobs.GormStore
	objects   *fakeObjects
	restorer  *fakeRestorer
	publisher *fakePublisher
	handler   *RestorationTaskHandler
}

func newFixture(t *testing.T) *handlerFixture {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	f := &handlerFixture{
		store:     jobs.NewGormStore(db),
		objects:   newFakeObjects(),
		restorer:  &fakeRestorer{},
		publisher: &fakePublisher{},
	}
	f.handler = NewRestorationTaskHandler(f.store, f.objects, f.restorer, f.publisher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *handlerFixture) seed(t *testing.T, status string) database.ProcessingJob {
	t.Helper()
	job := database.ProcessingJob{
		ID:                "job-1",
		UserID:            "user-1",
		Status:            status,
		OriginalObjectKey: "originals/user-1/job-1.jpg",
		ContentType:       "image/jpeg",
		Options:           datatypes.JSON(`{"colorize":true,"upscale":2}`),
	}
	require.NoError(t, f.store.Create(context.Background(), &job))
	f.objects.objects[job.OriginalObjectKey] = []byte("pixels")
	return job
}

func restorationTask(t *testing.T, jobID string) *asynq.Task {
	t.Helper()
	task, err := tasks.NewRestorationTask(jobID, "corr-1")
	require.NoError(t, err)
	return task
}

func TestRestorationTaskHandler_Success(t *testing.T) {
	f := newFixture(t)
	f.seed(t, jobs.StatusPending)

	require.NoError(t, f.handler.ProcessTask(context.Background(), restorationTask(t, "job-1")))

	job, err := f.store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.Equal(t, "restored/user-1/job-1.png", job.RestoredObjectKey)
	assert.Equal(t, "restored:pixels", string(f.objects.objects[job.RestoredObjectKey]))
	assert.Equal(t, "image/png", f.objects.uploaded[job.RestoredObjectKey])
	assert.True(t, f.restorer.opts.Colorize)
	assert.Equal(t, 2, f.restorer.opts.Upscale)
	assert.Equal(t, []string{jobs.StatusProcessing, jobs.StatusCompleted}, f.publisher.statuses("user_notify:user-1"))
}

func TestRestorationTaskHandler_RejectedFailsWithoutRetry(t *testing.T) {
	f := newFixture(t)
	f.seed(t, jobs.StatusPending)
	f.restorer.err = fmt.Errorf("%w: status 422: corrupt image", restorer.ErrRejected)

	err := f.handler.ProcessTask(context.Background(), restorationTask(t, "job-1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	job, err := f.store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, reasonRejected, job.ErrorMessage)
	assert.NotContains(t, job.ErrorMessage, "corrupt")

	f.publisher.mu.Lock()
	last := f.publisher.messages["user_notify:user-1"][len(f.publisher.messages["user_notify:user-1"])-1]
	f.publisher.mu.Unlock()
	assert.Equal(t, errcode.RejectedByEngine, last.ErrorCode)
}

func TestRestorationTaskHandler_MissingOriginal(t *testing.T) {
	f := newFixture(t)
	job := f.seed(t, jobs.StatusPending)
	delete(f.objects.objects, job.OriginalObjectKey)

	err := f.handler.ProcessTask(context.Background(), restorationTask(t, "job-1"))
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, f.restorer.calls)

	got, err := f.store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Equal(t, reasonOriginalMissing, got.ErrorMessage)
}

func TestRestorationTaskHandler_TransientErrorRetries(t *testing.T) {
	f := newFixture(t)
	f.seed(t, jobs.StatusPending)
	f.restorer.err = errors.New("restoration status 503: busy")

	err := f.handler.ProcessTask(context.Background(), restorationTask(t, "job-1"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	job, err := f.store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusProcessing, job.Status)
}

func TestRestorationTaskHandler_FinalAttemptMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.seed(t, jobs.StatusPending)
	f.restorer.err = errors.New("restoration status 503: busy")
	f.handler.finalAttempt = func(context.Context) bool { return true }

	err := f.handler.ProcessTask(context.Background(), restorationTask(t, "job-1"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	job, err := f.store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, reasonFailed, job.ErrorMessage)
	assert.NotContains(t, job.ErrorMessage, "503")

	assert.Equal(t, []string{jobs.StatusProcessing, jobs.StatusFailed}, f.publisher.statuses("user_notify:user-1"))
	f.publisher.mu.Lock()
	msgs := f.publisher.messages["user_notify:user-1"]
	last := msgs[len(msgs)-1]
	f.publisher.mu.Unlock()
	assert.Equal(t, errcode.SystemError, last.ErrorCode)
	assert.Equal(t, reasonFailed, last.ErrorMessage)
}

func TestRestorationTaskHandler_UnknownResultTypeRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, jobs.StatusPending)
	f.restorer.contentType = "application/octet-stream"

	err := f.handler.ProcessTask(context.Background(), restorationTask(t, "job-1"))
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, f.objects.uploaded)

	job, err := f.store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, reasonRejected, job.ErrorMessage)
	assert.Empty(t, job.RestoredObjectKey)
}

func TestRestorationTaskHandler_SkipsMissingAndFinishedJobs(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler.ProcessTask(context.Background(), restorationTask(t, "unknown")))

	f.seed(t, jobs.StatusCompleted)
	require.NoError(t, f.handler.ProcessTask(context.Background(), restorationTask(t, "job-1")))
	assert.Zero(t, f.restorer.calls)
}

func TestRestorationTaskHandler_InvalidPayload(t *testing.T) {
	f := newFixture(t)
	err := f.handler.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeRestorationProcess, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestReapTaskHandler(t *testing.T) {
	f := newFixture(t)
	f.seed(t, jobs.StatusPending)
	require.NoError(t, f.store.MarkProcessing(context.Background(), "job-1", time.Now().Add(-2*time.Hour)))

	h := NewReapTaskHandler(f.store, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, h.ProcessTask(context.Background(), tasks.NewReapTask()))

	job, err := f.store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, reasonTimedOut, job.ErrorMessage)
}
