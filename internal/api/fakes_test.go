package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"phRestore/internal/database"
	"phRestore/internal/jobs"
	"phRestore/internal/storage"
)

type memoryJobStore struct {
	mu        sync.Mutex
	jobs      map[string]database.ProcessingJob
	listErr   error
	listPanic bool
	createErr error
	listCalls int
}

func newMemoryJobStore(seed ...database.ProcessingJob) *memoryJobStore {
	s := &memoryJobStore{jobs: make(map[string]database.ProcessingJob)}
	for _, job := range seed {
		s.jobs[job.ID] = job
	}
	return s
}

func (s *memoryJobStore) ListByUser(_ context.Context, userID string) ([]database.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listPanic {
		panic("driver exploded")
	}
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]database.ProcessingJob, 0)
	for _, job := range s.jobs {
		if job.UserID == userID {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryJobStore) Create(_ context.Context, job *database.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *memoryJobStore) Get(_ context.Context, id string) (*database.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return &job, nil
}

func (s *memoryJobStore) GetForUser(ctx context.Context, id, userID string) (*database.ProcessingJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, jobs.ErrNotFound
	}
	return job, nil
}

func (s *memoryJobStore) update(id string, fn func(job *database.ProcessingJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return jobs.ErrNotFound
	}
	fn(&job)
	s.jobs[id] = job
	return nil
}

func (s *memoryJobStore) SetTaskID(_ context.Context, id, taskID string) error {
	return s.update(id, func(job *database.ProcessingJob) { job.TaskID = taskID })
}

func (s *memoryJobStore) MarkProcessing(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(job *database.ProcessingJob) {
		job.Status = jobs.StatusProcessing
		job.StartedAt = &at
	})
}

func (s *memoryJobStore) MarkCompleted(_ context.Context, id, restoredKey string, at time.Time) error {
	return s.update(id, func(job *database.ProcessingJob) {
		job.Status = jobs.StatusCompleted
		job.RestoredObjectKey = restoredKey
		job.CompletedAt = &at
	})
}

func (s *memoryJobStore) MarkFailed(_ context.Context, id, reason string, at time.Time) error {
	return s.update(id, func(job *database.ProcessingJob) {
		job.Status = jobs.StatusFailed
		job.ErrorMessage = reason
		job.CompletedAt = &at
	})
}

func (s *memoryJobStore) FailStale(context.Context, time.Time, string) (int64, error) {
	return 0, nil
}

func (s *memoryJobStore) job(id string) database.ProcessingJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

type memoryObjects struct {
	mu         sync.Mutex
	objects    map[string]storage.ObjectMeta
	data       map[string][]byte
	uploadErr  error
	presignErr error
	listErr    error
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{
		objects: make(map[string]storage.ObjectMeta),
		data:    make(map[string][]byte),
	}
}

func (m *memoryObjects) put(key string, size int64, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = storage.ObjectMeta{Key: key, Size: size, ContentType: "image/png", LastModified: modified}
}

func (m *memoryObjects) UploadFile(_ context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[objectKey] = buf.Bytes()
	m.objects[objectKey] = storage.ObjectMeta{Key: objectKey, Size: size, ContentType: contentType, LastModified: time.Now()}
	return nil
}

func (m *memoryObjects) GeneratePresignedURL(_ context.Context, objectKey string, duration time.Duration) (string, error) {
	if m.presignErr != nil {
		return "", m.presignErr
	}
	return "https://cdn.test/" + objectKey + "?ttl=" + duration.String(), nil
}

func (m *memoryObjects) ListObjects(_ context.Context, prefix string, limit int) ([]storage.ObjectMeta, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ObjectMeta
	for key, meta := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, meta)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastModified.After(out[j].LastModified) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryObjects) DeleteObject(_ context.Context, objectKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectKey)
	delete(m.data, objectKey)
	return nil
}

func (m *memoryObjects) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

type recordingQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *recordingQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Payload: task.Payload()}, nil
}

type stubScanner struct {
	err error
}

func (s stubScanner) Scan(r io.Reader) error {
	_, _ = io.Copy(io.Discard, r)
	return s.err
}

var errBackend = errors.New("dial tcp 10.0.0.5:5432: connection refused")
