package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phRestore/internal/api/middleware"
)

func newStorageRouter(objects *memoryObjects, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewStorageHandler(objects, time.Minute)
	router := gin.New()
	router.GET("/api/storage", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}, h.ListStorage)
	return router
}

type storageResponse struct {
	Data []StorageItem `json:"data"`
}

func TestStorageHandler_MergesAndOrders(t *testing.T) {
	objects := newMemoryObjects()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	objects.put("originals/alice/job-1.png", 10, base)
	objects.put("restored/alice/job-1.png", 20, base.Add(time.Hour))
	objects.put("originals/alice/job-2.jpg", 30, base.Add(2*time.Hour))
	objects.put("originals/bob/job-9.png", 40, base.Add(3*time.Hour))

	rec := httptest.NewRecorder()
	newStorageRouter(objects, "alice").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/storage", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body storageResponse
	decodeBody(t, rec, &body)
	require.Len(t, body.Data, 3)
	assert.Equal(t, "originals/alice/job-2.jpg", body.Data[0].Key)
	assert.Equal(t, "restored", body.Data[1].Kind)
	assert.Equal(t, "job-1", body.Data[1].JobID)
	assert.Equal(t, "originals", body.Data[2].Kind)
	assert.Contains(t, body.Data[0].PreviewURL, "originals/alice/job-2.jpg")
}

func TestStorageHandler_Limit(t *testing.T) {
	objects := newMemoryObjects()
	base := time.Now()
	for i, key := range []string{"originals/alice/a.png", "originals/alice/b.png", "restored/alice/a.png"} {
		objects.put(key, 1, base.Add(time.Duration(i)*time.Minute))
	}
	router := newStorageRouter(objects, "alice")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/storage?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body storageResponse
	decodeBody(t, rec, &body)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "restored/alice/a.png", body.Data[0].Key)

	for _, bad := range []string{"0", "201", "abc"} {
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/storage?limit="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestStorageHandler_BackendErrorIsHidden(t *testing.T) {
	objects := newMemoryObjects()
	objects.listErr = errBackend

	rec := httptest.NewRecorder()
	newStorageRouter(objects, "alice").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/storage", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
}
