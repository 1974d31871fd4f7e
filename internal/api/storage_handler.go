package api

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"phRestore/internal/api/middleware"
	"phRestore/internal/storage"
)

const (
	defaultStorageLimit = 60
	maxStorageLimit     = 200
)

// StorageItem 是存储页展示的一张图片。
type StorageItem struct {
	Key          string    `json:"key"`
	Kind         string    `json:"kind"`
	JobID        string    `json:"job_id"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
	PreviewURL   string    `json:"preview_url"`
}

// StorageHandler 列出用户存储的原图与修复结果。
type StorageHandler struct {
	storage    objectStorage
	previewTTL time.Duration
}

func NewStorageHandler(storageClient objectStorage, previewTTL time.Duration) *StorageHandler {
	if previewTTL <= 0 {
		previewTTL = 15 * time.Minute
	}
	return &StorageHandler{storage: storageClient, previewTTL: previewTTL}
}

// ListStorage 合并 originals 与 restored 两个前缀，按修改时间倒序返回前 limit 项。
func (h *StorageHandler) ListStorage(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	limit, err := parseStorageLimit(c.Query("limit"))
	if err != nil {
		BadRequest(c, "limit must be between 1 and 200")
		return
	}

	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(slog.String("user_id", userID))

	var objects []storage.ObjectMeta
	for _, kind := range []string{storage.OriginalsPrefix, storage.RestoredPrefix} {
		batch, err := h.storage.ListObjects(ctx, storage.UserPrefix(kind, userID), limit)
		if err != nil {
			log.Error("list storage objects failed", slog.String("kind", kind), slog.Any("error", err))
			Internal(c, "failed to list storage")
			return
		}
		objects = append(objects, batch...)
	}

	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
	if len(objects) > limit {
		objects = objects[:limit]
	}

	items, err := h.toItems(ctx, objects)
	if err != nil {
		log.Error("sign storage previews failed", slog.Any("error", err))
		Internal(c, "failed to list storage")
		return
	}

	Data(c, http.StatusOK, items)
}

func (h *StorageHandler) toItems(ctx context.Context, objects []storage.ObjectMeta) ([]StorageItem, error) {
	items := make([]StorageItem, 0, len(objects))
	for _, obj := range objects {
		previewURL, err := h.storage.GeneratePresignedURL(ctx, obj.Key, h.previewTTL)
		if err != nil {
			return nil, err
		}
		items = append(items, StorageItem{
			Key:          obj.Key,
			Kind:         storage.KindOf(obj.Key),
			JobID:        jobIDFromKey(obj.Key),
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
			PreviewURL:   previewURL,
		})
	}
	return items, nil
}

func parseStorageLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultStorageLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxStorageLimit {
		return 0, strconv.ErrRange
	}
	return limit, nil
}

// originals/<user>/<job>.png -> <job>
func jobIDFromKey(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}
