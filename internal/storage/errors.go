package storage

import (
	"errors"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
)

var missingObjectCodes = map[string]struct{}{
	"NoSuchKey":    {},
	"NotFound":     {},
	"NoSuchObject": {},
}

// IsNoSuchKey 判断 err 是否表示对象不存在。bucket 不存在不算。
func IsNoSuchKey(err error) bool {
	if err == nil {
		return false
	}

	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		if _, ok := missingObjectCodes[resp.Code]; ok {
			return true
		}
		return resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket"
	}

	// 非 minio 错误只能按文本判断
	return strings.Contains(err.Error(), "NoSuchKey") ||
		strings.Contains(strings.ToLower(err.Error()), "specified key does not exist")
}
