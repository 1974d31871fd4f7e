package storage

import (
	"fmt"
	"path"
	"strings"
)

// 对象键前缀。每个用户的文件位于 <prefix>/<user_id>/ 下。
const (
	OriginalsPrefix = "originals"
	RestoredPrefix  = "restored"
)

// OriginalKey 返回上传原图的对象键。
func OriginalKey(userID, jobID, ext string) string {
	return fmt.Sprintf("%s/%s/%s%s", OriginalsPrefix, userID, jobID, normalizeExt(ext))
}

// RestoredKey 返回修复结果的对象键。
func RestoredKey(userID, jobID, ext string) string {
	return fmt.Sprintf("%s/%s/%s%s", RestoredPrefix, userID, jobID, normalizeExt(ext))
}

// UserPrefix 返回某类对象在指定用户下的前缀。
func UserPrefix(kind, userID string) string {
	return kind + "/" + userID + "/"
}

// KindOf 返回对象键的类别（originals/restored），无法识别时为空。
func KindOf(key string) string {
	kind, _, ok := strings.Cut(key, "/")
	if !ok {
		return ""
	}
	switch kind {
	case OriginalsPrefix, RestoredPrefix:
		return kind
	}
	return ""
}

// ExtForContentType 将图片 MIME 映射为扩展名。
func ExtForContentType(contentType string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return ".png", true
	case "image/jpeg", "image/jpg":
		return ".jpg", true
	case "image/webp":
		return ".webp", true
	}
	return "", false
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Clean(ext)
}
