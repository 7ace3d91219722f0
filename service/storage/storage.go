package storage

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Object 已写入的文件
type Object struct {
	URL string
	Key string
}

// BlobStore 原始文件存储
type BlobStore interface {
	Put(ctx context.Context, userID, fileName, contentType string, data []byte) (Object, error)

	// Delete 删除不存在的 key 时返回 nil
	Delete(ctx context.Context, key string) error

	PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ObjectKey 生成 uploads/<userID>/<uuid><ext> 形式的 key
func ObjectKey(userID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return "uploads/" + userID + "/" + uuid.New().String() + ext
}

func PublicURL(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + "/" + key
}
