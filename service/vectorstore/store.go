package vectorstore

import (
	"context"
	"errors"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Chunk 文档片段及其向量
type Chunk struct {
	ID         string
	UserID     string
	DocumentID string
	FileName   string
	ChunkIndex int
	Content    string
	Vector     []float32
}

// Store 片段存储，所有读取都按 userID 过滤
// 不做近似最近邻检索，排序由调用方全量计算
type Store interface {
	InsertChunks(ctx context.Context, chunks []Chunk) error

	// FindByDocuments 返回属于 userID 且 DocumentID 在 documentIDs 内的片段，顺序稳定
	FindByDocuments(ctx context.Context, userID string, documentIDs []string) ([]Chunk, error)

	// DeleteByDocument 删除不存在的文档时返回 nil
	DeleteByDocument(ctx context.Context, userID, documentID string) error
}
