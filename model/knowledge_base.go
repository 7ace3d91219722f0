package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type ProcessingStatus string

const (
	// 已接收，尚未完成索引
	StatusPending ProcessingStatus = "pending"

	// 文本提取、向量化、持久化均已完成
	StatusCompleted ProcessingStatus = "completed"

	StatusFailed ProcessingStatus = "failed"
)

const (
	MediaTypeText = "text/plain"
	MediaTypePDF  = "application/pdf"
	MediaTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Document 用户上传的知识文件，completed 状态下 Content 非空
// 建立联合索引 (user_id, created_at)
type Document struct {
	ID               string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt        time.Time        `gorm:"not null;index:idx_document_user_created" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"not null" json:"updated_at"`
	UserID           string           `gorm:"not null;type:varchar(36);index:idx_document_user_created" json:"user_id"`
	FileName         string           `gorm:"not null" json:"file_name"`
	FileType         string           `gorm:"not null" json:"file_type"`
	Content          string           `gorm:"type:longtext" json:"-"`
	FileURL          string           `gorm:"not null" json:"file_url"`
	FileKey          string           `gorm:"not null" json:"-"`
	UploadDate       time.Time        `gorm:"not null" json:"upload_date"`
	FileSize         int64            `gorm:"not null" json:"file_size"`
	ProcessingStatus ProcessingStatus `gorm:"not null;default:pending" json:"processing_status"`
}

func (Document) TableName() string {
	return "documents"
}

// EmbeddingChunk 文档的一个文本片段及其向量
type EmbeddingChunk struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UserID      string    `gorm:"not null;type:varchar(36);index:idx_chunk_user_document" json:"user_id"`
	DocumentID  string    `gorm:"not null;type:varchar(36);index:idx_chunk_user_document" json:"document_id"`
	FileName    string    `gorm:"not null" json:"file_name"`
	ChunkIndex  int       `gorm:"not null" json:"chunk_index"`
	PageContent string    `gorm:"type:longtext" json:"page_content"`

	// 向量以 JSON 数组存储
	Embedding datatypes.JSON `gorm:"type:json" json:"-"`
}

func (EmbeddingChunk) TableName() string {
	return "embedding_chunks"
}

// Vector 解码 Embedding 列
func (c *EmbeddingChunk) Vector() ([]float32, error) {
	var vector []float32
	if len(c.Embedding) == 0 {
		return vector, nil
	}
	if err := json.Unmarshal(c.Embedding, &vector); err != nil {
		return nil, err
	}
	return vector, nil
}

func (c *EmbeddingChunk) SetVector(vector []float32) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	c.Embedding = datatypes.JSON(raw)
	return nil
}
