package dao

import (
	"context"
	"fmt"

	"bot-rag-backend/model"
	"bot-rag-backend/service/vectorstore"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentDAO struct {
	db *gorm.DB
}

func NewDocumentDAO(db *gorm.DB) *DocumentDAO {
	return &DocumentDAO{db: db}
}

func (d *DocumentDAO) Create(ctx context.Context, document *model.Document) error {
	return d.db.WithContext(ctx).Create(document).Error
}

func (d *DocumentDAO) Get(ctx context.Context, userID, documentID string) (*model.Document, error) {
	var document model.Document
	if err := d.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, documentID).
		First(&document).Error; err != nil {
		return nil, notFound(err)
	}
	return &document, nil
}

// CountOwned 统计 documentIDs 中属于 userID 的文档数量
func (d *DocumentDAO) CountOwned(ctx context.Context, userID string, documentIDs []string) (int64, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := d.db.WithContext(ctx).Model(&model.Document{}).
		Where("user_id = ? AND id IN ?", userID, documentIDs).
		Count(&count).Error
	return count, err
}

func (d *DocumentDAO) ListByUser(ctx context.Context, userID string) ([]model.Document, error) {
	var documents []model.Document
	if err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&documents).Error; err != nil {
		return nil, err
	}
	return documents, nil
}

func (d *DocumentDAO) UpdateStatus(ctx context.Context, userID, documentID string, status model.ProcessingStatus) error {
	return d.db.WithContext(ctx).Model(&model.Document{}).
		Where("user_id = ? AND id = ?", userID, documentID).
		Update("processing_status", status).Error
}

func (d *DocumentDAO) Delete(ctx context.Context, userID, documentID string) error {
	return d.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, documentID).
		Delete(&model.Document{}).Error
}

// EmbeddingDAO 基于 MySQL 的片段存储
type EmbeddingDAO struct {
	db *gorm.DB
}

var _ vectorstore.Store = (*EmbeddingDAO)(nil)

func NewEmbeddingDAO(db *gorm.DB) *EmbeddingDAO {
	return &EmbeddingDAO{db: db}
}

func (d *EmbeddingDAO) InsertChunks(ctx context.Context, chunks []vectorstore.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	rows := make([]model.EmbeddingChunk, 0, len(chunks))
	for _, chunk := range chunks {
		row := model.EmbeddingChunk{
			ID:          chunk.ID,
			UserID:      chunk.UserID,
			DocumentID:  chunk.DocumentID,
			FileName:    chunk.FileName,
			ChunkIndex:  chunk.ChunkIndex,
			PageContent: chunk.Content,
		}
		if row.ID == "" {
			row.ID = uuid.New().String()
		}
		if err := row.SetVector(chunk.Vector); err != nil {
			return fmt.Errorf("failed to encode vector: %v", err)
		}
		rows = append(rows, row)
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
}

func (d *EmbeddingDAO) FindByDocuments(ctx context.Context, userID string, documentIDs []string) ([]vectorstore.Chunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}

	var rows []model.EmbeddingChunk
	if err := d.db.WithContext(ctx).
		Where("user_id = ? AND document_id IN ?", userID, documentIDs).
		Order("document_id ASC, chunk_index ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	chunks := make([]vectorstore.Chunk, 0, len(rows))
	for i := range rows {
		vector, err := rows[i].Vector()
		if err != nil {
			return nil, fmt.Errorf("failed to decode vector of chunk %s: %v", rows[i].ID, err)
		}
		chunks = append(chunks, vectorstore.Chunk{
			ID:         rows[i].ID,
			UserID:     rows[i].UserID,
			DocumentID: rows[i].DocumentID,
			FileName:   rows[i].FileName,
			ChunkIndex: rows[i].ChunkIndex,
			Content:    rows[i].PageContent,
			Vector:     vector,
		})
	}
	return chunks, nil
}

func (d *EmbeddingDAO) DeleteByDocument(ctx context.Context, userID, documentID string) error {
	return d.db.WithContext(ctx).
		Where("user_id = ? AND document_id = ?", userID, documentID).
		Delete(&model.EmbeddingChunk{}).Error
}
