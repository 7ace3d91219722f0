package dao

import (
	"context"
	"errors"

	"bot-rag-backend/model"

	"gorm.io/gorm"
)

type BotDocumentDAO struct {
	db *gorm.DB
}

func NewBotDocumentDAO(db *gorm.DB) *BotDocumentDAO {
	return &BotDocumentDAO{db: db}
}

// Create 批量创建关联，任一 (bot_id, document_id) 已存在时整体回滚并返回 ErrDuplicate
func (d *BotDocumentDAO) Create(ctx context.Context, rows []model.BotDocument) error {
	if len(rows) == 0 {
		return nil
	}

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seen := make(map[string]bool, len(rows))
		for _, row := range rows {
			key := row.BotID + "/" + row.DocumentID
			if seen[key] {
				return ErrDuplicate
			}
			seen[key] = true

			var count int64
			if err := tx.Model(&model.BotDocument{}).
				Where("bot_id = ? AND document_id = ?", row.BotID, row.DocumentID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrDuplicate
			}
		}
		return tx.Create(&rows).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// DocumentIDsForBot 返回机器人关联的文档ID，按关联创建顺序
func (d *BotDocumentDAO) DocumentIDsForBot(ctx context.Context, userID, botID string) ([]string, error) {
	var ids []string
	if err := d.db.WithContext(ctx).Model(&model.BotDocument{}).
		Where("user_id = ? AND bot_id = ?", userID, botID).
		Order("id ASC").
		Pluck("document_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListDocuments 返回机器人关联的文档
func (d *BotDocumentDAO) ListDocuments(ctx context.Context, userID, botID string) ([]model.Document, error) {
	var documents []model.Document
	if err := d.db.WithContext(ctx).
		Joins("JOIN bot_documents ON bot_documents.document_id = documents.id").
		Where("bot_documents.user_id = ? AND bot_documents.bot_id = ? AND documents.user_id = ?", userID, botID, userID).
		Order("bot_documents.id ASC").
		Find(&documents).Error; err != nil {
		return nil, err
	}
	return documents, nil
}

func (d *BotDocumentDAO) Delete(ctx context.Context, userID, botID, documentID string) error {
	return d.db.WithContext(ctx).
		Where("user_id = ? AND bot_id = ? AND document_id = ?", userID, botID, documentID).
		Delete(&model.BotDocument{}).Error
}

// DeleteByDocument 删除文档在该用户下的所有关联
func (d *BotDocumentDAO) DeleteByDocument(ctx context.Context, userID, documentID string) error {
	return d.db.WithContext(ctx).
		Where("user_id = ? AND document_id = ?", userID, documentID).
		Delete(&model.BotDocument{}).Error
}

func (d *BotDocumentDAO) DeleteByBot(ctx context.Context, userID, botID string) error {
	return d.db.WithContext(ctx).
		Where("user_id = ? AND bot_id = ?", userID, botID).
		Delete(&model.BotDocument{}).Error
}
