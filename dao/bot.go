package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bot-rag-backend/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrQuotaExceeded = errors.New("bot quota exceeded")

// QuotaError 用户机器人数量达到上限
type QuotaError struct {
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("Maximum number of bots (%d) reached. Please delete an existing bot before creating a new one.", e.Limit)
}

func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

type BotDAO struct {
	db *gorm.DB
}

func NewBotDAO(db *gorm.DB) *BotDAO {
	return &BotDAO{db: db}
}

// CreateWithinQuota 在同一事务内检查配额并创建机器人
// MySQL 下对用户行加 FOR UPDATE 锁，同一用户的并发创建被串行化
func (d *BotDAO) CreateWithinQuota(ctx context.Context, bot *model.Bot, defaultLimit int) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		limit := defaultLimit

		var user model.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", bot.UserID).
			First(&user).Error
		switch {
		case err == nil:
			if user.MaxBots > 0 {
				limit = user.MaxBots
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		var count int64
		if err := tx.Model(&model.Bot{}).Where("user_id = ?", bot.UserID).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(limit) {
			return &QuotaError{Limit: limit}
		}

		return tx.Create(bot).Error
	})
}

func (d *BotDAO) ListByUser(ctx context.Context, userID string) ([]model.Bot, error) {
	var bots []model.Bot
	if err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&bots).Error; err != nil {
		return nil, err
	}
	return bots, nil
}

func (d *BotDAO) Get(ctx context.Context, userID, botID string) (*model.Bot, error) {
	var bot model.Bot
	if err := d.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, botID).
		First(&bot).Error; err != nil {
		return nil, notFound(err)
	}
	return &bot, nil
}

// Delete 删除机器人及其文档关联，文档本身保留
func (d *BotDAO) Delete(ctx context.Context, userID, botID string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND bot_id = ?", userID, botID).
			Delete(&model.BotDocument{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND id = ?", userID, botID).
			Delete(&model.Bot{}).Error
	})
}

func (d *BotDAO) SetActive(ctx context.Context, userID, botID string, active bool) error {
	updates := map[string]any{"is_active": active}
	if active {
		updates["last_active"] = time.Now()
	}
	return d.db.WithContext(ctx).Model(&model.Bot{}).
		Where("user_id = ? AND id = ?", userID, botID).
		Updates(updates).Error
}

func (d *BotDAO) Touch(ctx context.Context, userID, botID string) error {
	return d.db.WithContext(ctx).Model(&model.Bot{}).
		Where("user_id = ? AND id = ?", userID, botID).
		Update("last_active", time.Now()).Error
}
