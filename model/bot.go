package model

import "time"

// DefaultMaxBots 用户默认可创建的机器人数量
const DefaultMaxBots = 2

type User struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Email        string    `gorm:"not null;type:varchar(255);uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	BusinessName string    `json:"business_name"`
	MaxBots      int       `gorm:"not null;default:2" json:"max_bots"`
}

func (User) TableName() string {
	return "users"
}

type Bot struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt   time.Time  `gorm:"index:idx_bot_user_created" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	UserID      string     `gorm:"not null;type:varchar(36);index:idx_bot_user_created" json:"user_id"`
	Name        string     `gorm:"not null" json:"name"`
	Description string     `json:"description"`
	IsActive    bool       `gorm:"not null;default:false" json:"is_active"`
	LastActive  *time.Time `json:"last_active"`
}

func (Bot) TableName() string {
	return "bots"
}

// BotDocument 机器人与文档的关联，(bot_id, document_id) 唯一
type BotDocument struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	BotID      string    `gorm:"not null;type:varchar(36);uniqueIndex:idx_bot_document" json:"bot_id"`
	DocumentID string    `gorm:"not null;type:varchar(36);uniqueIndex:idx_bot_document;index" json:"document_id"`
	UserID     string    `gorm:"not null;type:varchar(36);index" json:"user_id"`
}

func (BotDocument) TableName() string {
	return "bot_documents"
}
