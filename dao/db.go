package dao

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"bot-rag-backend/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// DB 全局数据库连接，由 Init 初始化
var DB *gorm.DB

func Init(dsn string) error {
	db, err := Open(mysql.Open(dsn))
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = db
	return nil
}

// Open 打开连接并迁移表结构
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	return openWithLogger(dialector, newLogger(os.Stdout))
}

// newLogger 查询不到记录属于正常分支，不记录
func newLogger(w io.Writer) logger.Interface {
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func openWithLogger(dialector gorm.Dialector, gormLogger logger.Interface) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %v", err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.Bot{},
		&model.Document{},
		&model.EmbeddingChunk{},
		&model.BotDocument{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}
	return db, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
