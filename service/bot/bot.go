package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bot-rag-backend/dao"
	"bot-rag-backend/model"
	"bot-rag-backend/service/session"

	"github.com/google/uuid"
)

var (
	ErrBotNotFound   = errors.New("bot not found")
	ErrQuotaExceeded = dao.ErrQuotaExceeded
	ErrInvalidName   = errors.New("bot name is required")
)

type Repository interface {
	CreateWithinQuota(ctx context.Context, bot *model.Bot, defaultLimit int) error
	ListByUser(ctx context.Context, userID string) ([]model.Bot, error)
	Get(ctx context.Context, userID, botID string) (*model.Bot, error)
	Delete(ctx context.Context, userID, botID string) error
}

// SessionManager 机器人消息会话的生命周期
type SessionManager interface {
	Initialize(ctx context.Context, userID, botID string) (session.PairingChallenge, error)
	Disconnect(ctx context.Context, userID, botID string) error
	Status(ctx context.Context, userID, botID string) session.ActiveState
}

type Service struct {
	bots           Repository
	sessions       SessionManager
	defaultMaxBots int
	dbTimeout      time.Duration
}

func NewService(bots Repository, sessions SessionManager, defaultMaxBots int, dbTimeout time.Duration) *Service {
	if defaultMaxBots < 1 {
		defaultMaxBots = model.DefaultMaxBots
	}
	return &Service{
		bots:           bots,
		sessions:       sessions,
		defaultMaxBots: defaultMaxBots,
		dbTimeout:      dbTimeout,
	}
}

// Create 配额检查与插入在同一事务中完成
// 事务锁住用户行，不支持行锁的存储上并发请求仍可能多创建一个
func (s *Service) Create(ctx context.Context, userID, name, description string) (*model.Bot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	bot := &model.Bot{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(description),
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.bots.CreateWithinQuota(ctx, bot, s.defaultMaxBots); err != nil {
		return nil, err
	}
	return bot, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]model.Bot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.bots.ListByUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, botID string) (*model.Bot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	bot, err := s.bots.Get(ctx, userID, botID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, ErrBotNotFound
		}
		return nil, err
	}
	return bot, nil
}

// Delete 先强制断开会话，再删除关联和机器人，文档保留
func (s *Service) Delete(ctx context.Context, userID, botID string) error {
	if _, err := s.Get(ctx, userID, botID); err != nil {
		return err
	}

	if err := s.sessions.Disconnect(ctx, userID, botID); err != nil {
		return fmt.Errorf("failed to disconnect bot session: %w", err)
	}

	dbCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.bots.Delete(dbCtx, userID, botID); err != nil {
		return err
	}

	slog.Info("bot deleted", "user_id", userID, "bot_id", botID)
	return nil
}

func (s *Service) Initialize(ctx context.Context, userID, botID string) (session.PairingChallenge, error) {
	if _, err := s.Get(ctx, userID, botID); err != nil {
		return session.PairingChallenge{}, err
	}
	return s.sessions.Initialize(ctx, userID, botID)
}

func (s *Service) Disconnect(ctx context.Context, userID, botID string) error {
	if _, err := s.Get(ctx, userID, botID); err != nil {
		return err
	}
	return s.sessions.Disconnect(ctx, userID, botID)
}

func (s *Service) Status(ctx context.Context, userID, botID string) (session.ActiveState, error) {
	if _, err := s.Get(ctx, userID, botID); err != nil {
		return session.ActiveState{}, err
	}
	return s.sessions.Status(ctx, userID, botID), nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.dbTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.dbTimeout)
}
