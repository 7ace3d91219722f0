package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bot-rag-backend/dao"
	"bot-rag-backend/model"
	"bot-rag-backend/request"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user no longer exists")
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type Service struct {
	users          UserRepository
	defaultMaxBots int
}

func NewService(users UserRepository, defaultMaxBots int) *Service {
	if defaultMaxBots < 1 {
		defaultMaxBots = model.DefaultMaxBots
	}
	return &Service{users: users, defaultMaxBots: defaultMaxBots}
}

func (s *Service) UserRegister(ctx context.Context, req request.UserRegisterRequest) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %v", err)
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Email:        normalizeEmail(req.Email),
		PasswordHash: string(hash),
		BusinessName: strings.TrimSpace(req.BusinessName),
		MaxBots:      s.defaultMaxBots,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, dao.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

// UserLogin 邮箱不存在和密码错误返回同一个错误
func (s *Service) UserLogin(ctx context.Context, req request.UserLoginRequest) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// VerifyUser 确认令牌中的用户仍然存在
func (s *Service) VerifyUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
