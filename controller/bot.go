package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"bot-rag-backend/middleware"
	"bot-rag-backend/model"
	"bot-rag-backend/request"
	"bot-rag-backend/response"
	"bot-rag-backend/service/bot"
	"bot-rag-backend/service/session"

	"github.com/gin-gonic/gin"
)

type BotService interface {
	Create(ctx context.Context, userID, name, description string) (*model.Bot, error)
	List(ctx context.Context, userID string) ([]model.Bot, error)
	Get(ctx context.Context, userID, botID string) (*model.Bot, error)
	Delete(ctx context.Context, userID, botID string) error
	Initialize(ctx context.Context, userID, botID string) (session.PairingChallenge, error)
	Disconnect(ctx context.Context, userID, botID string) error
	Status(ctx context.Context, userID, botID string) (session.ActiveState, error)
}

type BotHandler struct {
	bots BotService
}

func NewBotHandler(bots BotService) *BotHandler {
	return &BotHandler{bots: bots}
}

func (h *BotHandler) GetBots(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	bots, err := h.bots.List(c.Request.Context(), userID)
	if err != nil {
		slog.Error(ErrGetBots.Error(), "user_id", userID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetBots.Error(),
		})
		return
	}

	resp := response.GetBotsResponse{Bots: make([]response.BotResponse, 0, len(bots))}
	for _, b := range bots {
		resp.Bots = append(resp.Bots, botResponse(&b))
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}

func (h *BotHandler) CreateBot(c *gin.Context) {
	var req request.CreateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	userID := c.GetString(middleware.ContextUserID)
	created, err := h.bots.Create(c.Request.Context(), userID, req.Name, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, bot.ErrQuotaExceeded):
			// 配额错误的文案包含上限，直接返回给用户
			c.AbortWithStatusJSON(http.StatusConflict, response.Response{
				Msg: err.Error(),
			})
		case errors.Is(err, bot.ErrInvalidName):
			c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
				Msg: bot.ErrInvalidName.Error(),
			})
		default:
			slog.Error(ErrCreateBot.Error(), "user_id", userID, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
				Msg: ErrCreateBot.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusCreated, response.Response{
		Data: botResponse(created),
	})
}

func (h *BotHandler) DeleteBot(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	botID := c.Param("id")
	if err := h.bots.Delete(c.Request.Context(), userID, botID); err != nil {
		abortBotError(c, ErrDeleteBot, userID, botID, err)
		return
	}

	c.JSON(http.StatusOK, response.Response{})
}

// InitializeBot 生成配对码，聊天端凭配对码连接 /api/connect
func (h *BotHandler) InitializeBot(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	botID := c.Param("id")
	challenge, err := h.bots.Initialize(c.Request.Context(), userID, botID)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyConnected) {
			c.AbortWithStatusJSON(http.StatusConflict, response.Response{
				Msg: session.ErrAlreadyConnected.Error(),
			})
			return
		}
		abortBotError(c, ErrInitializeBot, userID, botID, err)
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.InitializeBotResponse{
			Code:      challenge.Code,
			ExpiresAt: challenge.ExpiresAt,
		},
	})
}

func (h *BotHandler) DisconnectBot(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	botID := c.Param("id")
	if err := h.bots.Disconnect(c.Request.Context(), userID, botID); err != nil {
		abortBotError(c, ErrDisconnectBot, userID, botID, err)
		return
	}

	c.JSON(http.StatusOK, response.Response{})
}

func (h *BotHandler) GetBotStatus(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	botID := c.Param("id")
	state, err := h.bots.Status(c.Request.Context(), userID, botID)
	if err != nil {
		abortBotError(c, ErrGetBotStatus, userID, botID, err)
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.BotStatusResponse{
			Connected: state.Connected,
			Pending:   state.Pending,
		},
	})
}

func abortBotError(c *gin.Context, sentinel error, userID, botID string, err error) {
	if errors.Is(err, bot.ErrBotNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, response.Response{
			Msg: bot.ErrBotNotFound.Error(),
		})
		return
	}
	slog.Error(sentinel.Error(), "user_id", userID, "bot_id", botID, "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
		Msg: sentinel.Error(),
	})
}

func botResponse(b *model.Bot) response.BotResponse {
	return response.BotResponse{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		IsActive:    b.IsActive,
		LastActive:  b.LastActive,
		CreatedAt:   b.CreatedAt,
	}
}
