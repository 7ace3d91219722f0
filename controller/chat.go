package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"bot-rag-backend/middleware"
	"bot-rag-backend/model"
	"bot-rag-backend/request"
	"bot-rag-backend/response"
	"bot-rag-backend/service/bot"
	"bot-rag-backend/service/rag"

	"github.com/gin-gonic/gin"
)

type BotGetter interface {
	Get(ctx context.Context, userID, botID string) (*model.Bot, error)
}

type Answerer interface {
	Answer(ctx context.Context, userID, botID, query string) rag.Answer
}

type ChatHandler struct {
	bots     BotGetter
	answerer Answerer
}

func NewChatHandler(bots BotGetter, answerer Answerer) *ChatHandler {
	return &ChatHandler{bots: bots, answerer: answerer}
}

// BotChat 单轮问答，回答失败时返回致歉文案而不是错误
func (h *ChatHandler) BotChat(c *gin.Context) {
	var req request.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	userID := c.GetString(middleware.ContextUserID)
	botID := c.Param("id")
	if _, err := h.bots.Get(c.Request.Context(), userID, botID); err != nil {
		if errors.Is(err, bot.ErrBotNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, response.Response{
				Msg: bot.ErrBotNotFound.Error(),
			})
			return
		}
		slog.Error(ErrBotChat.Error(), "user_id", userID, "bot_id", botID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrBotChat.Error(),
		})
		return
	}

	answer := h.answerer.Answer(c.Request.Context(), userID, botID, req.Message)
	c.JSON(http.StatusOK, response.Response{
		Data: response.ChatResponse{Text: answer.Text},
	})
}
