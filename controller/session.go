package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"bot-rag-backend/response"
	"bot-rag-backend/service/session"

	"github.com/gin-gonic/gin"
)

type SessionConnector interface {
	Connect(w http.ResponseWriter, r *http.Request, code string) error
}

type SessionHandler struct {
	sessions SessionConnector
}

func NewSessionHandler(sessions SessionConnector) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Connect 聊天端凭配对码建立 websocket 会话，配对码即凭证
func (h *SessionHandler) Connect(c *gin.Context) {
	err := h.sessions.Connect(c.Writer, c.Request, c.Query("code"))
	if err == nil {
		return
	}

	if errors.Is(err, session.ErrInvalidPairingCode) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Response{
			Msg: session.ErrInvalidPairingCode.Error(),
		})
		return
	}
	// 升级失败时 upgrader 已写入响应
	slog.Error(ErrConnectBot.Error(), "err", err)
	c.Abort()
}
