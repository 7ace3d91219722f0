package router

import (
	"net/http"

	"bot-rag-backend/controller"
	"bot-rag-backend/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Auth     *controller.AuthHandler
	Bot      *controller.BotHandler
	Document *controller.DocumentHandler
	Chat     *controller.ChatHandler
	Session  *controller.SessionHandler

	// 为 nil 时不挂载 MCP 端点
	MCP http.Handler
}

func Register(h Handlers) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")
	{
		public := api.Group("/user")
		{
			public.POST("/register", h.Auth.UserRegister)
			public.POST("/login", h.Auth.UserLogin)
		}

		// 配对码即凭证，不经过 JWT 认证
		api.GET("/connect", h.Session.Connect)

		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.GET("/user/verify", h.Auth.VerifyUser)

			protected.GET("/bots", h.Bot.GetBots)
			protected.POST("/bots", h.Bot.CreateBot)
			protected.DELETE("/bots/:id", h.Bot.DeleteBot)
			protected.POST("/bots/:id/initialize", h.Bot.InitializeBot)
			protected.POST("/bots/:id/disconnect", h.Bot.DisconnectBot)
			protected.GET("/bots/:id/status", h.Bot.GetBotStatus)

			protected.GET("/bots/:id/documents", h.Document.GetBotDocuments)
			protected.POST("/bots/:id/documents", h.Document.AttachDocuments)
			protected.POST("/bots/:id/documents/upload", h.Document.UploadDocument)
			protected.DELETE("/bots/:id/documents/:documentId", h.Document.DeleteDocument)
			protected.GET("/documents/:documentId/download-link", h.Document.GetPresignedURL)

			protected.POST("/bots/:id/chat", h.Chat.BotChat)

			if h.MCP != nil {
				protected.Any("/mcp", gin.WrapH(h.MCP))
			}
		}
	}

	return r
}
