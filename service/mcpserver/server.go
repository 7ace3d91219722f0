package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"bot-rag-backend/middleware"
	"bot-rag-backend/model"
	"bot-rag-backend/service/rag"
	"bot-rag-backend/service/vectorstore"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ToolAskBot             = "ask_bot"
	ToolSearchBotDocuments = "search_bot_documents"

	defaultSearchLimit = 5
	maxSearchLimit     = 20
	snippetRunes       = 300
)

var (
	ErrUnauthenticated = errors.New("missing authenticated user")
	ErrBotNotFound     = errors.New("bot not found")
)

type BotLookup interface {
	Get(ctx context.Context, userID, botID string) (*model.Bot, error)
}

type RAG interface {
	Answer(ctx context.Context, userID, botID, query string) rag.Answer
	Retrieve(ctx context.Context, userID, botID, query string, k int) ([]vectorstore.ScoredChunk, error)
}

// SearchResult search_bot_documents 返回的单条结果
type SearchResult struct {
	FileName   string  `json:"file_name"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}

type toolHandler struct {
	bots BotLookup
	rag  RAG
}

func NewServer(bots BotLookup, r RAG) *server.MCPServer {
	s := server.NewMCPServer(
		"bot-rag-backend",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	h := &toolHandler{bots: bots, rag: r}

	s.AddTool(mcp.NewTool(ToolAskBot,
		mcp.WithDescription("Ask a bot a question. The answer is grounded on the documents attached to the bot."),
		mcp.WithString("bot_id", mcp.Required(), mcp.Description("ID of the bot")),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question to answer")),
	), h.askBot)

	s.AddTool(mcp.NewTool(ToolSearchBotDocuments,
		mcp.WithDescription("Search the documents attached to a bot and return the most similar chunks."),
		mcp.WithString("bot_id", mcp.Required(), mcp.Description("ID of the bot")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results, default 5")),
	), h.searchBotDocuments)

	return s
}

// NewHTTPHandler 以 streamable HTTP 方式暴露工具，调用方身份来自认证中间件写入的请求上下文
func NewHTTPHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			if userID, ok := middleware.UserIDFromContext(r.Context()); ok {
				return middleware.WithUserID(ctx, userID)
			}
			return ctx
		}),
	)
}

func (h *toolHandler) askBot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, botID, err := h.resolve(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	answer := h.rag.Answer(ctx, userID, botID, question)
	return mcp.NewToolResultText(answer.Text), nil
}

func (h *toolHandler) searchBotDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, botID, err := h.resolve(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	limit := req.GetInt("limit", defaultSearchLimit)
	if limit < 1 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	chunks, err := h.rag.Retrieve(ctx, userID, botID, query, limit)
	if err != nil {
		slog.Error("failed to search bot documents", "user_id", userID, "bot_id", botID, "err", err)
		return mcp.NewToolResultError("failed to search bot documents"), nil
	}

	results := make([]SearchResult, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, SearchResult{
			FileName:   c.FileName,
			DocumentID: c.DocumentID,
			Score:      c.Score,
			Snippet:    snippet(c.Content),
		})
	}

	payload, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search results: %v", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (h *toolHandler) resolve(ctx context.Context, req mcp.CallToolRequest) (string, string, error) {
	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		return "", "", ErrUnauthenticated
	}
	botID, err := req.RequireString("bot_id")
	if err != nil {
		return "", "", err
	}
	if _, err := h.bots.Get(ctx, userID, botID); err != nil {
		return "", "", ErrBotNotFound
	}
	return userID, botID, nil
}

func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetRunes {
		return content
	}
	return string(runes[:snippetRunes]) + "..."
}
