package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bot-rag-backend/config"
	"bot-rag-backend/service/llm"
	"bot-rag-backend/service/vectorstore"
)

const DefaultTopK = 3

type AssociationReader interface {
	DocumentIDsForBot(ctx context.Context, userID, botID string) ([]string, error)
}

type Answer struct {
	Text string `json:"text"`
}

type Service struct {
	associations AssociationReader
	chunks       vectorstore.Store
	embedder     llm.Embedder
	completer    llm.Completer
	topK         int
	templates    Templates
	timeouts     config.TimeoutsConfig
}

func NewService(
	associations AssociationReader,
	chunks vectorstore.Store,
	embedder llm.Embedder,
	completer llm.Completer,
	cfg config.RAGConfig,
	timeouts config.TimeoutsConfig,
) *Service {
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{
		associations: associations,
		chunks:       chunks,
		embedder:     embedder,
		completer:    completer,
		topK:         topK,
		templates:    TemplatesFor(cfg.Language),
		timeouts:     timeouts,
	}
}

// Answer 根据机器人关联的文档回答问题，任何内部错误都转为固定的致歉文案
func (s *Service) Answer(ctx context.Context, userID, botID, query string) Answer {
	documentIDs, err := s.documentIDs(ctx, userID, botID)
	if err != nil {
		s.logFailure("failed to resolve bot documents", userID, botID, err)
		return Answer{Text: s.templates.Apology}
	}
	if len(documentIDs) == 0 {
		return Answer{Text: s.templates.NoDocuments}
	}

	ranked, err := s.rank(ctx, userID, documentIDs, query, s.topK)
	if err != nil {
		s.logFailure("failed to retrieve context", userID, botID, err)
		return Answer{Text: s.templates.Apology}
	}

	contents := make([]string, 0, len(ranked))
	for _, chunk := range ranked {
		contents = append(contents, chunk.Content)
	}

	completeCtx, cancel := withTimeout(ctx, s.timeouts.Completion)
	defer cancel()
	text, err := s.completer.Complete(completeCtx, s.templates.System, s.templates.userPrompt(strings.Join(contents, "\n\n"), query))
	if err != nil {
		s.logFailure("failed to call completion model", userID, botID, err)
		return Answer{Text: s.templates.Apology}
	}

	return Answer{Text: text}
}

// Retrieve 返回与问题最相关的 k 个片段
func (s *Service) Retrieve(ctx context.Context, userID, botID, query string, k int) ([]vectorstore.ScoredChunk, error) {
	if k <= 0 {
		k = s.topK
	}
	documentIDs, err := s.documentIDs(ctx, userID, botID)
	if err != nil {
		return nil, err
	}
	if len(documentIDs) == 0 {
		return nil, nil
	}
	return s.rank(ctx, userID, documentIDs, query, k)
}

func (s *Service) documentIDs(ctx context.Context, userID, botID string) ([]string, error) {
	dbCtx, cancel := withTimeout(ctx, s.timeouts.Database)
	defer cancel()
	return s.associations.DocumentIDsForBot(dbCtx, userID, botID)
}

func (s *Service) rank(ctx context.Context, userID string, documentIDs []string, query string, k int) ([]vectorstore.ScoredChunk, error) {
	embedCtx, cancel := withTimeout(ctx, s.timeouts.Embedding)
	queryVector, err := s.embedder.EmbedQuery(embedCtx, query)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	dbCtx, cancel := withTimeout(ctx, s.timeouts.Database)
	chunks, err := s.chunks.FindByDocuments(dbCtx, userID, documentIDs)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	// 按用户再过滤一次
	owned := make([]vectorstore.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.UserID == userID {
			owned = append(owned, chunk)
		}
	}

	return vectorstore.TopK(queryVector, owned, k)
}

// 只记录错误，不记录问题原文、向量和提示词
func (s *Service) logFailure(msg, userID, botID string, err error) {
	slog.Error(msg,
		"user_id", userID,
		"bot_id", botID,
		"err", err,
	)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
