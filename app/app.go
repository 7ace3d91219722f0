package app

import (
	"context"
	"log/slog"

	"bot-rag-backend/config"
	"bot-rag-backend/controller"
	"bot-rag-backend/dao"
	"bot-rag-backend/router"
	"bot-rag-backend/service/auth"
	"bot-rag-backend/service/bot"
	knowledgebase "bot-rag-backend/service/knowledge-base"
	"bot-rag-backend/service/knowledge-base/chunker"
	"bot-rag-backend/service/knowledge-base/etl"
	"bot-rag-backend/service/llm"
	"bot-rag-backend/service/mcpserver"
	"bot-rag-backend/service/mq"
	"bot-rag-backend/service/rag"
	"bot-rag-backend/service/session"
	"bot-rag-backend/service/storage"
	"bot-rag-backend/service/vectorstore"
	"bot-rag-backend/service/vectorstore/milvus"
	"bot-rag-backend/utils"
)

// App 服务端和管理命令共用的服务组装
type App struct {
	cfg *config.Config

	Users    *dao.UserDAO
	Auth     *auth.Service
	Bots     *bot.Service
	Indexer  *knowledgebase.Indexer
	RAG      *rag.Service
	Sessions *session.Manager

	closers []func()
}

// New 初始化数据库、对象存储、模型客户端、片段存储和清理队列
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	if err := dao.Init(cfg.MySQL.DSN); err != nil {
		return nil, err
	}

	blobs, err := storage.NewOSSStore(cfg.OSS)
	if err != nil {
		return nil, err
	}

	httpClient := utils.NewHTTPClient(utils.WithTimeout(cfg.Timeouts.Completion))
	embedder, err := llm.NewOpenAIEmbedder(cfg.Model, httpClient)
	if err != nil {
		return nil, err
	}
	completer, err := llm.NewOpenAICompleter(cfg.Model, httpClient)
	if err != nil {
		return nil, err
	}

	chunks, err := a.newChunkStore(ctx)
	if err != nil {
		return nil, err
	}

	cleanup, err := a.newCleanupQueue(blobs)
	if err != nil {
		a.Close()
		return nil, err
	}

	textChunker, err := chunker.New(cfg.Chunking)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Users = dao.NewUserDAO(dao.DB)
	bots := dao.NewBotDAO(dao.DB)
	associations := dao.NewBotDocumentDAO(dao.DB)

	a.Auth = auth.NewService(a.Users, cfg.Bots.DefaultMaxBots)
	a.RAG = rag.NewService(associations, chunks, embedder, completer, cfg.RAG, cfg.Timeouts)
	a.Sessions = session.NewManager(a.RAG, bots)
	a.closers = append(a.closers, a.Sessions.Shutdown)
	a.Bots = bot.NewService(bots, a.Sessions, cfg.Bots.DefaultMaxBots, cfg.Timeouts.Database)
	a.Indexer = knowledgebase.NewIndexer(knowledgebase.Dependencies{
		Documents:    dao.NewDocumentDAO(dao.DB),
		Associations: associations,
		Bots:         bots,
		Chunks:       chunks,
		Blobs:        blobs,
		Extractor:    etl.NewExtractor(cfg.Timeouts.Extraction),
		Chunker:      textChunker,
		Embedder:     embedder,
		Cleanup:      cleanup,
	}, cfg.Upload, cfg.Timeouts)

	return a, nil
}

func (a *App) Handlers() router.Handlers {
	handlers := router.Handlers{
		Auth:     controller.NewAuthHandler(a.Auth),
		Bot:      controller.NewBotHandler(a.Bots),
		Document: controller.NewDocumentHandler(a.Indexer, a.cfg.Upload.MaxSizeBytes),
		Chat:     controller.NewChatHandler(a.Bots, a.RAG),
		Session:  controller.NewSessionHandler(a.Sessions),
	}
	if a.cfg.MCP.Enabled {
		handlers.MCP = mcpserver.NewHTTPHandler(mcpserver.NewServer(a.Bots, a.RAG))
	}
	return handlers
}

// Close 按初始化的逆序释放资源
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// newChunkStore 按配置选择片段存储，mysql 为默认
func (a *App) newChunkStore(ctx context.Context) (vectorstore.Store, error) {
	if a.cfg.VectorStore.Backend != "milvus" {
		return dao.NewEmbeddingDAO(dao.DB), nil
	}

	store, err := milvus.New(ctx, a.cfg.Milvus, a.cfg.Model.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := store.Close(context.Background()); err != nil {
			slog.Warn("Failed to close milvus client", "err", err)
		}
	})
	return store, nil
}

// newCleanupQueue 未启用 MQ 时只记录日志
func (a *App) newCleanupQueue(blobs mq.BlobDeleter) (knowledgebase.CleanupQueue, error) {
	if !a.cfg.MQ.Enabled {
		return mq.LogQueue{}, nil
	}

	client, err := mq.New(a.cfg.MQ, blobs)
	if err != nil {
		return nil, err
	}
	if err := client.Run(); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Shutdown)
	return client, nil
}
