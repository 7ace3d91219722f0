package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bot-rag-backend/config"
	"bot-rag-backend/dao"
	"bot-rag-backend/model"
	"bot-rag-backend/service/knowledge-base/chunker"
	"bot-rag-backend/service/knowledge-base/etl"
	"bot-rag-backend/service/llm"
	"bot-rag-backend/service/storage"
	"bot-rag-backend/service/vectorstore"

	"github.com/google/uuid"
)

const downloadURLTTL = 15 * time.Minute

var (
	ErrUnsupportedMediaType = etl.ErrUnsupportedMediaType
	ErrExtractionFailed     = etl.ErrExtractionFailed

	ErrEmptyPayload       = errors.New("file is empty")
	ErrPayloadTooLarge    = errors.New("file exceeds the upload size limit")
	ErrStorageWriteFailed = errors.New("failed to store file")
	ErrEmbeddingFailed    = errors.New("failed to embed document")
	ErrPersistenceFailed  = errors.New("failed to save document")

	ErrBotNotFound          = errors.New("bot not found")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrDuplicateAssociation = errors.New("document is already attached to this bot")
	ErrNoDocuments          = errors.New("no documents specified")
)

type DocumentRepository interface {
	Create(ctx context.Context, document *model.Document) error
	Get(ctx context.Context, userID, documentID string) (*model.Document, error)
	CountOwned(ctx context.Context, userID string, documentIDs []string) (int64, error)
	Delete(ctx context.Context, userID, documentID string) error
}

type AssociationRepository interface {
	Create(ctx context.Context, rows []model.BotDocument) error
	ListDocuments(ctx context.Context, userID, botID string) ([]model.Document, error)
	DeleteByDocument(ctx context.Context, userID, documentID string) error
}

type BotRepository interface {
	Get(ctx context.Context, userID, botID string) (*model.Bot, error)
}

type TextExtractor interface {
	Supports(mediaType string) bool
	Extract(ctx context.Context, data []byte, mediaType string) (string, error)
}

// CleanupQueue 接收删除失败的文件，稍后重试
type CleanupQueue interface {
	EnqueueBlobCleanup(ctx context.Context, key string) error
}

type Upload struct {
	Data      []byte
	FileName  string
	MediaType string
}

type Dependencies struct {
	Documents    DocumentRepository
	Associations AssociationRepository
	Bots         BotRepository
	Chunks       vectorstore.Store
	Blobs        storage.BlobStore
	Extractor    TextExtractor
	Chunker      chunker.Chunker
	Embedder     llm.Embedder
	Cleanup      CleanupQueue
}

// Indexer 文档索引流水线：提取文本、存储原文件、向量化、持久化、关联机器人
type Indexer struct {
	deps         Dependencies
	maxSizeBytes int64
	timeouts     config.TimeoutsConfig
}

func NewIndexer(deps Dependencies, upload config.UploadConfig, timeouts config.TimeoutsConfig) *Indexer {
	if deps.Chunker == nil {
		deps.Chunker = chunker.WholeDocument{}
	}
	return &Indexer{
		deps:         deps,
		maxSizeBytes: upload.MaxSizeBytes,
		timeouts:     timeouts,
	}
}

// IndexDocument 成功时恰好新增一个文档、其片段、一个文件和一条关联；失败时均不保留
func (ix *Indexer) IndexDocument(ctx context.Context, userID, botID string, upload Upload) (string, error) {
	mediaType := etl.NormalizeMediaType(upload.MediaType)
	if !ix.deps.Extractor.Supports(mediaType) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMediaType, upload.MediaType)
	}
	if len(upload.Data) == 0 {
		return "", ErrEmptyPayload
	}
	if ix.maxSizeBytes > 0 && int64(len(upload.Data)) > ix.maxSizeBytes {
		return "", ErrPayloadTooLarge
	}
	if err := ix.checkBot(ctx, userID, botID); err != nil {
		return "", err
	}

	text, err := ix.deps.Extractor.Extract(ctx, upload.Data, mediaType)
	if err != nil {
		return "", err
	}

	texts, err := ix.deps.Chunker.Chunk(text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	storeCtx, cancel := withTimeout(ctx, ix.timeouts.Storage)
	object, err := ix.deps.Blobs.Put(storeCtx, userID, upload.FileName, mediaType, upload.Data)
	cancel()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
	}

	embedCtx, cancel := withTimeout(ctx, ix.timeouts.Embedding)
	vectors, err := ix.deps.Embedder.EmbedDocuments(embedCtx, texts)
	cancel()
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(texts))
	}
	if err != nil {
		ix.deleteBlob(ctx, object.Key)
		return "", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	now := time.Now()
	document := &model.Document{
		ID:               uuid.New().String(),
		UserID:           userID,
		FileName:         upload.FileName,
		FileType:         mediaType,
		Content:          text,
		FileURL:          object.URL,
		FileKey:          object.Key,
		UploadDate:       now,
		FileSize:         int64(len(upload.Data)),
		ProcessingStatus: model.StatusCompleted,
	}

	dbCtx, cancel := withTimeout(ctx, ix.timeouts.Database)
	err = ix.deps.Documents.Create(dbCtx, document)
	cancel()
	if err != nil {
		ix.deleteBlob(ctx, object.Key)
		return "", fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	chunks := make([]vectorstore.Chunk, 0, len(texts))
	for i, content := range texts {
		chunks = append(chunks, vectorstore.Chunk{
			ID:         uuid.New().String(),
			UserID:     userID,
			DocumentID: document.ID,
			FileName:   upload.FileName,
			ChunkIndex: i,
			Content:    content,
			Vector:     vectors[i],
		})
	}

	dbCtx, cancel = withTimeout(ctx, ix.timeouts.Database)
	err = ix.deps.Chunks.InsertChunks(dbCtx, chunks)
	cancel()
	if err != nil {
		ix.rollback(ctx, document)
		return "", fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	dbCtx, cancel = withTimeout(ctx, ix.timeouts.Database)
	err = ix.deps.Associations.Create(dbCtx, []model.BotDocument{{
		BotID:      botID,
		DocumentID: document.ID,
		UserID:     userID,
	}})
	cancel()
	if err != nil {
		ix.rollback(ctx, document)
		return "", fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	slog.Info("document indexed",
		"user_id", userID,
		"bot_id", botID,
		"document_id", document.ID,
		"chunks", len(chunks),
	)
	return document.ID, nil
}

// RemoveDocument 依次删除文件、关联、文档记录、片段
// 每一步都按过滤条件删除，部分失败后重试是安全的；重复调用为空操作
func (ix *Indexer) RemoveDocument(ctx context.Context, userID, botID, documentID string) error {
	if err := ix.checkBot(ctx, userID, botID); err != nil {
		return err
	}

	dbCtx, cancel := withTimeout(ctx, ix.timeouts.Database)
	document, err := ix.deps.Documents.Get(dbCtx, userID, documentID)
	cancel()
	switch {
	case err == nil:
		if document.FileKey != "" {
			ix.deleteBlob(ctx, document.FileKey)
		}
	case errors.Is(err, dao.ErrNotFound):
	default:
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	dbCtx, cancel = withTimeout(ctx, ix.timeouts.Database)
	defer cancel()

	if err := ix.deps.Associations.DeleteByDocument(dbCtx, userID, documentID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	if err := ix.deps.Documents.Delete(dbCtx, userID, documentID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	if err := ix.deps.Chunks.DeleteByDocument(dbCtx, userID, documentID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	slog.Info("document removed",
		"user_id", userID,
		"bot_id", botID,
		"document_id", documentID,
	)
	return nil
}

// AttachDocuments 将用户已有的文档关联到机器人
func (ix *Indexer) AttachDocuments(ctx context.Context, userID, botID string, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return ErrNoDocuments
	}
	if err := ix.checkBot(ctx, userID, botID); err != nil {
		return err
	}

	unique := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		if unique[id] {
			return ErrDuplicateAssociation
		}
		unique[id] = true
	}

	dbCtx, cancel := withTimeout(ctx, ix.timeouts.Database)
	defer cancel()

	owned, err := ix.deps.Documents.CountOwned(dbCtx, userID, documentIDs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	if owned != int64(len(documentIDs)) {
		return ErrDocumentNotFound
	}

	rows := make([]model.BotDocument, 0, len(documentIDs))
	for _, id := range documentIDs {
		rows = append(rows, model.BotDocument{
			BotID:      botID,
			DocumentID: id,
			UserID:     userID,
		})
	}

	if err := ix.deps.Associations.Create(dbCtx, rows); err != nil {
		if errors.Is(err, dao.ErrDuplicate) {
			return ErrDuplicateAssociation
		}
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return nil
}

func (ix *Indexer) ListBotDocuments(ctx context.Context, userID, botID string) ([]model.Document, error) {
	if err := ix.checkBot(ctx, userID, botID); err != nil {
		return nil, err
	}

	dbCtx, cancel := withTimeout(ctx, ix.timeouts.Database)
	defer cancel()
	return ix.deps.Associations.ListDocuments(dbCtx, userID, botID)
}

// DownloadURL 返回原文件的临时下载链接
func (ix *Indexer) DownloadURL(ctx context.Context, userID, documentID string) (string, error) {
	dbCtx, cancel := withTimeout(ctx, ix.timeouts.Database)
	document, err := ix.deps.Documents.Get(dbCtx, userID, documentID)
	cancel()
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return "", ErrDocumentNotFound
		}
		return "", err
	}

	storeCtx, cancel := withTimeout(ctx, ix.timeouts.Storage)
	defer cancel()
	return ix.deps.Blobs.PresignURL(storeCtx, document.FileKey, downloadURLTTL)
}

func (ix *Indexer) checkBot(ctx context.Context, userID, botID string) error {
	dbCtx, cancel := withTimeout(ctx, ix.timeouts.Database)
	defer cancel()

	if _, err := ix.deps.Bots.Get(dbCtx, userID, botID); err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return ErrBotNotFound
		}
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	return nil
}

// rollback 撤销已写入的片段、文档记录和文件
func (ix *Indexer) rollback(ctx context.Context, document *model.Document) {
	ctx, cancel := withTimeout(context.WithoutCancel(ctx), ix.timeouts.Database)
	defer cancel()

	if err := ix.deps.Chunks.DeleteByDocument(ctx, document.UserID, document.ID); err != nil {
		slog.Error("failed to roll back chunks", "document_id", document.ID, "err", err)
	}
	if err := ix.deps.Associations.DeleteByDocument(ctx, document.UserID, document.ID); err != nil {
		slog.Error("failed to roll back associations", "document_id", document.ID, "err", err)
	}
	if err := ix.deps.Documents.Delete(ctx, document.UserID, document.ID); err != nil {
		slog.Error("failed to roll back document", "document_id", document.ID, "err", err)
	}
	ix.deleteBlob(ctx, document.FileKey)
}

// deleteBlob 删除失败时记录日志并交给清理队列
func (ix *Indexer) deleteBlob(ctx context.Context, key string) {
	ctx, cancel := withTimeout(context.WithoutCancel(ctx), ix.timeouts.Storage)
	defer cancel()

	err := ix.deps.Blobs.Delete(ctx, key)
	if err == nil {
		return
	}
	slog.Error("failed to delete blob", "key", key, "err", err)

	if ix.deps.Cleanup == nil {
		return
	}
	if err := ix.deps.Cleanup.EnqueueBlobCleanup(ctx, key); err != nil {
		slog.Error("failed to enqueue blob cleanup", "key", key, "err", err)
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
