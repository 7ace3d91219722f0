package knowledgebase

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"bot-rag-backend/config"
	"bot-rag-backend/dao"
	"bot-rag-backend/model"
	"bot-rag-backend/service/knowledge-base/etl"
	"bot-rag-backend/service/rag"
	"bot-rag-backend/service/storage"
	"bot-rag-backend/service/vectorstore"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// --- Mock implementations ---

type memoryBlobStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	putErr    error
	deleteErr error
	deletes   int
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{objects: make(map[string][]byte)}
}

func (m *memoryBlobStore) Put(_ context.Context, userID, fileName, _ string, data []byte) (storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return storage.Object{}, m.putErr
	}
	key := storage.ObjectKey(userID, fileName)
	m.objects[key] = data
	return storage.Object{URL: storage.PublicURL("https://cdn.example.com", key), Key: key}, nil
}

func (m *memoryBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

func (m *memoryBlobStore) PresignURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://cdn.example.com/" + key + "?signature=x", nil
}

func (m *memoryBlobStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// hashEmbedder 词袋哈希向量，相同词得到相近向量
type hashEmbedder struct {
	err   error
	calls int
}

const hashDim = 64

func (h *hashEmbedder) embed(text string) []float32 {
	vector := make([]float32, hashDim)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		f := fnv.New32a()
		f.Write([]byte(word))
		vector[f.Sum32()%hashDim]++
	}
	return vector
}

func (h *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	return h.embed(text), nil
}

func (h *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vectors = append(vectors, h.embed(text))
	}
	return vectors, nil
}

// echoCompleter 原样返回用户输入，其中包含检索到的上下文
type echoCompleter struct {
	calls int
}

func (e *echoCompleter) Complete(_ context.Context, _, userPrompt string) (string, error) {
	e.calls++
	return userPrompt, nil
}

type failingChunkStore struct {
	vectorstore.Store
	insertErr error
}

func (f *failingChunkStore) InsertChunks(ctx context.Context, chunks []vectorstore.Chunk) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.Store.InsertChunks(ctx, chunks)
}

type failingAssociations struct {
	AssociationRepository
	createErr error
}

func (f *failingAssociations) Create(ctx context.Context, rows []model.BotDocument) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.AssociationRepository.Create(ctx, rows)
}

type recordingCleanup struct {
	keys []string
}

func (r *recordingCleanup) EnqueueBlobCleanup(_ context.Context, key string) error {
	r.keys = append(r.keys, key)
	return nil
}

// --- Fixture ---

type fixture struct {
	db           *gorm.DB
	blobs        *memoryBlobStore
	embedder     *hashEmbedder
	cleanup      *recordingCleanup
	associations *dao.BotDocumentDAO
	chunks       *dao.EmbeddingDAO
	deps         Dependencies
	indexer      *Indexer
	userID       string
	botID        string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := dao.Open(sqlite.Open("file:" + uuid.New().String() + "?mode=memory&cache=shared"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	f := &fixture{
		db:           db,
		blobs:        newMemoryBlobStore(),
		embedder:     &hashEmbedder{},
		cleanup:      &recordingCleanup{},
		associations: dao.NewBotDocumentDAO(db),
		chunks:       dao.NewEmbeddingDAO(db),
		userID:       uuid.New().String(),
	}
	f.botID = f.createBot(t, f.userID)

	f.deps = Dependencies{
		Documents:    dao.NewDocumentDAO(db),
		Associations: f.associations,
		Bots:         dao.NewBotDAO(db),
		Chunks:       f.chunks,
		Blobs:        f.blobs,
		Extractor:    etl.NewExtractor(time.Second),
		Embedder:     f.embedder,
		Cleanup:      f.cleanup,
	}
	f.rebuild()
	return f
}

func (f *fixture) rebuild() {
	f.indexer = NewIndexer(f.deps, config.Default().Upload, config.Default().Timeouts)
}

func (f *fixture) createBot(t *testing.T, userID string) string {
	t.Helper()
	bot := &model.Bot{ID: uuid.New().String(), UserID: userID, Name: "support"}
	require.NoError(t, dao.NewBotDAO(f.db).CreateWithinQuota(context.Background(), bot, 2))
	return bot.ID
}

func (f *fixture) count(t *testing.T, value any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(value).Count(&n).Error)
	return n
}

func (f *fixture) assertEmpty(t *testing.T) {
	t.Helper()
	assert.Zero(t, f.count(t, &model.Document{}), "documents")
	assert.Zero(t, f.count(t, &model.EmbeddingChunk{}), "chunks")
	assert.Zero(t, f.count(t, &model.BotDocument{}), "associations")
	assert.Zero(t, f.blobs.count(), "blobs")
}

func textUpload(content string) Upload {
	return Upload{Data: []byte(content), FileName: "policy.txt", MediaType: model.MediaTypeText}
}

// --- Tests ---

func TestIndexDocument_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	documentID, err := f.indexer.IndexDocument(ctx, f.userID, f.botID, textUpload("refund policy: 30 days"))
	require.NoError(t, err)
	assert.NotEmpty(t, documentID)

	document, err := f.deps.Documents.Get(ctx, f.userID, documentID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, document.ProcessingStatus)
	assert.Equal(t, "refund policy: 30 days", document.Content)
	assert.Equal(t, int64(22), document.FileSize)
	assert.True(t, strings.HasPrefix(document.FileKey, "uploads/"+f.userID+"/"))

	assert.Equal(t, int64(1), f.count(t, &model.EmbeddingChunk{}))
	assert.Equal(t, int64(1), f.count(t, &model.BotDocument{}))
	assert.Equal(t, 1, f.blobs.count())

	docs, err := f.indexer.ListBotDocuments(ctx, f.userID, f.botID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, documentID, docs[0].ID)

	url, err := f.indexer.DownloadURL(ctx, f.userID, documentID)
	require.NoError(t, err)
	assert.Contains(t, url, document.FileKey)
}

func TestIndexDocument_ValidationHappensBeforeSideEffects(t *testing.T) {
	f := newFixture(t)
	otherBot := f.createBot(t, uuid.New().String())

	tests := []struct {
		name   string
		botID  string
		upload Upload
		want   error
	}{
		{"unsupported type", f.botID, Upload{Data: []byte("x"), FileName: "a.png", MediaType: "image/png"}, ErrUnsupportedMediaType},
		{"markdown", f.botID, Upload{Data: []byte("# refund policy: 30 days"), FileName: "policy.md", MediaType: "text/markdown"}, ErrUnsupportedMediaType},
		{"empty payload", f.botID, Upload{FileName: "a.txt", MediaType: model.MediaTypeText}, ErrEmptyPayload},
		{"too large", f.botID, Upload{Data: make([]byte, 5*1024*1024+1), FileName: "a.txt", MediaType: model.MediaTypeText}, ErrPayloadTooLarge},
		{"other tenant bot", otherBot, textUpload("refund policy"), ErrBotNotFound},
		{"missing bot", "missing", textUpload("refund policy"), ErrBotNotFound},
		{"no text", f.botID, textUpload("   \n  "), ErrExtractionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.indexer.IndexDocument(context.Background(), f.userID, tt.botID, tt.upload)
			assert.ErrorIs(t, err, tt.want)
			f.assertEmpty(t)
		})
	}
	assert.Zero(t, f.embedder.calls)
}

func TestIndexDocument_StorageFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.blobs.putErr = errors.New("bucket unavailable")

	_, err := f.indexer.IndexDocument(context.Background(), f.userID, f.botID, textUpload("refund policy: 30 days"))
	assert.ErrorIs(t, err, ErrStorageWriteFailed)
	assert.NotContains(t, err.Error(), "refund policy")
	f.assertEmpty(t)
}

func TestIndexDocument_EmbeddingFailureDeletesBlob(t *testing.T) {
	f := newFixture(t)
	f.embedder.err = errors.New("embedding service down")

	_, err := f.indexer.IndexDocument(context.Background(), f.userID, f.botID, textUpload("refund policy: 30 days"))
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Equal(t, 1, f.blobs.deletes)
	f.assertEmpty(t)
}

func TestIndexDocument_ChunkInsertFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.deps.Chunks = &failingChunkStore{Store: f.chunks, insertErr: errors.New("disk full")}
	f.rebuild()

	_, err := f.indexer.IndexDocument(context.Background(), f.userID, f.botID, textUpload("refund policy: 30 days"))
	assert.ErrorIs(t, err, ErrPersistenceFailed)
	f.assertEmpty(t)
}

func TestIndexDocument_AssociationFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.deps.Associations = &failingAssociations{AssociationRepository: f.associations, createErr: errors.New("deadlock")}
	f.rebuild()

	_, err := f.indexer.IndexDocument(context.Background(), f.userID, f.botID, textUpload("refund policy: 30 days"))
	assert.ErrorIs(t, err, ErrPersistenceFailed)
	f.assertEmpty(t)
}

func TestIndexDocument_FailedCompensationIsQueued(t *testing.T) {
	f := newFixture(t)
	f.embedder.err = errors.New("embedding service down")
	f.blobs.deleteErr = errors.New("network error")

	_, err := f.indexer.IndexDocument(context.Background(), f.userID, f.botID, textUpload("refund policy: 30 days"))
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	require.Len(t, f.cleanup.keys, 1)
	assert.True(t, strings.HasPrefix(f.cleanup.keys[0], "uploads/"+f.userID+"/"))
}

func TestRemoveDocument_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	documentID, err := f.indexer.IndexDocument(ctx, f.userID, f.botID, textUpload("refund policy: 30 days"))
	require.NoError(t, err)

	require.NoError(t, f.indexer.RemoveDocument(ctx, f.userID, f.botID, documentID))
	f.assertEmpty(t)

	require.NoError(t, f.indexer.RemoveDocument(ctx, f.userID, f.botID, documentID))
	f.assertEmpty(t)
}

func TestRemoveDocument_BlobFailureDoesNotBlockDatabaseCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	documentID, err := f.indexer.IndexDocument(ctx, f.userID, f.botID, textUpload("refund policy: 30 days"))
	require.NoError(t, err)

	f.blobs.deleteErr = errors.New("network error")
	require.NoError(t, f.indexer.RemoveDocument(ctx, f.userID, f.botID, documentID))

	assert.Zero(t, f.count(t, &model.Document{}))
	assert.Zero(t, f.count(t, &model.EmbeddingChunk{}))
	assert.Zero(t, f.count(t, &model.BotDocument{}))
	assert.Len(t, f.cleanup.keys, 1)
}

func TestRemoveDocument_OtherTenantCannotRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	documentID, err := f.indexer.IndexDocument(ctx, f.userID, f.botID, textUpload("refund policy: 30 days"))
	require.NoError(t, err)

	intruder := uuid.New().String()
	intruderBot := f.createBot(t, intruder)
	require.NoError(t, f.indexer.RemoveDocument(ctx, intruder, intruderBot, documentID))

	assert.Equal(t, int64(1), f.count(t, &model.Document{}))
	assert.Equal(t, 1, f.blobs.count())

	err = f.indexer.RemoveDocument(ctx, intruder, f.botID, documentID)
	assert.ErrorIs(t, err, ErrBotNotFound)
}

func TestAttachDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	documentID, err := f.indexer.IndexDocument(ctx, f.userID, f.botID, textUpload("refund policy: 30 days"))
	require.NoError(t, err)
	secondBot := f.createBot(t, f.userID)

	require.NoError(t, f.indexer.AttachDocuments(ctx, f.userID, secondBot, []string{documentID}))
	assert.ErrorIs(t, f.indexer.AttachDocuments(ctx, f.userID, secondBot, []string{documentID}), ErrDuplicateAssociation)
	assert.ErrorIs(t, f.indexer.AttachDocuments(ctx, f.userID, secondBot, nil), ErrNoDocuments)

	intruder := uuid.New().String()
	intruderBot := f.createBot(t, intruder)
	assert.ErrorIs(t, f.indexer.AttachDocuments(ctx, intruder, intruderBot, []string{documentID}), ErrDocumentNotFound)
	assert.ErrorIs(t, f.indexer.AttachDocuments(ctx, intruder, f.botID, []string{documentID}), ErrBotNotFound)

	ids, err := f.associations.DocumentIDsForBot(ctx, intruder, intruderBot)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEndToEnd_IndexAnswerRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	completer := &echoCompleter{}
	answers := rag.NewService(f.associations, f.chunks, f.embedder, completer, config.Default().RAG, config.Default().Timeouts)

	documentID, err := f.indexer.IndexDocument(ctx, f.userID, f.botID, textUpload("refund policy: 30 days"))
	require.NoError(t, err)

	got := answers.Answer(ctx, f.userID, f.botID, "what is the refund window?")
	assert.Contains(t, got.Text, "30 days")

	otherUser := uuid.New().String()
	otherBot := f.createBot(t, otherUser)
	got = answers.Answer(ctx, otherUser, otherBot, "what is the refund window?")
	assert.NotContains(t, got.Text, "30 days")

	require.NoError(t, f.indexer.RemoveDocument(ctx, f.userID, f.botID, documentID))

	calls := completer.calls
	got = answers.Answer(ctx, f.userID, f.botID, "what is the refund window?")
	assert.Equal(t, rag.TemplatesFor(rag.LanguageIndonesian).NoDocuments, got.Text)
	assert.Equal(t, calls, completer.calls)
}
