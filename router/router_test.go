package router

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bot-rag-backend/config"
	"bot-rag-backend/controller"
	"bot-rag-backend/dao"
	"bot-rag-backend/middleware"
	"bot-rag-backend/service/auth"
	"bot-rag-backend/service/bot"
	knowledgebase "bot-rag-backend/service/knowledge-base"
	"bot-rag-backend/service/knowledge-base/chunker"
	"bot-rag-backend/service/knowledge-base/etl"
	"bot-rag-backend/service/mcpserver"
	"bot-rag-backend/service/mq"
	"bot-rag-backend/service/rag"
	"bot-rag-backend/service/session"
	"bot-rag-backend/service/storage"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryBlobStore) Put(_ context.Context, userID, fileName, _ string, data []byte) (storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := storage.ObjectKey(userID, fileName)
	m.objects[key] = data
	return storage.Object{URL: storage.PublicURL("https://cdn.example.com", key), Key: key}, nil
}

func (m *memoryBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryBlobStore) PresignURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://cdn.example.com/" + key + "?signature=x", nil
}

// keywordEmbedder 按关键词出现与否生成向量
type keywordEmbedder struct{}

var keywords = []string{"refund", "shipping", "hours"}

func (keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, len(keywords))
	for i, k := range keywords {
		if strings.Contains(strings.ToLower(text), k) {
			vector[i] = 1
		}
	}
	return vector, nil
}

func (e keywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, _ := e.EmbedQuery(ctx, text)
		vectors = append(vectors, v)
	}
	return vectors, nil
}

// contextCompleter 把检索到的上下文原样返回
type contextCompleter struct{}

func (contextCompleter) Complete(_ context.Context, _, userPrompt string) (string, error) {
	return userPrompt, nil
}

type envelope struct {
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	previous := config.Cfg
	cfg := config.Default()
	cfg.JWT.SecretKey = "router-test-secret"
	config.Cfg = cfg
	t.Cleanup(func() { config.Cfg = previous })

	db, err := dao.Open(sqlite.Open("file:" + uuid.New().String() + "?mode=memory&cache=shared"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	users := dao.NewUserDAO(db)
	bots := dao.NewBotDAO(db)
	associations := dao.NewBotDocumentDAO(db)
	chunks := dao.NewEmbeddingDAO(db)

	ragService := rag.NewService(associations, chunks, keywordEmbedder{}, contextCompleter{}, cfg.RAG, cfg.Timeouts)
	sessions := session.NewManager(ragService, bots)
	t.Cleanup(sessions.Shutdown)
	botService := bot.NewService(bots, sessions, cfg.Bots.DefaultMaxBots, cfg.Timeouts.Database)
	indexer := knowledgebase.NewIndexer(knowledgebase.Dependencies{
		Documents:    dao.NewDocumentDAO(db),
		Associations: associations,
		Bots:         bots,
		Chunks:       chunks,
		Blobs:        &memoryBlobStore{objects: make(map[string][]byte)},
		Extractor:    etl.NewExtractor(cfg.Timeouts.Extraction),
		Chunker:      chunker.WholeDocument{},
		Embedder:     keywordEmbedder{},
		Cleanup:      mq.LogQueue{},
	}, cfg.Upload, cfg.Timeouts)

	engine := Register(Handlers{
		Auth:     controller.NewAuthHandler(auth.NewService(users, cfg.Bots.DefaultMaxBots)),
		Bot:      controller.NewBotHandler(botService),
		Document: controller.NewDocumentHandler(indexer, cfg.Upload.MaxSizeBytes),
		Chat:     controller.NewChatHandler(botService, ragService),
		Session:  controller.NewSessionHandler(sessions),
		MCP:      mcpserver.NewHTTPHandler(mcpserver.NewServer(botService, ragService)),
	})
	return &testServer{t: t, engine: engine}
}

func (s *testServer) do(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return s.serve(req, token)
}

func (s *testServer) upload(path, token, fileName string, content []byte) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(s.t, err)
	_, err = part.Write(content)
	require.NoError(s.t, err)
	require.NoError(s.t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return s.serve(req, token)
}

func (s *testServer) serve(req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (s *testServer) register(email string) string {
	s.t.Helper()
	w, env := s.do(http.MethodPost, "/api/user/register", "", map[string]string{
		"email":    email,
		"password": "correct-horse",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &data))
	return data.Token
}

func (s *testServer) createBot(token, name string) string {
	s.t.Helper()
	w, env := s.do(http.MethodPost, "/api/bots", token, map[string]string{"name": name})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	var data struct {
		ID string `json:"id"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &data))
	return data.ID
}

func TestEndToEnd_UploadChatRemove(t *testing.T) {
	s := newTestServer(t)
	token := s.register("owner@example.com")
	botID := s.createBot(token, "support")

	w, env := s.upload("/api/bots/"+botID+"/documents/upload", token, "policy.txt",
		[]byte("Refund policy: refunds within 30 days."))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var uploaded struct {
		DocumentID string `json:"document_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &uploaded))
	require.NotEmpty(t, uploaded.DocumentID)

	w, env = s.do(http.MethodGet, "/api/bots/"+botID+"/documents", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "policy.txt")

	w, env = s.do(http.MethodPost, "/api/bots/"+botID+"/chat", token, map[string]string{"message": "What is the refund policy?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "refunds within 30 days")

	w, env = s.do(http.MethodGet, "/api/documents/"+uploaded.DocumentID+"/download-link", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "signature=x")

	w, _ = s.do(http.MethodDelete, "/api/bots/"+botID+"/documents/"+uploaded.DocumentID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(http.MethodDelete, "/api/bots/"+botID+"/documents/"+uploaded.DocumentID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(http.MethodPost, "/api/bots/"+botID+"/chat", token, map[string]string{"message": "What is the refund policy?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), rag.TemplatesFor(rag.LanguageIndonesian).NoDocuments)
}

func TestBotQuotaAndTenantIsolation(t *testing.T) {
	s := newTestServer(t)
	owner := s.register("owner@example.com")
	other := s.register("other@example.com")

	first := s.createBot(owner, "first")
	s.createBot(owner, "second")

	w, env := s.do(http.MethodPost, "/api/bots", owner, map[string]string{"name": "third"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, env.Msg, "Maximum number of bots (2) reached")

	w, _ = s.do(http.MethodDelete, "/api/bots/"+first, other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(http.MethodGet, "/api/bots/"+first+"/documents", other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(http.MethodDelete, "/api/bots/"+first, owner, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	s.createBot(owner, "replacement")
}

func TestUploadValidation(t *testing.T) {
	s := newTestServer(t)
	token := s.register("owner@example.com")
	botID := s.createBot(token, "support")
	path := "/api/bots/" + botID + "/documents/upload"

	w, _ := s.upload(path, token, "image.png", []byte{0x89, 'P', 'N', 'G'})
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w, _ = s.upload(path, token, "notes.md", []byte("# refund policy: 30 days"))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w, _ = s.upload(path, token, "empty.txt", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.upload(path, token, "big.txt", bytes.Repeat([]byte("a"), int(config.Cfg.Upload.MaxSizeBytes)+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w, _ = s.do(http.MethodGet, "/api/bots/"+botID+"/documents", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(http.MethodGet, "/api/bots", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(http.MethodGet, "/api/bots", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(http.MethodPost, "/api/mcp", "", map[string]any{"jsonrpc": "2.0", "id": 1, "method": "tools/list"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(http.MethodPost, "/api/user/login", "", map[string]string{"email": "nobody@example.com", "password": "correct-horse"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyUser(t *testing.T) {
	s := newTestServer(t)
	token := s.register("owner@example.com")

	w, env := s.do(http.MethodGet, "/api/user/verify", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "owner@example.com", data.User.Email)
	assert.NotEmpty(t, data.User.ID)

	ghost, err := middleware.GenerateToken(uuid.New().String(), "ghost@example.com")
	require.NoError(t, err)
	w, _ = s.do(http.MethodGet, "/api/user/verify", ghost, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(http.MethodGet, "/api/user/verify", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInitializeAndStatus(t *testing.T) {
	s := newTestServer(t)
	token := s.register("owner@example.com")
	botID := s.createBot(token, "support")

	w, env := s.do(http.MethodPost, "/api/bots/"+botID+"/initialize", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "code")

	w, env = s.do(http.MethodGet, "/api/bots/"+botID+"/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"connected":false,"pending":true}`, string(env.Data))

	w, _ = s.do(http.MethodPost, "/api/bots/"+botID+"/disconnect", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodGet, "/api/connect?code=unknown", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
