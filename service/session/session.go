package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"bot-rag-backend/service/rag"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultPairingTTL = 5 * time.Minute
	writeTimeout      = 10 * time.Second
	maxMessageBytes   = 16 * 1024
)

var (
	ErrInvalidPairingCode = errors.New("invalid or expired pairing code")
	ErrAlreadyConnected   = errors.New("bot already has an active session")
)

// PairingChallenge 聊天端凭 Code 连接 /api/connect 完成配对
type PairingChallenge struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ActiveState struct {
	Connected bool `json:"connected"`
	Pending   bool `json:"pending"`
}

type Answerer interface {
	Answer(ctx context.Context, userID, botID, query string) rag.Answer
}

// BotActivity 更新机器人的在线状态
type BotActivity interface {
	SetActive(ctx context.Context, userID, botID string, active bool) error
	Touch(ctx context.Context, userID, botID string) error
}

type pairing struct {
	userID    string
	botID     string
	expiresAt time.Time
}

type connection struct {
	conn   *websocket.Conn
	userID string
	botID  string
}

// Manager 维护机器人与聊天端之间的 websocket 会话，注册表只在本包内部访问
type Manager struct {
	answerer   Answerer
	activity   BotActivity
	pairingTTL time.Duration
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	pending  map[string]pairing
	sessions map[string]*connection
}

func NewManager(answerer Answerer, activity BotActivity) *Manager {
	return &Manager{
		answerer:   answerer,
		activity:   activity,
		pairingTTL: defaultPairingTTL,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// 配对码即凭证，不限制来源
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pending:  make(map[string]pairing),
		sessions: make(map[string]*connection),
	}
}

func sessionKey(userID, botID string) string {
	return userID + "/" + botID
}

// Initialize 生成一次性配对码，同一机器人之前未使用的配对码失效
func (m *Manager) Initialize(ctx context.Context, userID, botID string) (PairingChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := sessionKey(userID, botID)
	if _, ok := m.sessions[key]; ok {
		return PairingChallenge{}, ErrAlreadyConnected
	}
	m.dropPendingLocked(key)

	challenge := PairingChallenge{
		Code:      uuid.New().String(),
		ExpiresAt: time.Now().Add(m.pairingTTL),
	}
	m.pending[challenge.Code] = pairing{
		userID:    userID,
		botID:     botID,
		expiresAt: challenge.ExpiresAt,
	}
	return challenge, nil
}

// Connect 校验配对码并升级为 websocket，之后每条文本消息都交给 RAG 回答
func (m *Manager) Connect(w http.ResponseWriter, r *http.Request, code string) error {
	m.mu.Lock()
	p, ok := m.pending[code]
	if ok {
		delete(m.pending, code)
	}
	m.mu.Unlock()
	if !ok || time.Now().After(p.expiresAt) {
		return ErrInvalidPairingCode
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(maxMessageBytes)

	c := &connection{conn: conn, userID: p.userID, botID: p.botID}
	key := sessionKey(p.userID, p.botID)

	m.mu.Lock()
	if old, ok := m.sessions[key]; ok {
		old.conn.Close()
	}
	m.sessions[key] = c
	m.mu.Unlock()

	if err := m.activity.SetActive(context.Background(), p.userID, p.botID, true); err != nil {
		slog.Error("failed to mark bot active", "bot_id", p.botID, "err", err)
	}
	slog.Info("bot session connected", "user_id", p.userID, "bot_id", p.botID)

	go m.serve(c, p.userID, p.botID)
	return nil
}

func (m *Manager) serve(c *connection, userID, botID string) {
	defer func() {
		c.conn.Close()

		m.mu.Lock()
		current := m.sessions[sessionKey(userID, botID)] == c
		if current {
			delete(m.sessions, sessionKey(userID, botID))
		}
		m.mu.Unlock()

		if current {
			if err := m.activity.SetActive(context.Background(), userID, botID, false); err != nil {
				slog.Error("failed to mark bot inactive", "bot_id", botID, "err", err)
			}
		}
		slog.Info("bot session closed", "user_id", userID, "bot_id", botID)
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("bot session read failed", "bot_id", botID, "err", err)
			}
			return
		}
		if messageType != websocket.TextMessage || len(data) == 0 {
			continue
		}

		answer := m.answerer.Answer(context.Background(), userID, botID, string(data))
		if err := m.activity.Touch(context.Background(), userID, botID); err != nil {
			slog.Warn("failed to update bot last active", "bot_id", botID, "err", err)
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(answer); err != nil {
			slog.Warn("bot session write failed", "bot_id", botID, "err", err)
			return
		}
	}
}

// Disconnect 关闭会话并使未使用的配对码失效，没有会话时为空操作
func (m *Manager) Disconnect(ctx context.Context, userID, botID string) error {
	key := sessionKey(userID, botID)

	m.mu.Lock()
	m.dropPendingLocked(key)
	c, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if ok {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnected"),
			time.Now().Add(time.Second))
		c.conn.Close()
	}
	return m.activity.SetActive(ctx, userID, botID, false)
}

func (m *Manager) Status(ctx context.Context, userID, botID string) ActiveState {
	key := sessionKey(userID, botID)

	m.mu.Lock()
	defer m.mu.Unlock()

	_, connected := m.sessions[key]
	pending := false
	for _, p := range m.pending {
		if sessionKey(p.userID, p.botID) == key && time.Now().Before(p.expiresAt) {
			pending = true
			break
		}
	}
	return ActiveState{Connected: connected, Pending: pending}
}

// Shutdown 关闭所有会话
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*connection)
	m.pending = make(map[string]pairing)
	m.mu.Unlock()

	for _, c := range sessions {
		c.conn.Close()
		if err := m.activity.SetActive(context.Background(), c.userID, c.botID, false); err != nil {
			slog.Error("failed to mark bot inactive", "bot_id", c.botID, "err", err)
		}
	}
}

func (m *Manager) dropPendingLocked(key string) {
	for code, p := range m.pending {
		if sessionKey(p.userID, p.botID) == key {
			delete(m.pending, code)
		}
	}
}
