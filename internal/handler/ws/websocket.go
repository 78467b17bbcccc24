package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	cataloghandler "github.com/zhouzirui/robot-face/backend/internal/handler/catalog"
	"github.com/zhouzirui/robot-face/backend/internal/logger"
	"github.com/zhouzirui/robot-face/backend/internal/metrics"
	"github.com/zhouzirui/robot-face/backend/internal/model/catalog"
	"github.com/zhouzirui/robot-face/backend/internal/model/chat"
	"github.com/zhouzirui/robot-face/backend/internal/model/persona"
	faceservice "github.com/zhouzirui/robot-face/backend/internal/service/face"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Face 是 WebSocket 客户端可以驱动的编排器能力。
type Face interface {
	Snapshot() faceservice.Snapshot
	Submit(ctx context.Context, text string) (chat.BotResponse, error)
	SelectModel(ctx context.Context, modelID string) error
	Watch(ctx context.Context) <-chan faceservice.Event
	Persona() persona.Persona
}

// Handler WebSocket处理器
type Handler struct {
	face     Face
	catalog  *catalog.Catalog
	upgrader websocket.Upgrader
	log      *log.Logger
}

// New 创建WebSocket处理器
func New(face Face, cat *catalog.Catalog) *Handler {
	return &Handler{
		face:    face,
		catalog: cat,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logger.With("websocket"),
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage 用户输入
type TextMessage struct {
	Text string `json:"text"`
}

// ConfigMessage 切换模型
type ConfigMessage struct {
	ModelID string `json:"modelId"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	ClientID  string      `json:"clientId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// client 串行化同一连接上的写操作
type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
	log  *log.Logger
}

func (c *client) write(msg outgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *client) sendInfo(data map[string]any) {
	msg := outgoingMessage{
		Type:      "result",
		ClientID:  c.id,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := c.write(msg); err != nil {
		c.log.Debug("write info failed", "client", c.id, "err", err)
	}
}

func (c *client) sendError(message string) {
	msg := outgoingMessage{
		Type:      "error",
		ClientID:  c.id,
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := c.write(msg); err != nil {
		c.log.Debug("write error failed", "client", c.id, "err", err)
	}
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	c := &client{id: uuid.NewString(), conn: conn, log: h.log}
	h.log.Info("client connected", "client", c.id, "remote", r.RemoteAddr)

	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, c)
	go h.forwardEvents(ctx, c)

	c.sendInfo(map[string]any{
		"type":     "connected",
		"persona":  h.face.Persona().ID,
		"snapshot": h.face.Snapshot(),
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("read error", "client", c.id, "err", err)
			}
			h.log.Info("client disconnected", "client", c.id)
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleMessage(ctx, c, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *client, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		h.handleTextMessage(ctx, c, msg.Data)
	case "config":
		h.handleConfigMessage(c, msg.Data)
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

// handleTextMessage 推理可能很慢，放到后台执行以免阻塞读循环
func (h *Handler) handleTextMessage(ctx context.Context, c *client, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		c.sendError("invalid text payload")
		return
	}

	// 连接关闭不取消推理
	submitCtx := context.WithoutCancel(ctx)
	go func() {
		reply, err := h.face.Submit(submitCtx, text.Text)
		switch {
		case err == nil:
			c.sendInfo(map[string]any{"type": "reply", "reply": reply})
		case errors.Is(err, faceservice.ErrEmptyInput):
			c.sendError("text is required")
		case errors.Is(err, faceservice.ErrNotReady):
			c.sendError("engine is not ready")
		case errors.Is(err, faceservice.ErrStale):
			c.sendError("model changed while generating")
		default:
			c.sendError("inference failed")
		}
	}()
}

func (h *Handler) handleConfigMessage(c *client, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		c.sendError("invalid config payload")
		return
	}

	entry, err := h.catalog.Resolve(cfg.ModelID)
	if err != nil {
		c.sendError("model not found")
		return
	}

	cataloghandler.SelectInBackground(h.face, entry.ID, h.log)
	c.sendInfo(map[string]any{"type": "config", "model": entry.ID, "status": "loading"})
}

// forwardEvents 把编排器的状态变化推给客户端
func (h *Handler) forwardEvents(ctx context.Context, c *client) {
	for ev := range h.face.Watch(ctx) {
		c.sendInfo(map[string]any{
			"type":     string(ev.Kind),
			"snapshot": ev.Snapshot,
		})
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
