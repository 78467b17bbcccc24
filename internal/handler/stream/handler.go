package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/robot-face/backend/internal/logger"
	"github.com/zhouzirui/robot-face/backend/internal/metrics"
	faceservice "github.com/zhouzirui/robot-face/backend/internal/service/face"
	"github.com/zhouzirui/robot-face/backend/internal/service/typewriter"
	"github.com/zhouzirui/robot-face/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Watcher 是推送所需的编排器能力。
type Watcher interface {
	Snapshot() faceservice.Snapshot
	Watch(ctx context.Context) <-chan faceservice.Event
}

// Handler 通过 Server-Sent Events 推送状态与打字机效果
type Handler struct {
	face     Watcher
	interval time.Duration
	log      *log.Logger
}

// New 创建推送处理器，interval 为打字机每个字符的间隔
func New(face Watcher, interval time.Duration) *Handler {
	if interval <= 0 {
		interval = typewriter.DefaultInterval
	}
	return &Handler{face: face, interval: interval, log: logger.With("sse")}
}

// RegisterRoutes 注册推送路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream", h.handleStream)
}

// DeltaEvent 打字机事件，Text 为当前已显示的前缀
type DeltaEvent struct {
	ResponseID uint64 `json:"responseId"`
	Text       string `json:"text"`
	Done       bool   `json:"done"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := h.face.Watch(ctx)

	var writeMu sync.Mutex
	send := func(event string, data any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return utils.SendSSEEvent(w, flusher, event, data)
	}

	var typing sync.WaitGroup
	stopTyping := func() {}
	defer func() {
		stopTyping()
		typing.Wait()
	}()

	reveal := func(id uint64, text string) {
		stopTyping()
		typing.Wait()

		rctx, rcancel := context.WithCancel(ctx)
		stopTyping = rcancel
		typing.Add(1)
		go func() {
			defer typing.Done()
			total := len([]rune(text))
			_ = typewriter.Reveal(rctx, text, h.interval, func(prefix string) {
				if err := send("delta", DeltaEvent{ResponseID: id, Text: prefix, Done: len([]rune(prefix)) == total}); err != nil {
					rcancel()
				}
			})
		}()
	}

	snap := h.face.Snapshot()
	if err := send("snapshot", snap); err != nil {
		return
	}
	lastResponse := snap.ResponseID
	h.log.Debug("stream opened", "remote", r.RemoteAddr)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Debug("stream closed", "remote", r.RemoteAddr)
			return
		case t := <-heartbeat.C:
			if err := send("heartbeat", map[string]string{"time": t.UTC().Format(time.RFC3339)}); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := send(string(ev.Kind), ev.Snapshot); err != nil {
				return
			}
			// Watch 可能丢弃慢消费者的事件，眨眼事件同样携带最新回复。
			if ev.Snapshot.ResponseID > lastResponse {
				lastResponse = ev.Snapshot.ResponseID
				reveal(lastResponse, ev.Snapshot.Response.Text)
			}
		}
	}
}
