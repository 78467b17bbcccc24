package face

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	visual "github.com/zhouzirui/robot-face/backend/internal/analysis/face"
	"github.com/zhouzirui/robot-face/backend/internal/logger"
	"github.com/zhouzirui/robot-face/backend/internal/model/chat"
	"github.com/zhouzirui/robot-face/backend/internal/model/emotion"
	faceservice "github.com/zhouzirui/robot-face/backend/internal/service/face"
	"github.com/zhouzirui/robot-face/backend/pkg/utils"
)

// Face 是处理器依赖的编排器能力。
type Face interface {
	Snapshot() faceservice.Snapshot
	Submit(ctx context.Context, text string) (chat.BotResponse, error)
	History() []chat.Turn
}

// Handler 机器人脸的HTTP处理器
type Handler struct {
	face Face
	log  *log.Logger
}

// New 创建处理器
func New(face Face) *Handler {
	return &Handler{face: face, log: logger.With("http")}
}

// RegisterRoutes 注册状态、对话与渲染路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.handleState)
	r.Post("/messages", h.handleSubmit)
	r.Get("/history", h.handleHistory)
	r.Get("/face.svg", h.handleFaceSVG)
	r.Get("/stats", h.handleStats)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.face.Snapshot())
}

type submitResponse struct {
	Reply    chat.BotResponse     `json:"reply"`
	Snapshot faceservice.Snapshot `json:"snapshot"`
}

// handleSubmit 同步等待推理完成。失败时界面状态已经更新，响应中同样带上快照
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// 客户端断开不取消推理，其他观看者仍在等待这条回复
	reply, err := h.face.Submit(context.WithoutCancel(r.Context()), payload.Text)
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, submitResponse{Reply: reply, Snapshot: h.face.Snapshot()})
	case errors.Is(err, faceservice.ErrEmptyInput):
		utils.RespondError(w, http.StatusBadRequest, "text is required")
	case errors.Is(err, faceservice.ErrNotReady):
		utils.RespondError(w, http.StatusConflict, "engine is not ready")
	case errors.Is(err, faceservice.ErrStale):
		utils.RespondError(w, http.StatusConflict, "model changed while generating")
	case errors.Is(err, faceservice.ErrInference):
		h.log.Warn("submit failed", "err", err)
		snap := h.face.Snapshot()
		utils.RespondJSON(w, http.StatusBadGateway, map[string]any{
			"error":    "inference failed",
			"snapshot": snap,
		})
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"turns": h.face.History(),
	})
}

// handleFaceSVG 默认渲染当前画面，也可以用 ?emotion=&blink= 指定
func (h *Handler) handleFaceSVG(w http.ResponseWriter, r *http.Request) {
	snap := h.face.Snapshot()
	frame := snap.Frame

	query := r.URL.Query()
	if raw := query.Get("emotion"); raw != "" || query.Has("blink") {
		e := snap.Emotion
		if raw != "" {
			parsed, ok := emotion.Parse(raw)
			if !ok {
				utils.RespondError(w, http.StatusBadRequest, "unknown emotion")
				return
			}
			e = parsed
		}
		blink, err := parseBlink(query.Get("blink"))
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid blink flag")
			return
		}
		frame = visual.Frame(e, blink)
	}

	w.Header().Set("Content-Type", visual.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	if err := visual.RenderSVG(w, frame); err != nil {
		h.log.Error("render svg failed", "err", err)
	}
}

type statsResponse struct {
	ModelID   string                `json:"modelId"`
	State     faceservice.State     `json:"state"`
	LastStats *chat.GenerationStats `json:"lastStats,omitempty"`
	Memory    memoryStats           `json:"memory"`
}

type memoryStats struct {
	HeapAllocBytes uint64 `json:"heapAllocBytes"`
	SysBytes       uint64 `json:"sysBytes"`
	NumGC          uint32 `json:"numGC"`
	Goroutines     int    `json:"goroutines"`
}

// handleStats 性能面板：最近一次生成速度与进程内存
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := h.face.Snapshot()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	utils.RespondJSON(w, http.StatusOK, statsResponse{
		ModelID:   snap.ModelID,
		State:     snap.State,
		LastStats: snap.LastStats,
		Memory: memoryStats{
			HeapAllocBytes: ms.HeapAlloc,
			SysBytes:       ms.Sys,
			NumGC:          ms.NumGC,
			Goroutines:     runtime.NumGoroutine(),
		},
	})
}

func parseBlink(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
