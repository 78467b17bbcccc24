package catalog

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/robot-face/backend/internal/logger"
	"github.com/zhouzirui/robot-face/backend/internal/model/catalog"
	"github.com/zhouzirui/robot-face/backend/internal/model/persona"
	faceservice "github.com/zhouzirui/robot-face/backend/internal/service/face"
	"github.com/zhouzirui/robot-face/backend/pkg/utils"
)

// loadTimeout 单次模型加载的上限，超时按加载失败处理。
const loadTimeout = 10 * time.Minute

// Switcher 是切换模型所需的编排器能力。
type Switcher interface {
	Snapshot() faceservice.Snapshot
	SelectModel(ctx context.Context, modelID string) error
	Persona() persona.Persona
}

// Handler 模型目录的HTTP处理器
type Handler struct {
	catalog  *catalog.Catalog
	switcher Switcher
	log      *log.Logger
}

// New 创建处理器
func New(cat *catalog.Catalog, switcher Switcher) *Handler {
	return &Handler{catalog: cat, switcher: switcher, log: logger.With("http")}
}

// RegisterRoutes 注册模型与角色相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/models", h.handleListModels)
	r.Put("/models/current", h.handleSelectModel)
	r.Get("/persona", h.handlePersona)
}

type modelsResponse struct {
	Models   []catalog.Entry `json:"models"`
	Selected string          `json:"selected"`
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, modelsResponse{
		Models:   h.catalog.List(),
		Selected: h.switcher.Snapshot().ModelID,
	})
}

// handleSelectModel 校验后在后台加载，立即返回 202
func (h *Handler) handleSelectModel(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID string `json:"id"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(payload.ID) == "" {
		utils.RespondError(w, http.StatusBadRequest, "id is required")
		return
	}

	entry, err := h.catalog.Resolve(payload.ID)
	if errors.Is(err, catalog.ErrUnknownModel) {
		utils.RespondError(w, http.StatusNotFound, "model not found")
		return
	}

	SelectInBackground(h.switcher, entry.ID, h.log)

	utils.RespondJSON(w, http.StatusAccepted, map[string]string{
		"status": "loading",
		"model":  entry.ID,
	})
}

func (h *Handler) handlePersona(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.switcher.Persona())
}

// SelectInBackground 脱离请求上下文加载模型，结果通过状态推送告知客户端。
func SelectInBackground(switcher Switcher, modelID string, l *log.Logger) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		if err := switcher.SelectModel(ctx, modelID); err != nil && !errors.Is(err, faceservice.ErrStale) {
			l.Warn("model switch failed", "model", modelID, "err", err)
		}
	}()
}
