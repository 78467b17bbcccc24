package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/zhouzirui/robot-face/backend/internal/config"
	"github.com/zhouzirui/robot-face/backend/internal/logger"
	"github.com/zhouzirui/robot-face/backend/internal/model/persona"
)

// ProgressFunc 接收加载过程中的状态文字。
type ProgressFunc func(status string)

// Loader 按配置的后端构造推理引擎。
type Loader struct {
	cfg     config.AIConfig
	persona persona.Persona
	log     *log.Logger
}

// NewLoader 创建引擎加载器，系统提示词由角色决定。
func NewLoader(cfg config.AIConfig, p persona.Persona) *Loader {
	return &Loader{cfg: cfg, persona: p, log: logger.With("ai")}
}

// Load 构造绑定 modelID 的引擎，过程中通过 onProgress 汇报进度。
func (l *Loader) Load(ctx context.Context, modelID string, onProgress ProgressFunc) (*Engine, error) {
	report := func(status string) {
		l.log.Debug("load progress", "model", modelID, "status", status)
		if onProgress != nil {
			onProgress(status)
		}
	}

	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, fmt.Errorf("model id is empty")
	}
	if !l.cfg.Enabled() {
		return nil, fmt.Errorf("backend %s is not configured", l.cfg.Backend)
	}

	report(fmt.Sprintf("resolving backend %s", l.cfg.Backend))
	chatModel, err := l.newChatModel(ctx, modelID)
	if err != nil {
		return nil, err
	}

	if prober, ok := chatModel.(interface{ Probe(context.Context) error }); ok {
		report(fmt.Sprintf("checking model %s", modelID))
		if err := prober.Probe(ctx); err != nil {
			return nil, err
		}
	}

	report("compiling prompt chain")
	engine, err := NewEngine(ctx, modelID, chatModel, BuildSystemPrompt(l.persona), Sampling{
		Temperature: l.cfg.Temperature,
		MaxTokens:   l.cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	report("ready")
	l.log.Info("engine ready", "model", modelID, "backend", l.cfg.Backend)
	return engine, nil
}

func (l *Loader) newChatModel(ctx context.Context, modelID string) (model.ChatModel, error) {
	switch l.cfg.Backend {
	case config.BackendOpenAI:
		return newOpenAIChatModel(l.cfg.OpenAIBaseURL, l.cfg.OpenAIAPIKey, modelID), nil
	case config.BackendArk:
		temperature := l.cfg.Temperature
		maxTokens := l.cfg.MaxTokens
		chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     l.cfg.BaseURL,
			Region:      l.cfg.Region,
			APIKey:      l.cfg.APIKey,
			AccessKey:   l.cfg.AccessKey,
			SecretKey:   l.cfg.SecretKey,
			Model:       modelID,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ark chat model: %w", err)
		}
		return chatModel, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", l.cfg.Backend)
	}
}
