package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/robot-face/backend/internal/model/chat"
)

// Sampling 推理采样参数。
type Sampling struct {
	Temperature float32
	MaxTokens   int
}

// Usage 模型返回的 token 统计。
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion 一次补全的原始结果，Text 尚未经过归一化。
type Completion struct {
	Text  string
	Usage Usage
}

// Engine 绑定了某个模型的推理句柄。
type Engine struct {
	modelID  string
	system   string
	sampling Sampling
	chain    compose.Runnable[map[string]any, *schema.Message]
}

// NewEngine 用 eino prompt 模板 + chat model 编排出推理链。
func NewEngine(ctx context.Context, modelID string, chatModel model.BaseChatModel, systemPrompt string, sampling Sampling) (*Engine, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Engine{
		modelID:  modelID,
		system:   systemPrompt,
		sampling: sampling,
		chain:    runnable,
	}, nil
}

// ModelID 返回引擎绑定的模型。
func (e *Engine) ModelID() string {
	return e.modelID
}

// Complete 基于历史上下文生成一次回复。
func (e *Engine) Complete(ctx context.Context, history []chat.Turn, userText string) (Completion, error) {
	input := map[string]any{
		"system":  e.system,
		"history": buildHistoryMessages(history),
		"query":   userText,
	}

	opts := make([]model.Option, 0, 2)
	if e.sampling.Temperature > 0 {
		opts = append(opts, model.WithTemperature(e.sampling.Temperature))
	}
	if e.sampling.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(e.sampling.MaxTokens))
	}

	resp, err := e.chain.Invoke(ctx, input, compose.WithChatModelOption(opts...))
	if err != nil {
		return Completion{}, fmt.Errorf("chain invoke: %w", err)
	}
	if resp == nil {
		return Completion{}, fmt.Errorf("chain returned empty message")
	}

	out := Completion{Text: resp.Content}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		out.Usage = Usage{
			PromptTokens:     resp.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: resp.ResponseMeta.Usage.CompletionTokens,
			TotalTokens:      resp.ResponseMeta.Usage.TotalTokens,
		}
	}
	return out, nil
}

func buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Text))
		case chat.RoleModel:
			history = append(history, schema.AssistantMessage(turn.Text, nil))
		}
	}
	return history
}
