package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openAIChatModel 把 OpenAI 兼容的本地模型服务（Ollama、llama.cpp、LM Studio）包装成 eino ChatModel。
type openAIChatModel struct {
	client  openai.Client
	modelID string
}

var _ model.ChatModel = (*openAIChatModel)(nil)

func newOpenAIChatModel(baseURL, apiKey, modelID string) *openAIChatModel {
	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		options = append(options, option.WithBaseURL(baseURL))
	}

	return &openAIChatModel{
		client:  openai.NewClient(options...),
		modelID: modelID,
	}
}

// Probe 确认模型服务在线并且已经拉取了目标模型。
func (m *openAIChatModel) Probe(ctx context.Context) error {
	if _, err := m.client.Models.Get(ctx, m.modelID); err != nil {
		return fmt.Errorf("model %s unavailable: %w", m.modelID, err)
	}
	return nil
}

func (m *openAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{}, opts...)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.modelID),
		Messages: toOpenAIMessages(input),
	}
	if options.Temperature != nil {
		params.Temperature = openai.Float(float64(*options.Temperature))
	}
	if options.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*options.MaxTokens))
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := completion.Choices[0]
	return &schema.Message{
		Role:    schema.Assistant,
		Content: choice.Message.Content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: choice.FinishReason,
			Usage: &schema.TokenUsage{
				PromptTokens:     int(completion.Usage.PromptTokens),
				CompletionTokens: int(completion.Usage.CompletionTokens),
				TotalTokens:      int(completion.Usage.TotalTokens),
			},
		},
	}, nil
}

// Stream 本地小模型回复很短，这里一次性生成后包装成单帧流。
func (m *openAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools 机器人脸不使用工具调用。
func (m *openAIChatModel) BindTools(_ []*schema.ToolInfo) error {
	return nil
}

func toOpenAIMessages(input []*schema.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case schema.Assistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return messages
}
