package reply

import (
	"encoding/json"
	"strings"

	"github.com/zhouzirui/robot-face/backend/internal/model/chat"
	"github.com/zhouzirui/robot-face/backend/internal/model/emotion"
)

// Tier 标识归一化结果来自哪一级回退。
type Tier string

const (
	TierObject Tier = "object"
	TierArray  Tier = "array"
	TierRaw    Tier = "raw"
)

// Normalize 将模型原始输出解析为可展示的回复，永不失败。
func Normalize(raw string) chat.BotResponse {
	resp, _ := NormalizeWithTier(raw)
	return resp
}

// NormalizeWithTier 同 Normalize，并返回命中的回退层级。
// 情绪字符串只校验存在性，不校验是否属于枚举；渲染层负责兜底。
func NormalizeWithTier(raw string) (chat.BotResponse, Tier) {
	cleaned := stripFences(raw)

	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return rawFallback(raw), TierRaw
	}

	tier := TierObject
	if list, ok := parsed.([]any); ok {
		if len(list) == 0 {
			return rawFallback(raw), TierRaw
		}
		parsed = list[0]
		tier = TierArray
	}

	object, ok := parsed.(map[string]any)
	if !ok {
		return rawFallback(raw), TierRaw
	}

	text, _ := object["text"].(string)
	mood, _ := object["emotion"].(string)
	if text == "" || mood == "" {
		return rawFallback(raw), TierRaw
	}

	return chat.BotResponse{Text: text, Emotion: emotion.Emotion(mood)}, tier
}

func stripFences(raw string) string {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}

func rawFallback(raw string) chat.BotResponse {
	return chat.BotResponse{Text: raw, Emotion: emotion.Neutral}
}
