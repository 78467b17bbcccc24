package chat

import "github.com/zhouzirui/robot-face/backend/internal/model/emotion"

// BotResponse 是展示给用户的一次回复。
type BotResponse struct {
	Text    string           `json:"text"`
	Emotion emotion.Emotion  `json:"emotion"`
	Stats   *GenerationStats `json:"stats,omitempty"`
}

// GenerationStats 记录一次推理的性能数据，由调用方计算。
type GenerationStats struct {
	TokensPerSecond float64 `json:"tokensPerSecond"`
	TokenCount      int     `json:"tokenCount"`
	ElapsedMs       int64   `json:"elapsedMs"`
}

// WithStats 返回附带统计信息的副本。
func (r BotResponse) WithStats(stats GenerationStats) BotResponse {
	r.Stats = &stats
	return r
}
