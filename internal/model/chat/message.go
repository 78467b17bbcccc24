package chat

import (
	"time"

	"github.com/zhouzirui/robot-face/backend/internal/model/emotion"
)

// Role 标识一条对话的发送方。
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn 是会话窗口中一条已完成的消息。
type Turn struct {
	ID        string          `json:"id"`
	Role      Role            `json:"role"`
	Text      string          `json:"text"`
	Emotion   emotion.Emotion `json:"emotion,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
