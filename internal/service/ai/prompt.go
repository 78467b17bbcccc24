package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zhouzirui/robot-face/backend/internal/model/emotion"
	"github.com/zhouzirui/robot-face/backend/internal/model/persona"
)

// promptTemplate 按语言区分的系统提示词骨架。
type promptTemplate struct {
	FormatRules string
	EmotionRule string
	ExampleHead string
}

var promptTemplates = map[string]promptTemplate{
	"zh-CN": {
		FormatRules: "请务必只以 JSON 格式回答，不要包含任何 Markdown 格式（如 ```json ... ```）。\n你的回答必须严格遵循以下 JSON 结构：",
		EmotionRule: "其中 emotion 字段必须是以下值之一：",
		ExampleHead: "例子：",
	},
	"en-US": {
		FormatRules: "Answer in JSON only. Do not wrap the answer in Markdown (no ```json ... ```).\nYour answer must follow exactly this JSON structure:",
		EmotionRule: "The emotion field must be one of:",
		ExampleHead: "Example:",
	},
}

// BuildSystemPrompt 生成要求模型输出 {"text","emotion"} 的系统提示词。
func BuildSystemPrompt(p persona.Persona) string {
	tpl, ok := promptTemplates[p.Language]
	if !ok {
		tpl = promptTemplates["zh-CN"]
	}

	quoted := make([]string, 0, len(emotion.Selectable()))
	for _, e := range emotion.Selectable() {
		quoted = append(quoted, fmt.Sprintf("%q", string(e)))
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.PromptHint))
	b.WriteString("\n")
	b.WriteString(tpl.FormatRules)
	b.WriteString("\n{\n  \"text\": \"...\",\n  \"emotion\": \"EMOTION_ENUM\"\n}\n\n")
	b.WriteString(tpl.EmotionRule)
	b.WriteString("\n")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString("\n")

	if p.Example.User != "" {
		reply, err := json.Marshal(p.Example.Reply)
		if err == nil {
			b.WriteString("\n")
			b.WriteString(tpl.ExampleHead)
			b.WriteString("\nUser: ")
			b.WriteString(p.Example.User)
			b.WriteString("\nResponse: ")
			b.Write(reply)
			b.WriteString("\n")
		}
	}

	return b.String()
}
