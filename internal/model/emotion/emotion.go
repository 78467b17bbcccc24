package emotion

import "strings"

// Emotion 表示机器人脸部可以呈现的情绪标签。
type Emotion string

const (
	Neutral   Emotion = "NEUTRAL"
	Happy     Emotion = "HAPPY"
	Sad       Emotion = "SAD"
	Angry     Emotion = "ANGRY"
	Surprised Emotion = "SURPRISED"
	Thinking  Emotion = "THINKING"
	Loving    Emotion = "LOVING"
	Confused  Emotion = "CONFUSED"
	Skeptical Emotion = "SKEPTICAL"
	Tired     Emotion = "TIRED"
	Excited   Emotion = "EXCITED"

	// Blink 仅供内部眨眼使用，不会由模型产生，也不会写入历史。
	Blink Emotion = "BLINK"
)

var selectable = []Emotion{
	Neutral,
	Happy,
	Sad,
	Angry,
	Surprised,
	Thinking,
	Loving,
	Confused,
	Skeptical,
	Tired,
	Excited,
}

// Selectable 返回模型可以输出的全部情绪，顺序固定。
func Selectable() []Emotion {
	return append([]Emotion(nil), selectable...)
}

// Parse 校验外部输入的情绪字符串，BLINK 不接受。
func Parse(raw string) (Emotion, bool) {
	normalized := Emotion(strings.ToUpper(strings.TrimSpace(raw)))
	for _, e := range selectable {
		if e == normalized {
			return e, true
		}
	}
	return "", false
}

// Coerce 将未知情绪统一回退为 NEUTRAL。
func Coerce(raw string) Emotion {
	if e, ok := Parse(raw); ok {
		return e
	}
	return Neutral
}

// Known 判断情绪是否属于封闭枚举（包含内部的 BLINK）。
func (e Emotion) Known() bool {
	if e == Blink {
		return true
	}
	for _, known := range selectable {
		if known == e {
			return true
		}
	}
	return false
}

func (e Emotion) String() string {
	return string(e)
}
