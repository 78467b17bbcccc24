// Package typewriter reveals a reply one rune at a time.
package typewriter

import (
	"context"
	"time"
)

// DefaultInterval 每个字符之间的间隔。
const DefaultInterval = 30 * time.Millisecond

// Reveal 依次把 text 的前缀交给 emit，直到完整文本或 ctx 结束。
// 返回 ctx.Err() 表示被中断。
func Reveal(ctx context.Context, text string, interval time.Duration, emit func(prefix string)) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	runes := []rune(text)
	if len(runes) == 0 {
		emit("")
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 1; i <= len(runes); i++ {
		emit(string(runes[:i]))
		if i == len(runes) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
