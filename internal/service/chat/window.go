package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/robot-face/backend/internal/model/chat"
)

// DefaultWindowSize bounds the context sent to the model.
const DefaultWindowSize = 20

// Window keeps the most recent completed turns in order.
type Window struct {
	mu    sync.RWMutex
	size  int
	turns []chat.Turn
}

// NewWindow returns a window holding at most size turns.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{
		size:  size,
		turns: make([]chat.Turn, 0, size+2),
	}
}

// Append adds turns to the end, evicting the oldest ones beyond the limit.
func (w *Window) Append(turns ...chat.Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, turn := range turns {
		if turn.ID == "" {
			turn.ID = uuid.NewString()
		}
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = time.Now().UTC()
		}
		w.turns = append(w.turns, turn)
	}

	if overflow := len(w.turns) - w.size; overflow > 0 {
		kept := make([]chat.Turn, w.size, w.size+2)
		copy(kept, w.turns[overflow:])
		w.turns = kept
	}
}

// AsContext returns a copy of the turns, oldest first.
func (w *Window) AsContext() []chat.Turn {
	w.mu.RLock()
	defer w.mu.RUnlock()

	copied := make([]chat.Turn, len(w.turns))
	copy(copied, w.turns)
	return copied
}

// Len reports how many turns are held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.turns)
}

// Size reports the eviction limit.
func (w *Window) Size() int {
	return w.size
}

// Reset drops every held turn.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = w.turns[:0]
}
