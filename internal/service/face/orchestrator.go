package face

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	visual "github.com/zhouzirui/robot-face/backend/internal/analysis/face"
	"github.com/zhouzirui/robot-face/backend/internal/logger"
	"github.com/zhouzirui/robot-face/backend/internal/metrics"
	"github.com/zhouzirui/robot-face/backend/internal/model/chat"
	"github.com/zhouzirui/robot-face/backend/internal/model/emotion"
	"github.com/zhouzirui/robot-face/backend/internal/model/persona"
	"github.com/zhouzirui/robot-face/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/robot-face/backend/internal/service/chat"
	"github.com/zhouzirui/robot-face/backend/internal/service/reply"
)

var (
	// ErrEmptyInput 提交内容去掉空白后为空。
	ErrEmptyInput = errors.New("empty input")
	// ErrNotReady 引擎未就绪或正在处理上一条消息。
	ErrNotReady = errors.New("engine not ready")
	// ErrInference 推理调用失败，界面已切换为失败台词。
	ErrInference = errors.New("inference failed")
	// ErrLoad 引擎构造失败，界面已切换为加载失败台词。
	ErrLoad = errors.New("model load failed")
	// ErrStale 结果属于已被替换的引擎代次，已丢弃。
	ErrStale = errors.New("stale generation")
)

// State 编排器状态。
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateBusy          State = "busy"
	StateError         State = "error"
)

// Engine 是编排器持有的推理句柄。
type Engine interface {
	Complete(ctx context.Context, history []chat.Turn, userText string) (ai.Completion, error)
}

// EngineFactory 为指定模型构造推理句柄。
type EngineFactory func(ctx context.Context, modelID string, onProgress ai.ProgressFunc) (Engine, error)

// LoaderFactory 把 ai.Loader 适配为 EngineFactory。
func LoaderFactory(loader *ai.Loader) EngineFactory {
	return func(ctx context.Context, modelID string, onProgress ai.ProgressFunc) (Engine, error) {
		engine, err := loader.Load(ctx, modelID, onProgress)
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
}

// Snapshot 是某一时刻对外可见的完整状态。
type Snapshot struct {
	State      State                 `json:"state"`
	ModelID    string                `json:"modelId"`
	Progress   string                `json:"progress"`
	Response   chat.BotResponse      `json:"response"`
	ResponseID uint64                `json:"responseId"`
	Emotion    emotion.Emotion       `json:"emotion"`
	Blinking   bool                  `json:"blinking"`
	Frame      visual.VisualFrame    `json:"frame"`
	Generation uint64                `json:"generation"`
	LastStats  *chat.GenerationStats `json:"lastStats,omitempty"`
	Seq        uint64                `json:"seq"`
}

// EventKind 区分状态变化与眨眼。
type EventKind string

const (
	EventState EventKind = "state"
	EventBlink EventKind = "blink"
)

// Event 推送给订阅者的变化通知。
type Event struct {
	Kind     EventKind `json:"kind"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Orchestrator 管理唯一的推理句柄、显示内容与对话窗口。
type Orchestrator struct {
	persona persona.Persona
	window  *chatservice.Window
	factory EngineFactory
	now     func() time.Time
	log     *log.Logger

	pubMu sync.Mutex

	mu         sync.Mutex
	seq        uint64
	state      State
	generation uint64
	modelID    string
	progress   string
	engine     Engine
	response   chat.BotResponse
	emotion    emotion.Emotion
	blinking   bool
	lastStats  *chat.GenerationStats
	displaySeq uint64
	responseID uint64

	subMu   sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

// NewOrchestrator 创建处于 Uninitialized 状态的编排器。
func NewOrchestrator(p persona.Persona, window *chatservice.Window, factory EngineFactory) *Orchestrator {
	if window == nil {
		window = chatservice.NewWindow(chatservice.DefaultWindowSize)
	}
	return &Orchestrator{
		persona:  p,
		window:   window,
		factory:  factory,
		now:      time.Now,
		log:      logger.With("orchestrator"),
		state:    StateUninitialized,
		response: p.BootLine,
		emotion:  emotion.Coerce(string(p.BootLine.Emotion)),
		subs:     make(map[int]func(Event)),
	}
}

// Persona 返回当前角色。
func (o *Orchestrator) Persona() persona.Persona {
	return o.persona
}

// History 返回对话窗口的副本。
func (o *Orchestrator) History() []chat.Turn {
	return o.window.AsContext()
}

// SelectModel 切换模型：丢弃旧句柄、进入 Loading 并同步构造新句柄。
// 对话历史不会被清空。
func (o *Orchestrator) SelectModel(ctx context.Context, modelID string) error {
	var (
		gen uint64
		old Engine
	)
	o.update(EventState, func() bool {
		o.generation++
		gen = o.generation
		old = o.engine
		o.engine = nil
		o.modelID = modelID
		o.progress = ""
		o.setStateLocked(StateLoading)
		o.displayLocked(o.persona.LoadingLine)
		return true
	})

	closeEngine(old)
	o.log.Info("loading model", "model", modelID, "generation", gen)

	engine, err := o.factory(ctx, modelID, func(status string) {
		o.setProgress(gen, status)
	})

	stale := false
	o.update(EventState, func() bool {
		if gen != o.generation {
			stale = true
			return false
		}
		if err != nil {
			o.setStateLocked(StateError)
			o.displayLocked(o.persona.LoadFailure)
			return true
		}
		o.engine = engine
		o.setStateLocked(StateReady)
		o.displayLocked(o.persona.Greeting)
		return true
	})

	switch {
	case stale:
		closeEngine(engine)
		o.log.Debug("discarding stale load", "model", modelID, "generation", gen)
		return ErrStale
	case err != nil:
		metrics.ModelLoads.WithLabelValues(modelID, "error").Inc()
		o.log.Error("model load failed", "model", modelID, "err", err)
		return fmt.Errorf("%w: %v", ErrLoad, err)
	}

	metrics.ModelLoads.WithLabelValues(modelID, "ok").Inc()
	return nil
}

// Submit 处理一条用户输入，仅在 Ready 时执行，其余情况为无副作用的拒绝。
func (o *Orchestrator) Submit(ctx context.Context, text string) (chat.BotResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.BotResponse{}, ErrEmptyInput
	}

	var (
		gen     uint64
		engine  Engine
		history []chat.Turn
	)
	accepted := o.update(EventState, func() bool {
		if o.state != StateReady || o.engine == nil {
			return false
		}
		gen = o.generation
		engine = o.engine
		history = o.window.AsContext()
		o.setStateLocked(StateBusy)
		o.emotion = emotion.Thinking
		o.displaySeq++
		return true
	})
	if !accepted {
		return chat.BotResponse{}, ErrNotReady
	}

	start := o.now()
	completion, err := engine.Complete(ctx, history, text)
	elapsed := o.now().Sub(start)
	metrics.InferenceLatency.Observe(elapsed.Seconds())

	var (
		resp  chat.BotResponse
		tier  reply.Tier
		stats chat.GenerationStats
	)
	current := o.update(EventState, func() bool {
		if gen != o.generation {
			return false
		}
		o.setStateLocked(StateReady)
		if err != nil {
			o.displayLocked(o.persona.InferenceFailure)
			return true
		}

		resp, tier = reply.NormalizeWithTier(completion.Text)
		stats = generationStats(completion.Usage, elapsed)
		resp = resp.WithStats(stats)

		o.lastStats = &stats
		o.displayLocked(resp)
		o.window.Append(
			chat.Turn{Role: chat.RoleUser, Text: text},
			chat.Turn{Role: chat.RoleModel, Text: resp.Text, Emotion: resp.Emotion},
		)
		return true
	})
	if !current {
		o.log.Debug("discarding stale completion", "generation", gen)
		return chat.BotResponse{}, ErrStale
	}

	if err != nil {
		metrics.InferenceFailures.Inc()
		o.log.Error("inference failed", "generation", gen, "err", err)
		return chat.BotResponse{}, fmt.Errorf("%w: %v", ErrInference, err)
	}

	metrics.NormalizedReplies.WithLabelValues(string(tier)).Inc()
	metrics.TokensPerSecond.Set(stats.TokensPerSecond)
	if !resp.Emotion.Known() {
		o.log.Warn("model replied with unknown emotion", "emotion", resp.Emotion)
	}
	o.log.Info("reply", "tier", tier, "emotion", resp.Emotion, "tokens", stats.TokenCount, "elapsed_ms", stats.ElapsedMs)
	return resp, nil
}

// Snapshot 返回当前状态的副本。
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Subscribe 注册变化回调，返回取消函数。回调在锁外同步执行。
func (o *Orchestrator) Subscribe(fn func(Event)) func() {
	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.subMu.Unlock()

	return func() {
		o.subMu.Lock()
		delete(o.subs, id)
		o.subMu.Unlock()
	}
}

// Watch 以 channel 形式订阅变化，ctx 结束后关闭。消费过慢时丢弃事件。
func (o *Orchestrator) Watch(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	var once sync.Once
	var mu sync.Mutex
	closed := false

	unsubscribe := o.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		default:
		}
	})

	go func() {
		<-ctx.Done()
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}()

	return ch
}

// SetBlinking 由调度器驱动，只影响眼睛。
func (o *Orchestrator) SetBlinking(blinking bool) {
	o.update(EventBlink, func() bool {
		if o.blinking == blinking {
			return false
		}
		o.blinking = blinking
		return true
	})
}

// IdleAllowed 仅在 Ready 时允许闲置台词。
func (o *Orchestrator) IdleAllowed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateReady
}

// ShowIdleThought 展示一条闲置台词，返回用于撤回的显示序号；不满足条件时返回 0。
func (o *Orchestrator) ShowIdleThought(thought chat.BotResponse) uint64 {
	var token uint64
	shown := o.update(EventState, func() bool {
		if o.state != StateReady {
			return false
		}
		o.displayLocked(thought)
		token = o.displaySeq
		return true
	})
	if !shown {
		return 0
	}
	metrics.IdleThoughts.Inc()
	return token
}

// ClearIdleThought 把情绪恢复为 NEUTRAL，文字保留；显示内容已变化时忽略。
func (o *Orchestrator) ClearIdleThought(token uint64) {
	o.update(EventState, func() bool {
		if token == 0 || token != o.displaySeq {
			return false
		}
		o.emotion = emotion.Neutral
		o.displaySeq++
		return true
	})
}

// setProgress 只接受当前代次的进度。
func (o *Orchestrator) setProgress(gen uint64, status string) {
	o.update(EventState, func() bool {
		if gen != o.generation || o.state != StateLoading {
			return false
		}
		o.progress = status
		return true
	})
}

// update 在 o.mu 下执行 mutate，返回 true 时生成新快照并发布。
// pubMu 覆盖从取快照到回调结束的整个过程，订阅者按 Seq 递增的顺序收到事件。
// 回调内不得再修改编排器状态。
func (o *Orchestrator) update(kind EventKind, mutate func() bool) bool {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()

	o.mu.Lock()
	if !mutate() {
		o.mu.Unlock()
		return false
	}
	o.seq++
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.publish(kind, snap)
	return true
}

func (o *Orchestrator) setStateLocked(state State) {
	if o.state == state {
		return
	}
	o.state = state
	metrics.Transitions.WithLabelValues(string(state)).Inc()
}

func (o *Orchestrator) displayLocked(resp chat.BotResponse) {
	o.response = resp
	o.emotion = resp.Emotion
	o.displaySeq++
	o.responseID++
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	var stats *chat.GenerationStats
	if o.lastStats != nil {
		copied := *o.lastStats
		stats = &copied
	}
	return Snapshot{
		State:      o.state,
		ModelID:    o.modelID,
		Progress:   o.progress,
		Response:   o.response,
		ResponseID: o.responseID,
		Emotion:    o.emotion,
		Blinking:   o.blinking,
		Frame:      visual.Frame(o.emotion, o.blinking),
		Generation: o.generation,
		LastStats:  stats,
		Seq:        o.seq,
	}
}

func (o *Orchestrator) publish(kind EventKind, snap Snapshot) {
	o.subMu.RLock()
	subs := make([]func(Event), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	o.subMu.RUnlock()

	ev := Event{Kind: kind, Snapshot: snap}
	for _, fn := range subs {
		fn(ev)
	}
}

func generationStats(usage ai.Usage, elapsed time.Duration) chat.GenerationStats {
	tokens := usage.CompletionTokens
	if tokens == 0 && usage.TotalTokens > usage.PromptTokens {
		tokens = usage.TotalTokens - usage.PromptTokens
	}

	stats := chat.GenerationStats{
		TokenCount: tokens,
		ElapsedMs:  elapsed.Milliseconds(),
	}
	if seconds := elapsed.Seconds(); seconds > 0 {
		stats.TokensPerSecond = float64(tokens) / seconds
	}
	return stats
}

func closeEngine(engine Engine) {
	if closer, ok := engine.(io.Closer); ok {
		_ = closer.Close()
	}
}
