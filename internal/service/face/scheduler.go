package face

import (
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zhouzirui/robot-face/backend/internal/logger"
	"github.com/zhouzirui/robot-face/backend/internal/model/chat"
)

const (
	blinkMinDelay   = 2000 * time.Millisecond
	blinkMaxDelay   = 5000 * time.Millisecond
	blinkDuration   = 150 * time.Millisecond
	idleMinDelay    = 10000 * time.Millisecond
	idleMaxDelay    = 30000 * time.Millisecond
	idleRevertAfter = 3000 * time.Millisecond
)

// Timer 是可取消的一次性定时器。
type Timer interface {
	Stop() bool
}

// Clock 抽象定时器，测试中替换为手动推进的时钟。
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Target 是调度器驱动的显示面，由 Orchestrator 实现。
type Target interface {
	SetBlinking(blinking bool)
	IdleAllowed() bool
	ShowIdleThought(thought chat.BotResponse) uint64
	ClearIdleThought(token uint64)
}

// Scheduler 驱动两个互相独立的定时器：眨眼与闲置台词。
type Scheduler struct {
	target   Target
	thoughts []chat.BotResponse
	clock    Clock
	log      *log.Logger

	mu          sync.Mutex
	rng         *rand.Rand
	running     bool
	epoch       uint64
	blinkTimer  Timer
	idleTimer   Timer
	revertTimer Timer
}

// SchedulerOption 调整调度器依赖。
type SchedulerOption func(*Scheduler)

// WithClock 替换定时器来源。
func WithClock(clock Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithRand 替换随机源。
func WithRand(rng *rand.Rand) SchedulerOption {
	return func(s *Scheduler) {
		s.rng = rng
	}
}

// NewScheduler 创建调度器，需调用 Start 后才会计时。
func NewScheduler(target Target, thoughts []chat.BotResponse, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		target:   target,
		thoughts: append([]chat.BotResponse(nil), thoughts...),
		clock:    realClock{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      logger.With("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach 订阅编排器的状态变化，每次变化都会重置闲置计时。
func (s *Scheduler) Attach(o *Orchestrator) func() {
	return o.Subscribe(func(ev Event) {
		if ev.Kind == EventState {
			s.ResetIdle()
		}
	})
}

// Start 启动两个定时器，重复调用无效。
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.epoch++
	s.scheduleBlinkLocked()
	s.mu.Unlock()

	s.ResetIdle()
}

// Stop 取消全部定时器并睁开眼睛。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopTimer(&s.blinkTimer)
	stopTimer(&s.idleTimer)
	stopTimer(&s.revertTimer)
	s.mu.Unlock()

	s.target.SetBlinking(false)
}

// ResetIdle 取消未触发的闲置台词并重新计时；当前不允许闲置时只取消。
func (s *Scheduler) ResetIdle() {
	allowed := s.target.IdleAllowed()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	stopTimer(&s.idleTimer)
	if !allowed || len(s.thoughts) == 0 {
		return
	}

	delay := idleMinDelay + time.Duration(s.rng.Int63n(int64(idleMaxDelay-idleMinDelay)))
	epoch := s.epoch
	s.idleTimer = s.clock.AfterFunc(delay, func() { s.fireIdle(epoch) })
}

// activeLocked 判断回调所属的轮次是否仍在运行，Stop 后再 Start 会开启新一轮。
func (s *Scheduler) activeLocked(epoch uint64) bool {
	return s.running && s.epoch == epoch
}

func (s *Scheduler) active(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked(epoch)
}

func (s *Scheduler) scheduleBlinkLocked() {
	delay := blinkMinDelay + time.Duration(s.rng.Int63n(int64(blinkMaxDelay-blinkMinDelay)))
	epoch := s.epoch
	s.blinkTimer = s.clock.AfterFunc(delay, func() { s.closeEyes(epoch) })
}

func (s *Scheduler) closeEyes(epoch uint64) {
	if !s.active(epoch) {
		return
	}

	s.target.SetBlinking(true)

	s.mu.Lock()
	if s.activeLocked(epoch) {
		s.blinkTimer = s.clock.AfterFunc(blinkDuration, func() { s.openEyes(epoch) })
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// 闭眼期间发生了 Stop，本轮不再续期。
	s.target.SetBlinking(false)
}

func (s *Scheduler) openEyes(epoch uint64) {
	if !s.active(epoch) {
		return
	}

	s.target.SetBlinking(false)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeLocked(epoch) {
		s.scheduleBlinkLocked()
	}
}

func (s *Scheduler) fireIdle(epoch uint64) {
	s.mu.Lock()
	if !s.activeLocked(epoch) {
		s.mu.Unlock()
		return
	}
	thought := s.thoughts[s.rng.Intn(len(s.thoughts))]
	s.mu.Unlock()

	// 定时器触发时再确认一次，避免与提交竞争。
	if !s.target.IdleAllowed() {
		return
	}

	token := s.target.ShowIdleThought(thought)
	if token == 0 {
		return
	}
	s.log.Debug("idle thought", "emotion", thought.Emotion)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.activeLocked(epoch) {
		return
	}
	stopTimer(&s.revertTimer)
	s.revertTimer = s.clock.AfterFunc(idleRevertAfter, func() {
		s.target.ClearIdleThought(token)
	})
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
