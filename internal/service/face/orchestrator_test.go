package face

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	visual "github.com/zhouzirui/robot-face/backend/internal/analysis/face"
	"github.com/zhouzirui/robot-face/backend/internal/model/chat"
	"github.com/zhouzirui/robot-face/backend/internal/model/emotion"
	"github.com/zhouzirui/robot-face/backend/internal/model/persona"
	"github.com/zhouzirui/robot-face/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/robot-face/backend/internal/service/chat"
)

type fakeEngine struct {
	complete func(ctx context.Context, history []chat.Turn, userText string) (ai.Completion, error)
	closed   bool
}

func (f *fakeEngine) Complete(ctx context.Context, history []chat.Turn, userText string) (ai.Completion, error) {
	return f.complete(ctx, history, userText)
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

func replyWith(text string) *fakeEngine {
	return &fakeEngine{complete: func(context.Context, []chat.Turn, string) (ai.Completion, error) {
		return ai.Completion{Text: text, Usage: ai.Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30}}, nil
	}}
}

func staticFactory(engine Engine) EngineFactory {
	return func(_ context.Context, _ string, onProgress ai.ProgressFunc) (Engine, error) {
		onProgress("fetching weights")
		return engine, nil
	}
}

func testPersona(t *testing.T) persona.Persona {
	t.Helper()
	p, ok := persona.NewMemoryStore(persona.Seed()).FindByID("rocket")
	require.True(t, ok)
	return p
}

func newReadyOrchestrator(t *testing.T, engine Engine) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(testPersona(t), chatservice.NewWindow(20), staticFactory(engine))
	require.NoError(t, o.SelectModel(context.Background(), "tiny-model"))
	return o
}

func TestOrchestratorStartsUninitialized(t *testing.T) {
	p := testPersona(t)
	o := NewOrchestrator(p, nil, staticFactory(replyWith("x")))

	snap := o.Snapshot()
	assert.Equal(t, StateUninitialized, snap.State)
	assert.Equal(t, p.BootLine, snap.Response)
	assert.False(t, o.IdleAllowed())

	_, err := o.Submit(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSelectModelSuccess(t *testing.T) {
	p := testPersona(t)
	o := NewOrchestrator(p, nil, staticFactory(replyWith("x")))

	var mu sync.Mutex
	var events []Event
	o.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	require.NoError(t, o.SelectModel(context.Background(), "tiny-model"))

	snap := o.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, "tiny-model", snap.ModelID)
	assert.Equal(t, "fetching weights", snap.Progress)
	assert.Equal(t, p.Greeting, snap.Response)
	assert.Equal(t, emotion.Skeptical, snap.Emotion)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.True(t, o.IdleAllowed())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	assert.Equal(t, StateLoading, events[0].Snapshot.State)
	assert.Equal(t, p.LoadingLine, events[0].Snapshot.Response)
	assert.Equal(t, emotion.Thinking, events[0].Snapshot.Emotion)
	assert.Equal(t, "fetching weights", events[1].Snapshot.Progress)
	assert.Equal(t, StateReady, events[2].Snapshot.State)
}

func TestSelectModelFailureIsRecoverable(t *testing.T) {
	p := testPersona(t)
	fail := true
	o := NewOrchestrator(p, nil, func(context.Context, string, ai.ProgressFunc) (Engine, error) {
		if fail {
			return nil, errors.New("no such model")
		}
		return replyWith("x"), nil
	})

	err := o.SelectModel(context.Background(), "broken")
	assert.ErrorIs(t, err, ErrLoad)

	snap := o.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, p.LoadFailure, snap.Response)
	assert.Equal(t, emotion.Angry, snap.Emotion)

	_, err = o.Submit(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNotReady)

	fail = false
	require.NoError(t, o.SelectModel(context.Background(), "tiny-model"))
	assert.Equal(t, StateReady, o.Snapshot().State)
}

func TestSubmitSuccess(t *testing.T) {
	var seenHistory []chat.Turn
	engine := &fakeEngine{complete: func(_ context.Context, history []chat.Turn, text string) (ai.Completion, error) {
		seenHistory = history
		return ai.Completion{
			Text:  "```json\n{\"text\":\"哟\",\"emotion\":\"HAPPY\"}\n```",
			Usage: ai.Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30},
		}, nil
	}}
	o := newReadyOrchestrator(t, engine)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	o.now = func() time.Time {
		calls++
		if calls == 1 {
			return start
		}
		return start.Add(500 * time.Millisecond)
	}

	resp, err := o.Submit(context.Background(), "  你好  ")
	require.NoError(t, err)

	assert.Equal(t, "哟", resp.Text)
	assert.Equal(t, emotion.Happy, resp.Emotion)
	require.NotNil(t, resp.Stats)
	assert.Equal(t, 10, resp.Stats.TokenCount)
	assert.Equal(t, int64(500), resp.Stats.ElapsedMs)
	assert.InDelta(t, 20.0, resp.Stats.TokensPerSecond, 1e-9)
	assert.Empty(t, seenHistory)

	snap := o.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, emotion.Happy, snap.Emotion)
	assert.Equal(t, resp, snap.Response)
	require.NotNil(t, snap.LastStats)

	history := o.History()
	require.Len(t, history, 2)
	assert.Equal(t, chat.RoleUser, history[0].Role)
	assert.Equal(t, "你好", history[0].Text)
	assert.Equal(t, chat.RoleModel, history[1].Role)
	assert.Equal(t, "哟", history[1].Text)
	assert.Equal(t, emotion.Happy, history[1].Emotion)

	_, err = o.Submit(context.Background(), "再来")
	require.NoError(t, err)
	assert.Len(t, seenHistory, 2)
}

func TestSubmitEmptyIsNoop(t *testing.T) {
	o := newReadyOrchestrator(t, replyWith("x"))
	before := o.Snapshot()

	_, err := o.Submit(context.Background(), " \t\n ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, before, o.Snapshot())
	assert.Empty(t, o.History())
}

func TestSubmitWhileBusyIsNoop(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	engine := &fakeEngine{complete: func(context.Context, []chat.Turn, string) (ai.Completion, error) {
		close(entered)
		<-release
		return ai.Completion{Text: `{"text":"好了","emotion":"TIRED"}`}, nil
	}}
	o := newReadyOrchestrator(t, engine)

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), "first")
		done <- err
	}()
	<-entered

	busy := o.Snapshot()
	assert.Equal(t, StateBusy, busy.State)
	assert.Equal(t, emotion.Thinking, busy.Emotion)
	assert.False(t, o.IdleAllowed())

	_, err := o.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, busy, o.Snapshot())
	assert.Empty(t, o.History())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, o.Snapshot().State)
	assert.Len(t, o.History(), 2)
}

func TestSubmitInferenceFailure(t *testing.T) {
	p := testPersona(t)
	engine := &fakeEngine{complete: func(context.Context, []chat.Turn, string) (ai.Completion, error) {
		return ai.Completion{}, errors.New("gpu on fire")
	}}
	o := newReadyOrchestrator(t, engine)

	_, err := o.Submit(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrInference)

	snap := o.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, p.InferenceFailure, snap.Response)
	assert.Equal(t, emotion.Sad, snap.Emotion)
	assert.Empty(t, o.History())
}

func TestMalformedReplyFallsBackToRawText(t *testing.T) {
	o := newReadyOrchestrator(t, replyWith("not json at all"))

	resp, err := o.Submit(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "not json at all", resp.Text)
	assert.Equal(t, emotion.Neutral, resp.Emotion)
}

func TestUnknownEmotionStoredVerbatim(t *testing.T) {
	o := newReadyOrchestrator(t, replyWith(`{"text":"哼","emotion":"SMUG"}`))

	resp, err := o.Submit(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, emotion.Emotion("SMUG"), resp.Emotion)

	history := o.History()
	require.Len(t, history, 2)
	assert.Equal(t, emotion.Emotion("SMUG"), history[1].Emotion)

	neutral := visual.Frame(emotion.Neutral, false)
	frame := o.Snapshot().Frame
	assert.Equal(t, neutral.LeftEye, frame.LeftEye)
	assert.Equal(t, neutral.Mouth, frame.Mouth)
	assert.Equal(t, neutral.Color, frame.Color)
}

func TestModelSwitchKeepsHistoryAndClosesEngine(t *testing.T) {
	first := replyWith(`{"text":"a","emotion":"HAPPY"}`)
	second := replyWith(`{"text":"b","emotion":"SAD"}`)
	engines := []*fakeEngine{first, second}

	o := NewOrchestrator(testPersona(t), nil, func(context.Context, string, ai.ProgressFunc) (Engine, error) {
		next := engines[0]
		engines = engines[1:]
		return next, nil
	})
	require.NoError(t, o.SelectModel(context.Background(), "one"))
	_, err := o.Submit(context.Background(), "hi")
	require.NoError(t, err)

	require.NoError(t, o.SelectModel(context.Background(), "two"))
	assert.True(t, first.closed)
	assert.Len(t, o.History(), 2)

	resp, err := o.Submit(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Text)
	assert.Len(t, o.History(), 4)
	assert.Equal(t, uint64(2), o.Snapshot().Generation)
}

func TestStaleCompletionIsDiscarded(t *testing.T) {
	p := testPersona(t)
	release := make(chan struct{})
	entered := make(chan struct{})
	slow := &fakeEngine{complete: func(context.Context, []chat.Turn, string) (ai.Completion, error) {
		close(entered)
		<-release
		return ai.Completion{Text: `{"text":"late","emotion":"ANGRY"}`}, nil
	}}
	fresh := replyWith(`{"text":"fresh","emotion":"HAPPY"}`)
	engines := []Engine{slow, fresh}

	o := NewOrchestrator(p, nil, func(context.Context, string, ai.ProgressFunc) (Engine, error) {
		next := engines[0]
		engines = engines[1:]
		return next, nil
	})
	require.NoError(t, o.SelectModel(context.Background(), "slow"))

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), "hi")
		done <- err
	}()
	<-entered

	require.NoError(t, o.SelectModel(context.Background(), "fresh"))
	close(release)
	assert.ErrorIs(t, <-done, ErrStale)

	snap := o.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, p.Greeting, snap.Response)
	assert.Empty(t, o.History())
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	stale := replyWith("x")
	calls := 0
	var mu sync.Mutex

	o := NewOrchestrator(testPersona(t), nil, func(_ context.Context, modelID string, onProgress ai.ProgressFunc) (Engine, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(entered)
			<-release
			onProgress("late progress")
			return stale, nil
		}
		return replyWith("y"), nil
	})

	done := make(chan error, 1)
	go func() { done <- o.SelectModel(context.Background(), "first") }()
	<-entered

	require.NoError(t, o.SelectModel(context.Background(), "second"))
	close(release)
	assert.ErrorIs(t, <-done, ErrStale)
	assert.True(t, stale.closed)

	snap := o.Snapshot()
	assert.Equal(t, "second", snap.ModelID)
	assert.Equal(t, StateReady, snap.State)
	assert.NotEqual(t, "late progress", snap.Progress)
}

func TestIdleThoughtDisplayAndRevert(t *testing.T) {
	p := testPersona(t)
	o := NewOrchestrator(p, nil, staticFactory(replyWith(`{"text":"ok","emotion":"HAPPY"}`)))

	thought := p.IdleThoughts[0]
	assert.Zero(t, o.ShowIdleThought(thought))

	require.NoError(t, o.SelectModel(context.Background(), "tiny-model"))
	token := o.ShowIdleThought(thought)
	require.NotZero(t, token)
	assert.Equal(t, thought, o.Snapshot().Response)
	assert.Equal(t, thought.Emotion, o.Snapshot().Emotion)

	o.ClearIdleThought(token)
	snap := o.Snapshot()
	assert.Equal(t, thought.Text, snap.Response.Text)
	assert.Equal(t, emotion.Neutral, snap.Emotion)

	token = o.ShowIdleThought(thought)
	_, err := o.Submit(context.Background(), "hi")
	require.NoError(t, err)
	o.ClearIdleThought(token)
	assert.Equal(t, emotion.Happy, o.Snapshot().Emotion)
}

func TestSetBlinkingOnlyTouchesEyes(t *testing.T) {
	o := newReadyOrchestrator(t, replyWith("x"))

	events := make(chan Event, 4)
	o.Subscribe(func(ev Event) { events <- ev })

	o.SetBlinking(true)
	o.SetBlinking(true)

	ev := <-events
	assert.Equal(t, EventBlink, ev.Kind)
	assert.True(t, ev.Snapshot.Blinking)
	assert.Equal(t, visual.ClosedEye, ev.Snapshot.Frame.LeftEye)
	assert.Equal(t, emotion.Skeptical, ev.Snapshot.Emotion)
	assert.Len(t, events, 0)
}

func TestWatchClosesWithContext(t *testing.T) {
	o := newReadyOrchestrator(t, replyWith("x"))

	ctx, cancel := context.WithCancel(context.Background())
	ch := o.Watch(ctx)

	o.SetBlinking(true)
	ev := <-ch
	assert.Equal(t, EventBlink, ev.Kind)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestSchedulerSuppressesIdleWhileBusy(t *testing.T) {
	p := testPersona(t)
	release := make(chan struct{})
	entered := make(chan struct{})
	engine := &fakeEngine{complete: func(context.Context, []chat.Turn, string) (ai.Completion, error) {
		close(entered)
		<-release
		return ai.Completion{Text: `{"text":"done","emotion":"EXCITED"}`}, nil
	}}
	o := newReadyOrchestrator(t, engine)

	clock := &fakeClock{}
	s := NewScheduler(o, p.IdleThoughts, WithClock(clock), WithRand(rand.New(rand.NewSource(1))))
	defer s.Attach(o)()
	s.Start()
	defer s.Stop()

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), "hi")
		done <- err
	}()
	<-entered

	clock.Advance(time.Minute)
	snap := o.Snapshot()
	assert.Equal(t, StateBusy, snap.State)
	assert.Equal(t, p.Greeting, snap.Response)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, "done", o.Snapshot().Response.Text)

	clock.Advance(idleMaxDelay)
	assert.Contains(t, p.IdleThoughts, o.Snapshot().Response)
}

func TestSubscribersSeeSnapshotsInOrder(t *testing.T) {
	o := newReadyOrchestrator(t, replyWith(`{"text":"ok","emotion":"HAPPY"}`))

	var mu sync.Mutex
	var seqs, responseIDs []uint64
	o.Subscribe(func(ev Event) {
		mu.Lock()
		seqs = append(seqs, ev.Snapshot.Seq)
		responseIDs = append(responseIDs, ev.Snapshot.ResponseID)
		mu.Unlock()
	})

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		blink := false
		for {
			select {
			case <-done:
				return
			default:
				blink = !blink
				o.SetBlinking(blink)
			}
		}
	}()

	for i := 0; i < 300; i++ {
		_, err := o.Submit(context.Background(), "hi")
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seqs)
	for i := 1; i < len(seqs); i++ {
		require.Greater(t, seqs[i], seqs[i-1], "event %d", i)
		require.GreaterOrEqual(t, responseIDs[i], responseIDs[i-1], "event %d", i)
	}

	final := o.Snapshot()
	assert.Equal(t, final.Seq, seqs[len(seqs)-1])
	assert.Equal(t, final.ResponseID, responseIDs[len(responseIDs)-1])
}

func TestReadsDoNotAdvanceSeq(t *testing.T) {
	o := newReadyOrchestrator(t, replyWith("x"))

	before := o.Snapshot().Seq
	o.Snapshot()
	o.IdleAllowed()
	o.SetBlinking(false)
	assert.Equal(t, before, o.Snapshot().Seq)

	o.SetBlinking(true)
	assert.Equal(t, before+1, o.Snapshot().Seq)
}
