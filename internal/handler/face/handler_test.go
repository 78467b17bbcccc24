package face

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	visual "github.com/zhouzirui/robot-face/backend/internal/analysis/face"
	"github.com/zhouzirui/robot-face/backend/internal/model/chat"
	"github.com/zhouzirui/robot-face/backend/internal/model/emotion"
	faceservice "github.com/zhouzirui/robot-face/backend/internal/service/face"
)

type stubFace struct {
	snap    faceservice.Snapshot
	reply   chat.BotResponse
	err     error
	history []chat.Turn
	got     string
	ctx     context.Context
}

func (s *stubFace) Snapshot() faceservice.Snapshot { return s.snap }

func (s *stubFace) Submit(ctx context.Context, text string) (chat.BotResponse, error) {
	s.got = text
	s.ctx = ctx
	return s.reply, s.err
}

func (s *stubFace) History() []chat.Turn { return s.history }

func setupRouter(face *stubFace) *chi.Mux {
	r := chi.NewRouter()
	New(face).RegisterRoutes(r)
	return r
}

func readyFace() *stubFace {
	return &stubFace{snap: faceservice.Snapshot{
		State:   faceservice.StateReady,
		ModelID: "tiny-model",
		Emotion: emotion.Happy,
		Frame:   visual.Frame(emotion.Happy, false),
	}}
}

func postMessage(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSubmitStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "ok", want: http.StatusOK},
		{name: "empty", err: faceservice.ErrEmptyInput, want: http.StatusBadRequest},
		{name: "not ready", err: faceservice.ErrNotReady, want: http.StatusConflict},
		{name: "stale", err: faceservice.ErrStale, want: http.StatusConflict},
		{name: "inference", err: fmt.Errorf("%w: boom", faceservice.ErrInference), want: http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			face := readyFace()
			face.reply = chat.BotResponse{Text: "哟", Emotion: emotion.Happy}
			face.err = tc.err

			resp := postMessage(setupRouter(face), `{"text":"你好"}`)
			if resp.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.Code)
			}
			if face.got != "你好" {
				t.Fatalf("unexpected submitted text %q", face.got)
			}
		})
	}
}

func TestSubmitReturnsReplyAndSnapshot(t *testing.T) {
	face := readyFace()
	face.reply = chat.BotResponse{Text: "哟", Emotion: emotion.Happy}

	resp := postMessage(setupRouter(face), `{"text":"你好"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body submitResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Reply.Text != "哟" || body.Reply.Emotion != emotion.Happy {
		t.Fatalf("unexpected reply %+v", body.Reply)
	}
	if body.Snapshot.ModelID != "tiny-model" {
		t.Fatalf("unexpected snapshot %+v", body.Snapshot)
	}
}

func TestSubmitInvalidBody(t *testing.T) {
	resp := postMessage(setupRouter(readyFace()), `{`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestStateAndHistory(t *testing.T) {
	face := readyFace()
	face.history = []chat.Turn{{ID: "1", Role: chat.RoleUser, Text: "hi"}}
	r := setupRouter(face)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/state", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"state":"ready"`) {
		t.Fatalf("unexpected state response %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/history", nil))
	var body struct {
		Turns []chat.Turn `json:"turns"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Turns) != 1 || body.Turns[0].Text != "hi" {
		t.Fatalf("unexpected history %+v", body.Turns)
	}
}

func TestFaceSVG(t *testing.T) {
	r := setupRouter(readyFace())

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/face.svg", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != visual.ContentType {
		t.Fatalf("unexpected content type %q", ct)
	}
	current := resp.Body.String()
	if !strings.Contains(current, "<svg") {
		t.Fatalf("expected svg markup")
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/face.svg?emotion=angry&blink=1", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var want bytes.Buffer
	if err := visual.RenderSVG(&want, visual.Frame(emotion.Angry, true)); err != nil {
		t.Fatalf("render: %v", err)
	}
	if resp.Body.String() != want.String() {
		t.Fatal("query frame should match the lookup table")
	}

	for _, query := range []string{"emotion=SMUG", "emotion=BLINK", "blink=maybe"} {
		resp = httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/face.svg?"+query, nil))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, resp.Code)
		}
	}
}

func TestStats(t *testing.T) {
	face := readyFace()
	face.snap.LastStats = &chat.GenerationStats{TokensPerSecond: 12.5, TokenCount: 25, ElapsedMs: 2000}

	resp := httptest.NewRecorder()
	setupRouter(face).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var body statsResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.LastStats == nil || body.LastStats.TokenCount != 25 {
		t.Fatalf("unexpected stats %+v", body.LastStats)
	}
	if body.Memory.SysBytes == 0 || body.Memory.Goroutines == 0 {
		t.Fatalf("expected runtime memory stats, got %+v", body.Memory)
	}
}

func TestSubmitSurvivesClientDisconnect(t *testing.T) {
	face := readyFace()
	face.reply = chat.BotResponse{Text: "ok", Emotion: emotion.Happy}
	r := setupRouter(face)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{"text":"hi"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if face.ctx == nil {
		t.Fatal("submit was not called")
	}
	if err := face.ctx.Err(); err != nil {
		t.Fatalf("inference context must outlive the request, got %v", err)
	}
}
