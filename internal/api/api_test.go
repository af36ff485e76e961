package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/kioskvoice/internal/age"
	"github.com/MrWong99/kioskvoice/internal/app"
	"github.com/MrWong99/kioskvoice/internal/commands"
	"github.com/MrWong99/kioskvoice/internal/health"
	"github.com/MrWong99/kioskvoice/internal/menu"
)

// fakeSessions records calls under a mutex.
type fakeSessions struct {
	mu       sync.Mutex
	active   bool
	startErr error
	stopErr  error
	starts   []string
	stops    int
}

func (f *fakeSessions) Start(_ context.Context, orderType string) (app.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, orderType)
	if f.startErr != nil {
		return app.SessionInfo{}, f.startErr
	}
	f.active = true
	return app.SessionInfo{SessionID: "s-1", OrderType: orderType}, nil
}

func (f *fakeSessions) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.stopErr != nil {
		return f.stopErr
	}
	if !f.active {
		return app.ErrNoSession
	}
	f.active = false
	return nil
}

func (f *fakeSessions) Status() app.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return app.Status{}
	}
	return app.Status{Active: true, Info: app.SessionInfo{SessionID: "s-1"}}
}

type fakeFaces struct {
	res  age.Result
	err  error
	imgs [][]byte
	mu   sync.Mutex
}

func (f *fakeFaces) Analyze(_ context.Context, img []byte) (age.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imgs = append(f.imgs, img)
	return f.res, f.err
}

func do(t *testing.T, s *Server, method, path, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	if out != nil {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rec
}

func TestStartStopVoiceChat(t *testing.T) {
	t.Parallel()

	sessions := &fakeSessions{}
	s := New(sessions, commands.New(0))

	var started sessionResponse
	rec := do(t, s, http.MethodPost, "/start-voice-chat", `{"order_type":"dineIn"}`, &started)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, want 200", rec.Code)
	}
	if !started.Success || !started.SessionActive || started.SessionID != "s-1" {
		t.Errorf("start = %+v, want active session s-1", started)
	}
	if !strings.HasPrefix(started.Message, "dineIn 주문을 위한") {
		t.Errorf("start message = %q", started.Message)
	}
	if len(sessions.starts) != 1 || sessions.starts[0] != "dineIn" {
		t.Errorf("starts = %v, want [dineIn]", sessions.starts)
	}

	var st app.Status
	do(t, s, http.MethodGet, "/voice-chat/status", "", &st)
	if !st.Active {
		t.Error("status not active after start")
	}

	var stopped sessionResponse
	do(t, s, http.MethodPost, "/stop-voice-chat", "", &stopped)
	if !stopped.Success || stopped.SessionActive || stopped.Message != msgStopped {
		t.Errorf("stop = %+v, want success %q", stopped, msgStopped)
	}

	do(t, s, http.MethodPost, "/stop-voice-chat", "", &stopped)
	if !stopped.Success || stopped.Message != msgAlreadyStopped {
		t.Errorf("second stop = %+v, want success %q", stopped, msgAlreadyStopped)
	}
}

func TestStartVoiceChat_Failure(t *testing.T) {
	t.Parallel()

	s := New(&fakeSessions{startErr: app.ErrNoAudio}, commands.New(0))
	var resp sessionResponse
	rec := do(t, s, http.MethodPost, "/start-voice-chat", `{"order_type":"takeOut"}`, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if resp.Success || resp.SessionActive {
		t.Errorf("resp = %+v, want failure", resp)
	}
	if !strings.Contains(resp.Message, "오류") {
		t.Errorf("message = %q, want error text", resp.Message)
	}
}

func TestStopVoiceChat_Failure(t *testing.T) {
	t.Parallel()

	s := New(&fakeSessions{active: true, stopErr: context.DeadlineExceeded}, commands.New(0))
	var resp sessionResponse
	do(t, s, http.MethodPost, "/stop-voice-chat", "", &resp)
	if resp.Success {
		t.Errorf("resp = %+v, want failure", resp)
	}
	if !resp.SessionActive {
		t.Error("SessionActive = false while the session is still running")
	}
}

func TestActionAndCommands(t *testing.T) {
	t.Parallel()

	q := commands.New(0)
	q.Enqueue(commands.ActionMenuMentioned, map[string]any{"items": []string{"콜라"}})
	s := New(&fakeSessions{}, q)

	var ack actionResponse
	do(t, s, http.MethodPost, "/voice-chat/action", `{"action":"add_to_cart","data":{"item":"불고기버거"}}`, &ack)
	if !ack.Success {
		t.Errorf("action = %+v, want success", ack)
	}

	var polled commandsResponse
	do(t, s, http.MethodGet, "/voice-chat/commands", "", &polled)
	if polled.Count != 2 || len(polled.Commands) != 2 {
		t.Fatalf("count = %d (%d commands), want 2", polled.Count, len(polled.Commands))
	}
	if polled.Commands[0].Action != commands.ActionMenuMentioned || polled.Commands[1].Action != "add_to_cart" {
		t.Errorf("actions = %q, %q", polled.Commands[0].Action, polled.Commands[1].Action)
	}
	if got := polled.Commands[1].Data["item"]; got != "불고기버거" {
		t.Errorf("data.item = %v, want 불고기버거", got)
	}

	// Drained.
	do(t, s, http.MethodGet, "/voice-chat/commands", "", &polled)
	if polled.Count != 0 || polled.Commands == nil {
		t.Errorf("second poll = %+v, want empty list", polled)
	}
}

func TestAction_RequiresName(t *testing.T) {
	t.Parallel()

	q := commands.New(0)
	s := New(&fakeSessions{}, q)
	rec := do(t, s, http.MethodPost, "/voice-chat/action", `{"data":{}}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if q.Len() != 0 {
		t.Errorf("queue length = %d, want 0", q.Len())
	}
}

func TestFaceRecognition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		faces       *fakeFaces
		wantCode    int
		wantSuccess bool
		wantElderly bool
		wantMessage string
	}{
		{
			name:        "elderly",
			faces:       &fakeFaces{res: age.Result{Age: 67, IsElderly: true, Detected: true, Score: 0.9}},
			wantCode:    http.StatusOK,
			wantSuccess: true,
			wantElderly: true,
		},
		{
			name:        "younger",
			faces:       &fakeFaces{res: age.Result{Age: 34, Detected: true}},
			wantCode:    http.StatusOK,
			wantSuccess: true,
		},
		{
			name:        "no face",
			faces:       &fakeFaces{},
			wantCode:    http.StatusOK,
			wantMessage: msgNoFace,
		},
		{
			name:     "estimator error",
			faces:    &fakeFaces{err: errors.New("model missing")},
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := New(&fakeSessions{}, commands.New(0), WithFaces(tt.faces))
			req := httptest.NewRequest(http.MethodPost, "/face-recognition", bytes.NewReader([]byte{0xff, 0xd8}))
			req.Header.Set("Content-Type", "image/jpeg")
			rec := httptest.NewRecorder()
			s.Echo().ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp faceResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Success != tt.wantSuccess {
				t.Errorf("success = %v, want %v", resp.Success, tt.wantSuccess)
			}
			if resp.IsElderly != tt.wantElderly {
				t.Errorf("is_elderly = %v, want %v", resp.IsElderly, tt.wantElderly)
			}
			if tt.wantSuccess && (resp.Age == nil || *resp.Age != tt.faces.res.Age) {
				t.Errorf("age = %v, want %d", resp.Age, tt.faces.res.Age)
			}
			if !tt.wantSuccess && resp.ErrorMessage == "" {
				t.Error("error_message is empty on failure")
			}
			if tt.wantMessage != "" && resp.ErrorMessage != tt.wantMessage {
				t.Errorf("error_message = %q, want %q", resp.ErrorMessage, tt.wantMessage)
			}
			if len(tt.faces.imgs) != 1 || len(tt.faces.imgs[0]) != 2 {
				t.Errorf("analyzed images = %v, want the 2-byte body", tt.faces.imgs)
			}
		})
	}
}

func TestFaceRecognition_Unavailable(t *testing.T) {
	t.Parallel()

	s := New(&fakeSessions{}, commands.New(0))
	var resp faceResponse
	rec := do(t, s, http.MethodPost, "/face-recognition", "", &resp)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if resp.Success || resp.ErrorMessage != msgFacesUnavailable {
		t.Errorf("resp = %+v", resp)
	}
}

func TestProbesAndMetrics(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("kiosk_turns_total 3\n"))
	})
	s := New(&fakeSessions{}, commands.New(0),
		WithHealth(health.New()),
		WithMetricsHandler(metrics),
	)

	rec := do(t, s, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "kiosk_turns_total") {
		t.Errorf("/metrics = %d %q", rec.Code, rec.Body.String())
	}
}

func TestCORSAllowsKioskScreen(t *testing.T) {
	t.Parallel()

	s := New(&fakeSessions{}, commands.New(0))
	req := httptest.NewRequest(http.MethodGet, "/voice-chat/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want the kiosk origin", got)
	}
}

func TestSearchMenu(t *testing.T) {
	t.Parallel()

	src := menu.NewStatic(&menu.Menu{Items: []menu.Item{
		{Name: "불고기버거", Category: "버거", Price: 11900},
		{Name: "치즈버거", Category: "버거", Price: 9900},
		{Name: "콜라", Category: "음료", Price: 2000},
	}})
	s := New(&fakeSessions{}, commands.New(0), WithMenu(src))

	tests := []struct {
		query string
		want  []string
	}{
		{"%EB%B2%84%EA%B1%B0", []string{"불고기버거", "치즈버거"}},
		{"%EC%9D%8C%EB%A3%8C", []string{"콜라"}},
		{"", nil},
	}
	for _, tt := range tests {
		var resp menuSearchResponse
		rec := do(t, s, http.MethodGet, "/menu/search?q="+tt.query, "", &resp)
		if rec.Code != http.StatusOK {
			t.Fatalf("search %q status = %d, want 200", tt.query, rec.Code)
		}
		if !resp.Success || resp.Count != len(tt.want) || len(resp.Items) != len(tt.want) {
			t.Fatalf("search %q = %+v, want %v", tt.query, resp, tt.want)
		}
		for i, it := range resp.Items {
			if it.Name != tt.want[i] {
				t.Errorf("search %q item %d = %q, want %q", tt.query, i, it.Name, tt.want[i])
			}
		}
	}
}

func TestSearchMenu_NotConfigured(t *testing.T) {
	t.Parallel()
	s := New(&fakeSessions{}, commands.New(0))
	rec := do(t, s, http.MethodGet, "/menu/search?q=cola", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
