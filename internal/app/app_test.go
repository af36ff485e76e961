package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/kioskvoice/internal/age"
	agemock "github.com/MrWong99/kioskvoice/internal/age/mock"
	"github.com/MrWong99/kioskvoice/internal/app"
	"github.com/MrWong99/kioskvoice/internal/commands"
	"github.com/MrWong99/kioskvoice/internal/config"
	"github.com/MrWong99/kioskvoice/internal/store"
	audiomock "github.com/MrWong99/kioskvoice/pkg/audio/mock"
	llmmock "github.com/MrWong99/kioskvoice/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/kioskvoice/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/kioskvoice/pkg/provider/tts/mock"
)

// testConfig returns a config with short fixed-length captures and no cue.
func testConfig() *config.Config {
	cue := false
	return &config.Config{
		Voice: config.VoiceConfig{
			Capture: config.CaptureConfig{
				Mode:          config.CaptureFixed,
				FixedDuration: 60 * time.Millisecond,
				MinDuration:   60 * time.Millisecond,
				MaxDuration:   90 * time.Millisecond,
				Cue:           &cue,
			},
		},
	}
}

type testRig struct {
	dev  *audiomock.Device
	stt  *sttmock.Provider
	llm  *llmmock.Provider
	tts  *ttsmock.Provider
	cmds *commands.Queue
	log  *store.Memory
}

func newTestRig() *testRig {
	return &testRig{
		dev:  &audiomock.Device{},
		stt:  &sttmock.Provider{},
		llm:  &llmmock.Provider{},
		tts:  &ttsmock.Provider{},
		cmds: commands.New(0),
		log:  store.NewMemory(0),
	}
}

func (r *testRig) providers() *app.Providers {
	return &app.Providers{LLM: r.llm, STT: r.stt, TTS: r.tts, Audio: r.dev}
}

func (r *testRig) newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	base := []app.Option{
		app.WithCommands(r.cmds),
		app.WithTurnLog(r.log),
		app.WithManualInput(strings.NewReader(""), nil),
	}
	a, err := app.New(context.Background(), cfg, r.providers(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), &config.Config{}, nil, app.WithManualInput(strings.NewReader(""), nil))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer a.Shutdown(context.Background())

	if a.Commands() == nil {
		t.Error("Commands() = nil, want default queue")
	}
	if _, ok := a.TurnLog().(*store.Memory); !ok {
		t.Errorf("TurnLog() = %T, want *store.Memory", a.TurnLog())
	}
	if a.Faces() != nil {
		t.Error("Faces() != nil without an age estimator")
	}
	if n := len(a.Menu().Current().Items); n != 0 {
		t.Errorf("menu items = %d, want 0", n)
	}
	if len(a.Checkers()) != 0 {
		t.Errorf("checkers = %d, want 0", len(a.Checkers()))
	}
}

func TestNew_LoadsMenuFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "menu.json")
	body := `{"store":"버거하우스","items":[{"name":"불고기버거","category":"버거","price":11900}]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write menu: %v", err)
	}
	cfg := testConfig()
	cfg.Menu.Path = path

	a := newTestRig().newApp(t, cfg)
	m := a.Menu().Current()
	if m.Store != "버거하우스" || len(m.Items) != 1 {
		t.Errorf("menu = %+v, want store 버거하우스 with 1 item", m)
	}
}

func TestNew_FaceThresholdDefault(t *testing.T) {
	t.Parallel()

	est := &agemock.Estimator{Result: age.Estimate{Age: 61, Detected: true}}
	providers := &app.Providers{Age: est}
	a, err := app.New(context.Background(), &config.Config{}, providers, app.WithManualInput(strings.NewReader(""), nil))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer a.Shutdown(context.Background())

	faces := a.Faces()
	if faces == nil {
		t.Fatal("Faces() = nil, want service")
	}
	if faces.Threshold != age.DefaultThreshold {
		t.Errorf("Threshold = %d, want %d", faces.Threshold, age.DefaultThreshold)
	}
	res, err := faces.Analyze(context.Background(), []byte{0xff})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !res.IsElderly {
		t.Errorf("IsElderly = false for age %d", res.Age)
	}
}

func TestStart_WithoutAudio(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), &app.Providers{}, app.WithManualInput(strings.NewReader(""), nil))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer a.Shutdown(context.Background())

	_, err = a.Sessions().Start(context.Background(), "dineIn")
	if !errors.Is(err, app.ErrNoAudio) {
		t.Fatalf("Start() error = %v, want ErrNoAudio", err)
	}
	if a.Sessions().Status().Active {
		t.Error("session active after failed start")
	}
}

func TestRun_AutoStartReturnsWhenSessionEnds(t *testing.T) {
	t.Parallel()

	r := newTestRig()
	r.stt.Texts = []string{"종료"}
	a := r.newApp(t, testConfig(), app.WithAutoStart(true))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if a.Sessions().Status().Active {
		t.Error("session still active after Run returned")
	}
	cmds := r.cmds.Drain()
	if len(cmds) == 0 || cmds[len(cmds)-1].Action != commands.ActionVoiceChatEnded {
		t.Errorf("commands = %+v, want trailing %s", cmds, commands.ActionVoiceChatEnded)
	}
}

func TestRun_BlocksUntilCancelled(t *testing.T) {
	t.Parallel()

	a := newTestRig().newApp(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_Shutdown(t *testing.T) {
	t.Parallel()

	r := newTestRig()
	r.stt.Delay = 10 * time.Second
	a, err := app.New(context.Background(), testConfig(), r.providers(),
		app.WithTurnLog(r.log),
		app.WithManualInput(strings.NewReader(""), nil),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := a.Sessions().Start(context.Background(), "takeOut"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if a.Sessions().Status().Active {
		t.Error("session active after Shutdown")
	}
	if !r.dev.Closed() {
		t.Error("audio device not closed")
	}

	// Second call is a no-op.
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}
