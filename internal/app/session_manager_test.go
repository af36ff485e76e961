package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/kioskvoice/internal/app"
	"github.com/MrWong99/kioskvoice/internal/dialogue"
	"github.com/MrWong99/kioskvoice/pkg/audio"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionManager_StartStop(t *testing.T) {
	t.Parallel()

	r := newTestRig()
	r.stt.Delay = 10 * time.Second
	sm := r.newApp(t, testConfig()).Sessions()

	ctx := context.Background()
	info, err := sm.Start(ctx, "dineIn")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !sm.Status().Active {
		t.Fatal("expected session to be active after Start")
	}
	if info.SessionID == "" {
		t.Error("SessionID is empty")
	}
	if info.OrderType != "dineIn" {
		t.Errorf("OrderType = %q, want %q", info.OrderType, "dineIn")
	}
	if got := sm.Status().Info; got != info {
		t.Errorf("Status().Info = %+v, want %+v", got, info)
	}

	waitFor(t, "transcription", func() bool { return sm.Status().State.Phase == dialogue.Transcribing })

	stopped := time.Now()
	if err := sm.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if d := time.Since(stopped); d > time.Second {
		t.Errorf("Stop took %v", d)
	}
	if sm.Status().Active {
		t.Error("expected session to be inactive after Stop")
	}
	if got := sm.Status().Info; got != (app.SessionInfo{}) {
		t.Errorf("Status().Info after Stop = %+v, want zero value", got)
	}
}

func TestSessionManager_StopWithoutSession(t *testing.T) {
	t.Parallel()

	sm := newTestRig().newApp(t, testConfig()).Sessions()
	if err := sm.Stop(context.Background()); !errors.Is(err, app.ErrNoSession) {
		t.Errorf("Stop() error = %v, want ErrNoSession", err)
	}
	if err := sm.Wait(context.Background()); !errors.Is(err, app.ErrNoSession) {
		t.Errorf("Wait() error = %v, want ErrNoSession", err)
	}
}

func TestSessionManager_StartReplacesActive(t *testing.T) {
	t.Parallel()

	r := newTestRig()
	r.stt.Delay = 10 * time.Second
	sm := r.newApp(t, testConfig()).Sessions()

	ctx := context.Background()
	first, err := sm.Start(ctx, "dineIn")
	if err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	second, err := sm.Start(ctx, "takeOut")
	if err != nil {
		t.Fatalf("second Start() error: %v", err)
	}
	if first.SessionID == second.SessionID {
		t.Error("second session reused the first session ID")
	}
	if got := sm.Status().Info.OrderType; got != "takeOut" {
		t.Errorf("OrderType = %q, want %q", got, "takeOut")
	}
	if err := sm.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

func TestSessionManager_EndsOnExitPhrase(t *testing.T) {
	t.Parallel()

	r := newTestRig()
	r.stt.Texts = []string{"그만"}
	sm := r.newApp(t, testConfig()).Sessions()

	if _, err := sm.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sm.Wait(ctx); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if sm.Status().Active {
		t.Error("session still active after the loop returned")
	}
	if st := sm.Status(); st.Active || st.LastError != "" {
		t.Errorf("Status() = %+v, want inactive without error", st)
	}
}

func TestSessionManager_DeviceFailureRecorded(t *testing.T) {
	t.Parallel()

	r := newTestRig()
	r.dev.OpenErr = errors.New("no microphone")
	sm := r.newApp(t, testConfig()).Sessions()

	if _, err := sm.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := sm.Wait(ctx)
	if !errors.Is(err, audio.ErrDevice) {
		t.Fatalf("Wait() error = %v, want ErrDevice", err)
	}
	if st := sm.Status(); st.Active || st.LastError == "" {
		t.Errorf("Status() = %+v, want inactive with last error", st)
	}
}

func TestSessionManager_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := newTestRig()
	r.stt.Delay = 10 * time.Second
	sm := r.newApp(t, testConfig()).Sessions()

	if _, err := sm.Start(context.Background(), "dineIn"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			if st := sm.Status(); st.Active && st.Info.SessionID == "" {
				t.Error("active status without a session id")
			}
		})
	}
	wg.Wait()

	if err := sm.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}
