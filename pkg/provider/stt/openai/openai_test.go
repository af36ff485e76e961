package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/kioskvoice/pkg/audio"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New("", ""); err == nil {
		t.Fatal("New with empty key: error = nil, want error")
	}
}

func TestTranscribe_UploadsAndRemovesScratchFile(t *testing.T) {
	t.Parallel()

	var gotModel, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "불고기버거 하나요"})
	}))
	defer srv.Close()

	dir := t.TempDir()
	p, err := New("sk-test", "", WithBaseURL(srv.URL), WithScratchDir(dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), audio.NewClip(make([]byte, 3200), audio.CaptureFormat))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "불고기버거 하나요" {
		t.Errorf("text = %q, want 불고기버거 하나요", text)
	}
	if gotModel != defaultModel {
		t.Errorf("model = %q, want %q", gotModel, defaultModel)
	}
	if gotLang != "ko" {
		t.Errorf("language = %q, want ko", gotLang)
	}

	left, _ := filepath.Glob(filepath.Join(dir, "*.wav"))
	if len(left) != 0 {
		t.Errorf("scratch files left behind: %v", left)
	}
}

func TestTranscribe_ErrorRemovesScratchFile(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"bad"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	dir := t.TempDir()
	p, _ := New("sk-test", "", WithBaseURL(srv.URL), WithScratchDir(dir))
	if _, err := p.Transcribe(context.Background(), audio.NewClip(make([]byte, 320), audio.CaptureFormat)); err == nil {
		t.Fatal("Transcribe error = nil, want error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("scratch dir not empty after failure: %d entries", len(entries))
	}
}
