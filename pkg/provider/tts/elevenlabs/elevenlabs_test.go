package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/kioskvoice/pkg/provider/tts"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") error = nil, want error")
	}
}

func TestOutputFormat(t *testing.T) {
	t.Parallel()
	if got := outputFormat(16000); got != "pcm_16000" {
		t.Errorf("outputFormat(16000) = %q", got)
	}
	if got := outputFormat(12345); got != "pcm_24000" {
		t.Errorf("outputFormat(12345) = %q, want pcm_24000 fallback", got)
	}
}

func TestSynthesize_CollectsAudioUntilFinal(t *testing.T) {
	t.Parallel()

	var (
		mu                 sync.Mutex
		gotPath, gotFormat string
		texts              []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotPath = r.URL.Path
		gotFormat = r.URL.Query().Get("output_format")
		mu.Unlock()
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var m textMessage
			_ = json.Unmarshal(msg, &m)
			mu.Lock()
			texts = append(texts, m.Text)
			mu.Unlock()
			if m.Text == "" {
				break
			}
		}
		for _, part := range [][]byte{{1, 0, 2, 0}, {3, 0}} {
			b, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString(part)})
			_ = conn.Write(ctx, websocket.MessageText, b)
		}
		b, _ := json.Marshal(audioResponse{IsFinal: true})
		_ = conn.Write(ctx, websocket.MessageText, b)
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	p, _ := New("xi-test", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	pcm, err := p.Synthesize(context.Background(), tts.Request{Text: "안녕하세요.", Voice: "v1", SampleRate: 24000})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(pcm) != 6 {
		t.Fatalf("len(pcm) = %d, want 6", len(pcm))
	}
	if gotPath != "/v1/text-to-speech/v1/stream-input" {
		t.Errorf("path = %q", gotPath)
	}
	if gotFormat != "pcm_24000" {
		t.Errorf("output_format = %q, want pcm_24000", gotFormat)
	}
	if len(texts) != 3 || texts[1] != "안녕하세요. " {
		t.Errorf("texts = %q, want handshake, sentence, end marker", texts)
	}
}

func TestSynthesize_RequiresVoice(t *testing.T) {
	t.Parallel()
	p, _ := New("xi-test")
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "x"}); err == nil {
		t.Fatal("Synthesize without voice: error = nil, want error")
	}
}
