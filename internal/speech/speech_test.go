package speech_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/kioskvoice/internal/observe"
	"github.com/MrWong99/kioskvoice/internal/speech"
	"github.com/MrWong99/kioskvoice/pkg/audio"
	ttsmock "github.com/MrWong99/kioskvoice/pkg/provider/tts/mock"
)

func TestRemote_NormalizesPeak(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{}
	clip, err := speech.NewRemote(p).Synthesize(context.Background(), "불고기버거 하나요.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.Format() != audio.SpeechFormat {
		t.Errorf("format = %v, want %v", clip.Format(), audio.SpeechFormat)
	}
	ratio := speech.PeakRatio
	want := int(ratio * audio.FullScale)
	if got := audio.Peak(clip.PCM); got < want-1 || got > want+1 {
		t.Errorf("peak = %d, want about %d", got, want)
	}
}

func TestRemote_BuildsRequest(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{}
	s := speech.NewRemote(p, speech.WithVoice("alloy"), speech.WithSpeed(0.9), speech.WithMetrics(observe.DefaultMetrics()))
	if _, err := s.Synthesize(context.Background(), "  감사합니다.  "); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(p.SynthesizeCalls) != 1 {
		t.Fatalf("calls = %d, want 1", len(p.SynthesizeCalls))
	}
	req := p.SynthesizeCalls[0].Req
	if req.Text != "감사합니다." {
		t.Errorf("Text = %q, want trimmed", req.Text)
	}
	if req.Voice != "alloy" || req.Speed != 0.9 || req.SampleRate != 24000 {
		t.Errorf("request = %+v", req)
	}
}

func TestRemote_Unavailable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		p     *ttsmock.Provider
		text  string
		calls int
	}{
		{name: "provider error", p: &ttsmock.Provider{Err: errors.New("503")}, text: "네.", calls: 1},
		{name: "empty response", p: &ttsmock.Provider{PCM: []byte{}}, text: "네.", calls: 1},
		{name: "blank text", p: &ttsmock.Provider{}, text: " \n", calls: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := speech.NewRemote(tt.p).Synthesize(context.Background(), tt.text)
			if !errors.Is(err, speech.ErrUnavailable) {
				t.Fatalf("err = %v, want ErrUnavailable", err)
			}
			if got := len(tt.p.SynthesizeCalls); got != tt.calls {
				t.Errorf("provider calls = %d, want %d", got, tt.calls)
			}
		})
	}
}

func TestRemote_CancelIsNotUnavailable(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &ttsmock.Provider{Err: errors.New("aborted")}
	_, err := speech.NewRemote(p).Synthesize(ctx, "네.")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNew_SelectsStrategy(t *testing.T) {
	t.Parallel()
	if _, ok := speech.New(nil).(speech.Silent); !ok {
		t.Error("New(nil) is not Silent")
	}
	if _, ok := speech.New(&ttsmock.Provider{}).(*speech.Remote); !ok {
		t.Error("New(provider) is not *Remote")
	}
	if _, err := (speech.Silent{}).Synthesize(context.Background(), "네."); !errors.Is(err, speech.ErrUnavailable) {
		t.Errorf("Silent err = %v, want ErrUnavailable", err)
	}
}
