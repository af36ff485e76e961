package webrtc_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/kioskvoice/pkg/provider/vad"
	"github.com/MrWong99/kioskvoice/pkg/provider/vad/webrtc"
)

func TestNewSession_RejectsUnsupportedConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  vad.Config
	}{
		{"sample rate", vad.Config{SampleRate: 22050, FrameSizeMs: 30, Aggressiveness: 2}},
		{"frame size", vad.Config{SampleRate: 16000, FrameSizeMs: 25, Aggressiveness: 2}},
		{"aggressiveness", vad.Config{SampleRate: 16000, FrameSizeMs: 30, Aggressiveness: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := webrtc.New().NewSession(tt.cfg); err == nil {
				t.Fatal("NewSession error = nil, want error")
			}
		})
	}
}

func TestSession_SilenceAndFrameSize(t *testing.T) {
	t.Parallel()
	cfg := vad.Config{SampleRate: 16000, FrameSizeMs: 30, Aggressiveness: webrtc.DefaultAggressiveness}
	sess, err := webrtc.New().NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	speech, err := sess.IsSpeech(make([]byte, cfg.FrameBytes()))
	if err != nil {
		t.Fatalf("IsSpeech: %v", err)
	}
	if speech {
		t.Error("IsSpeech(silence) = true, want false")
	}

	if _, err := sess.IsSpeech(make([]byte, 10)); !errors.Is(err, vad.ErrFrameSize) {
		t.Fatalf("IsSpeech(short) error = %v, want ErrFrameSize", err)
	}
}
