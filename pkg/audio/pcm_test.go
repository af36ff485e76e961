package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/kioskvoice/pkg/audio"
)

func TestSamplesRoundTrip(t *testing.T) {
	t.Parallel()
	in := []int16{0, 1, -1, 32767, -32768, 1234}
	got := audio.Samples(audio.PCM(in))
	if len(got) != len(in) {
		t.Fatalf("len = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], in[i])
		}
	}
}

func TestPeak(t *testing.T) {
	t.Parallel()
	pcm := audio.PCM([]int16{100, -2000, 1500})
	if got := audio.Peak(pcm); got != 2000 {
		t.Fatalf("Peak = %d, want 2000", got)
	}
}

func TestNormalizePeak(t *testing.T) {
	t.Parallel()

	t.Run("scales peak to ratio of full scale", func(t *testing.T) {
		t.Parallel()
		pcm := audio.PCM([]int16{1000, -4000, 2000})
		out := audio.NormalizePeak(pcm, 0.8)
		want := int(math.Round(0.8 * audio.FullScale))
		if got := audio.Peak(out); got != want {
			t.Fatalf("Peak after normalize = %d, want %d", got, want)
		}
		s := audio.Samples(out)
		if s[1] >= 0 {
			t.Errorf("sign of loudest sample flipped: %d", s[1])
		}
	})

	t.Run("silence unchanged", func(t *testing.T) {
		t.Parallel()
		pcm := make([]byte, 64)
		out := audio.NormalizePeak(pcm, 0.8)
		if !bytes.Equal(out, pcm) {
			t.Fatal("silent input was modified")
		}
	})

	t.Run("input not mutated", func(t *testing.T) {
		t.Parallel()
		pcm := audio.PCM([]int16{10, -20})
		orig := append([]byte(nil), pcm...)
		_ = audio.NormalizePeak(pcm, 0.8)
		if !bytes.Equal(pcm, orig) {
			t.Fatal("NormalizePeak mutated its input")
		}
	})
}

func TestRMS(t *testing.T) {
	t.Parallel()
	if got := audio.RMS(nil); got != 0 {
		t.Fatalf("RMS(nil) = %v, want 0", got)
	}
	pcm := audio.PCM([]int16{16384, -16384, 16384, -16384})
	if got := audio.RMS(pcm); math.Abs(got-0.5) > 1e-6 {
		t.Fatalf("RMS = %v, want 0.5", got)
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()
	pcm := audio.PCM(make([]int16, 1600))
	if got := len(audio.ResampleMono16(pcm, 16000, 16000)); got != len(pcm) {
		t.Fatalf("same-rate len = %d, want %d", got, len(pcm))
	}
	if got := len(audio.ResampleMono16(pcm, 16000, 24000)); got != 2400*2 {
		t.Fatalf("upsampled len = %d, want %d", got, 2400*2)
	}
}

func TestClipDuration(t *testing.T) {
	t.Parallel()
	c := audio.NewClip(make([]byte, 32000), audio.CaptureFormat)
	if got := c.Duration(); got != time.Second {
		t.Fatalf("Duration = %v, want 1s", got)
	}
	if (audio.Clip{}).Duration() != 0 {
		t.Fatal("zero clip should have zero duration")
	}
}

func TestFormatFrameBytes(t *testing.T) {
	t.Parallel()
	if got := audio.CaptureFormat.FrameBytes(30 * time.Millisecond); got != 960 {
		t.Fatalf("FrameBytes(30ms) = %d, want 960", got)
	}
}

func TestEncodeWAV(t *testing.T) {
	t.Parallel()
	pcm := audio.PCM([]int16{1, 2, 3, 4})
	wav := audio.EncodeWAV(audio.NewClip(pcm, audio.CaptureFormat))

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad RIFF header: %q", wav[:12])
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Error("payload mismatch")
	}
}

func TestDecodeWAV(t *testing.T) {
	t.Parallel()
	pcm := audio.PCM([]int16{5, -5, 100})
	wav := audio.EncodeWAV(audio.NewClip(pcm, audio.SpeechFormat))

	c, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if c.Format() != audio.SpeechFormat {
		t.Errorf("format = %v, want %v", c.Format(), audio.SpeechFormat)
	}
	if !bytes.Equal(c.PCM, pcm) {
		t.Errorf("pcm = %v, want %v", c.PCM, pcm)
	}
}

func TestDecodeWAV_SkipsChunksBeforeData(t *testing.T) {
	t.Parallel()
	pcm := audio.PCM([]int16{7, 8})
	wav := audio.EncodeWAV(audio.NewClip(pcm, audio.CaptureFormat))

	// Insert an odd-sized LIST chunk between fmt and data.
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	withList := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)

	c, err := audio.DecodeWAV(withList)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if !bytes.Equal(c.PCM, pcm) || c.SampleRate != 16000 {
		t.Errorf("clip = %+v, want pcm %v at 16000 Hz", c, pcm)
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	t.Parallel()
	for _, in := range [][]byte{nil, []byte("RIFF0000WAVX"), []byte("not a wav file at all")} {
		if _, err := audio.DecodeWAV(in); !errors.Is(err, audio.ErrInvalidWAV) {
			t.Errorf("DecodeWAV(%q) error = %v, want ErrInvalidWAV", in, err)
		}
	}
}

func TestCue(t *testing.T) {
	t.Parallel()
	c := audio.Cue(audio.SpeechFormat)
	if got := c.Duration(); got != audio.CueDuration {
		t.Fatalf("cue duration = %v, want %v", got, audio.CueDuration)
	}
	if audio.Peak(c.PCM) == 0 {
		t.Fatal("cue is silent")
	}
}
