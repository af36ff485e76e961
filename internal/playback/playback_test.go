package playback_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/kioskvoice/internal/playback"
	"github.com/MrWong99/kioskvoice/internal/speech"
	"github.com/MrWong99/kioskvoice/pkg/audio"
	audiomock "github.com/MrWong99/kioskvoice/pkg/audio/mock"
	ttsmock "github.com/MrWong99/kioskvoice/pkg/provider/tts/mock"
)

// unitText returns a unit whose synthesized length identifies it: the mock
// TTS emits 16 samples per rune plus 16.
func unitText(i int) string {
	return strings.Repeat("가", i+1) + "."
}

func unitIndex(c audio.Clip) int {
	samples := len(c.PCM) / 2
	return (samples-16)/16 - 2
}

func playedOrder(dev *audiomock.Device) []int {
	var out []int
	for _, c := range dev.Played() {
		out = append(out, unitIndex(c))
	}
	return out
}

func newSequencer(dev audio.Device, p *ttsmock.Provider, opts ...playback.Option) *playback.Sequencer {
	opts = append([]playback.Option{playback.WithDelays(0, 0)}, opts...)
	return playback.New(dev, speech.NewRemote(p), opts...)
}

func TestPlay_OrdersOutOfOrderSynthesis(t *testing.T) {
	t.Parallel()
	const n = 6
	delays := make(map[string]time.Duration, n)
	texts := make([]string, n)
	for i := range texts {
		texts[i] = unitText(i)
		delays[texts[i]] = time.Duration(rand.IntN(30)) * time.Millisecond
	}
	// Force the first unit to finish last.
	delays[texts[0]] = 40 * time.Millisecond

	p := &ttsmock.Provider{Latency: func(text string) time.Duration { return delays[text] }}
	dev := &audiomock.Device{PlayTime: 5 * time.Millisecond}

	rep, err := newSequencer(dev, p).Say(context.Background(), texts...)
	if err != nil {
		t.Fatalf("Say: %v", err)
	}
	if got := rep.Count(playback.Played); got != n {
		t.Fatalf("played = %d, want %d", got, n)
	}
	order := playedOrder(dev)
	for i, idx := range order {
		if idx != i {
			t.Fatalf("play order = %v, want ascending", order)
		}
	}
	if dev.Overlaps() != 0 {
		t.Errorf("overlaps = %d, want 0", dev.Overlaps())
	}
	if got, want := rep.Text(), strings.Join(texts, ""); got != want {
		t.Errorf("report text = %q, want %q", got, want)
	}
}

func TestPlay_SkipsFailedUnit(t *testing.T) {
	t.Parallel()
	texts := []string{unitText(0), unitText(1), unitText(2)}
	p := &ttsmock.Provider{FailTexts: map[string]error{texts[1]: errors.New("503")}}
	dev := &audiomock.Device{}

	rep, err := newSequencer(dev, p).Say(context.Background(), texts...)
	if err != nil {
		t.Fatalf("Say: %v", err)
	}
	want := []playback.Outcome{playback.Played, playback.SkippedFailed, playback.Played}
	for i, r := range rep.Results {
		if r.Outcome != want[i] {
			t.Errorf("unit %d outcome = %v, want %v", i, r.Outcome, want[i])
		}
	}
	if !errors.Is(rep.Results[1].Err, speech.ErrUnavailable) {
		t.Errorf("unit 1 err = %v, want ErrUnavailable", rep.Results[1].Err)
	}
	if got := playedOrder(dev); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("play order = %v, want [0 2]", got)
	}
}

func TestPlay_BlankUnitsAreNotSynthesized(t *testing.T) {
	t.Parallel()
	texts := []string{unitText(0), "\n", " \n", unitText(1)}
	p := &ttsmock.Provider{}
	dev := &audiomock.Device{}

	rep, err := newSequencer(dev, p).Say(context.Background(), texts...)
	if err != nil {
		t.Fatalf("Say: %v", err)
	}
	want := []playback.Outcome{playback.Played, playback.Blank, playback.Blank, playback.Played}
	for i, r := range rep.Results {
		if r.Outcome != want[i] {
			t.Errorf("unit %d outcome = %v, want %v", i, r.Outcome, want[i])
		}
	}
	if got := rep.Count(playback.SkippedFailed); got != 0 {
		t.Errorf("skipped-failed = %d, want 0", got)
	}
	if got := p.Texts(); len(got) != 2 {
		t.Errorf("synthesized %q, want 2 calls", got)
	}
	if got := playedOrder(dev); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("play order = %v, want [0 1]", got)
	}
	if got, want := rep.Text(), strings.Join(texts, ""); got != want {
		t.Errorf("report text = %q, want %q", got, want)
	}
}

func TestPlay_SkipsUnitThatNeverArrives(t *testing.T) {
	t.Parallel()
	texts := []string{unitText(0), unitText(1), unitText(2)}
	p := &ttsmock.Provider{Latency: func(text string) time.Duration {
		if text == texts[1] {
			return 5 * time.Second
		}
		return 0
	}}
	dev := &audiomock.Device{}

	start := time.Now()
	rep, err := newSequencer(dev, p, playback.WithSkipAfter(50*time.Millisecond)).Say(context.Background(), texts...)
	if err != nil {
		t.Fatalf("Say: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Say took %v, want the slow unit skipped", elapsed)
	}
	if got := rep.Results[1].Outcome; got != playback.SkippedTimeout {
		t.Errorf("unit 1 outcome = %v, want skipped-timeout", got)
	}
	if got := rep.Count(playback.Played); got != 2 {
		t.Errorf("played = %d, want 2", got)
	}
}

func TestPlay_CancelLetsInFlightUnitDrain(t *testing.T) {
	t.Parallel()
	texts := []string{unitText(0), unitText(1), unitText(2)}
	dev := &audiomock.Device{PlayTime: 150 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	rep, err := newSequencer(dev, &ttsmock.Provider{}).Say(ctx, texts...)
	if err != nil {
		t.Fatalf("Say: %v", err)
	}
	want := []playback.Outcome{playback.Played, playback.Dropped, playback.Dropped}
	for i, r := range rep.Results {
		if r.Outcome != want[i] {
			t.Errorf("unit %d outcome = %v, want %v", i, r.Outcome, want[i])
		}
	}
	events := dev.Events()
	if len(events) != 2 || events[1].Kind != audiomock.PlayFinished {
		t.Fatalf("events = %v, want one full play", events)
	}
	if d := events[1].At.Sub(events[0].At); d < 140*time.Millisecond {
		t.Errorf("in-flight unit played %v, want it to drain", d)
	}
}

func TestPlay_StopObservedWhileWaiting(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{Latency: func(string) time.Duration { return 5 * time.Second }}
	dev := &audiomock.Device{}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	rep, err := newSequencer(dev, p).Say(ctx, unitText(0), unitText(1))
	if err != nil {
		t.Fatalf("Say: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Say returned after %v, want prompt stop", elapsed)
	}
	if got := rep.Count(playback.Dropped); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}
	if dev.Count(audiomock.PlayStarted) != 0 {
		t.Error("a unit was played after stop")
	}
}

func TestPlay_DeviceFailureIsFatal(t *testing.T) {
	t.Parallel()
	dev := &audiomock.Device{PlayErr: errors.New("sink gone")}

	rep, err := newSequencer(dev, &ttsmock.Provider{}).Say(context.Background(), unitText(0), unitText(1))
	if !errors.Is(err, audio.ErrDevice) {
		t.Fatalf("err = %v, want ErrDevice", err)
	}
	if got := rep.Count(playback.Dropped); got != 2 {
		t.Errorf("dropped = %d, want 2", got)
	}
}

func TestPlay_StabilizationDelays(t *testing.T) {
	t.Parallel()
	dev := &audiomock.Device{}
	seq := playback.New(dev, speech.NewRemote(&ttsmock.Provider{}))

	start := time.Now()
	if _, err := seq.Say(context.Background(), unitText(0)); err != nil {
		t.Fatalf("Say: %v", err)
	}
	events := dev.Events()
	if len(events) == 0 {
		t.Fatal("nothing played")
	}
	if d := events[0].At.Sub(start); d < playback.PreDelay {
		t.Errorf("play started after %v, want at least %v", d, playback.PreDelay)
	}
	if d := time.Since(start); d < playback.PreDelay+playback.PostDelay {
		t.Errorf("Say returned after %v, want at least %v", d, playback.PreDelay+playback.PostDelay)
	}
}

func TestPlay_EmptyReply(t *testing.T) {
	t.Parallel()
	dev := &audiomock.Device{}
	rep, err := newSequencer(dev, &ttsmock.Provider{}).Say(context.Background())
	if err != nil {
		t.Fatalf("Say: %v", err)
	}
	if len(rep.Results) != 0 || dev.Count(audiomock.PlayStarted) != 0 {
		t.Errorf("results = %v, played = %d", rep.Results, dev.Count(audiomock.PlayStarted))
	}
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()
	want := map[playback.Outcome]string{
		playback.Played:         "played",
		playback.SkippedFailed:  "skipped-failed",
		playback.SkippedTimeout: "skipped-timeout",
		playback.Dropped:        "dropped",
		playback.Blank:          "blank",
	}
	for o, s := range want {
		if o.String() != s {
			t.Errorf("%d.String() = %q, want %q", o, o.String(), s)
		}
	}
}
