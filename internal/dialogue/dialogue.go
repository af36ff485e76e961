// Package dialogue runs one spoken ordering session: greet, then alternate
// between listening to the customer and speaking the reply until the
// customer says an exit phrase or the session is stopped.
//
// The [Loop] is the only writer of the session flags. The gate and the API
// read them through a [StateView].
package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrWong99/kioskvoice/internal/commands"
	"github.com/MrWong99/kioskvoice/internal/listen"
	"github.com/MrWong99/kioskvoice/internal/menu"
	"github.com/MrWong99/kioskvoice/internal/observe"
	"github.com/MrWong99/kioskvoice/internal/playback"
	"github.com/MrWong99/kioskvoice/internal/respond"
	"github.com/MrWong99/kioskvoice/internal/segment"
	"github.com/MrWong99/kioskvoice/internal/store"
	"github.com/MrWong99/kioskvoice/internal/transcribe"
	"github.com/MrWong99/kioskvoice/pkg/audio"
)

const (
	DefaultGreeting = "안녕하세요 어르신! 저는 주문을 도와드리는 AI입니다. 오늘 어떤 메뉴를 드시고 싶으신가요? 버거, 샐러드, 음료 중에서 추천해드릴까요?"
	DefaultFarewell = "대화를 종료합니다."

	// turnLogTimeout bounds a turn log write after the turn has finished.
	turnLogTimeout = 2 * time.Second
)

// DefaultExitPhrases end the session when contained in an utterance.
var DefaultExitPhrases = []string{"종료", "그만", "quit", "exit"}

// Option configures a [Loop].
type Option func(*Loop)

// WithManual sets the typed-entry fallback used when speech-to-text is
// unavailable.
func WithManual(m *transcribe.Manual) Option {
	return func(l *Loop) { l.manual = m }
}

// WithMenu sets the menu injected into prompts and matched against
// utterances.
func WithMenu(src menu.Source) Option {
	return func(l *Loop) { l.menu = src }
}

// WithCommands routes UI actions to q.
func WithCommands(q *commands.Queue) Option {
	return func(l *Loop) { l.commands = q }
}

// WithTurnLog appends each completed turn to log.
func WithTurnLog(log store.TurnLog) Option {
	return func(l *Loop) { l.turnLog = log }
}

// WithMetrics records turn counts on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithSessionID tags turn log records and logs.
func WithSessionID(id string) Option {
	return func(l *Loop) { l.sessionID = id }
}

// WithGreeting replaces the welcome utterance.
func WithGreeting(text string) Option {
	return func(l *Loop) {
		if text != "" {
			l.greeting = text
		}
	}
}

// WithFarewell replaces the closing utterance.
func WithFarewell(text string) Option {
	return func(l *Loop) {
		if text != "" {
			l.farewell = text
		}
	}
}

// WithExitPhrases replaces the exit phrases. Matching is case-insensitive.
func WithExitPhrases(phrases []string) Option {
	return func(l *Loop) {
		if len(phrases) > 0 {
			l.exitPhrases = lower(phrases)
		}
	}
}

// WithContextSize sets the text turn and clip capacities of the window.
func WithContextSize(turns, clips int) Option {
	return func(l *Loop) { l.window = NewContextWindow(turns, clips) }
}

// Loop is one voice session. Run it once.
type Loop struct {
	dev       audio.Device
	gate      listen.Gate
	stt       transcribe.Transcriber
	generator respond.Generator
	seq       *playback.Sequencer

	manual      *transcribe.Manual
	menu        menu.Source
	commands    *commands.Queue
	turnLog     store.TurnLog
	metrics     *observe.Metrics
	sessionID   string
	greeting    string
	farewell    string
	exitPhrases []string

	state  sessionState
	window *ContextWindow
}

// New creates a Loop. The sequencer must play on dev.
func New(dev audio.Device, gate listen.Gate, stt transcribe.Transcriber, gen respond.Generator, seq *playback.Sequencer, opts ...Option) *Loop {
	l := &Loop{
		dev:         dev,
		gate:        gate,
		stt:         stt,
		generator:   gen,
		seq:         seq,
		menu:        menu.NewStatic(nil),
		greeting:    DefaultGreeting,
		farewell:    DefaultFarewell,
		exitPhrases: lower(DefaultExitPhrases),
		window:      NewContextWindow(0, 0),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// View returns the read-only session state.
func (l *Loop) View() StateView { return &l.state }

// History returns the text turns in the context window, oldest first. Only
// call it after Run has returned or from the loop goroutine.
func (l *Loop) History() []Turn { return l.window.Turns.All() }

// Run greets the customer and runs turns until an exit phrase, cancellation
// of ctx, or a device failure. Only device failures are returned.
func (l *Loop) Run(ctx context.Context) error {
	log := observe.Logger(ctx).With("session_id", l.sessionID)
	l.state.update(func(s *SessionState) { s.Active = true })
	defer func() {
		l.state.enter(Terminated)
		if l.commands != nil {
			l.commands.Enqueue(commands.ActionVoiceChatEnded, map[string]any{"session_id": l.sessionID})
		}
		log.Info("dialogue: session ended")
	}()

	l.state.enter(Greeting)
	if err := l.say(ctx, l.greeting); err != nil {
		return err
	}

	for ctx.Err() == nil {
		l.state.enter(Listening)
		clip, err := l.gate.Listen(ctx, l.dev, &l.state)
		if err != nil {
			if errors.Is(err, audio.ErrDevice) {
				log.Error("dialogue: device failure while listening", "err", err)
				return err
			}
			log.Warn("dialogue: listen failed", "err", err)
			continue
		}
		if clip.Empty() {
			continue
		}
		l.window.Clips.Push(clip)

		l.state.enter(Transcribing)
		text, manual, err := l.transcribe(ctx, clip)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, transcribe.ErrEmpty) {
				log.Warn("dialogue: no usable transcript", "err", err)
			}
			continue
		}
		log.Info("dialogue: user said", "text", text, "manual", manual)

		if l.isExit(text) {
			l.state.speak(true)
			err := l.say(ctx, l.farewell)
			l.state.speak(false)
			return err
		}

		l.state.enter(Responding)
		if err := l.respond(ctx, text, manual); err != nil {
			log.Error("dialogue: device failure while speaking", "err", err)
			return err
		}
	}
	return nil
}

// transcribe converts clip to text, falling back to manual entry when the
// speech-to-text service is unavailable. manual reports whether the text was
// typed.
func (l *Loop) transcribe(ctx context.Context, clip audio.Clip) (text string, manual bool, err error) {
	text, err = l.stt.Transcribe(ctx, clip)
	if err == nil || !errors.Is(err, transcribe.ErrUnavailable) || l.manual == nil {
		return text, false, err
	}
	if _, already := l.stt.(*transcribe.Manual); already {
		return text, true, err
	}
	observe.Logger(ctx).Warn("dialogue: speech-to-text unavailable, asking for typed input", "err", err)
	text, err = l.manual.ReadLine(ctx)
	return text, true, err
}

func (l *Loop) isExit(text string) bool {
	t := strings.ToLower(text)
	for _, p := range l.exitPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// say plays a fixed text through the segmenter and sequencer.
func (l *Loop) say(ctx context.Context, text string) error {
	seg := segment.New()
	units := seg.Push(text)
	if u, ok := seg.Flush(); ok {
		units = append(units, u)
	}
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
	}
	_, err := l.seq.Say(ctx, texts...)
	return err
}

// respond streams the reply to text, speaks it unit by unit and records the
// turn.
func (l *Loop) respond(ctx context.Context, text string, manual bool) error {
	ctx, span := observe.StartSpan(ctx, "dialogue.turn")
	defer span.End()
	log := observe.Logger(ctx).With("session_id", l.sessionID)
	start := time.Now()
	m := l.menu.Current()

	if items := m.Mentioned(text); len(items) > 0 && l.commands != nil {
		names := make([]string, len(items))
		for i, it := range items {
			names[i] = it.Name
		}
		l.commands.Enqueue(commands.ActionMenuMentioned, map[string]any{"items": names, "text": text})
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var degraded atomic.Bool
	frags := l.generator.Generate(turnCtx, text, l.window.Exchanges(), m.Context())
	segmented := segment.Run(turnCtx, frags, func(f respond.Fragment) string {
		if f.Degraded() {
			degraded.Store(true)
		}
		return f.Text
	})

	// Record units on their way to the sequencer.
	tee := make(chan segment.Utterance)
	collected := make(chan []segment.Utterance, 1)
	go func() {
		defer close(tee)
		var got []segment.Utterance
		defer func() { collected <- got }()
		for u := range segmented {
			got = append(got, u)
			select {
			case tee <- u:
			case <-turnCtx.Done():
				return
			}
		}
	}()

	report, err := l.seq.Play(turnCtx, tee)
	cancel()
	units := <-collected
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	turn := Turn{
		User:     text,
		Units:    units,
		Reply:    report.Text(),
		Degraded: degraded.Load() || manual || report.Count(playback.SkippedFailed) > 0,
		At:       start,
	}
	l.window.Turns.Push(turn)
	log.Info("dialogue: turn complete",
		"units", len(report.Results),
		"played", report.Count(playback.Played),
		"degraded", turn.Degraded,
		"elapsed", time.Since(start),
	)

	if l.metrics != nil {
		l.metrics.RecordTurn(ctx, turn.Degraded)
	}
	if l.turnLog != nil {
		logCtx, cancelLog := context.WithTimeout(context.WithoutCancel(ctx), turnLogTimeout)
		defer cancelLog()
		if err := l.turnLog.Append(logCtx, store.Turn{
			SessionID: l.sessionID,
			User:      turn.User,
			Assistant: turn.Reply,
			Degraded:  turn.Degraded,
			Units:     len(report.Results),
			Played:    report.Count(playback.Played),
			At:        start,
			Duration:  time.Since(start),
		}); err != nil {
			log.Warn("dialogue: turn log append failed", "err", err)
		}
	}
	return nil
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
