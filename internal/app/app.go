// Package app wires the kiosk subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects the shared
// subsystems (menu, command queue, turn log, face check), the
// [SessionManager] builds one dialogue pipeline per voice session, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithMenu, WithTurnLog,
// etc.). When an option is not provided, New creates real implementations
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/MrWong99/kioskvoice/internal/age"
	"github.com/MrWong99/kioskvoice/internal/commands"
	"github.com/MrWong99/kioskvoice/internal/config"
	"github.com/MrWong99/kioskvoice/internal/dialogue"
	"github.com/MrWong99/kioskvoice/internal/health"
	"github.com/MrWong99/kioskvoice/internal/listen"
	"github.com/MrWong99/kioskvoice/internal/menu"
	"github.com/MrWong99/kioskvoice/internal/observe"
	"github.com/MrWong99/kioskvoice/internal/playback"
	"github.com/MrWong99/kioskvoice/internal/respond"
	"github.com/MrWong99/kioskvoice/internal/speech"
	"github.com/MrWong99/kioskvoice/internal/store"
	"github.com/MrWong99/kioskvoice/internal/store/postgres"
	"github.com/MrWong99/kioskvoice/internal/transcribe"
	"github.com/MrWong99/kioskvoice/pkg/audio"
	"github.com/MrWong99/kioskvoice/pkg/provider/llm"
	"github.com/MrWong99/kioskvoice/pkg/provider/stt"
	"github.com/MrWong99/kioskvoice/pkg/provider/tts"
	"github.com/MrWong99/kioskvoice/pkg/provider/vad"
)

// ErrNoAudio is returned when a voice session is requested without an audio
// device.
var ErrNoAudio = errors.New("app: no audio device configured")

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured and the matching stage runs degraded.
// Populated by main.go via the config registry.
type Providers struct {
	LLM    llm.Provider
	STT    stt.Provider
	TTS    tts.Provider
	VAD    vad.Engine
	Audio  audio.Device
	Age    age.Estimator
	Camera age.Camera
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics   *observe.Metrics
	menu      menu.Source
	commands  *commands.Queue
	turnLog   store.TurnLog
	manualIn  io.Reader
	manualOut io.Writer
	manual    *transcribe.Manual
	filter    transcribe.Filter
	faces     *age.Service
	sessions  *SessionManager
	autoStart bool
	checkers  []health.Checker

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMenu injects a menu source instead of opening cfg.Menu.Path.
func WithMenu(src menu.Source) Option {
	return func(a *App) { a.menu = src }
}

// WithTurnLog injects a turn log instead of creating one from config.
func WithTurnLog(l store.TurnLog) Option {
	return func(a *App) { a.turnLog = l }
}

// WithCommands injects the command queue.
func WithCommands(q *commands.Queue) Option {
	return func(a *App) { a.commands = q }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithManualInput sets where typed fallback input is read from and where its
// prompt is written. The default is stdin and stdout.
func WithManualInput(in io.Reader, prompt io.Writer) Option {
	return func(a *App) {
		a.manualIn = in
		a.manualOut = prompt
	}
}

// WithAutoStart makes Run start a voice session immediately and return when
// it ends.
func WithAutoStart(enabled bool) Option {
	return func(a *App) { a.autoStart = enabled }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring the shared subsystems together. The providers
// struct comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		manualIn:  os.Stdin,
		manualOut: os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Menu ──────────────────────────────────────────────────────────
	if err := a.initMenu(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init menu: %w", err)
	}

	// ── 2. Turn log ──────────────────────────────────────────────────────
	if err := a.initTurnLog(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init turn log: %w", err)
	}

	// ── 3. Command queue ─────────────────────────────────────────────────
	if a.commands == nil {
		a.commands = commands.New(commands.DefaultCapacity)
	}

	// ── 4. Manual entry ──────────────────────────────────────────────────
	a.filter = transcribe.NewFilter(cfg.Voice.MinChars, cfg.Voice.Denylist)
	a.manual = transcribe.NewManual(a.manualIn, a.manualOut, a.filter)

	// ── 5. Face check ────────────────────────────────────────────────────
	if providers.Age != nil {
		threshold := cfg.Age.Threshold
		if threshold == 0 {
			threshold = age.DefaultThreshold
		}
		a.faces = &age.Service{Estimator: providers.Age, Camera: providers.Camera, Threshold: threshold}
	}

	// ── 6. Session manager ───────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Factory: a.newLoop,
		Metrics: a.metrics,
	})

	if providers.Audio != nil {
		a.closers = append(a.closers, providers.Audio.Close)
	}

	slog.Info("app initialised",
		"llm", providers.LLM != nil,
		"stt", providers.STT != nil,
		"tts", providers.TTS != nil,
		"vad", providers.VAD != nil,
		"audio", providers.Audio != nil,
		"age", providers.Age != nil,
		"menu_items", len(a.menu.Current().Items),
	)
	return a, nil
}

func (a *App) initMenu() error {
	if a.menu != nil {
		return nil
	}
	if a.cfg.Menu.Path == "" {
		a.menu = menu.NewStatic(nil)
		return nil
	}
	src, stop, err := menu.Open(a.cfg.Menu.Path, a.cfg.Menu.WatchInterval)
	if err != nil {
		return err
	}
	a.menu = src
	a.closers = append(a.closers, func() error {
		stop()
		return nil
	})
	return nil
}

func (a *App) initTurnLog(ctx context.Context) error {
	if a.turnLog != nil {
		return nil
	}
	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		a.turnLog = store.NewMemory(store.DefaultMemoryCapacity)
		return nil
	}
	pg, err := postgres.New(ctx, dsn)
	if err != nil {
		return err
	}
	a.turnLog = pg
	a.checkers = append(a.checkers, health.Checker{Name: "postgres", Check: pg.Ping})
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	slog.Info("turn log connected to postgres")
	return nil
}

// newLoop builds the per-session dialogue pipeline from the configured
// providers. Stages without a provider fall back to their degraded strategy.
func (a *App) newLoop(sessionID, orderType string) (*dialogue.Loop, error) {
	dev := a.providers.Audio
	if dev == nil {
		return nil, ErrNoAudio
	}
	v := a.cfg.Voice
	c := v.Capture

	engine := a.providers.VAD
	if c.Mode == config.CaptureFixed {
		engine = nil
	}
	gate := listen.New(engine,
		listen.WithBounds(c.MinDuration, c.MaxDuration),
		listen.WithFixedDuration(c.FixedDuration),
		listen.WithSilenceHangover(c.SilenceHangover),
		listen.WithTriggerFrames(c.TriggerFrames),
		listen.WithCue(c.Cue == nil || *c.Cue),
	)

	tr := transcribe.New(a.providers.STT, a.manual,
		transcribe.WithFilter(a.filter),
		transcribe.WithMetrics(a.metrics),
	)
	gen := respond.New(a.providers.LLM,
		respond.WithTemperature(v.Temperature),
		respond.WithMetrics(a.metrics),
	)
	synth := speech.New(a.providers.TTS,
		speech.WithVoice(v.Voice),
		speech.WithSpeed(v.SpeechSpeed),
		speech.WithMetrics(a.metrics),
	)
	seq := playback.New(dev, synth,
		playback.WithSkipAfter(v.Playback.SkipAfter),
		playback.WithMetrics(a.metrics),
	)

	slog.Debug("app: built dialogue pipeline",
		"session_id", sessionID,
		"order_type", orderType,
		"vad", engine != nil,
	)
	return dialogue.New(dev, gate, tr, gen, seq,
		dialogue.WithManual(a.manual),
		dialogue.WithMenu(a.menu),
		dialogue.WithCommands(a.commands),
		dialogue.WithTurnLog(a.turnLog),
		dialogue.WithMetrics(a.metrics),
		dialogue.WithSessionID(sessionID),
		dialogue.WithGreeting(v.Greeting),
		dialogue.WithFarewell(v.Farewell),
		dialogue.WithExitPhrases(v.ExitPhrases),
		dialogue.WithContextSize(v.Context.Turns, v.Context.Clips),
	), nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Sessions returns the voice session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Commands returns the queue polled by the kiosk screen.
func (a *App) Commands() *commands.Queue { return a.commands }

// Faces returns the face age service, or nil when no estimator is configured.
func (a *App) Faces() *age.Service { return a.faces }

// Menu returns the live menu source.
func (a *App) Menu() menu.Source { return a.menu }

// TurnLog returns the completed-turn log.
func (a *App) TurnLog() store.TurnLog { return a.turnLog }

// Metrics returns the instruments shared by all subsystems.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// Checkers returns the readiness probes of the connected backends.
func (a *App) Checkers() []health.Checker { return a.checkers }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run blocks until ctx is cancelled. With [WithAutoStart] it starts a voice
// session first and returns as soon as that session ends, with its error.
func (a *App) Run(ctx context.Context) error {
	if !a.autoStart {
		<-ctx.Done()
		return nil
	}
	info, err := a.sessions.Start(ctx, "")
	if err != nil {
		return fmt.Errorf("app: auto-start: %w", err)
	}
	slog.Info("app: auto-started voice session", "session_id", info.SessionID)
	return a.sessions.Wait(ctx)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the active session and then calls every closer. It is safe
// to call more than once; only the first call does anything.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down")
		if stopErr := a.sessions.Stop(ctx); stopErr != nil && !errors.Is(stopErr, ErrNoSession) {
			err = fmt.Errorf("app: stop session: %w", stopErr)
		}
		a.runClosers()
	})
	return err
}

func (a *App) runClosers() {
	for i, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("app: closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}
