// Command kioskvoice is the voice ordering assistant for the self-service kiosk.
//
// It serves the REST API used by the kiosk screen and, with -auto-start, runs
// a single voice session directly in the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/kioskvoice/internal/age"
	"github.com/MrWong99/kioskvoice/internal/age/opencv"
	"github.com/MrWong99/kioskvoice/internal/api"
	"github.com/MrWong99/kioskvoice/internal/app"
	"github.com/MrWong99/kioskvoice/internal/config"
	"github.com/MrWong99/kioskvoice/internal/health"
	"github.com/MrWong99/kioskvoice/internal/observe"
	"github.com/MrWong99/kioskvoice/internal/resilience"
	"github.com/MrWong99/kioskvoice/pkg/audio"
	malgodev "github.com/MrWong99/kioskvoice/pkg/audio/malgo"
	"github.com/MrWong99/kioskvoice/pkg/audio/pulse"
	"github.com/MrWong99/kioskvoice/pkg/provider/llm"
	"github.com/MrWong99/kioskvoice/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/kioskvoice/pkg/provider/llm/openai"
	"github.com/MrWong99/kioskvoice/pkg/provider/stt"
	"github.com/MrWong99/kioskvoice/pkg/provider/stt/deepgram"
	oaistt "github.com/MrWong99/kioskvoice/pkg/provider/stt/openai"
	"github.com/MrWong99/kioskvoice/pkg/provider/stt/whisper"
	"github.com/MrWong99/kioskvoice/pkg/provider/tts"
	"github.com/MrWong99/kioskvoice/pkg/provider/tts/coqui"
	"github.com/MrWong99/kioskvoice/pkg/provider/tts/elevenlabs"
	oaitts "github.com/MrWong99/kioskvoice/pkg/provider/tts/openai"
	"github.com/MrWong99/kioskvoice/pkg/provider/vad"
	"github.com/MrWong99/kioskvoice/pkg/provider/vad/webrtc"
)

const defaultListenAddr = ":8000"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "path to a dotenv file with API keys")
	autoStart := flag.Bool("auto-start", false, "start a voice session immediately and exit when it ends")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "kioskvoice: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		fmt.Fprintf(os.Stderr, "kioskvoice: config file %q not found, using defaults\n", *configPath)
		cfg = &config.Config{}
	case err != nil:
		fmt.Fprintf(os.Stderr, "kioskvoice: %v\n", err)
		return 1
	}
	config.ApplyEnv(cfg, os.Getenv)
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("kioskvoice starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"auto_start", *autoStart,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "kioskvoice"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Voice.Language)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithAutoStart(*autoStart))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── HTTP API ──────────────────────────────────────────────────────────────
	opts := []api.Option{
		api.WithHealth(health.New(application.Checkers()...)),
		api.WithMetricsHandler(tel.Handler),
		api.WithMetrics(application.Metrics()),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
		api.WithMenu(application.Menu()),
	}
	if faces := application.Faces(); faces != nil {
		opts = append(opts, api.WithFaces(faces))
	}
	server := api.New(application.Sessions(), application.Commands(), opts...)
	e := server.Echo()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api listening", "addr", cfg.Server.ListenAddr)
		if err := e.Start(cfg.Server.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := application.Run(gctx)
		if *autoStart {
			// The terminal session is over; take the API down with it.
			stop()
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// breakerConfig is shared by every provider fallback group.
var breakerConfig = resilience.BreakerConfig{
	MaxFailures:  3,
	ResetTimeout: 20 * time.Second,
	OnStateChange: func(name string, from, to resilience.State) {
		slog.Warn("provider breaker state changed", "provider", name, "from", from, "to", to)
	},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// language is the default speech language for providers whose entry does not
// set options.language.
func registerBuiltinProviders(reg *config.Registry, language string) {
	lang := func(entry config.ProviderEntry) string {
		return config.Option(entry, "language", language)
	}

	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining hosted backends go through any-llm and share the same
	// pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []oaistt.Option{oaistt.WithLanguage(lang(entry))}
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if dir := config.Option(entry, "scratch_dir", ""); dir != "" {
			opts = append(opts, oaistt.WithScratchDir(dir))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithLanguage(lang(entry))}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = config.Option(entry, "model_path", "")
		}
		return whisper.NewNative(modelPath, whisper.WithNativeLanguage(lang(entry)))
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		return deepgram.New(entry.APIKey,
			deepgram.WithModel(entry.Model),
			deepgram.WithLanguage(lang(entry)),
			deepgram.WithEndpoint(entry.BaseURL),
		)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if s := config.Option(entry, "instructions", ""); s != "" {
			opts = append(opts, oaitts.WithInstructions(s))
		}
		return oaitts.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(entry.BaseURL))
		}
		if voice := config.Option(entry, "voice_id", ""); voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(voice))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []coqui.Option{
			coqui.WithLanguage(lang(entry)),
			coqui.WithAPIMode(coqui.APIMode(config.Option(entry, "api_mode", ""))),
		}
		if speaker := config.Option(entry, "speaker", ""); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("webrtc", func(config.ProviderEntry) (vad.Engine, error) {
		return webrtc.New(), nil
	})

	// ── Audio ─────────────────────────────────────────────────────────────────
	reg.RegisterAudio("pulse", func(entry config.ProviderEntry) (audio.Device, error) {
		var opts []pulse.Option
		if name := config.Option(entry, "client_name", ""); name != "" {
			opts = append(opts, pulse.WithClientName(name))
		}
		return pulse.New(opts...)
	})
	reg.RegisterAudio("malgo", func(config.ProviderEntry) (audio.Device, error) {
		return malgodev.New()
	})

	// ── Age ───────────────────────────────────────────────────────────────────
	reg.RegisterAge("opencv", func(entry config.ProviderEntry) (age.Estimator, error) {
		return opencv.New(opencv.Config{
			FaceModel: config.Option(entry, "face_model", ""),
			AgeModel:  entry.Model,
			AgeConfig: config.Option(entry, "age_config", ""),
			FaceScore: config.Option(entry, "face_score", 0.0),
		})
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// llm, stt and tts entries with fallbacks are wrapped in a breaker group.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	pc := cfg.Providers

	llmp, llmg, err := createGroup("llm", pc.LLM, reg.CreateLLM)
	if err != nil {
		return nil, err
	}
	ps.LLM = llmp
	if llmg != nil {
		ps.LLM = resilience.LLMFallback{Group: llmg}
	}

	sttp, sttg, err := createGroup("stt", pc.STT, reg.CreateSTT)
	if err != nil {
		return nil, err
	}
	ps.STT = sttp
	if sttg != nil {
		ps.STT = resilience.STTFallback{Group: sttg}
	}

	ttsp, ttsg, err := createGroup("tts", pc.TTS, reg.CreateTTS)
	if err != nil {
		return nil, err
	}
	ps.TTS = ttsp
	if ttsg != nil {
		ps.TTS = resilience.TTSFallback{Group: ttsg}
	}

	if ps.VAD, err = create("vad", pc.VAD, reg.CreateVAD); err != nil {
		return nil, err
	}
	if ps.Audio, err = create("audio", pc.Audio, reg.CreateAudio); err != nil {
		return nil, err
	}
	if ps.Age, err = create("age", pc.Age, reg.CreateAge); err != nil {
		return nil, err
	}
	if ps.Age != nil {
		ps.Camera = opencv.NewCamera(config.Option(pc.Age, "camera", 0))
	}
	return ps, nil
}

// create builds one provider. An empty name leaves the slot nil so the stage
// runs degraded; a name with no registered factory is an error.
func create[T any](kind string, entry config.ProviderEntry, build func(config.ProviderEntry) (T, error)) (T, error) {
	var zero T
	if entry.Name == "" {
		return zero, nil
	}
	p, err := build(entry)
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return p, nil
}

// createGroup builds the primary provider and, when fallbacks are configured,
// a breaker group that tries the primary and then each fallback in order.
// The group is nil without fallbacks.
func createGroup[T any](kind string, entry config.ProviderEntry, build func(config.ProviderEntry) (T, error)) (T, *resilience.Group[T], error) {
	primary, err := create(kind, entry, build)
	if err != nil || len(entry.Fallbacks) == 0 || any(primary) == nil {
		return primary, nil, err
	}
	g := resilience.NewGroup(entry.Name, primary, breakerConfig)
	for _, fb := range entry.Fallbacks {
		p, err := create(kind, fb, build)
		if err != nil {
			return primary, nil, err
		}
		if any(p) == nil {
			continue
		}
		g.Add(fb.Name, p)
	}
	slog.Info("provider fallbacks configured", "kind", kind, "entries", g.Len())
	return primary, g, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       Kiosk voice, startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	printProvider("Audio", cfg.Providers.Audio.Name, "")
	printProvider("Age", cfg.Providers.Age.Name, "")
	menu := cfg.Menu.Path
	if menu == "" {
		menu = "(none)"
	}
	menu = truncateLeft(menu, 19)
	fmt.Printf("║  Menu            : %-19s ║\n", menu)
	storeName := "memory"
	if cfg.Store.PostgresDSN != "" {
		storeName = "postgres"
	}
	fmt.Printf("║  Turn log        : %-19s ║\n", storeName)
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, truncateRight(value, 19))
}

// truncateRight shortens s to at most width runes, ending in an ellipsis.
func truncateRight(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:width-1]) + "…"
}

// truncateLeft shortens s to at most width runes, keeping the tail.
func truncateLeft(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return "…" + string(r[len(r)-width+1:])
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
