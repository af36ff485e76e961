package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":   {"openai", "whisper", "whisper-native", "deepgram"},
	"tts":   {"openai", "elevenlabs", "coqui"},
	"vad":   {"webrtc"},
	"audio": {"pulse", "malgo"},
	"age":   {"opencv"},
}

// EnvOpenAIKey is the environment variable that supplies OpenAI credentials.
const EnvOpenAIKey = "OPENAI_API_KEY"

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the zero config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills empty OpenAI api keys from getenv(EnvOpenAIKey).
// Pass os.Getenv in production.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	key := getenv(EnvOpenAIKey)
	if key == "" {
		return
	}
	fill := func(e *ProviderEntry) {
		if e.Name == "openai" && e.APIKey == "" {
			e.APIKey = key
		}
	}
	for _, e := range []*ProviderEntry{&cfg.Providers.LLM, &cfg.Providers.STT, &cfg.Providers.TTS} {
		fill(e)
		for i := range e.Fallbacks {
			fill(&e.Fallbacks[i])
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	for kind, e := range map[string]ProviderEntry{
		"llm": cfg.Providers.LLM, "stt": cfg.Providers.STT, "tts": cfg.Providers.TTS,
		"vad": cfg.Providers.VAD, "audio": cfg.Providers.Audio, "age": cfg.Providers.Age,
	} {
		validateProviderName(kind, e.Name)
		for i, fb := range e.Fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
			}
			validateProviderName(kind, fb.Name)
		}
		if len(e.Fallbacks) > 0 && (kind == "vad" || kind == "audio" || kind == "age") {
			errs = append(errs, fmt.Errorf("providers.%s.fallbacks is not supported", kind))
		}
	}

	if cfg.Providers.Audio.Name == "" {
		slog.Warn("providers.audio is not configured; a voice session cannot be started")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; replies will echo the customer")
	}

	v := cfg.Voice
	if v.SpeechSpeed != 0 && (v.SpeechSpeed < 0.5 || v.SpeechSpeed > 2.0) {
		errs = append(errs, fmt.Errorf("voice.speech_speed %.2f is out of range [0.5, 2.0]", v.SpeechSpeed))
	}
	if v.Temperature < 0 || v.Temperature > 2 {
		errs = append(errs, fmt.Errorf("voice.temperature %.2f is out of range [0, 2]", v.Temperature))
	}
	if v.MinChars < 0 {
		errs = append(errs, fmt.Errorf("voice.min_chars %d must not be negative", v.MinChars))
	}

	c := v.Capture
	if c.Mode != "" && !c.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("voice.capture.mode %q is invalid; valid values: vad, fixed", c.Mode))
	}
	if c.Mode == CaptureVAD && cfg.Providers.VAD.Name == "" {
		errs = append(errs, errors.New("voice.capture.mode vad requires providers.vad"))
	}
	for name, d := range map[string]int64{
		"fixed_duration": int64(c.FixedDuration), "min_duration": int64(c.MinDuration),
		"max_duration": int64(c.MaxDuration), "silence_hangover": int64(c.SilenceHangover),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("voice.capture.%s must not be negative", name))
		}
	}
	if c.MinDuration > 0 && c.MaxDuration > 0 && c.MinDuration > c.MaxDuration {
		errs = append(errs, fmt.Errorf("voice.capture.min_duration %v exceeds max_duration %v", c.MinDuration, c.MaxDuration))
	}
	if c.TriggerFrames < 0 {
		errs = append(errs, fmt.Errorf("voice.capture.trigger_frames %d must not be negative", c.TriggerFrames))
	}

	if v.Playback.SkipAfter < 0 {
		errs = append(errs, errors.New("voice.playback.skip_after must not be negative"))
	}
	if v.Context.Turns < 0 || v.Context.Clips < 0 {
		errs = append(errs, errors.New("voice.context sizes must not be negative"))
	}

	if cfg.Menu.WatchInterval < 0 {
		errs = append(errs, errors.New("menu.watch_interval must not be negative"))
	}
	if cfg.Menu.Path == "" {
		slog.Warn("menu.path is empty; prompts will carry no menu context")
	}

	if cfg.Age.Threshold < 0 || cfg.Age.Threshold > 150 {
		errs = append(errs, fmt.Errorf("age.threshold %d is out of range [0, 150]", cfg.Age.Threshold))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
