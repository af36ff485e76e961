// Package config provides the configuration schema, loader, and provider registry
// for the kiosk voice service.
package config

import "time"

// LogLevel controls log verbosity for the kiosk server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CaptureMode selects how the microphone decides when an utterance is complete.
type CaptureMode string

const (
	// CaptureVAD stops recording after trailing silence detected by the VAD engine.
	CaptureVAD CaptureMode = "vad"

	// CaptureFixed records a constant duration regardless of content.
	CaptureFixed CaptureMode = "fixed"
)

// IsValid reports whether m is a recognised capture mode.
func (m CaptureMode) IsValid() bool {
	return m == CaptureVAD || m == CaptureFixed
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Voice     VoiceConfig     `yaml:"voice"`
	Menu      MenuConfig      `yaml:"menu"`
	Store     StoreConfig     `yaml:"store"`
	Age       AgeConfig       `yaml:"age"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the REST API listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// CORSOrigins lists the browser origins allowed to call the API.
	// Default: the kiosk screen at http://localhost:3000.
	CORSOrigins []string `yaml:"cors_origins"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the [Registry].
// A stage left without a name runs in its degraded mode.
type ProvidersConfig struct {
	LLM   ProviderEntry `yaml:"llm"`
	STT   ProviderEntry `yaml:"stt"`
	TTS   ProviderEntry `yaml:"tts"`
	VAD   ProviderEntry `yaml:"vad"`
	Audio ProviderEntry `yaml:"audio"`
	Age   ProviderEntry `yaml:"age"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`

	// Fallbacks lists secondary providers tried in order when this one fails.
	// Only honoured for llm, stt and tts.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// VoiceConfig tunes the dialogue pipeline.
type VoiceConfig struct {
	// Language is the BCP-47 language passed to speech providers. Default "ko".
	Language string `yaml:"language"`

	// Voice is the TTS voice identifier. Default "nova".
	Voice string `yaml:"voice"`

	// SpeechSpeed adjusts the TTS speaking rate in [0.5, 2.0]. 0 means default.
	SpeechSpeed float64 `yaml:"speech_speed"`

	// Greeting overrides the welcome utterance.
	Greeting string `yaml:"greeting"`

	// Farewell overrides the utterance played on an exit phrase.
	Farewell string `yaml:"farewell"`

	// ExitPhrases overrides the words that end the dialogue.
	ExitPhrases []string `yaml:"exit_phrases"`

	// Denylist overrides the transcript artifacts that are discarded.
	Denylist []string `yaml:"denylist"`

	// MinChars is the minimum transcript length in characters. Default 2.
	MinChars int `yaml:"min_chars"`

	// Temperature is the sampling temperature for the response model.
	Temperature float64 `yaml:"temperature"`

	Capture  CaptureConfig  `yaml:"capture"`
	Playback PlaybackConfig `yaml:"playback"`
	Context  ContextConfig  `yaml:"context"`
}

// CaptureConfig controls microphone capture.
type CaptureConfig struct {
	// Mode selects vad or fixed capture. Default vad when a VAD provider is
	// configured, fixed otherwise.
	Mode CaptureMode `yaml:"mode"`

	// FixedDuration is the recording length in fixed mode. Default 5s.
	FixedDuration time.Duration `yaml:"fixed_duration"`

	// MinDuration is the shortest clip the gate will return. Default 1s.
	MinDuration time.Duration `yaml:"min_duration"`

	// MaxDuration caps every recording. Default 15s.
	MaxDuration time.Duration `yaml:"max_duration"`

	// SilenceHangover is the trailing silence that ends a VAD capture. Default 800ms.
	SilenceHangover time.Duration `yaml:"silence_hangover"`

	// TriggerFrames is the number of voiced frames that start an utterance. Default 10.
	TriggerFrames int `yaml:"trigger_frames"`

	// Cue enables the pre-capture beep.
	Cue *bool `yaml:"cue"`
}

// PlaybackConfig controls the playback sequencer.
type PlaybackConfig struct {
	// SkipAfter bounds the wait for a unit that has not been synthesized yet.
	// Default 10s.
	SkipAfter time.Duration `yaml:"skip_after"`
}

// ContextConfig sizes the rolling conversation window.
type ContextConfig struct {
	// Turns is the number of text turns kept. Default 10.
	Turns int `yaml:"turns"`

	// Clips is the number of user audio clips kept. Default 5.
	Clips int `yaml:"clips"`
}

// MenuConfig locates the menu data.
type MenuConfig struct {
	// Path is the menu JSON file. Empty disables the menu context.
	Path string `yaml:"path"`

	// WatchInterval enables hot reload when positive.
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// StoreConfig configures the turn log.
type StoreConfig struct {
	// PostgresDSN selects the Postgres turn log. Empty uses an in-memory ring.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// AgeConfig configures the elderly-customer check.
type AgeConfig struct {
	// Threshold is the age at and above which a customer counts as elderly.
	// Default 60.
	Threshold int `yaml:"threshold"`
}
