// Package openai provides an STT provider backed by the OpenAI audio
// transcription API (gpt-4o-transcribe, whisper-1 or any compatible
// endpoint).
//
// Each clip is written as a WAV file into a scratch directory, uploaded, and
// removed again regardless of outcome.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/kioskvoice/pkg/audio"
	"github.com/MrWong99/kioskvoice/pkg/provider/stt"
)

const (
	defaultModel      = "gpt-4o-transcribe"
	defaultLanguage   = "ko"
	defaultScratchDir = "_tmp"
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL (for proxies or compatible servers).
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithLanguage sets the ISO-639-1 language hint. Defaults to "ko".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithScratchDir sets the directory used for temporary WAV files. It is
// created on first use. Defaults to "_tmp".
func WithScratchDir(dir string) Option {
	return func(p *Provider) { p.scratchDir = dir }
}

// Provider implements stt.Provider using the OpenAI transcription endpoint.
type Provider struct {
	client     oai.Client
	model      string
	language   string
	baseURL    string
	scratchDir string
}

// New creates a Provider. apiKey must be non-empty; an empty model selects
// gpt-4o-transcribe.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = defaultModel
	}
	p := &Provider{
		model:      model,
		language:   defaultLanguage,
		scratchDir: defaultScratchDir,
	}
	for _, o := range opts {
		o(p)
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = oai.NewClient(clientOpts...)
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	path, err := p.writeScratch(clip)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("openai stt: open scratch file: %w", err)
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		File:  f,
		Model: oai.AudioModel(p.model),
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}
	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return resp.Text, nil
}

func (p *Provider) writeScratch(clip audio.Clip) (string, error) {
	if err := os.MkdirAll(p.scratchDir, 0o755); err != nil {
		return "", fmt.Errorf("openai stt: create scratch dir: %w", err)
	}
	f, err := os.CreateTemp(p.scratchDir, "utterance-*.wav")
	if err != nil {
		return "", fmt.Errorf("openai stt: create scratch file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(audio.EncodeWAV(clip)); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("openai stt: write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("openai stt: close scratch file: %w", err)
	}
	return filepath.Clean(path), nil
}
