// Package openai provides a TTS provider backed by the OpenAI speech API
// (gpt-4o-mini-tts, tts-1, ...). Audio is requested as raw PCM, which the API
// delivers as 24 kHz 16-bit mono.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/kioskvoice/pkg/audio"
	"github.com/MrWong99/kioskvoice/pkg/provider/tts"
)

const (
	defaultModel = "gpt-4o-mini-tts"
	defaultVoice = "nova"

	// apiSampleRate is the fixed rate of the API's pcm response format.
	apiSampleRate = 24000
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithInstructions sets the speaking-style instructions supported by
// gpt-4o-mini-tts.
func WithInstructions(s string) Option {
	return func(p *Provider) { p.instructions = s }
}

// Provider implements tts.Provider using the OpenAI speech endpoint.
type Provider struct {
	client       oai.Client
	model        string
	baseURL      string
	instructions string
}

// New creates a Provider. An empty model selects gpt-4o-mini-tts.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = defaultModel
	}
	p := &Provider{model: model}
	for _, o := range opts {
		o(p)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Synthesize implements tts.Provider. Output is resampled when req.SampleRate
// differs from the API's native 24 kHz.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	voice := req.Voice
	if voice == "" {
		voice = defaultVoice
	}
	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}
	params := oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
		Speed:          oai.Float(speed),
	}
	if p.instructions != "" {
		params.Instructions = oai.String(p.instructions)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read body: %w", err)
	}
	if len(pcm)%2 != 0 {
		slog.Warn("openai tts: odd byte count in pcm response, truncating", "bytes", len(pcm))
		pcm = pcm[:len(pcm)-1]
	}
	if req.SampleRate > 0 && req.SampleRate != apiSampleRate {
		pcm = audio.ResampleMono16(pcm, apiSampleRate, req.SampleRate)
	}
	return pcm, nil
}
