// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/intervoxa/pkg/provider/tts"
)

// DefaultModel is the default speech model.
const DefaultModel = "tts-1"

// DefaultVoice is used when the request does not name a voice.
const DefaultVoice = "alloy"

// voices are the voice identifiers the OpenAI speech endpoint accepts.
var voices = []string{"alloy", "ash", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer"}

var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI speech endpoint.
type Provider struct {
	client oai.Client
	model  string
}

// New constructs a new OpenAI TTS Provider. If model is empty, DefaultModel is
// used.
func New(apiKey, model string, timeout time.Duration) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("openai tts: text must not be empty")
	}
	voice := req.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	speed := req.Speed
	if speed == 0 {
		speed = 1.0
	}
	if speed < tts.MinSpeed || speed > tts.MaxSpeed {
		return nil, fmt.Errorf("openai tts: speed %.2f outside [%.1f, %.1f]", speed, tts.MinSpeed, tts.MaxSpeed)
	}

	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          req.Text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
		Speed:          param.NewOpt(speed),
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	return audio, nil
}

// Voices implements tts.Provider. The list is fixed by the API surface.
func (p *Provider) Voices(ctx context.Context) ([]string, error) {
	return append([]string(nil), voices...), nil
}
