// Package openai provides an STT provider backed by the OpenAI audio
// transcription API (Whisper).
package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/intervoxa/pkg/provider/stt"
)

// DefaultModel is the default transcription model.
const DefaultModel = "whisper-1"

var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI transcription endpoint.
type Provider struct {
	client oai.Client
	model  string
}

// New constructs a new OpenAI STT Provider. If model is empty, DefaultModel is
// used. A zero timeout leaves the HTTP client without one; callers control the
// deadline through ctx anyway.
func New(apiKey, model string, timeout time.Duration) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
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

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("openai stt: empty audio")
	}
	if !stt.IsSupportedFormat(req.Format) {
		return nil, fmt.Errorf("openai stt: unsupported format %q", req.Format)
	}

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(p.model),
		File:  oai.File(bytes.NewReader(req.Audio), "answer."+req.Format, mimeType(req.Format)),
	}
	if req.Language != "" {
		params.Language = oai.String(req.Language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai stt: transcription: %w", err)
	}

	return &stt.Result{
		Text:       strings.TrimSpace(resp.Text),
		Confidence: 0, // the endpoint does not report an overall confidence
		Duration:   estimateDuration(req, resp.Text),
	}, nil
}

// mimeType maps a wire format to its MIME type for the multipart upload.
func mimeType(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	default:
		return "audio/webm"
	}
}

// estimateDuration derives the recording length. For WAV the header carries
// the byte rate; for compressed formats the transcript word count at a typical
// 150 wpm speaking rate is the best available estimate.
func estimateDuration(req stt.Request, text string) time.Duration {
	if req.Format == "wav" {
		if d, ok := wavDuration(req.Audio); ok {
			return d
		}
	}
	words := len(strings.Fields(text))
	return time.Duration(float64(words) / 150.0 * 60.0 * float64(time.Second))
}

// wavDuration reads the byte rate from a RIFF/WAVE header and divides the data
// size by it. Returns false for anything that does not look like a WAV file.
func wavDuration(audio []byte) (time.Duration, bool) {
	if len(audio) < 44 || string(audio[0:4]) != "RIFF" || string(audio[8:12]) != "WAVE" {
		return 0, false
	}
	byteRate := binary.LittleEndian.Uint32(audio[28:32])
	if byteRate == 0 {
		return 0, false
	}
	dataLen := len(audio) - 44
	return time.Duration(float64(dataLen) / float64(byteRate) * float64(time.Second)), true
}
