// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g. the OpenAI Whisper API)
// and exposes a batch transcription interface: the session layer assembles the
// candidate's streamed audio chunks into one utterance and hands the complete
// recording over when the final chunk arrives. The 16 kHz mono baseline of the
// session protocol is assumed; providers may resample internally.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// SupportedFormats lists the audio container formats accepted on the wire.
var SupportedFormats = []string{"webm", "wav", "mp3"}

// IsSupportedFormat reports whether format is one of the wire formats.
func IsSupportedFormat(format string) bool {
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}

// VoiceMetrics holds acoustic measurements a provider may report alongside the
// transcript. All scores are in [0, 1]. Providers without prosody analysis
// leave this nil; the pipeline then derives heuristic metrics from the
// transcript and duration.
type VoiceMetrics struct {
	Intonation      float64
	Fluency         float64
	Confidence      float64
	SpeakingRateWPM int
}

// Request describes one complete recorded answer to transcribe.
type Request struct {
	// Audio is the complete encoded recording.
	Audio []byte

	// Format is the container format: "webm", "wav" or "mp3".
	Format string

	// Language is the BCP-47 language tag, empty for auto-detection.
	Language string
}

// Result is the outcome of a transcription.
type Result struct {
	// Text is the transcribed speech.
	Text string

	// Confidence is the provider's overall confidence in [0, 1]; zero when the
	// provider does not report confidence.
	Confidence float64

	// Duration is the length of the recording.
	Duration time.Duration

	// Voice carries provider-side acoustic measurements when available.
	Voice *VoiceMetrics
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use; multiple interviews
// transcribe in parallel.
type Provider interface {
	// Transcribe converts the recorded answer into text. Providers should
	// return promptly on ctx cancellation.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
