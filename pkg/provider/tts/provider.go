// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider renders a question prompt into a complete audio clip that the
// session layer ships to the client inside the question frame. Synthesis is
// batch rather than streaming: question prompts are short and the client plays
// them whole.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Speed bounds for synthesis; values outside are rejected by providers.
const (
	MinSpeed = 0.5
	MaxSpeed = 2.0
)

// Request describes one synthesis job.
type Request struct {
	// Text is the prompt to synthesise.
	Text string

	// Voice is the provider-specific voice identifier. Empty selects the
	// provider default.
	Voice string

	// Speed is the playback rate multiplier in [MinSpeed, MaxSpeed].
	// Zero selects 1.0.
	Speed float64
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use; multiple interviews
// synthesise in parallel.
type Provider interface {
	// Synthesize renders text to a complete audio clip (WAV, 16 kHz mono
	// baseline). Providers should return promptly on ctx cancellation.
	Synthesize(ctx context.Context, req Request) ([]byte, error)

	// Voices returns the identifiers of all voices this provider offers.
	Voices(ctx context.Context) ([]string, error)
}
