// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider synthesizes one text segment (roughly a sentence or two)
// per call and returns the complete PCM16 audio for it. Segmentation of
// LLM output into segments, and framing of the returned audio into
// fixed-size playback frames, are the caller's responsibility (see the
// ttsstream package); Provider only converts text to speech.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text to speech using the given voice and returns
	// raw PCM16 mono audio sampled at 16kHz.
	//
	// Returns an error on transport failure, authentication failure, or ctx
	// cancellation. Callers are responsible for retry policy.
	Synthesize(ctx context.Context, text string, voice VoiceConfig) ([]byte, error)
}
