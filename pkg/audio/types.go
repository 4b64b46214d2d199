package audio

import "time"

// AudioFrame is one frame of PCM audio moving through the pipeline, either
// inbound from a transport.Connection toward StreamingASR or outbound from
// StreamingTTS toward a transport.Connection.
type AudioFrame struct {
	// Data holds little-endian signed 16-bit PCM samples.
	Data []byte

	// SampleRate in Hz. Ingress audio typically arrives at the transport's
	// native rate and is converted down to 16000 for STT; TTS output is
	// converted up to whatever rate the transport expects.
	SampleRate int

	// Channels is 1 for mono (the rate STT providers expect) or 2 for
	// stereo (typical transport output).
	Channels int

	// Timestamp is when this frame was captured or synthesized, relative to
	// the owning session's start.
	Timestamp time.Duration
}
