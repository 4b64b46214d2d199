package stt

import "net/http"

// StreamConfig describes the audio format and recognition hints for a
// transcription call. All fields must be compatible with what the
// underlying provider supports.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz of the buffer being sent.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono, required by most
	// STT providers.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect, if supported.
	Language string
}

// Transcript is the recognition result for one buffered audio window.
type Transcript struct {
	// Text is the transcribed speech content. May be empty if the provider
	// detected no speech in the window.
	Text string

	// Confidence is the overall confidence score (0.0-1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64
}

// StatusError reports an HTTP status code returned by a transcription
// backend, letting callers distinguish transient server failures from
// client-protocol errors without parsing error strings.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "stt: server returned " + http.StatusText(e.Code)
}

// Temporary reports whether the error is worth retrying: 5xx and 429
// responses are transient, everything else is a client-protocol error.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}
