// Package asr slides a window over a session's buffered audio and drives
// transcription against an [stt.Provider], turning raw recognition results
// into a growing or replaced utterance with partial/final callbacks.
//
// Window assembly, sliding, retry, and silence-based finalization all live
// here; the provider only converts bytes to text (see
// [github.com/voxstream/coordinator/pkg/provider/stt]).
package asr

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/voxstream/coordinator/internal/ingress"
	"github.com/voxstream/coordinator/pkg/provider/stt"
)

const (
	defaultSilenceMS      = 800
	defaultSilenceRMS     = 300
	defaultMaxRetries     = 3
	defaultRetryBaseDelay = 200 * time.Millisecond
	defaultRetryMaxDelay  = 2 * time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultSampleRate     = 16000
	defaultChannels       = 1
)

// Config parameterizes a Streamer's window/slide cadence, silence
// finalization, and retry policy.
type Config struct {
	// WindowMS is the length of each extracted window, in milliseconds.
	WindowMS int

	// SlideMS is how often a new window is extracted and transcribed.
	SlideMS int

	// SilenceMS is how long a trailing window must read as silent before a
	// pending utterance is finalized. Defaults to 800ms.
	SilenceMS int

	// SilenceRMS is the RMS amplitude below which a window counts as
	// silent. Defaults to 300 (int16 scale).
	SilenceRMS float64

	SampleRate int
	Channels   int
	Language   string

	// MaxRetries bounds retry attempts after the first call. Defaults to 3.
	MaxRetries int

	// RetryBaseDelay and RetryMaxDelay bound exponential backoff between
	// retries; each delay is jittered ±20%. Default 200ms base, 2s cap.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// RequestTimeout bounds a single transcription call. Default 10s.
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SilenceMS <= 0 {
		c.SilenceMS = defaultSilenceMS
	}
	if c.SilenceRMS <= 0 {
		c.SilenceRMS = defaultSilenceRMS
	}
	if c.SampleRate <= 0 {
		c.SampleRate = defaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = defaultChannels
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	return c
}

// Streamer slides a window over a session's rolling audio buffer and
// reports transcription results as a monotonically-growing utterance.
type Streamer struct {
	provider  stt.Provider
	buffer    *ingress.RollingBuffer
	cfg       Config
	sessionID string

	// OnPartial fires whenever the accumulated utterance text changes.
	OnPartial func(text string)

	// OnFinal fires when an utterance is finalized: by trailing silence,
	// because a new, non-extending utterance began, or when Run shuts down
	// with an utterance still pending.
	OnFinal func(text string)

	mu         sync.Mutex
	utterance  string
	silentMS   int
	speechHint bool
}

// SetSpeechHint records the most recent client-supplied VAD hint. While
// true, the server-side RMS silence check is overridden: a window that
// reads as silent is still treated as speech, since the client's own
// detector can see signal the trailing window's RMS can miss. RMS remains
// authoritative whenever no hint has been supplied or the hint says silent.
func (s *Streamer) SetSpeechHint(speaking bool) {
	s.mu.Lock()
	s.speechHint = speaking
	s.mu.Unlock()
}

// New constructs a Streamer for sessionID, reading windows from buf and
// transcribing them against provider.
func New(sessionID string, provider stt.Provider, buf *ingress.RollingBuffer, cfg Config) *Streamer {
	return &Streamer{
		provider:  provider,
		buffer:    buf,
		cfg:       cfg.withDefaults(),
		sessionID: sessionID,
	}
}

// Run slides the window at cfg.SlideMS until ctx is cancelled. Any
// utterance still pending at shutdown is finalized before returning.
func (s *Streamer) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.SlideMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Duration(defaultSilenceMS) * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finalize()
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Streamer) tick(ctx context.Context) {
	window := s.extractWindow()
	if len(window) == 0 {
		return
	}

	s.mu.Lock()
	hint := s.speechHint
	s.mu.Unlock()

	if isSilent(window, s.cfg.SilenceRMS) && !hint {
		s.mu.Lock()
		s.silentMS += s.cfg.SlideMS
		pending := s.utterance
		silentMS := s.silentMS
		s.mu.Unlock()
		if pending != "" && silentMS >= s.cfg.SilenceMS {
			s.finalize()
		}
		return
	}

	tr, err := s.transcribeWithRetry(ctx, window)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("asr transcription failed", "session_id", s.sessionID, "error", err)
		}
		return
	}
	if tr.Text == "" {
		return
	}
	s.applyResult(tr.Text)
}

// extractWindow returns the trailing WindowMS worth of samples currently
// buffered, as little-endian int16 PCM bytes.
func (s *Streamer) extractWindow() []byte {
	snap := s.buffer.Snapshot()
	windowBytes := (s.cfg.SampleRate * s.cfg.WindowMS / 1000) * 2
	if windowBytes <= 0 || len(snap) <= windowBytes {
		return snap
	}
	return snap[len(snap)-windowBytes:]
}

// applyResult folds a new transcription into the current utterance. A
// prefix-extending result replaces the utterance and re-emits a partial; a
// non-extending result finalizes the old utterance before starting a new
// one.
func (s *Streamer) applyResult(text string) {
	s.mu.Lock()
	var toFinalize string
	switch {
	case s.utterance == "", text == s.utterance:
		s.utterance = text
	case strings.HasPrefix(text, s.utterance):
		s.utterance = text
	default:
		toFinalize = s.utterance
		s.utterance = text
	}
	current := s.utterance
	s.silentMS = 0
	s.mu.Unlock()

	if toFinalize != "" && s.OnFinal != nil {
		s.OnFinal(toFinalize)
	}
	if s.OnPartial != nil {
		s.OnPartial(current)
	}
}

func (s *Streamer) finalize() {
	s.mu.Lock()
	text := s.utterance
	s.utterance = ""
	s.silentMS = 0
	s.mu.Unlock()

	if text != "" && s.OnFinal != nil {
		s.OnFinal(text)
	}
}

func (s *Streamer) transcribeWithRetry(ctx context.Context, window []byte) (stt.Transcript, error) {
	cfg := s.cfg
	delay := cfg.RetryBaseDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		tr, err := s.provider.Transcribe(reqCtx, window, stt.StreamConfig{
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
			Language:   cfg.Language,
		})
		cancel()
		if err == nil {
			return tr, nil
		}
		lastErr = err
		if attempt == cfg.MaxRetries || !isRetryable(err) {
			break
		}

		select {
		case <-ctx.Done():
			return stt.Transcript{}, ctx.Err()
		case <-time.After(jittered(delay)):
		}
		delay *= 2
		if delay > cfg.RetryMaxDelay {
			delay = cfg.RetryMaxDelay
		}
	}
	return stt.Transcript{}, lastErr
}

// isRetryable reports whether an error from the provider is worth retrying.
// A [stt.StatusError] decides based on its HTTP status; any other error
// (timeouts, connection failures) is assumed transient.
func isRetryable(err error) bool {
	var se *stt.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

// jittered returns d adjusted by up to ±20%.
func jittered(d time.Duration) time.Duration {
	delta := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}

// isSilent reports whether pcm's RMS amplitude is below threshold.
func isSilent(pcm []byte, threshold float64) bool {
	n := len(pcm) / 2
	if n == 0 {
		return true
	}
	var sumSq float64
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		sumSq += float64(s) * float64(s)
	}
	return math.Sqrt(sumSq/float64(n)) < threshold
}
