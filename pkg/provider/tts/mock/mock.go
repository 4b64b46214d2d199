// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled PCM audio for each call to Synthesize
// and to verify the exact text and voice a caller requested.
package mock

import (
	"context"
	"sync"

	"github.com/voxstream/coordinator/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice tts.VoiceConfig
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by every call to Synthesize, unless Err is set.
	Audio []byte

	// Err, if non-nil, is returned instead of Audio.
	Err error

	// BlockUntil, if non-nil, is waited on before Synthesize returns — lets
	// tests control exactly when a cancellation would interrupt synthesis.
	BlockUntil <-chan struct{}

	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns Audio, Err.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceConfig) ([]byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	block := p.BlockUntil
	err := p.Err
	audio := p.Audio
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
