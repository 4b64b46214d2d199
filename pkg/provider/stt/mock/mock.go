// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to queue up Transcript results (or an error) and verify the
// exact audio bytes and StreamConfig a caller sent for each window.
package mock

import (
	"context"
	"sync"

	"github.com/voxstream/coordinator/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	Audio []byte
	Cfg   stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results is consumed in order, one per call to Transcribe. If exhausted,
	// the last entry (or a zero Transcript if Results is empty) repeats.
	Results []stt.Transcript

	// Err, if non-nil, is returned instead of consuming Results.
	Err error

	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next queued result.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, cfg stt.StreamConfig) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := make([]byte, len(audio))
	copy(cp, audio)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Audio: cp, Cfg: cfg})

	if p.Err != nil {
		return stt.Transcript{}, p.Err
	}
	if len(p.Results) == 0 {
		return stt.Transcript{}, nil
	}
	idx := len(p.TranscribeCalls) - 1
	if idx >= len(p.Results) {
		idx = len(p.Results) - 1
	}
	return p.Results[idx], nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
