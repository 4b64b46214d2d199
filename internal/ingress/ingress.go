// Package ingress adapts decoded participant audio into the 16kHz mono
// rolling buffer that [github.com/voxstream/coordinator/internal/asr]
// slides a window over.
//
// It plays a role similar to pkg/audio.FormatConverter/ConvertStream, but
// instead of producing a generic converted-frame channel, it owns the
// session's bounded sample buffer directly, since every consumer of ingress
// output in this pipeline wants the same fixed 16kHz mono target.
package ingress

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxstream/coordinator/pkg/audio"
	"github.com/voxstream/coordinator/pkg/transport"
)

// targetFormat is the fixed downstream format StreamingASR consumes.
var targetFormat = audio.Format{SampleRate: 16000, Channels: 1}

// maxBufferSamples bounds the rolling buffer to 1.0s of 16kHz mono audio.
const maxBufferSamples = 16000

// defaultLogEveryNFrames is how often a frame-count/buffer-size log line is
// emitted while frames are flowing.
const defaultLogEveryNFrames = 50

// RollingBuffer is a bounded ring of the most recently appended int16
// samples. Most-recent-wins: once full, appending discards the oldest
// samples to make room. Append and Snapshot are the only locked operations;
// both run in O(len(samples)), honoring the "hold time ≤ O(window)" rule.
type RollingBuffer struct {
	mu      sync.Mutex
	samples []int16
	max     int
}

// NewRollingBuffer creates a [RollingBuffer] bounded to max samples. If max
// is zero or negative, [maxBufferSamples] is used.
func NewRollingBuffer(max int) *RollingBuffer {
	if max <= 0 {
		max = maxBufferSamples
	}
	return &RollingBuffer{
		samples: make([]int16, 0, max),
		max:     max,
	}
}

// Append decodes little-endian int16 PCM and appends it to the buffer,
// discarding the oldest samples on overflow.
func (b *RollingBuffer) Append(pcm []byte) {
	n := len(pcm) / 2
	if n == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		b.samples = append(b.samples, s)
	}
	if over := len(b.samples) - b.max; over > 0 {
		b.samples = b.samples[over:]
	}
}

// Snapshot returns a copy of the current buffer contents as little-endian
// int16 PCM bytes.
func (b *RollingBuffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, len(b.samples)*2)
	for i, s := range b.samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Len returns the number of samples currently buffered.
func (b *RollingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Ingress consumes decoded PCM frames from a [transport.Connection],
// downmixes and resamples them to 16kHz mono, and appends the result to a
// session's [RollingBuffer]. Malformed frames are counted and dropped;
// ingress never fails the session.
type Ingress struct {
	Buffer *RollingBuffer

	// LogEveryNFrames controls log frequency; defaults to 50 if zero.
	LogEveryNFrames int

	sessionID  string
	frameCount int
	droppedBad int

	lastFrameAtNano atomic.Int64
}

// New creates an Ingress for sessionID, writing converted audio into buf.
// The idle clock starts at creation time, so a session that never receives
// its first frame is still eligible for idle expiry.
func New(sessionID string, buf *RollingBuffer) *Ingress {
	ig := &Ingress{Buffer: buf, sessionID: sessionID}
	ig.lastFrameAtNano.Store(time.Now().UnixNano())
	return ig
}

// LastFrameAt returns when the most recent inbound audio frame was
// accepted, or the Ingress's creation time if none has arrived yet. Safe
// to call from any goroutine; Run itself only ever runs on one.
func (ig *Ingress) LastFrameAt() time.Time {
	return time.Unix(0, ig.lastFrameAtNano.Load())
}

// Run reads frames from conn until ctx is cancelled or the inbound channel
// closes (participant disconnect). It blocks the calling goroutine; callers
// run it in its own goroutine.
func (ig *Ingress) Run(ctx context.Context, conn transport.Connection) {
	logEvery := ig.LogEveryNFrames
	if logEvery <= 0 {
		logEvery = defaultLogEveryNFrames
	}
	conv := audio.FormatConverter{Target: targetFormat}

	in := conn.InboundAudio()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-in:
			if !ok {
				return
			}
			ig.consume(&conv, frame, logEvery)
		}
	}
}

func (ig *Ingress) consume(conv *audio.FormatConverter, frame transport.AudioFrame, logEvery int) {
	ig.lastFrameAtNano.Store(time.Now().UnixNano())

	if len(frame.Samples)%2 != 0 || frame.SampleRate <= 0 || frame.Channels <= 0 {
		ig.droppedBad++
		return
	}

	converted := conv.Convert(audio.AudioFrame{
		Data:       frame.Samples,
		SampleRate: frame.SampleRate,
		Channels:   frame.Channels,
	})
	if len(converted.Data) == 0 {
		ig.droppedBad++
		return
	}

	ig.Buffer.Append(converted.Data)
	ig.frameCount++

	if ig.frameCount%logEvery == 0 {
		slog.Debug("ingress frames processed",
			"session_id", ig.sessionID,
			"frame_count", ig.frameCount,
			"buffer_samples", ig.Buffer.Len(),
			"dropped", ig.droppedBad,
		)
	}
}
