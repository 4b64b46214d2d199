// Package ttsstream turns segmented text into framed PCM audio and fans it
// out to a session's transport connection: one outbound audio frame plus
// one tts_chunk datagram per 20ms of synthesized speech.
//
// Segmentation lives in [Segmenter]; synthesis, framing, and cancellation
// live in [Streamer]. Barge-in is handled the same way as the rest of this
// pipeline: the caller cancels the context passed to SpeakSegment, and
// in-flight frame emission stops at the next frame boundary.
package ttsstream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxstream/coordinator/pkg/audio"
	"github.com/voxstream/coordinator/pkg/provider/tts"
	"github.com/voxstream/coordinator/pkg/transport"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultFrameTimeout    = 200 * time.Millisecond
	defaultQueueWait       = 500 * time.Millisecond
)

// Config parameterizes synthesis requests and frame delivery deadlines.
type Config struct {
	Voice tts.VoiceConfig

	// RequestTimeout bounds one Synthesize call. Default 15s.
	RequestTimeout time.Duration

	// FrameTimeout bounds delivery of a single 20ms frame. Default 200ms.
	FrameTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = defaultFrameTimeout
	}
	return c
}

// Streamer synthesizes one segment at a time and fans the result out as
// framed audio plus tts_chunk datagrams.
type Streamer struct {
	provider  tts.Provider
	cfg       Config
	sessionID string

	segNum int
}

// New constructs a Streamer for sessionID.
func New(sessionID string, provider tts.Provider, cfg Config) *Streamer {
	return &Streamer{provider: provider, cfg: cfg.withDefaults(), sessionID: sessionID}
}

// SpeakSegment synthesizes text and emits it as a sequence of 20ms frames
// over conn. It returns ctx.Err() as soon as ctx is cancelled, mid-frame if
// necessary; frames already emitted are not recalled.
func (s *Streamer) SpeakSegment(ctx context.Context, conn transport.Connection, text string) error {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	pcm, err := s.provider.Synthesize(reqCtx, text, s.cfg.Voice)
	cancel()
	if err != nil {
		return fmt.Errorf("ttsstream: synthesize: %w", err)
	}

	s.segNum++
	segNum := s.segNum

	var framer audio.Framer
	frames := framer.Push(pcm)
	if last := framer.Flush(); last != nil {
		frames = append(frames, last)
	}

	for i, frame := range frames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frameCtx, frameCancel := context.WithTimeout(ctx, s.cfg.FrameTimeout)
		err := conn.EmitAudioFrame(frameCtx, frame)
		frameCancel()
		if err != nil {
			slog.Warn("ttsstream: dropping frame after emit failure",
				"session_id", s.sessionID, "segment", segNum, "frame", i+1, "error", err)
			continue
		}

		_ = conn.Publish(ctx, transport.Datagram{
			Type:    transport.DatagramTTSChunk,
			Audio:   frame,
			Segment: segNum,
			Frame:   i + 1,
		}, false)
	}
	return nil
}

// Queue is a bounded handoff between the LLM segmenter and the TTS
// playback loop. Enqueue blocks up to a deadline and then drops the
// segment, so a slow TTS provider cannot stall the LLM stream indefinitely.
type Queue struct {
	ch           chan string
	waitDeadline time.Duration
	sessionID    string
}

// NewQueue creates a Queue with the given buffer size and wait deadline. A
// non-positive deadline uses defaultQueueWait.
func NewQueue(sessionID string, size int, waitDeadline time.Duration) *Queue {
	if waitDeadline <= 0 {
		waitDeadline = defaultQueueWait
	}
	if size <= 0 {
		size = 1
	}
	return &Queue{ch: make(chan string, size), waitDeadline: waitDeadline, sessionID: sessionID}
}

// Enqueue attempts to hand off segment, blocking up to the queue's wait
// deadline. Returns false if the queue stayed full or ctx was cancelled
// first; the segment is dropped and logged in that case.
func (q *Queue) Enqueue(ctx context.Context, segment string) bool {
	timer := time.NewTimer(q.waitDeadline)
	defer timer.Stop()

	select {
	case q.ch <- segment:
		return true
	case <-timer.C:
		slog.Warn("ttsstream: queue full, dropping segment", "session_id", q.sessionID)
		return false
	case <-ctx.Done():
		return false
	}
}

// Segments returns the channel segments are delivered on.
func (q *Queue) Segments() <-chan string {
	return q.ch
}

// Close closes the underlying channel. Safe to call once.
func (q *Queue) Close() {
	close(q.ch)
}
