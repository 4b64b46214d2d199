// Package pipeline wires one participant's audio ingress, ASR, LLM, and TTS
// streamers together into a running [Session], and tracks every active
// session behind a [Coordinator] registry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxstream/coordinator/internal/asr"
	"github.com/voxstream/coordinator/internal/health"
	"github.com/voxstream/coordinator/internal/ingress"
	"github.com/voxstream/coordinator/internal/llmstream"
	"github.com/voxstream/coordinator/internal/metrics"
	"github.com/voxstream/coordinator/internal/observe"
	"github.com/voxstream/coordinator/internal/ttsstream"
	"github.com/voxstream/coordinator/pkg/provider/llm"
	"github.com/voxstream/coordinator/pkg/provider/stt"
	"github.com/voxstream/coordinator/pkg/provider/tts"
	"github.com/voxstream/coordinator/pkg/transport"
)

// bargeInGrace is how long a barge-in waits for the in-flight turn to
// observe cancellation before moving on regardless.
const bargeInGrace = 200 * time.Millisecond

// idleCheckInterval is how often a session polls its ingress for how long
// it has gone without an inbound audio frame.
const idleCheckInterval = 30 * time.Second

const (
	serviceSTT = "stt"
	serviceLLM = "llm"
	serviceTTS = "tts"
)

// SessionDeps bundles everything a Session needs beyond its transport
// connection: backend providers, per-component configuration, and the
// shared health monitor and metrics instances.
type SessionDeps struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider

	ASRConfig asr.Config
	LLMConfig llmstream.Config
	TTSConfig ttsstream.Config

	SystemPrompt string

	Health         *health.Monitor
	Metrics        *observe.Metrics
	MetricsManager *metrics.Manager

	TTSTokenBudget int
	TTSQueueSize   int
	TTSQueueWait   time.Duration

	// IdleTimeout reclaims the session once this long has passed without an
	// inbound audio frame. Zero disables idle reclamation.
	IdleTimeout time.Duration
}

// Session coordinates one participant's full ASR -> LLM -> TTS pipeline.
type Session struct {
	id             string
	conn           transport.Connection
	metrics        *observe.Metrics
	metricsManager *metrics.Manager

	buffer *ingress.RollingBuffer
	in     *ingress.Ingress
	asr    *asr.Streamer
	llm    *llmstream.Streamer
	tts    *ttsstream.Streamer

	ttsTokenBudget int
	ttsQueueSize   int
	ttsQueueWait   time.Duration
	idleTimeout    time.Duration

	ctx              context.Context
	lifecycleCancel context.CancelFunc

	mu             sync.Mutex
	speaking       bool
	bargeInCount   int
	turnSeq        int
	turnCancel     context.CancelFunc
	turnDone       chan struct{}
	lastASRFinalAt time.Time

	closers []func() error
}

func newSession(id string, conn transport.Connection, deps SessionDeps) *Session {
	mon := deps.Health
	if mon == nil {
		mon = health.NewMonitor()
	}
	sttP, llmP, ttsP := deps.STT, deps.LLM, deps.TTS
	sttP = &monitoredSTT{inner: sttP, mon: mon, id: serviceSTT, metrics: deps.MetricsManager, sessionID: id}
	llmP = &monitoredLLM{inner: llmP, mon: mon, id: serviceLLM, metrics: deps.MetricsManager, sessionID: id}
	ttsP = &monitoredTTS{inner: ttsP, mon: mon, id: serviceTTS, metrics: deps.MetricsManager, sessionID: id}

	buf := ingress.NewRollingBuffer(0)
	s := &Session{
		id:             id,
		conn:           conn,
		metrics:        deps.Metrics,
		metricsManager: deps.MetricsManager,
		buffer:         buf,
		in:             ingress.New(id, buf),
		asr:            asr.New(id, sttP, buf, deps.ASRConfig),
		llm:            llmstream.New(id, llmP, deps.LLMConfig, deps.SystemPrompt),
		tts:            ttsstream.New(id, ttsP, deps.TTSConfig),
		ttsTokenBudget: deps.TTSTokenBudget,
		ttsQueueSize:   deps.TTSQueueSize,
		ttsQueueWait:   deps.TTSQueueWait,
		idleTimeout:    deps.IdleTimeout,
	}

	s.asr.OnPartial = func(text string) {
		_ = s.conn.Publish(s.publishCtx(), transport.Datagram{Type: transport.DatagramASRPartial, Text: text}, true)
	}
	s.asr.OnFinal = func(text string) {
		s.mu.Lock()
		s.lastASRFinalAt = time.Now()
		s.mu.Unlock()
		_ = s.conn.Publish(s.publishCtx(), transport.Datagram{Type: transport.DatagramASRFinal, Text: text}, true)
		s.startTurn(text)
	}

	return s
}

// Run drives the session's ingress, ASR, and barge-in listener until ctx is
// cancelled or the participant disconnects. It blocks until all of them
// have returned.
func (s *Session) Run(ctx context.Context) error {
	ctx, disconnected := context.WithCancel(ctx)
	defer disconnected()
	g, gctx := errgroup.WithContext(ctx)
	s.ctx = gctx

	if s.metricsManager != nil {
		s.metricsManager.StartSession(s.id)
	}

	g.Go(func() error {
		s.in.Run(gctx, s.conn)
		// Ingress returns once inbound audio closes, i.e. the participant
		// disconnected; stop the remaining stages with it.
		disconnected()
		return nil
	})
	g.Go(func() error {
		s.asr.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return s.listenDatagrams(gctx)
	})
	if s.idleTimeout > 0 {
		g.Go(func() error {
			s.watchIdle(gctx)
			return nil
		})
	}

	return g.Wait()
}

// watchIdle reclaims the session, the same way Coordinator.Stop would, once
// no inbound audio frame has arrived for longer than idleTimeout.
func (s *Session) watchIdle(ctx context.Context) {
	interval := s.idleTimeout / 4
	if interval <= 0 || interval > idleCheckInterval {
		interval = idleCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idleFor := time.Since(s.in.LastFrameAt())
			if idleFor < s.idleTimeout {
				continue
			}
			slog.Info("reclaiming idle session", "session_id", s.id, "idle_for", idleFor)
			if s.lifecycleCancel != nil {
				s.lifecycleCancel()
			}
			return
		}
	}
}

// publishCtx returns the session's running context if Run has started, or
// a background context otherwise (used by callbacks that can theoretically
// fire before the session's goroutines are up).
func (s *Session) publishCtx() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

func (s *Session) listenDatagrams(ctx context.Context) error {
	in := s.conn.InboundDatagrams()
	for {
		select {
		case <-ctx.Done():
			return nil
		case dg, ok := <-in:
			if !ok {
				return nil
			}
			switch dg.Type {
			case transport.DatagramBargeIn:
				s.handleBargeIn(ctx)
			case transport.DatagramVADHint:
				s.asr.SetSpeechHint(dg.Speech)
			}
		}
	}
}

// startTurn launches one LLM completion + TTS playback turn in response to
// a finalized utterance, cancellable by a later barge-in. Only one turn
// runs at a time: runTurn points the session's shared llmstream callbacks
// at its own turn-scoped segmenter and queue, so a prior turn must be fully
// stopped before the next one claims those callbacks. An ASR final can
// arrive for a fresh utterance while the previous one's turn is still
// streaming (the window slides every SlideMS, independent of how long a
// completion takes), so this cancels and joins whatever came before rather
// than assuming the caller serializes calls.
func (s *Session) startTurn(userText string) {
	s.endPriorTurn()

	parent := s.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	s.mu.Lock()
	s.turnCancel = cancel
	s.turnDone = done
	s.turnSeq++
	turnID := s.turnSeq
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.runTurn(ctx, turnID, userText)
	}()
}

// endPriorTurn cancels and waits out whatever turn was running before this
// call, if any. Unlike handleBargeIn's bounded grace wait, this blocks
// until the prior turn's goroutine has actually exited: the next turn is
// about to reassign s.llm's callbacks, and leaving the old goroutine
// running past that point is exactly the cross-turn corruption this exists
// to prevent.
func (s *Session) endPriorTurn() {
	s.mu.Lock()
	cancel := s.turnCancel
	done := s.turnDone
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Session) runTurn(ctx context.Context, turnID int, userText string) {
	segmenter := ttsstream.NewSegmenter(s.ttsTokenBudget)
	queue := ttsstream.NewQueue(s.id, s.ttsQueueSize, s.ttsQueueWait)

	var closeOnce sync.Once
	closeQueue := func() { closeOnce.Do(queue.Close) }
	defer closeQueue()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.consumeSegments(ctx, queue)
	}()

	prevLen := 0
	s.llm.OnPartial = func(full string) {
		delta := full[prevLen:]
		prevLen = len(full)
		_ = s.conn.Publish(ctx, transport.Datagram{Type: transport.DatagramLLMPartial, Text: full}, true)
		for _, seg := range segmenter.Feed(delta) {
			queue.Enqueue(ctx, seg)
		}
	}
	s.llm.OnFinal = func(full string) {
		_ = s.conn.Publish(ctx, transport.Datagram{Type: transport.DatagramLLMFinal, Text: full}, true)
		if tail := segmenter.Flush(); tail != "" {
			queue.Enqueue(ctx, tail)
		}
	}

	err := s.llm.Complete(ctx, userText)
	closeQueue()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("llm turn failed", "session_id", s.id, "turn", turnID, "error", err)
	}
}

func (s *Session) consumeSegments(ctx context.Context, queue *ttsstream.Queue) {
	s.setSpeaking(true)
	defer s.setSpeaking(false)

	first := true
	for seg := range queue.Segments() {
		if err := s.tts.SpeakSegment(ctx, s.conn, seg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			slog.Warn("tts segment failed", "session_id", s.id, "error", err)
			continue
		}
		if first {
			first = false
			s.recordE2ELatency(ctx)
		}
	}
}

func (s *Session) recordE2ELatency(ctx context.Context) {
	s.mu.Lock()
	since := s.lastASRFinalAt
	s.mu.Unlock()
	if since.IsZero() {
		return
	}
	elapsed := time.Since(since)
	if s.metrics != nil {
		s.metrics.E2EDuration.Record(ctx, elapsed.Seconds())
	}
	if s.metricsManager != nil {
		s.metricsManager.RecordE2E(s.id, elapsed)
	}
}

func (s *Session) setSpeaking(v bool) {
	s.mu.Lock()
	s.speaking = v
	s.mu.Unlock()
}

// handleBargeIn cancels the in-flight turn, waits up to bargeInGrace for it
// to unwind, resets speaking state, and notifies the client. The cancelled
// turn's LLM reply is never committed to history and its queued TTS
// segments are dropped, not drained.
func (s *Session) handleBargeIn(ctx context.Context) {
	s.mu.Lock()
	cancel := s.turnCancel
	done := s.turnDone
	s.bargeInCount++
	count := s.bargeInCount
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		select {
		case <-done:
		case <-time.After(bargeInGrace):
		}
	}
	s.setSpeaking(false)

	if s.metrics != nil {
		s.metrics.RecordBargeIn(ctx, s.id)
	}
	if s.metricsManager != nil {
		s.metricsManager.RecordBargeIn(s.id)
	}
	_ = s.conn.Publish(ctx, transport.Datagram{Type: transport.DatagramAgentInterrupted}, true)
	slog.Info("barge-in handled", "session_id", s.id, "barge_in_count", count)
}

// IsSpeaking reports whether the agent is currently emitting TTS audio.
func (s *Session) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// BargeInCount returns how many barge-ins this session has handled.
func (s *Session) BargeInCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bargeInCount
}

// Close runs registered cleanup closers in reverse order and closes the
// transport connection. Safe to call once per session lifetime.
func (s *Session) Close() error {
	if s.metricsManager != nil {
		if summary, ok := s.metricsManager.FinalizeSession(s.id); ok {
			slog.Info("session metrics finalized", "session_id", s.id, "pipeline_latency_ms", summary.PipelineTotalLatencyMS, "barge_ins", summary.BargeIns)
		}
	}

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: close connection: %w", err))
	}
	return errors.Join(errs...)
}
