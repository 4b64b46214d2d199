package pipeline

import (
	"context"
	"time"

	"github.com/voxstream/coordinator/internal/health"
	"github.com/voxstream/coordinator/internal/metrics"
	"github.com/voxstream/coordinator/pkg/provider/llm"
	"github.com/voxstream/coordinator/pkg/provider/stt"
	"github.com/voxstream/coordinator/pkg/provider/tts"
)

// monitoredSTT reports every call's outcome to a [health.Monitor] under a
// fixed service ID, and its latency to a [metrics.Manager] session, so
// /health reflects real backend call results and the session's metrics
// record reflects real stage latencies rather than synthetic ones.
type monitoredSTT struct {
	inner     stt.Provider
	mon       *health.Monitor
	id        string
	metrics   *metrics.Manager
	sessionID string
}

func (m *monitoredSTT) Transcribe(ctx context.Context, audio []byte, cfg stt.StreamConfig) (stt.Transcript, error) {
	start := time.Now()
	tr, err := m.inner.Transcribe(ctx, audio, cfg)
	if err != nil {
		m.mon.RecordFailure(m.id, err)
	} else {
		m.mon.RecordSuccess(m.id)
	}
	if m.metrics != nil {
		m.metrics.RecordASR(m.sessionID, time.Since(start), err)
	}
	return tr, err
}

type monitoredLLM struct {
	inner     llm.Provider
	mon       *health.Monitor
	id        string
	metrics   *metrics.Manager
	sessionID string
}

func (m *monitoredLLM) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	start := time.Now()
	ch, err := m.inner.StreamCompletion(ctx, req)
	if err != nil {
		m.mon.RecordFailure(m.id, err)
	} else {
		m.mon.RecordSuccess(m.id)
	}
	if m.metrics != nil {
		m.metrics.RecordLLM(m.sessionID, time.Since(start), err)
	}
	return ch, err
}

func (m *monitoredLLM) Capabilities() llm.ModelCapabilities {
	return m.inner.Capabilities()
}

type monitoredTTS struct {
	inner     tts.Provider
	mon       *health.Monitor
	id        string
	metrics   *metrics.Manager
	sessionID string
}

func (m *monitoredTTS) Synthesize(ctx context.Context, text string, voice tts.VoiceConfig) ([]byte, error) {
	start := time.Now()
	audio, err := m.inner.Synthesize(ctx, text, voice)
	if err != nil {
		m.mon.RecordFailure(m.id, err)
	} else {
		m.mon.RecordSuccess(m.id)
	}
	if m.metrics != nil {
		m.metrics.RecordTTS(m.sessionID, time.Since(start), err)
	}
	return audio, err
}
