// Package metrics accumulates per-session ASR/LLM/TTS/E2E latency samples,
// persists a summary per completed session as an append-only JSON-lines
// file, and keeps a rolling aggregate used to answer whether each stage is
// meeting its latency budget.
//
// This complements [github.com/voxstream/coordinator/internal/observe],
// which exports the same latency data as OpenTelemetry histograms for
// Prometheus scraping; Manager exists for the flat-file record and the
// target-budget aggregate that OTel has no direct equivalent for.
package metrics

import (
	"sync"
	"time"
)

// Default latency targets, in milliseconds, per pipeline stage.
const (
	targetASRMS = 500
	targetLLMMS = 300
	targetTTSMS = 200
	targetE2EMS = 1000

	defaultWindowSize = 100
)

// StageSample is one completed unit of work within a pipeline stage (one
// ASR window transcription, one LLM completion, one TTS segment).
type StageSample struct {
	LatencyMS float64
	Success   bool
	Err       string
}

type sessionAccumulator struct {
	sessionID string
	startedAt time.Time

	asr []StageSample
	llm []StageSample
	tts []StageSample
	e2e []float64

	bargeInCount int
}

func newSessionAccumulator(sessionID string) *sessionAccumulator {
	return &sessionAccumulator{sessionID: sessionID, startedAt: time.Now()}
}

// StageSummary is the serialized view of one stage's samples for a session.
type StageSummary struct {
	Count          int     `json:"count"`
	TotalLatency   float64 `json:"total_latency_ms"`
	AverageLatency float64 `json:"avg_latency_ms"`
}

func summarize(samples []StageSample) StageSummary {
	var total float64
	for _, s := range samples {
		total += s.LatencyMS
	}
	avg := 0.0
	if len(samples) > 0 {
		avg = total / float64(len(samples))
	}
	return StageSummary{Count: len(samples), TotalLatency: round2(total), AverageLatency: round2(avg)}
}

func errorCount(groups ...[]StageSample) int {
	n := 0
	for _, g := range groups {
		for _, s := range g {
			if !s.Success {
				n++
			}
		}
	}
	return n
}

// E2ESummary summarizes the end-to-end latency measurements recorded for a
// session (final transcript to first TTS frame).
type E2ESummary struct {
	Measurements int     `json:"measurements"`
	Average      float64 `json:"avg_latency_ms"`
	Min          float64 `json:"min_latency_ms"`
	Max          float64 `json:"max_latency_ms"`
}

func summarizeE2E(values []float64) E2ESummary {
	if len(values) == 0 {
		return E2ESummary{}
	}
	sum, min, max := 0.0, values[0], values[0]
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return E2ESummary{
		Measurements: len(values),
		Average:      round2(sum / float64(len(values))),
		Min:          round2(min),
		Max:          round2(max),
	}
}

// Summary is the persisted record for one completed session, matching the
// append-only JSONL schema described for the metrics file.
type Summary struct {
	SessionID string  `json:"session_id"`
	DurationS float64 `json:"duration_s"`

	ASR StageSummary `json:"asr"`
	LLM StageSummary `json:"llm"`
	TTS StageSummary `json:"tts"`

	PipelineTotalLatencyMS float64 `json:"pipeline_total_latency_ms"`

	E2E E2ESummary `json:"e2e"`

	Errors   int `json:"errors"`
	BargeIns int `json:"barge_ins"`
}

func (a *sessionAccumulator) summary() Summary {
	asrS, llmS, ttsS := summarize(a.asr), summarize(a.llm), summarize(a.tts)
	return Summary{
		SessionID:              a.sessionID,
		DurationS:              round2(time.Since(a.startedAt).Seconds()),
		ASR:                    asrS,
		LLM:                    llmS,
		TTS:                    ttsS,
		PipelineTotalLatencyMS: round2(asrS.TotalLatency + llmS.TotalLatency + ttsS.TotalLatency),
		E2E:                    summarizeE2E(a.e2e),
		Errors:                 errorCount(a.asr, a.llm, a.tts),
		BargeIns:               a.bargeInCount,
	}
}

// window is a fixed-capacity ring buffer of recent float64 samples, used for
// the rolling aggregate average per stage.
type window struct {
	values []float64
	cap    int
	next   int
	filled bool
}

func newWindow(cap int) *window {
	return &window{values: make([]float64, cap), cap: cap}
}

func (w *window) add(v float64) {
	w.values[w.next] = v
	w.next++
	if w.next == w.cap {
		w.next = 0
		w.filled = true
	}
}

func (w *window) average() float64 {
	n := w.next
	if w.filled {
		n = w.cap
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += w.values[i]
	}
	return sum / float64(n)
}

// Sink persists a completed session's Summary somewhere durable, such as
// [JSONLSink].
type Sink interface {
	Write(Summary) error
}

// Manager accumulates per-session stage samples and, on session finalize,
// writes a Summary through its Sink and folds the session's averages into a
// rolling window used for [Manager.Aggregate].
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*sessionAccumulator

	windowSize int
	asrWindow  *window
	llmWindow  *window
	ttsWindow  *window
	e2eWindow  *window
	pipeWindow *window

	totalSessions int64
	totalErrors   int64
	totalBargeIns int64

	sink Sink
}

// NewManager creates a Manager that persists completed sessions through
// sink (may be nil to disable persistence) and keeps a rolling average over
// the last windowSize sessions per stage. windowSize defaults to 100 when
// non-positive.
func NewManager(sink Sink, windowSize int) *Manager {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	return &Manager{
		sessions:   make(map[string]*sessionAccumulator),
		windowSize: windowSize,
		asrWindow:  newWindow(windowSize),
		llmWindow:  newWindow(windowSize),
		ttsWindow:  newWindow(windowSize),
		e2eWindow:  newWindow(windowSize),
		pipeWindow: newWindow(windowSize),
		sink:       sink,
	}
}

// StartSession registers a new session to accumulate samples for.
func (m *Manager) StartSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = newSessionAccumulator(sessionID)
	m.totalSessions++
}

func (m *Manager) record(sessionID string, pick func(*sessionAccumulator) *[]StageSample, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	sample := StageSample{LatencyMS: float64(latency.Microseconds()) / 1000, Success: err == nil}
	if err != nil {
		sample.Err = err.Error()
	}
	slice := pick(acc)
	*slice = append(*slice, sample)
}

// RecordASR records one ASR window transcription's latency and outcome.
func (m *Manager) RecordASR(sessionID string, latency time.Duration, err error) {
	m.record(sessionID, func(a *sessionAccumulator) *[]StageSample { return &a.asr }, latency, err)
}

// RecordLLM records one LLM completion's latency and outcome.
func (m *Manager) RecordLLM(sessionID string, latency time.Duration, err error) {
	m.record(sessionID, func(a *sessionAccumulator) *[]StageSample { return &a.llm }, latency, err)
}

// RecordTTS records one TTS segment synthesis' latency and outcome.
func (m *Manager) RecordTTS(sessionID string, latency time.Duration, err error) {
	m.record(sessionID, func(a *sessionAccumulator) *[]StageSample { return &a.tts }, latency, err)
}

// RecordE2E records one end-to-end latency measurement (final transcript to
// first TTS audio frame) for sessionID.
func (m *Manager) RecordE2E(sessionID string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.sessions[sessionID]; ok {
		acc.e2e = append(acc.e2e, float64(latency.Microseconds())/1000)
	}
}

// RecordBargeIn increments sessionID's barge-in count.
func (m *Manager) RecordBargeIn(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.sessions[sessionID]; ok {
		acc.bargeInCount++
	}
	m.totalBargeIns++
}

// FinalizeSession computes sessionID's Summary, writes it through the
// configured Sink, folds its averages into the rolling window, and removes
// it from the active set. Returns false if sessionID was never started.
func (m *Manager) FinalizeSession(sessionID string) (Summary, bool) {
	m.mu.Lock()
	acc, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return Summary{}, false
	}
	delete(m.sessions, sessionID)
	summary := acc.summary()

	if summary.ASR.Count > 0 {
		m.asrWindow.add(summary.ASR.AverageLatency)
	}
	if summary.LLM.Count > 0 {
		m.llmWindow.add(summary.LLM.AverageLatency)
	}
	if summary.TTS.Count > 0 {
		m.ttsWindow.add(summary.TTS.AverageLatency)
	}
	if summary.E2E.Measurements > 0 {
		m.e2eWindow.add(summary.E2E.Average)
	}
	m.pipeWindow.add(summary.PipelineTotalLatencyMS)
	m.totalErrors += int64(summary.Errors)
	m.mu.Unlock()

	if m.sink != nil {
		if err := m.sink.Write(summary); err != nil {
			// Persistence failures must not take down the pipeline; the
			// write error is dropped and not reported to the caller.
			return summary, true
		}
	}
	return summary, true
}

// LatencyTarget reports a stage's rolling average against its fixed budget.
type LatencyTarget struct {
	TargetMS float64 `json:"target_ms"`
	Met      bool    `json:"met"`
}

// Aggregate is the current cross-session rolling view, returned from the
// /metrics aggregate endpoint.
type Aggregate struct {
	ActiveSessions int   `json:"active_sessions"`
	TotalSessions  int64 `json:"total_sessions"`
	TotalErrors    int64 `json:"total_errors"`
	TotalBargeIns  int64 `json:"total_barge_ins"`

	AvgLatenciesMS struct {
		ASR      float64 `json:"asr"`
		LLM      float64 `json:"llm"`
		TTS      float64 `json:"tts"`
		E2E      float64 `json:"e2e"`
		Pipeline float64 `json:"pipeline"`
	} `json:"avg_latencies_ms"`

	LatencyTargets struct {
		ASR LatencyTarget `json:"asr"`
		LLM LatencyTarget `json:"llm"`
		TTS LatencyTarget `json:"tts"`
		E2E LatencyTarget `json:"e2e"`
	} `json:"latency_targets"`
}

// Aggregate returns the current rolling aggregate across the last
// windowSize finalized sessions.
func (m *Manager) Aggregate() Aggregate {
	m.mu.Lock()
	defer m.mu.Unlock()

	asrAvg, llmAvg, ttsAvg, e2eAvg := m.asrWindow.average(), m.llmWindow.average(), m.ttsWindow.average(), m.e2eWindow.average()

	var agg Aggregate
	agg.ActiveSessions = len(m.sessions)
	agg.TotalSessions = m.totalSessions
	agg.TotalErrors = m.totalErrors
	agg.TotalBargeIns = m.totalBargeIns
	agg.AvgLatenciesMS.ASR = round2(asrAvg)
	agg.AvgLatenciesMS.LLM = round2(llmAvg)
	agg.AvgLatenciesMS.TTS = round2(ttsAvg)
	agg.AvgLatenciesMS.E2E = round2(e2eAvg)
	agg.AvgLatenciesMS.Pipeline = round2(m.pipeWindow.average())
	agg.LatencyTargets.ASR = LatencyTarget{TargetMS: targetASRMS, Met: asrAvg < targetASRMS}
	agg.LatencyTargets.LLM = LatencyTarget{TargetMS: targetLLMMS, Met: llmAvg < targetLLMMS}
	agg.LatencyTargets.TTS = LatencyTarget{TargetMS: targetTTSMS, Met: ttsAvg < targetTTSMS}
	agg.LatencyTargets.E2E = LatencyTarget{TargetMS: targetE2EMS, Met: e2eAvg < targetE2EMS}
	return agg
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
