// Command voxcore is the main entry point for the voice pipeline
// coordinator.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxstream/coordinator/internal/asr"
	"github.com/voxstream/coordinator/internal/config"
	"github.com/voxstream/coordinator/internal/health"
	"github.com/voxstream/coordinator/internal/llmstream"
	"github.com/voxstream/coordinator/internal/metrics"
	"github.com/voxstream/coordinator/internal/observe"
	"github.com/voxstream/coordinator/internal/pipeline"
	"github.com/voxstream/coordinator/internal/resilience"
	"github.com/voxstream/coordinator/internal/ttsstream"
	"github.com/voxstream/coordinator/pkg/provider/llm"
	llmopenai "github.com/voxstream/coordinator/pkg/provider/llm/openai"
	"github.com/voxstream/coordinator/pkg/provider/stt"
	"github.com/voxstream/coordinator/pkg/provider/stt/deepgram"
	"github.com/voxstream/coordinator/pkg/provider/stt/httpstt"
	"github.com/voxstream/coordinator/pkg/provider/tts"
	"github.com/voxstream/coordinator/pkg/provider/tts/elevenlabs"
	"github.com/voxstream/coordinator/pkg/provider/tts/httptts"
	"github.com/voxstream/coordinator/pkg/transport"
)

const defaultSystemPrompt = "You are a helpful, concise voice assistant. Keep replies short enough to speak naturally."

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxcore: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	slog.Info("voxcore starting", "listen_addr", cfg.Server.ListenAddr, "log_level", cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: "dev"})
	if err != nil {
		slog.Error("failed to init telemetry provider", "error", err)
		return 1
	}
	defer shutdownOTel(context.Background())

	srv, err := newServer(cfg)
	if err != nil {
		slog.Error("failed to build server", "error", err)
		return 1
	}
	srv.prober.Start()
	defer srv.prober.Stop()

	httpSrv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(srv.metrics)(srv.mux()),
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping...")
	case err := <-serveErr:
		if err != nil {
			slog.Error("http server error", "error", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("goodbye")
	return 0
}

// server bundles the pipeline coordinator with the session template a
// transport adapter uses to hand new participant connections off to it.
// The adapter itself — SFU/WebRTC signalling, room membership, ICE — lives
// outside this module per pkg/transport's package doc; AcceptConnection is
// the seam such an adapter calls once it has a live transport.Connection.
type server struct {
	coordinator *pipeline.Coordinator
	deps        pipeline.SessionDeps
	health      *health.Handler
	prober      *health.Prober
	metrics     *observe.Metrics
}

func newServer(cfg *config.Config) (*server, error) {
	sttProvider, err := buildSTT(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("build stt provider: %w", err)
	}
	llmProvider, err := buildLLM(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("build llm provider: %w", err)
	}
	ttsProvider, err := buildTTS(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("build tts provider: %w", err)
	}

	mon := health.NewMonitor()
	prober := health.NewProber(mon, cfg.Health.CheckInterval, cfg.Health.ServiceTimeout)
	probeClient := &http.Client{Timeout: cfg.Health.ServiceTimeout}
	prober.Register("stt", health.HTTPProbe(probeClient, cfg.Provider.STTBaseURL))
	prober.Register("llm", health.HTTPProbe(probeClient, cfg.Provider.LLMBaseURL))
	prober.Register("tts", health.HTTPProbe(probeClient, cfg.Provider.TTSBaseURL))

	var metricsManager *metrics.Manager
	if cfg.Metrics.Enabled {
		metricsManager = metrics.NewManager(metrics.NewJSONLSink(cfg.Metrics.SavePath), 100)
	}

	obsMetrics := observe.DefaultMetrics()
	coord := pipeline.NewCoordinator(cfg.Session.MaxConcurrentSessions, obsMetrics, metricsManager)

	return &server{
		coordinator: coord,
		deps: pipeline.SessionDeps{
			STT:            sttProvider,
			LLM:            llmProvider,
			TTS:            ttsProvider,
			ASRConfig:      asrConfigFrom(cfg.ASR),
			LLMConfig:      llmConfigFrom(cfg.LLM),
			TTSConfig:      ttsConfigFrom(cfg.TTS, cfg.Provider.ElevenLabsVoice),
			SystemPrompt:   defaultSystemPrompt,
			Health:         mon,
			TTSTokenBudget: cfg.TTS.TokenBudget,
			TTSQueueSize:   8,
			TTSQueueWait:   time.Second,
			IdleTimeout:    time.Duration(cfg.Session.ExpiryMinutes) * time.Minute,
		},
		health:  health.New().WithMonitor(mon),
		prober:  prober,
		metrics: obsMetrics,
	}, nil
}

// AcceptConnection starts a new session over conn under a generated session
// ID, using the provider and health wiring built at startup.
func (s *server) AcceptConnection(ctx context.Context, conn transport.Connection) (*pipeline.Session, error) {
	return s.coordinator.Start(ctx, pipeline.NewSessionID(), conn, s.deps)
}

func (s *server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	s.health.Register(mux)
	mux.HandleFunc("/metrics/aggregate", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.coordinator.MetricsAggregate())
	})
	return mux
}

func asrConfigFrom(c config.ASRConfig) asr.Config {
	return asr.Config{
		WindowMS: c.BufferWindowMS,
		SlideMS:  c.BufferSlideMS,
	}
}

func llmConfigFrom(c config.LLMConfig) llmstream.Config {
	return llmstream.Config{
		MaxTokens:        c.MaxTokens,
		Temperature:      c.Temperature,
		MaxContextTokens: c.MemoryContextTokens,
	}
}

func ttsConfigFrom(c config.TTSConfig, voiceID string) ttsstream.Config {
	return ttsstream.Config{Voice: tts.VoiceConfig{VoiceID: voiceID}}
}

func buildSTT(pc config.ProviderConfig) (stt.Provider, error) {
	primary, err := httpstt.New(pc.STTBaseURL, httpstt.WithAPIKey(pc.STTAPIKey))
	if err != nil {
		return nil, fmt.Errorf("build primary stt: %w", err)
	}
	fb := resilience.NewSTTFallback(primary, "httpstt", resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "stt"},
	})
	if pc.DeepgramAPIKey != "" {
		dg, err := deepgram.New(pc.DeepgramAPIKey)
		if err != nil {
			return nil, fmt.Errorf("build deepgram fallback: %w", err)
		}
		fb.AddFallback("deepgram", dg)
	}
	return fb, nil
}

func buildLLM(pc config.ProviderConfig) (llm.Provider, error) {
	primary, err := llmopenai.New(pc.LLMAPIKey, pc.LLMModel, llmopenai.WithBaseURL(pc.LLMBaseURL))
	if err != nil {
		return nil, fmt.Errorf("build llm provider: %w", err)
	}
	fb := resilience.NewLLMFallback(primary, "openai", resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "llm"},
	})
	return fb, nil
}

func buildTTS(pc config.ProviderConfig) (tts.Provider, error) {
	primary, err := httptts.New(pc.TTSBaseURL, httptts.WithAPIKey(pc.TTSAPIKey))
	if err != nil {
		return nil, fmt.Errorf("build primary tts: %w", err)
	}
	fb := resilience.NewTTSFallback(primary, "httptts", resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "tts"},
	})
	if pc.ElevenLabsAPIKey != "" {
		el, err := elevenlabs.New(pc.ElevenLabsAPIKey)
		if err != nil {
			return nil, fmt.Errorf("build elevenlabs fallback: %w", err)
		}
		fb.AddFallback("elevenlabs", el)
	}
	return fb, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
