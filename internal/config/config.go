// Package config provides the environment-derived configuration schema for
// the coordinator process.
package config

import (
	"errors"
	"fmt"
	"time"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration for the coordinator process. It is
// populated from an optional YAML defaults file by [LoadDefaultsFile], then
// overridden by environment variables in [Load]. Fields carry yaml tags so
// the same struct serves both sources.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	ASR      ASRConfig      `yaml:"asr"`
	LLM      LLMConfig      `yaml:"llm"`
	TTS      TTSConfig      `yaml:"tts"`
	Session  SessionConfig  `yaml:"session"`
	Health   HealthConfig   `yaml:"health"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Provider ProviderConfig `yaml:"provider"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ASRConfig controls the sliding-window audio buffer.
type ASRConfig struct {
	// BufferWindowMS is the length of each buffered window, in milliseconds.
	BufferWindowMS int `yaml:"buffer_window_ms"`

	// BufferSlideMS is how far the window advances between transcription
	// calls, in milliseconds.
	BufferSlideMS int `yaml:"buffer_slide_ms"`
}

// LLMConfig controls completion requests.
type LLMConfig struct {
	// MaxTokens caps completion length. Zero means use the provider default.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls output randomness.
	Temperature float64 `yaml:"temperature"`

	// MemoryContextTokens caps the conversation history kept in the prompt,
	// in an approximate 4-characters-per-token accounting.
	MemoryContextTokens int `yaml:"memory_context_tokens"`
}

// TTSConfig controls synthesis segmentation.
type TTSConfig struct {
	// ChunkSizeSentences is loaded and validated, but the segmenter does not
	// read it: segment size is decided by TokenBudget alone.
	ChunkSizeSentences int `yaml:"chunk_size_sentences"`

	// TokenBudget caps how much streamed LLM text accumulates into one
	// synthesis segment, in an approximate 4-characters-per-token
	// accounting. This is unrelated to LLMConfig.MemoryContextTokens, which
	// bounds conversation history, not a single TTS segment.
	TokenBudget int `yaml:"token_budget"`
}

// SessionConfig controls session lifecycle and concurrency limits.
type SessionConfig struct {
	// ExpiryMinutes is how long a session may sit idle before the
	// coordinator tears it down.
	ExpiryMinutes int `yaml:"expiry_minutes"`

	// MaxConcurrentSessions caps the number of simultaneously active
	// sessions the coordinator will accept.
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`
}

// HealthConfig controls backend health polling.
type HealthConfig struct {
	// CheckInterval is how often the coordinator probes each backend
	// service.
	CheckInterval time.Duration `yaml:"check_interval"`

	// ServiceTimeout bounds each health probe of a backend service.
	ServiceTimeout time.Duration `yaml:"service_timeout"`
}

// MetricsConfig controls metrics persistence.
type MetricsConfig struct {
	// SavePath is the file path metrics are appended to as JSON lines.
	SavePath string `yaml:"save_path"`

	// Enabled gates whether metrics are recorded at all.
	Enabled bool `yaml:"enabled"`
}

// ProviderConfig holds credentials and endpoints for the STT, LLM, and TTS
// backend services.
type ProviderConfig struct {
	STTBaseURL string `yaml:"stt_base_url"`
	STTAPIKey  string `yaml:"stt_api_key"`

	DeepgramAPIKey string `yaml:"deepgram_api_key"`

	LLMAPIKey  string `yaml:"llm_api_key"`
	LLMModel   string `yaml:"llm_model"`
	LLMBaseURL string `yaml:"llm_base_url"`

	TTSBaseURL string `yaml:"tts_base_url"`
	TTSAPIKey  string `yaml:"tts_api_key"`

	ElevenLabsAPIKey string `yaml:"elevenlabs_api_key"`
	ElevenLabsVoice  string `yaml:"elevenlabs_voice"`
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.ASR.BufferWindowMS <= 0 {
		errs = append(errs, fmt.Errorf("ASR_BUFFER_WINDOW_MS must be positive, got %d", cfg.ASR.BufferWindowMS))
	}
	if cfg.ASR.BufferSlideMS <= 0 || cfg.ASR.BufferSlideMS > cfg.ASR.BufferWindowMS {
		errs = append(errs, fmt.Errorf("ASR_BUFFER_SLIDE_MS must be positive and at most ASR_BUFFER_WINDOW_MS, got %d", cfg.ASR.BufferSlideMS))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("LLM_TEMPERATURE must be in [0, 2], got %f", cfg.LLM.Temperature))
	}
	if cfg.TTS.ChunkSizeSentences <= 0 {
		errs = append(errs, fmt.Errorf("TTS_CHUNK_SIZE_SENTENCES must be positive, got %d", cfg.TTS.ChunkSizeSentences))
	}
	if cfg.TTS.TokenBudget <= 0 {
		errs = append(errs, fmt.Errorf("TTS_TOKEN_BUDGET must be positive, got %d", cfg.TTS.TokenBudget))
	}
	if cfg.Session.ExpiryMinutes <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_EXPIRY_MINUTES must be positive, got %d", cfg.Session.ExpiryMinutes))
	}
	if cfg.Session.MaxConcurrentSessions <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_SESSIONS must be positive, got %d", cfg.Session.MaxConcurrentSessions))
	}
	if cfg.Health.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("HEALTH_CHECK_INTERVAL must be positive, got %s", cfg.Health.CheckInterval))
	}
	if cfg.Health.ServiceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SERVICE_TIMEOUT must be positive, got %s", cfg.Health.ServiceTimeout))
	}
	if cfg.Metrics.Enabled && cfg.Metrics.SavePath == "" {
		errs = append(errs, errors.New("METRICS_SAVE_PATH is required when ENABLE_METRICS is true"))
	}

	return errors.Join(errs...)
}
