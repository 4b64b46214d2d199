package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// defaults mirror the external interface's documented defaults.
const (
	defaultListenAddr             = ":8080"
	defaultLogLevel               = LogInfo
	defaultASRBufferWindowMS      = 500
	defaultASRBufferSlideMS       = 250
	defaultLLMMaxTokens           = 256
	defaultLLMTemperature         = 0.7
	defaultLLMMemoryContextTokens = 2000
	defaultTTSChunkSizeSentences  = 2
	defaultTTSTokenBudget         = 25
	defaultSessionExpiryMinutes   = 10
	defaultMaxConcurrentSessions  = 5
	defaultHealthCheckInterval    = 30 * time.Second
	defaultServiceTimeout         = 3 * time.Second
	defaultMetricsSavePath        = "metrics.jsonl"
)

// defaultConfig builds the hardcoded baseline before any YAML file or
// environment variable is consulted.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: defaultListenAddr, LogLevel: defaultLogLevel},
		ASR: ASRConfig{
			BufferWindowMS: defaultASRBufferWindowMS,
			BufferSlideMS:  defaultASRBufferSlideMS,
		},
		LLM: LLMConfig{
			MaxTokens:           defaultLLMMaxTokens,
			Temperature:         defaultLLMTemperature,
			MemoryContextTokens: defaultLLMMemoryContextTokens,
		},
		TTS: TTSConfig{
			ChunkSizeSentences: defaultTTSChunkSizeSentences,
			TokenBudget:        defaultTTSTokenBudget,
		},
		Session: SessionConfig{
			ExpiryMinutes:         defaultSessionExpiryMinutes,
			MaxConcurrentSessions: defaultMaxConcurrentSessions,
		},
		Health: HealthConfig{
			CheckInterval:  defaultHealthCheckInterval,
			ServiceTimeout: defaultServiceTimeout,
		},
		Metrics:  MetricsConfig{Enabled: true, SavePath: defaultMetricsSavePath},
		Provider: ProviderConfig{LLMModel: "gpt-4o-mini"},
	}
}

// LoadDefaultsFile decodes a YAML defaults file into base, overwriting only
// the fields present in the document. It rejects unknown keys so a typo in
// the file surfaces as a startup error rather than a silently ignored
// setting. An empty document leaves base unchanged.
func LoadDefaultsFile(r io.Reader, base *Config) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(base); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode defaults yaml: %w", err)
	}
	return base, nil
}

// Load builds a [Config]. It starts from the hardcoded defaults, merges in
// an optional YAML defaults file named by the CONFIG_FILE environment
// variable, then lets each environment variable that is set override the
// value from the defaults or the file, and finally validates the result.
func Load() (*Config, error) {
	def := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		def, err = LoadDefaultsFile(f, def)
		f.Close()
		if err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			ListenAddr: getEnv("LISTEN_ADDR", def.Server.ListenAddr),
			LogLevel:   LogLevel(getEnv("LOG_LEVEL", string(def.Server.LogLevel))),
		},
		ASR: ASRConfig{
			BufferWindowMS: getEnvInt("ASR_BUFFER_WINDOW_MS", def.ASR.BufferWindowMS),
			BufferSlideMS:  getEnvInt("ASR_BUFFER_SLIDE_MS", def.ASR.BufferSlideMS),
		},
		LLM: LLMConfig{
			MaxTokens:           getEnvInt("LLM_MAX_TOKENS", def.LLM.MaxTokens),
			Temperature:         getEnvFloat("LLM_TEMPERATURE", def.LLM.Temperature),
			MemoryContextTokens: getEnvInt("MEMORY_CONTEXT_TOKENS", def.LLM.MemoryContextTokens),
		},
		TTS: TTSConfig{
			ChunkSizeSentences: getEnvInt("TTS_CHUNK_SIZE_SENTENCES", def.TTS.ChunkSizeSentences),
			TokenBudget:        getEnvInt("TTS_TOKEN_BUDGET", def.TTS.TokenBudget),
		},
		Session: SessionConfig{
			ExpiryMinutes:         getEnvInt("SESSION_EXPIRY_MINUTES", def.Session.ExpiryMinutes),
			MaxConcurrentSessions: getEnvInt("MAX_CONCURRENT_SESSIONS", def.Session.MaxConcurrentSessions),
		},
		Health: HealthConfig{
			CheckInterval:  getEnvDuration("HEALTH_CHECK_INTERVAL", def.Health.CheckInterval),
			ServiceTimeout: getEnvDuration("SERVICE_TIMEOUT", def.Health.ServiceTimeout),
		},
		Metrics: MetricsConfig{
			SavePath: getEnv("METRICS_SAVE_PATH", def.Metrics.SavePath),
			Enabled:  getEnvBool("ENABLE_METRICS", def.Metrics.Enabled),
		},
		Provider: ProviderConfig{
			STTBaseURL:       getEnv("STT_BASE_URL", def.Provider.STTBaseURL),
			STTAPIKey:        getEnv("STT_API_KEY", def.Provider.STTAPIKey),
			DeepgramAPIKey:   getEnv("DEEPGRAM_API_KEY", def.Provider.DeepgramAPIKey),
			LLMAPIKey:        getEnv("LLM_API_KEY", def.Provider.LLMAPIKey),
			LLMModel:         getEnv("LLM_MODEL", def.Provider.LLMModel),
			LLMBaseURL:       getEnv("LLM_BASE_URL", def.Provider.LLMBaseURL),
			TTSBaseURL:       getEnv("TTS_BASE_URL", def.Provider.TTSBaseURL),
			TTSAPIKey:        getEnv("TTS_API_KEY", def.Provider.TTSAPIKey),
			ElevenLabsAPIKey: getEnv("ELEVENLABS_API_KEY", def.Provider.ElevenLabsAPIKey),
			ElevenLabsVoice:  getEnv("ELEVENLABS_VOICE_ID", def.Provider.ElevenLabsVoice),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Accept a bare integer as seconds, matching the external interface's
	// env-var table, or a Go duration string for operator convenience.
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
