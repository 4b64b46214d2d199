package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ASR_BUFFER_WINDOW_MS", "")
	t.Setenv("ASR_BUFFER_SLIDE_MS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ASR.BufferWindowMS != defaultASRBufferWindowMS {
		t.Errorf("BufferWindowMS = %d, want %d", cfg.ASR.BufferWindowMS, defaultASRBufferWindowMS)
	}
	if cfg.Session.MaxConcurrentSessions != defaultMaxConcurrentSessions {
		t.Errorf("MaxConcurrentSessions = %d, want %d", cfg.Session.MaxConcurrentSessions, defaultMaxConcurrentSessions)
	}
	if cfg.Health.CheckInterval != defaultHealthCheckInterval {
		t.Errorf("CheckInterval = %s, want %s", cfg.Health.CheckInterval, defaultHealthCheckInterval)
	}
	if cfg.TTS.TokenBudget != defaultTTSTokenBudget {
		t.Errorf("TokenBudget = %d, want %d", cfg.TTS.TokenBudget, defaultTTSTokenBudget)
	}
}

func TestLoad_TTSTokenBudgetIsIndependentOfLLMMemoryContextTokens(t *testing.T) {
	t.Setenv("MEMORY_CONTEXT_TOKENS", "4000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TTS.TokenBudget == cfg.LLM.MemoryContextTokens {
		t.Fatalf("TTS.TokenBudget (%d) should not track LLM.MemoryContextTokens (%d)", cfg.TTS.TokenBudget, cfg.LLM.MemoryContextTokens)
	}
	if cfg.TTS.TokenBudget != defaultTTSTokenBudget {
		t.Errorf("TokenBudget = %d, want %d", cfg.TTS.TokenBudget, defaultTTSTokenBudget)
	}
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	t.Setenv("ASR_BUFFER_WINDOW_MS", "800")
	t.Setenv("ASR_BUFFER_SLIDE_MS", "400")
	t.Setenv("MAX_CONCURRENT_SESSIONS", "12")
	t.Setenv("HEALTH_CHECK_INTERVAL", "45")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ASR.BufferWindowMS != 800 {
		t.Errorf("BufferWindowMS = %d, want 800", cfg.ASR.BufferWindowMS)
	}
	if cfg.ASR.BufferSlideMS != 400 {
		t.Errorf("BufferSlideMS = %d, want 400", cfg.ASR.BufferSlideMS)
	}
	if cfg.Session.MaxConcurrentSessions != 12 {
		t.Errorf("MaxConcurrentSessions = %d, want 12", cfg.Session.MaxConcurrentSessions)
	}
	if cfg.Health.CheckInterval != 45*time.Second {
		t.Errorf("CheckInterval = %s, want 45s", cfg.Health.CheckInterval)
	}
}

func TestLoad_InvalidValueRejected(t *testing.T) {
	t.Setenv("ASR_BUFFER_SLIDE_MS", "100000")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_DurationAcceptsGoSyntax(t *testing.T) {
	t.Setenv("SERVICE_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Health.ServiceTimeout != 5*time.Second {
		t.Errorf("ServiceTimeout = %s, want 5s", cfg.Health.ServiceTimeout)
	}
}

func TestLoad_DefaultsFileIsOverriddenByEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")
	yamlDoc := "session:\n  max_concurrent_sessions: 20\nllm:\n  temperature: 0.2\n"
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("write defaults file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LLM_TEMPERATURE", "1.1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Session.MaxConcurrentSessions != 20 {
		t.Errorf("MaxConcurrentSessions = %d, want 20 (from defaults file)", cfg.Session.MaxConcurrentSessions)
	}
	if cfg.LLM.Temperature != 1.1 {
		t.Errorf("Temperature = %f, want 1.1 (env overrides defaults file)", cfg.LLM.Temperature)
	}
}

func TestLoad_MissingDefaultsFileErrors(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing defaults file")
	}
}
