package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Game.DurationSeconds != 900 {
		t.Errorf("expected 900s duration, got %d", cfg.Game.DurationSeconds)
	}
	if cfg.Game.BaseRounds != 20 {
		t.Errorf("expected 20 base rounds, got %d", cfg.Game.BaseRounds)
	}
	if cfg.Store.SaveKey != "sentinel_save_v3" {
		t.Errorf("unexpected save key: %s", cfg.Store.SaveKey)
	}
	if len(cfg.Game.SyncBonusRounds) != 3 {
		t.Fatalf("expected 3 sync bonus tiers, got %d", len(cfg.Game.SyncBonusRounds))
	}
	if cfg.Game.SyncBonusRounds[2].Threshold != 80 || cfg.Game.SyncBonusRounds[2].Bonus != 7 {
		t.Errorf("unexpected top bonus tier: %+v", cfg.Game.SyncBonusRounds[2])
	}
	if cfg.Game.EmailCooldownRounds["mystery"] != 8 {
		t.Errorf("expected mystery cooldown 8, got %d", cfg.Game.EmailCooldownRounds["mystery"])
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Game.SuspicionThreshold != 100 {
		t.Errorf("expected default suspicion threshold, got %d", cfg.Game.SuspicionThreshold)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("game:\n  base_rounds: 12\nllm:\n  timeout: 30s\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Game.BaseRounds != 12 {
		t.Errorf("expected override 12, got %d", cfg.Game.BaseRounds)
	}
	if cfg.GetLLMTimeout() != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.GetLLMTimeout())
	}
	// Untouched fields keep defaults.
	if cfg.Game.DurationSeconds != 900 {
		t.Errorf("expected default duration, got %d", cfg.Game.DurationSeconds)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("SENTINEL_DB", "/tmp/alt.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Errorf("expected env api key, got %q", cfg.LLM.APIKey)
	}
	if cfg.Store.DatabasePath != "/tmp/alt.db" {
		t.Errorf("expected env db path, got %q", cfg.Store.DatabasePath)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error with empty API key")
	}
	cfg.LLM.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validate error: %v", err)
	}
	cfg.Game.BaseRounds = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error with zero base rounds")
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Timeout = "garbage"
	if cfg.GetLLMTimeout() != 60*time.Second {
		t.Errorf("expected fallback timeout, got %v", cfg.GetLLMTimeout())
	}
	if cfg.GetInterruptMinInterval() != 3*time.Second {
		t.Errorf("expected 3s min interval, got %v", cfg.GetInterruptMinInterval())
	}
}
