package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all SENTINEL configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Core game tuning
	Game GameConfig `yaml:"game"`

	// Interrupt delivery tuning
	Interrupt InterruptConfig `yaml:"interrupt"`

	// Persistence
	Store StoreConfig `yaml:"store"`

	// Worldview document directory
	WorldviewDir string `yaml:"worldview_dir"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generative backends.
type LLMConfig struct {
	APIKey        string `yaml:"api_key"`
	DialogueModel string `yaml:"dialogue_model"`
	JudgeModel    string `yaml:"judge_model"`
	Timeout       string `yaml:"timeout"`

	DialogueRetries int    `yaml:"dialogue_retries"`
	DialogueBackoff string `yaml:"dialogue_backoff"`
	JudgeRetries    int    `yaml:"judge_retries"`
	JudgeBackoff    string `yaml:"judge_backoff"`
	EmailRetries    int    `yaml:"email_retries"`
	EmailBackoff    string `yaml:"email_backoff"`
}

// GameConfig carries the session tuning constants. Values are the ones the
// narrative was balanced against; changing them changes the game, so they are
// configuration rather than code.
type GameConfig struct {
	DurationSeconds int `yaml:"duration_seconds"`
	BaseRounds      int `yaml:"base_rounds"`

	InitialTrust     int `yaml:"initial_trust"`
	InitialSuspicion int `yaml:"initial_suspicion"`

	SuspicionThreshold int `yaml:"suspicion_threshold"`
	TrustBreakthrough  int `yaml:"trust_breakthrough"`

	// Bonus rounds granted once sync rate reaches each threshold.
	SyncBonusRounds []SyncBonus `yaml:"sync_bonus_rounds"`

	// Mystery-role content unlocks at this sync rate.
	MysterySyncThreshold int `yaml:"mystery_sync_threshold"`

	// Clock manipulation limits, seconds.
	SentinelTimeInfluenceMax          int `yaml:"sentinel_time_influence_max"`
	OtherTimeInfluenceMax             int `yaml:"other_time_influence_max"`
	OtherTimeInfluenceCooldownSeconds int `yaml:"other_time_influence_cooldown_seconds"`

	// Email pacing, in rounds, keyed by role id.
	EmailCooldownRounds map[string]int `yaml:"email_cooldown_rounds"`

	// Route judge invocation: always for the first AlwaysJudgeRounds rounds,
	// then with probability decaying toward JudgeFloorChance.
	AlwaysJudgeRounds int     `yaml:"always_judge_rounds"`
	JudgeFloorChance  float64 `yaml:"judge_floor_chance"`

	MaxInputRunes int `yaml:"max_input_runes"`
}

// SyncBonus grants extra rounds once sync rate reaches Threshold.
type SyncBonus struct {
	Threshold int `yaml:"threshold"`
	Bonus     int `yaml:"bonus"`
}

// InterruptConfig tunes the background character scheduler.
type InterruptConfig struct {
	MinInterval string `yaml:"min_interval"`
	DedupWindow int    `yaml:"dedup_window"`

	// Auto-listening windows per connection mode, seconds.
	ListenWindows map[string]ListenWindow `yaml:"listen_windows"`

	BaseChance          float64 `yaml:"base_chance"`
	SuspicionChanceBump float64 `yaml:"suspicion_chance_bump"`
	SyncChanceBump      float64 `yaml:"sync_chance_bump"`
	MidGameChanceBump   float64 `yaml:"mid_game_chance_bump"`
	LateGameChanceBump  float64 `yaml:"late_game_chance_bump"`
	MinChance           float64 `yaml:"min_chance"`
	MaxChance           float64 `yaml:"max_chance"`
}

// ListenWindow bounds the random delay between auto-listening checks.
type ListenWindow struct {
	MinSeconds int `yaml:"min_seconds"`
	MaxSeconds int `yaml:"max_seconds"`
}

// StoreConfig configures the save store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	// SaveKey is versioned; a breaking snapshot change bumps the suffix and
	// older saves are simply never read again.
	SaveKey string `yaml:"save_key"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`
	Debug bool   `yaml:"debug"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "SENTINEL",
		Version: "3.0.0",

		LLM: LLMConfig{
			DialogueModel:   "gemini-2.5-flash",
			JudgeModel:      "gemini-2.5-flash",
			Timeout:         "60s",
			DialogueRetries: 3,
			DialogueBackoff: "1200ms",
			JudgeRetries:    2,
			JudgeBackoff:    "600ms",
			EmailRetries:    2,
			EmailBackoff:    "500ms",
		},

		Game: GameConfig{
			DurationSeconds:    900,
			BaseRounds:         20,
			InitialTrust:       20,
			InitialSuspicion:   20,
			SuspicionThreshold: 100,
			TrustBreakthrough:  100,
			SyncBonusRounds: []SyncBonus{
				{Threshold: 30, Bonus: 3},
				{Threshold: 60, Bonus: 5},
				{Threshold: 80, Bonus: 7},
			},
			MysterySyncThreshold:              60,
			SentinelTimeInfluenceMax:          300,
			OtherTimeInfluenceMax:             60,
			OtherTimeInfluenceCooldownSeconds: 180,
			EmailCooldownRounds: map[string]int{
				"corporate":  6,
				"resistance": 5,
				"mystery":    8,
				"sentinel":   6,
			},
			AlwaysJudgeRounds: 3,
			JudgeFloorChance:  0.25,
			MaxInputRunes:     500,
		},

		Interrupt: InterruptConfig{
			MinInterval: "3s",
			DedupWindow: 50,
			ListenWindows: map[string]ListenWindow{
				"STANDARD": {MinSeconds: 15, MaxSeconds: 30},
				"SECURE":   {MinSeconds: 12, MaxSeconds: 25},
				"HIDDEN":   {MinSeconds: 10, MaxSeconds: 20},
			},
			BaseChance:          0.2,
			SuspicionChanceBump: 0.15,
			SyncChanceBump:      0.1,
			MidGameChanceBump:   0.08,
			LateGameChanceBump:  0.08,
			MinChance:           0.1,
			MaxChance:           0.8,
		},

		Store: StoreConfig{
			DatabasePath: "data/sentinel.db",
			SaveKey:      "sentinel_save_v3",
		},

		WorldviewDir: "worldview",

		Logging: LoggingConfig{
			Level: "info",
			File:  "sentinel.log",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("SENTINEL_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if path := os.Getenv("SENTINEL_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if dir := os.Getenv("SENTINEL_WORLDVIEW_DIR"); dir != "" {
		c.WorldviewDir = dir
	}
	if os.Getenv("SENTINEL_DEBUG") != "" {
		c.Logging.Debug = true
		c.Logging.Level = "debug"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or SENTINEL_API_KEY)")
	}
	if c.Game.BaseRounds <= 0 {
		return fmt.Errorf("game.base_rounds must be positive, got %d", c.Game.BaseRounds)
	}
	if c.Game.DurationSeconds <= 0 {
		return fmt.Errorf("game.duration_seconds must be positive, got %d", c.Game.DurationSeconds)
	}
	return nil
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// GetDialogueBackoff returns the per-attempt dialogue retry backoff unit.
func (c *Config) GetDialogueBackoff() time.Duration {
	return parseDuration(c.LLM.DialogueBackoff, 1200*time.Millisecond)
}

// GetJudgeBackoff returns the per-attempt judge retry backoff unit.
func (c *Config) GetJudgeBackoff() time.Duration {
	return parseDuration(c.LLM.JudgeBackoff, 600*time.Millisecond)
}

// GetEmailBackoff returns the per-attempt email retry backoff unit.
func (c *Config) GetEmailBackoff() time.Duration {
	return parseDuration(c.LLM.EmailBackoff, 500*time.Millisecond)
}

// GetInterruptMinInterval returns the minimum gap between delivered interrupts.
func (c *Config) GetInterruptMinInterval() time.Duration {
	return parseDuration(c.Interrupt.MinInterval, 3*time.Second)
}

// GameDuration returns the session clock budget.
func (c *Config) GameDuration() time.Duration {
	return time.Duration(c.Game.DurationSeconds) * time.Second
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
