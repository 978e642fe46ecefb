// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/recoplane/config.yaml",
	"/etc/recoplane/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Default chain and route identifiers.
const (
	DefaultChainID = "main"
	DefaultRoute   = "ai-recommendations"
)

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":9090",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 60,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Cache: CacheConfig{
			Backend:          "memory",
			ResultTTL:        time.Hour,
			FallbackTTL:      5 * time.Minute,
			ProfileTTL:       30 * time.Minute,
			CandidateTTL:     5 * time.Minute,
			MemoryMaxEntries: 50000,
			Redis: RedisConfig{
				Addr:         "127.0.0.1:6379",
				DB:           0,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  500 * time.Millisecond,
				WriteTimeout: 500 * time.Millisecond,
				PoolSize:     0, // 0 = go-redis default (10 per CPU)
			},
			Badger: BadgerConfig{
				Path:       "/data/recoplane",
				InMemory:   false,
				GCInterval: 10 * time.Minute,
			},
		},
		LLM: LLMConfig{
			Enabled:        true,
			DefaultChainID: DefaultChainID,
			PromptVersion:  "v1",
			Chains: []ChainConfig{
				{
					ID: DefaultChainID,
					Nodes: []NodeConfig{
						{
							Name:    "openai",
							Timeout: DefaultNodeTimeout,
							Retry:   RetryConfig{Attempts: 0, Backoff: 100 * time.Millisecond},
							Breaker: BreakerConfig{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second, HalfOpenRequests: 1},
						},
						{Name: "default"},
					},
				},
			},
			Toggles: TogglesConfig{
				Enabled:       true,
				AllowListMode: AllowListModeOverride,
			},
			OpenAI: OpenAIConfig{
				BaseURL:     "https://api.openai.com/v1",
				Model:       "gpt-4o-mini",
				APIKeyEnv:   "OPENAI_API_KEY",
				Timeout:     DefaultNodeTimeout,
				Temperature: 0,
				MaxBodySize: 1 << 20,
			},
			DefaultProvider: DefaultProviderConfig{
				Strategy:   DefaultStrategyBusyMessage,
				Message:    "Recommendations are temporarily unavailable, showing your review queue instead.",
				HTTPStatus: 503,
			},
			AsyncLimits: AsyncLimitsConfig{
				Global:          10,
				PerUser:         2,
				AcquireTimeout:  100 * time.Millisecond,
				MaxTrackedUsers: 10000,
			},
		},
		Budget: BudgetConfig{
			Enabled:            true,
			DailyUSD:           10,
			MonthlyUSD:         300,
			ChainUSD:           5,
			PerUserDailyTokens: 100000,
			EmergencyThreshold: 0.9,
			WarningThreshold:   0.8,
		},
		Enhancer: EnhancerConfig{
			Enabled:                true,
			StrongKeepProbability:  0.7,
			ExplorationProbability: 0.3,
			DiversityWeight:        0.2,
			MinSamples:             10,
		},
		Calibration: CalibrationConfig{
			Enabled:      true,
			AppendLabels: false,
			SystemHealth: 0.9,
			Weights: CalibrationWeights{
				LLM:        0.25,
				FSRS:       0.20,
				Profile:    0.20,
				Historical: 0.15,
				Consensus:  0.10,
				Context:    0.10,
			},
			Thresholds: CalibrationThresholds{
				High:        0.8,
				Medium:      0.6,
				Low:         0.4,
				MinimumShow: 0.2,
			},
		},
		Hybrid: HybridConfig{
			Enabled: true,
			Weights: HybridWeights{
				LLM:             0.45,
				FSRS:            0.30,
				Similarity:      0.15,
				Personalization: 0.10,
			},
		},
		Warmer: WarmerConfig{
			Enabled:        false, // Opt-in: warming issues real provider calls
			Interval:       4 * time.Hour,
			WarmOnStartup:  false,
			ActiveUserDays: 7,
			MinReviews:     5,
			BatchSize:      50,
			MaxConcurrent:  5,
			Types:          []string{"HYBRID", "AI", "FSRS"},
			Limits:         []int{5, 10, 15, 20},
			RunTimeout:     30 * time.Minute,
		},
		Strategy: StrategyConfig{
			Default:           "HYBRID",
			AIPriority:        90,
			HybridPriority:    80,
			FSRSPriority:      70,
			AIEstimatedTime:   1800 * time.Millisecond,
			FSRSEstimatedTime: 200 * time.Millisecond,
			Mix:               MixConfig{Enabled: true},
		},
	}
}

// Default returns the built-in configuration without consulting files or
// the environment. Tests and embedders start from it.
func Default() *Config {
	return defaultConfig()
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
//
// Precedence is ENV > File > Defaults.
func LoadWithKoanf() (*Config, error) {
	return loadFrom(findConfigFile())
}

// LoadFile loads configuration with the given YAML file as the file layer.
// It is used by the reload watcher, which already knows the path.
func LoadFile(path string) (*Config, error) {
	return loadFrom(path)
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// LLM_DEFAULT_CHAIN_ID -> llm.default_chain_id
	// REDIS_ADDR -> cache.redis.addr
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// ConfigFilePath returns the file LoadWithKoanf would read, or "" when
// running on defaults and environment only.
func ConfigFilePath() string {
	return findConfigFile()
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"llm.toggles.allow_list",
	"llm.toggles.deny_list",
	"warmer.types",
	"warmer.limits",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML file or defaults)
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Only scalar settings are exposed; chains and routing rules live in the
// config file.
var envMappings = map[string]string{
	// Server mappings
	"ops_addr":             "server.addr",
	"ops_read_timeout":     "server.read_timeout",
	"ops_write_timeout":    "server.write_timeout",
	"ops_shutdown_timeout": "server.shutdown_timeout",
	"ops_rate_limit":       "server.rate_limit_requests",
	"ops_rate_window":      "server.rate_limit_window",

	// Logging mappings
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Cache mappings
	"cache_backend":            "cache.backend",
	"cache_result_ttl":         "cache.result_ttl",
	"cache_fallback_ttl":       "cache.fallback_ttl",
	"cache_profile_ttl":        "cache.profile_ttl",
	"cache_candidate_ttl":      "cache.candidate_ttl",
	"cache_memory_max_entries": "cache.memory_max_entries",
	"redis_addr":               "cache.redis.addr",
	"redis_password":           "cache.redis.password",
	"redis_db":                 "cache.redis.db",
	"redis_dial_timeout":       "cache.redis.dial_timeout",
	"redis_pool_size":          "cache.redis.pool_size",
	"badger_path":              "cache.badger.path",
	"badger_in_memory":         "cache.badger.in_memory",

	// LLM mappings
	"llm_enabled":               "llm.enabled",
	"llm_default_chain_id":      "llm.default_chain_id",
	"llm_prompt_version":        "llm.prompt_version",
	"llm_global_enabled":        "llm.toggles.enabled",
	"llm_allowlist":             "llm.toggles.allow_list",
	"llm_denylist":              "llm.toggles.deny_list",
	"llm_allowlist_mode":        "llm.toggles.allow_list_mode",
	"llm_async_global":          "llm.async_limits.global",
	"llm_async_per_user":        "llm.async_limits.per_user",
	"llm_async_acquire_timeout": "llm.async_limits.acquire_timeout",
	"llm_async_max_users":       "llm.async_limits.max_users",
	"llm_default_strategy":      "llm.default_provider.strategy",
	"llm_default_message":       "llm.default_provider.message",

	// OpenAI-compatible provider mappings
	"openai_base_url":    "llm.openai.base_url",
	"openai_model":       "llm.openai.model",
	"openai_api_key_env": "llm.openai.api_key_env",
	"openai_timeout":     "llm.openai.timeout",

	// Budget mappings
	"budget_enabled":               "budget.enabled",
	"budget_daily_usd":             "budget.daily_usd",
	"budget_monthly_usd":           "budget.monthly_usd",
	"budget_chain_usd":             "budget.chain_usd",
	"budget_per_user_daily_tokens": "budget.per_user_daily_tokens",
	"budget_emergency_threshold":   "budget.emergency_threshold",
	"budget_warning_threshold":     "budget.warning_threshold",

	// Ranking stage mappings
	"enhancer_enabled":        "enhancer.enabled",
	"calibration_enabled":     "calibration.enabled",
	"calibration_labels":      "calibration.append_labels",
	"hybrid_enabled":          "hybrid.enabled",
	"recommendation_strategy": "strategy.default",
	"mix_enabled":             "strategy.mix.enabled",

	// Warmer mappings
	"warmer_enabled":        "warmer.enabled",
	"warmer_interval":       "warmer.interval",
	"warmer_on_startup":     "warmer.warm_on_startup",
	"warmer_active_days":    "warmer.active_user_days",
	"warmer_min_reviews":    "warmer.min_reviews",
	"warmer_batch_size":     "warmer.batch_size",
	"warmer_max_concurrent": "warmer.max_concurrent",
	"warmer_types":          "warmer.types",
	"warmer_limits":         "warmer.limits",

	// Fixture source mappings
	"candidates_path":   "sources.candidates_path",
	"profiles_path":     "sources.profiles_path",
	"active_users_path": "sources.active_users_path",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - LOG_LEVEL -> logging.level
//   - REDIS_ADDR -> cache.redis.addr
//   - LLM_ALLOWLIST -> llm.toggles.allow_list
//   - WARMER_INTERVAL -> warmer.interval
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}

// WatchConfigFile sets up a file watcher for hot-reload capability. The
// callback runs on the watcher goroutine after every change event; errors
// from the watcher are passed through as well so callers can log them.
func WatchConfigFile(path string, callback func(err error)) (stop func() error, err error) {
	provider := file.Provider(path)

	if err := provider.Watch(func(_ interface{}, werr error) {
		callback(werr)
	}); err != nil {
		return nil, fmt.Errorf("failed to watch config file %s: %w", path, err)
	}
	return provider.Unwatch, nil
}
