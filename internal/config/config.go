// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package config

import (
	"strings"
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in values for every setting
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override individual settings
//
// Configuration Categories:
//
//  1. Request path:
//     - LLM: Provider chains, routing rules, toggles, async limits
//     - Budget: Cost guard thresholds and per-model rates
//     - Enhancer, Calibration, Hybrid, Strategy: Ranking stages
//
//  2. Infrastructure:
//     - Cache: Result/counter store backend (memory, redis, badger)
//     - Warmer: Periodic cache warming
//     - Sources: Local fixture data for candidates and profiles
//     - Server: Ops HTTP listener
//
//  3. Observability:
//     - Logging: Log levels and output formats
//
// A loaded Config is treated as an immutable snapshot. Reloads build a new
// Config and swap it in whole; nothing mutates a published snapshot.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Cache       CacheConfig       `koanf:"cache"`
	LLM         LLMConfig         `koanf:"llm"`
	Budget      BudgetConfig      `koanf:"budget"`
	Enhancer    EnhancerConfig    `koanf:"enhancer"`
	Calibration CalibrationConfig `koanf:"calibration"`
	Hybrid      HybridConfig      `koanf:"hybrid"`
	Warmer      WarmerConfig      `koanf:"warmer"`
	Strategy    StrategyConfig    `koanf:"strategy"`
	Sources     SourcesConfig     `koanf:"sources"`
}

// ServerConfig holds the ops HTTP listener settings.
type ServerConfig struct {
	Addr              string        `koanf:"addr" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled off"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// CacheConfig selects and configures the shared store used for cached
// results and budget counters.
//
// FallbackTTL applies to degraded (non-LLM) results so the provider is
// retried soon. ProfileTTL and CandidateTTL cache the intermediate lookups of
// a request. Zero disables the corresponding layer.
type CacheConfig struct {
	Backend          string        `koanf:"backend" validate:"oneof=memory redis badger"`
	ResultTTL        time.Duration `koanf:"result_ttl" validate:"gt=0"`
	FallbackTTL      time.Duration `koanf:"fallback_ttl" validate:"gte=0"`
	ProfileTTL       time.Duration `koanf:"profile_ttl" validate:"gte=0"`
	CandidateTTL     time.Duration `koanf:"candidate_ttl" validate:"gte=0"`
	MemoryMaxEntries int           `koanf:"memory_max_entries" validate:"gte=1"`
	Redis            RedisConfig   `koanf:"redis"`
	Badger           BadgerConfig  `koanf:"badger"`
}

// RedisConfig holds go-redis client settings.
type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db" validate:"gte=0"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	PoolSize     int           `koanf:"pool_size" validate:"gte=0"`
}

// BadgerConfig holds embedded store settings.
type BadgerConfig struct {
	Path       string        `koanf:"path"`
	InMemory   bool          `koanf:"in_memory"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// LLMConfig describes provider chains and how requests are routed to them.
type LLMConfig struct {
	Enabled         bool                  `koanf:"enabled"`
	DefaultChainID  string                `koanf:"default_chain_id"`
	PromptVersion   string                `koanf:"prompt_version" validate:"oneof=v1 v2"`
	Chains          []ChainConfig         `koanf:"chains" validate:"dive"`
	Routing         []RoutingRule         `koanf:"routing" validate:"dive"`
	Nodes           []NodeConfig          `koanf:"nodes" validate:"dive"`
	Toggles         TogglesConfig         `koanf:"toggles"`
	OpenAI          OpenAIConfig          `koanf:"openai"`
	DefaultProvider DefaultProviderConfig `koanf:"default_provider"`
	AsyncLimits     AsyncLimitsConfig     `koanf:"async_limits"`
}

// ChainConfig is an ordered list of provider hops.
type ChainConfig struct {
	ID    string       `koanf:"id" validate:"required,chainid"`
	Nodes []NodeConfig `koanf:"nodes" validate:"dive"`
}

// NodeConfig is one hop of a chain. Enabled is a pointer so that an omitted
// value means enabled.
type NodeConfig struct {
	Name           string          `koanf:"name" validate:"required"`
	Enabled        *bool           `koanf:"enabled"`
	Timeout        time.Duration   `koanf:"timeout" validate:"gte=0"`
	Retry          RetryConfig     `koanf:"retry"`
	OnErrorsToNext []string        `koanf:"on_errors_to_next"`
	RateLimit      RateLimitConfig `koanf:"rate_limit"`
	Breaker        BreakerConfig   `koanf:"breaker"`
}

// IsEnabled reports whether the node participates in its chain.
func (n NodeConfig) IsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

// EffectiveTimeout returns the configured timeout or the 1800ms default.
func (n NodeConfig) EffectiveTimeout() time.Duration {
	if n.Timeout <= 0 {
		return DefaultNodeTimeout
	}
	return n.Timeout
}

// DefaultNodeTimeout applies to nodes without an explicit timeout.
const DefaultNodeTimeout = 1800 * time.Millisecond

// RetryConfig holds per-hop retry settings. Attempts counts extra attempts
// after the first call.
type RetryConfig struct {
	Attempts int           `koanf:"attempts" validate:"gte=0,lte=5"`
	Backoff  time.Duration `koanf:"backoff" validate:"gte=0"`
}

// RateLimitConfig bounds calls into one node. Zero disables the limiter.
type RateLimitConfig struct {
	RPS        float64 `koanf:"rps" validate:"gte=0"`
	PerUserRPS float64 `koanf:"per_user_rps" validate:"gte=0"`
	Burst      int     `koanf:"burst" validate:"gte=0"`
}

// BreakerConfig configures the circuit breaker wrapped around one node.
// ConsecutiveFailures of zero disables the breaker.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `koanf:"failures"`
	OpenTimeout         time.Duration `koanf:"open_timeout" validate:"gte=0"`
	HalfOpenRequests    uint32        `koanf:"half_open_requests"`
}

// RoutingRule maps a request segment to a chain.
type RoutingRule struct {
	When    *RoutingCondition `koanf:"when"`
	ChainID string            `koanf:"chain_id" validate:"required,chainid"`
}

// RoutingCondition lists accepted values per dimension. Empty lists are
// ignored when matching.
type RoutingCondition struct {
	Tier    []string `koanf:"tier" validate:"omitempty,dive,tier"`
	ABGroup []string `koanf:"ab_group"`
	Route   []string `koanf:"route"`
}

// Allow-list modes.
const (
	AllowListModeOverride  = "override"
	AllowListModeWhitelist = "whitelist"
)

// TogglesConfig gates the LLM path per user, route, tier and A/B group.
type TogglesConfig struct {
	Enabled       bool            `koanf:"enabled"`
	AllowList     []string        `koanf:"allow_list"`
	DenyList      []string        `koanf:"deny_list"`
	AllowListMode string          `koanf:"allow_list_mode" validate:"omitempty,oneof=override whitelist"`
	Routes        map[string]bool `koanf:"routes"`
	Tiers         map[string]bool `koanf:"tiers"`
	ABGroups      map[string]bool `koanf:"ab_groups"`
}

// OpenAIConfig configures the OpenAI-compatible chat completions provider.
type OpenAIConfig struct {
	BaseURL     string        `koanf:"base_url" validate:"required"`
	Model       string        `koanf:"model" validate:"required"`
	APIKeyEnv   string        `koanf:"api_key_env"`
	Timeout     time.Duration `koanf:"timeout" validate:"gte=0"`
	Temperature float64       `koanf:"temperature" validate:"gte=0,lte=2"`
	MaxBodySize int64         `koanf:"max_body_size" validate:"gte=0"`
}

// Default provider strategies.
const (
	DefaultStrategyBusyMessage  = "busy_message"
	DefaultStrategyFSRSFallback = "fsrs_fallback"
	DefaultStrategyEmpty        = "empty"
)

// DefaultProviderConfig configures the terminal provider that never succeeds.
type DefaultProviderConfig struct {
	Strategy   string `koanf:"strategy" validate:"oneof=busy_message fsrs_fallback empty"`
	Message    string `koanf:"message"`
	HTTPStatus int    `koanf:"http_status" validate:"gte=100,lte=599"`
}

// AsyncLimitsConfig bounds concurrent provider calls.
type AsyncLimitsConfig struct {
	Global          int           `koanf:"global" validate:"gte=1"`
	PerUser         int           `koanf:"per_user" validate:"gte=1"`
	AcquireTimeout  time.Duration `koanf:"acquire_timeout" validate:"gt=0"`
	MaxTrackedUsers int           `koanf:"max_users" validate:"gte=1"`
}

// BudgetConfig drives the cost guard.
type BudgetConfig struct {
	Enabled            bool        `koanf:"enabled"`
	DailyUSD           float64     `koanf:"daily_usd" validate:"gt=0"`
	MonthlyUSD         float64     `koanf:"monthly_usd" validate:"gt=0"`
	ChainUSD           float64     `koanf:"chain_usd" validate:"gt=0"`
	PerUserDailyTokens int64       `koanf:"per_user_daily_tokens" validate:"gt=0"`
	EmergencyThreshold float64     `koanf:"emergency_threshold" validate:"gt=0,lte=1"`
	WarningThreshold   float64     `koanf:"warning_threshold" validate:"gt=0,lte=1"`
	ModelRates         []ModelRate `koanf:"model_rates" validate:"dive"`
}

// ModelRate overrides the built-in USD price per 1k tokens for one model.
// Rates are a list rather than a map because model names contain dots.
type ModelRate struct {
	Model       string  `koanf:"model" validate:"required"`
	PerThousand float64 `koanf:"per_thousand" validate:"gte=0"`
}

// EnhancerConfig drives the candidate enhancer.
type EnhancerConfig struct {
	Enabled                bool              `koanf:"enabled"`
	TagDomainMapping       map[string]string `koanf:"tag_domain_mapping"`
	StrongKeepProbability  float64           `koanf:"strong_keep_probability" validate:"gte=0,lte=1"`
	ExplorationProbability float64           `koanf:"exploration_probability" validate:"gte=0,lte=1"`
	DiversityWeight        float64           `koanf:"diversity_weight" validate:"gte=0,lte=1"`
	MinSamples             int               `koanf:"min_samples" validate:"gte=0"`
}

// CalibrationConfig drives the confidence calibrator.
type CalibrationConfig struct {
	Enabled             bool                  `koanf:"enabled"`
	AppendLabels        bool                  `koanf:"append_labels"`
	SystemHealth        float64               `koanf:"system_health" validate:"gte=0,lte=1"`
	Weights             CalibrationWeights    `koanf:"weights"`
	Thresholds          CalibrationThresholds `koanf:"thresholds"`
	ProviderReliability map[string]float64    `koanf:"provider_reliability"`
}

// CalibrationWeights are the component weights; they should sum to ~1.
type CalibrationWeights struct {
	LLM        float64 `koanf:"llm" validate:"gte=0,lte=1"`
	FSRS       float64 `koanf:"fsrs" validate:"gte=0,lte=1"`
	Profile    float64 `koanf:"profile" validate:"gte=0,lte=1"`
	Historical float64 `koanf:"historical" validate:"gte=0,lte=1"`
	Consensus  float64 `koanf:"consensus" validate:"gte=0,lte=1"`
	Context    float64 `koanf:"context" validate:"gte=0,lte=1"`
}

// CalibrationThresholds map calibrated confidence onto labels.
type CalibrationThresholds struct {
	High        float64 `koanf:"high" validate:"gte=0,lte=1"`
	Medium      float64 `koanf:"medium" validate:"gte=0,lte=1"`
	Low         float64 `koanf:"low" validate:"gte=0,lte=1"`
	MinimumShow float64 `koanf:"minimum_show" validate:"gte=0,lte=1"`
}

// HybridConfig drives the hybrid ranker.
type HybridConfig struct {
	Enabled bool          `koanf:"enabled"`
	Weights HybridWeights `koanf:"weights"`
}

// HybridWeights are the signal weights of the hybrid score.
type HybridWeights struct {
	LLM             float64 `koanf:"llm" validate:"gte=0,lte=1"`
	FSRS            float64 `koanf:"fsrs" validate:"gte=0,lte=1"`
	Similarity      float64 `koanf:"similarity" validate:"gte=0,lte=1"`
	Personalization float64 `koanf:"personalization" validate:"gte=0,lte=1"`
}

// WarmerConfig drives the periodic cache warmer.
type WarmerConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Interval       time.Duration `koanf:"interval" validate:"gt=0"`
	WarmOnStartup  bool          `koanf:"warm_on_startup"`
	ActiveUserDays int           `koanf:"active_user_days" validate:"gte=1"`
	MinReviews     int           `koanf:"min_reviews" validate:"gte=0"`
	BatchSize      int           `koanf:"batch_size" validate:"gte=1"`
	MaxConcurrent  int           `koanf:"max_concurrent" validate:"gte=1"`
	Types          []string      `koanf:"types" validate:"dive,oneof=AI FSRS HYBRID AUTO"`
	Limits         []int         `koanf:"limits" validate:"dive,gte=1,lte=50"`
	RunTimeout     time.Duration `koanf:"run_timeout" validate:"gte=0"`
}

// StrategyConfig drives strategy resolution for typed requests.
type StrategyConfig struct {
	Default           string        `koanf:"default" validate:"oneof=AI FSRS HYBRID AUTO"`
	AIPriority        int           `koanf:"ai_priority"`
	HybridPriority    int           `koanf:"hybrid_priority"`
	FSRSPriority      int           `koanf:"fsrs_priority"`
	AIEstimatedTime   time.Duration `koanf:"ai_estimated_time"`
	FSRSEstimatedTime time.Duration `koanf:"fsrs_estimated_time"`
	Mix               MixConfig     `koanf:"mix"`
}

// MixConfig controls objective-driven quota mixing of ranked items.
type MixConfig struct {
	Enabled bool `koanf:"enabled"`
}

// SourcesConfig points at local fixture data. Empty paths produce empty
// sources.
type SourcesConfig struct {
	CandidatesPath  string `koanf:"candidates_path"`
	ProfilesPath    string `koanf:"profiles_path"`
	ActiveUsersPath string `koanf:"active_users_path"`
}

// Chain returns the configured chain with the given id.
func (c *LLMConfig) Chain(id string) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

// RateFor returns the configured per-1k-token rate for model, matched
// case-insensitively.
func (b *BudgetConfig) RateFor(model string) (float64, bool) {
	for _, r := range b.ModelRates {
		if strings.EqualFold(r.Model, model) {
			return r.PerThousand, true
		}
	}
	return 0, false
}
