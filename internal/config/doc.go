// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

/*
Package config provides centralized configuration management for Recoplane.

Configuration is layered with Koanf v2: built-in defaults, then an optional
YAML file, then environment variables. The result is validated with the
shared go-playground validator plus cross-field checks, and handed out as an
immutable *Config snapshot.

# Configuration Sources

  - Defaults: defaultConfig(), also exposed as Default()
  - File: CONFIG_PATH, or the first of DefaultConfigPaths that exists
  - Environment: the names listed in envMappings (unknown variables are ignored)

Chains, routing rules, toggle maps and model rates are structured values and
are only read from the file layer. Scalar knobs have environment overrides:

  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER
  - CACHE_BACKEND (memory, redis, badger), REDIS_ADDR, BADGER_PATH
  - LLM_ENABLED, LLM_DEFAULT_CHAIN_ID, LLM_PROMPT_VERSION
  - LLM_GLOBAL_ENABLED, LLM_ALLOWLIST, LLM_DENYLIST (comma-separated)
  - LLM_ASYNC_GLOBAL, LLM_ASYNC_PER_USER, LLM_ASYNC_ACQUIRE_TIMEOUT
  - OPENAI_BASE_URL, OPENAI_MODEL, OPENAI_API_KEY_ENV
  - BUDGET_DAILY_USD, BUDGET_MONTHLY_USD, BUDGET_CHAIN_USD
  - WARMER_ENABLED, WARMER_INTERVAL, WARMER_TYPES, WARMER_LIMITS
  - MIX_ENABLED

# Example YAML

	llm:
	  default_chain_id: main
	  chains:
	    - id: main
	      nodes:
	        - name: openai
	          timeout: 1800ms
	          retry: {attempts: 1, backoff: 100ms}
	        - name: default
	  routing:
	    - when: {tier: [GOLD, PLATINUM]}
	      chain_id: main
	budget:
	  daily_usd: 10
	  model_rates:
	    - {model: gpt-4o-mini, per_thousand: 0.0006}

# Hot Reload

WatchConfigFile wraps the koanf file watcher. The supervisor's reload
service calls LoadFile on each change and swaps the new snapshot in only
when it validates.
*/
package config
