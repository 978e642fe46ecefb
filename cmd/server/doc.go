// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

/*
Package main is the entry point for the Recoplane server.

Recoplane sits between a practice application and one or more LLM
providers. It decides per request whether the LLM path runs, walks a
provider chain with breakers and budgets, caches results, and degrades
to a deterministic ranking whenever the LLM path fails. The binary hosts
the service together with its background workers and an ops HTTP surface.

# Application Architecture

Services run under a Suture v4 supervisor tree:

	RootSupervisor ("recoplane")
	├── StoreSupervisor ("store-layer")
	│   ├── Store maintenance (expired entry sweeps, Badger value log GC)
	│   └── Config reload watcher (when a config file is in use)
	├── BackgroundSupervisor ("background-layer")
	│   └── Cache warmer (when warmer.enabled)
	└── APISupervisor ("api-layer")
	    └── Ops HTTP server (health, readiness, metrics, warmer, invalidation)

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config file and environment
 2. Logging: zerolog with JSON/console output modes
 3. Cache store: memory, Redis or Badger
 4. Sources: candidate, profile and active user fixtures
 5. Providers: OpenAI-compatible clients and the default provider
 6. Recommendation service, invalidator and cache warmer
 7. Supervisor tree and ops HTTP server

# Configuration

Configuration is loaded via Koanf v2 with layered sources (highest priority wins):

	Priority: Environment variables > Config file > Defaults

The config file is found through CONFIG_PATH or config.yaml in the working
directory. When a file is in use it is watched and valid changes are
applied without a restart; invalid files are rejected and the previous
settings stay in effect.

Common environment variables:

	OPS_ADDR=:9090               # ops HTTP listener
	LOG_LEVEL=info               # trace, debug, info, warn, error
	LOG_FORMAT=json              # json or console
	CACHE_BACKEND=memory         # memory, redis or badger
	REDIS_ADDR=localhost:6379
	LLM_ENABLED=true
	LLM_DEFAULT_CHAIN_ID=default
	WARMER_ENABLED=false

# Signal Handling

SIGINT and SIGTERM cancel the root context. The supervisor stops every
layer, the ops server drains in-flight requests within
server.shutdown_timeout, manual warmer runs are awaited, and the store
is closed last.

# Example Usage

	export CONFIG_PATH=./config.yaml
	export OPENAI_API_KEY=...
	./recoplane
*/
package main
