// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

// Package testinfra provides test infrastructure for provider, service and
// integration tests.
//
// # Mock LLM Server
//
// MockLLMServer is an httptest server speaking the OpenAI chat completions
// protocol. It is always compiled so unit tests can point the OpenAI provider
// at it:
//
//	srv := testinfra.NewMockLLMServer(t)
//	srv.Content = `{"items":[{"problemId":7,"reason":"weak topic","confidence":0.8}]}`
//
//	p := provider.NewOpenAI(config.OpenAIConfig{BaseURL: srv.URL(), ...}, logger)
//
// # Redis Container
//
// RedisContainer (build tag integration) starts a real Redis through
// testcontainers-go for the RedisStore contract tests:
//
//	func TestRedisStore(t *testing.T) {
//	    addr := testinfra.StartRedis(t)
//	    store, err := cache.NewRedisStore(ctx, config.RedisConfig{Addr: addr})
//	    // ...
//	}
//
// # CI Considerations
//
// Container tests require Docker and network access. They are skipped
// gracefully when Docker is unavailable. Run them with:
//
//	go test -tags integration ./internal/cache/...
package testinfra
