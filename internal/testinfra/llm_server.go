// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// ChatCapture represents a captured chat completions request.
type ChatCapture struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// MockLLMServer is an OpenAI-compatible chat completions endpoint for
// provider and service tests. It captures every request and answers with a
// configurable completion.
type MockLLMServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	captures []ChatCapture

	// ResponseStatus is the HTTP status code to return (default: 200).
	ResponseStatus int

	// Content is placed in choices[0].message.content.
	Content string

	// PromptTokens and CompletionTokens fill the usage block.
	PromptTokens     int
	CompletionTokens int

	// Delay holds the response back, aborting early if the client goes away.
	Delay time.Duration

	// ResponseFunc allows custom response handling per request.
	ResponseFunc func(w http.ResponseWriter, r *http.Request)
}

// NewMockLLMServer starts a mock server and registers its shutdown with t.
func NewMockLLMServer(t *testing.T) *MockLLMServer {
	t.Helper()

	m := &MockLLMServer{
		ResponseStatus:   http.StatusOK,
		Content:          `{"items":[]}`,
		PromptTokens:     120,
		CompletionTokens: 40,
	}

	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Server.Close)
	return m
}

func (m *MockLLMServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body.Close()

	m.mu.Lock()
	m.captures = append(m.captures, ChatCapture{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header.Clone(),
		Body:    body,
	})
	status, content, delay, fn := m.ResponseStatus, m.Content, m.Delay, m.ResponseFunc
	prompt, completion := m.PromptTokens, m.CompletionTokens
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if fn != nil {
		fn(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status >= 300 {
		w.Write([]byte(`{"error":{"message":"mock failure"}}`)) //nolint:errcheck
		return
	}
	w.Write(ChatCompletionBody(content, prompt, completion)) //nolint:errcheck
}

// URL returns the server base URL (use as the OpenAI base_url).
func (m *MockLLMServer) URL() string {
	return m.Server.URL
}

// Set updates the canned answer under the lock.
func (m *MockLLMServer) Set(status int, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResponseStatus = status
	m.Content = content
}

// SetDelay updates the response delay under the lock.
func (m *MockLLMServer) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Delay = d
}

// Captures returns all captured requests.
func (m *MockLLMServer) Captures() []ChatCapture {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]ChatCapture, len(m.captures))
	copy(result, m.captures)
	return result
}

// Calls returns the number of requests received.
func (m *MockLLMServer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.captures)
}

// ChatCompletionBody renders an OpenAI chat completions response envelope.
func ChatCompletionBody(content string, promptTokens, completionTokens int) []byte {
	resp := map[string]any{
		"id":     "chatcmpl-mock",
		"object": "chat.completion",
		"model":  "mock-model",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": content,
			},
		}},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
	data, _ := json.Marshal(resp)
	return data
}
