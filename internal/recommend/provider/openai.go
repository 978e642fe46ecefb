// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/recommend"
)

// OpenAIName is the default provider name of the OpenAI-compatible client.
const OpenAIName = "openai"

const (
	chatCompletionsPath = "/chat/completions"
	defaultMaxBodySize  = 1 << 20
	defaultHTTPTimeout  = 30 * time.Second
	errorBodyLimit      = 4 << 10
	literalKeyPrefix    = "sk-"
)

// ErrAPIKeyMissing is wrapped by the API_KEY_MISSING provider error.
var ErrAPIKeyMissing = errors.New("openai: api key not configured")

// HTTPError is a non-2xx answer from the chat completions endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d: %s", e.StatusCode, e.Body)
}

// OpenAI ranks candidates through an OpenAI-compatible chat completions
// endpoint. Any server speaking that protocol (DeepSeek, vLLM, a local
// gateway) can be registered under its own name.
type OpenAI struct {
	name    string
	cfg     config.OpenAIConfig
	client  *http.Client
	prompts PromptBuilder
	getenv  func(string) string

	warnOnce sync.Once
	logger   zerolog.Logger
}

// Option customizes an OpenAI provider.
type Option func(*OpenAI)

// WithName registers the provider under name instead of "openai".
func WithName(name string) Option {
	return func(o *OpenAI) {
		if name != "" {
			o.name = name
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *OpenAI) {
		if c != nil {
			o.client = c
		}
	}
}

// WithGetenv replaces the environment lookup used to resolve the API key.
func WithGetenv(fn func(string) string) Option {
	return func(o *OpenAI) {
		if fn != nil {
			o.getenv = fn
		}
	}
}

// NewOpenAI creates a provider from cfg. The per-hop timeout of the chain
// bounds each call; cfg.Timeout is the client-wide ceiling.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewOpenAI(cfg config.OpenAIConfig, logger zerolog.Logger, opts ...Option) *OpenAI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}

	o := &OpenAI{
		name: OpenAIName,
		cfg:  cfg,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   2 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		getenv: os.Getenv,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logger.With().Str("component", "provider").Str("provider", o.name).Logger()
	return o
}

// Name returns the registered provider name.
func (o *OpenAI) Name() string {
	return o.name
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

// Rank asks the model to rank candidates.
func (o *OpenAI) Rank(ctx context.Context, rctx *recommend.RequestContext, candidates []recommend.ProblemCandidate, opts recommend.CallOptions) (*recommend.ProviderResult, error) {
	start := time.Now()

	apiKey := o.apiKey()
	if apiKey == "" {
		return nil, recommend.NewProviderError(o.name, recommend.CodeAPIKeyMissing, ErrAPIKeyMissing)
	}

	body, err := json.Marshal(chatRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: o.prompts.System(opts.PromptVersion)},
			{Role: "user", Content: o.prompts.User(rctx, candidates, opts, opts.PromptVersion)},
		},
		Temperature:    o.cfg.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, recommend.NewProviderError(o.name, recommend.CodeUnknown, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, recommend.NewProviderError(o.name, recommend.CodeTransport, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, o.transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, &recommend.ProviderError{
			Provider:   o.name,
			Code:       recommend.HTTPCode(resp.StatusCode),
			HTTPStatus: resp.StatusCode,
			Err:        &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)},
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, o.cfg.MaxBodySize))
	if err != nil {
		return nil, o.transportError(ctx, fmt.Errorf("read response: %w", err))
	}

	result, code := parseChatResponse(raw)
	if code != "" {
		o.logger.Debug().Str("code", code).Int("body_bytes", len(raw)).Msg("Unusable chat completion")
		return nil, recommend.NewProviderError(o.name, code, nil)
	}
	result.Provider = o.name
	if result.Model == "" {
		result.Model = o.cfg.Model
	}
	result.Latency = time.Since(start)
	return result, nil
}

// apiKey resolves api_key_env as an environment variable name. A literal
// "sk-" key is accepted with a warning.
func (o *OpenAI) apiKey() string {
	ref := strings.TrimSpace(o.cfg.APIKeyEnv)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, literalKeyPrefix) {
		o.warnOnce.Do(func() {
			o.logger.Warn().Msg("api_key_env holds a literal API key; configure an environment variable name instead")
		})
		return ref
	}
	return strings.TrimSpace(o.getenv(ref))
}

func (o *OpenAI) transportError(ctx context.Context, err error) error {
	var ne net.Error
	switch {
	case ctx.Err() != nil:
		// The executor tells a node timeout from a caller cancel.
		return err
	case errors.As(err, &ne) && ne.Timeout():
		return recommend.NewProviderError(o.name, recommend.CodeTimeout, err)
	default:
		return recommend.NewProviderError(o.name, recommend.CodeTransport, err)
	}
}

// parseChatResponse extracts ranked items from a chat completions envelope.
// It returns an error code when nothing usable was found.
func parseChatResponse(body []byte) (*recommend.ProviderResult, string) {
	if !gjson.ValidBytes(body) {
		return nil, recommend.CodeParsing
	}
	env := gjson.ParseBytes(body)

	choices := env.Get("choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		return nil, recommend.CodeNoChoices
	}
	content := choices.Get("0.message.content").String()
	if strings.TrimSpace(content) == "" {
		return nil, recommend.CodeEmptyContent
	}

	complete := true
	items, ok := parseItems(content)
	if !ok {
		if extracted := extractJSON(content); extracted != "" {
			items, ok = parseItems(extracted)
			complete = false
		}
	}
	if !ok {
		return nil, recommend.CodeParsing
	}

	return &recommend.ProviderResult{
		Items:            items,
		Model:            env.Get("model").String(),
		PromptTokens:     int(env.Get("usage.prompt_tokens").Int()),
		CompletionTokens: int(env.Get("usage.completion_tokens").Int()),
		Complete:         complete,
	}, ""
}

// parseItems reads {"items":[...]} from content. Items without an integral
// problemId are skipped; a missing score takes the confidence.
func parseItems(content string) ([]recommend.RecommendationItem, bool) {
	if !gjson.Valid(content) {
		return nil, false
	}
	arr := gjson.Get(content, "items")
	if !arr.IsArray() {
		return nil, false
	}

	items := make([]recommend.RecommendationItem, 0, len(arr.Array()))
	arr.ForEach(func(_, it gjson.Result) bool {
		pid := it.Get("problemId")
		if pid.Type != gjson.Number || strings.ContainsAny(pid.Raw, ".eE") {
			return true
		}
		item := recommend.RecommendationItem{
			ProblemID: pid.Int(),
			Reason:    it.Get("reason").String(),
			Strategy:  it.Get("strategy").String(),
		}
		if c := it.Get("confidence"); c.Type == gjson.Number {
			item.Confidence = c.Float()
		}
		item.Score = item.Confidence
		if s := it.Get("score"); s.Type == gjson.Number {
			item.Score = s.Float()
		}
		items = append(items, item)
		return true
	})
	return items, true
}

// extractJSON salvages a JSON object from prose: a ```json fence first,
// then the span from the first '{' to the last '}'.
func extractJSON(content string) string {
	const fence = "```json"
	if i := strings.Index(content, fence); i >= 0 {
		rest := content[i+len(fence):]
		if j := strings.Index(rest, "```"); j > 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	first, last := strings.IndexByte(content, '{'), strings.LastIndexByte(content, '}')
	if first >= 0 && last > first {
		return strings.TrimSpace(content[first : last+1])
	}
	return ""
}
