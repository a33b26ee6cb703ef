// Package llm is the boundary to the language-model provider: it sends one
// schema-constrained request and validates what comes back.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/starford/dastan/internal/apperr"
	"github.com/starford/dastan/internal/schema"
)

// DefaultEndpoint is the OpenAI responses API.
const DefaultEndpoint = "https://api.openai.com/v1/responses"

const maxResponseBytes = 4 << 20

// Config controls the outbound call.
type Config struct {
	Endpoint       string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Message is one entry of a message-list input.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single schema-constrained model call.
// Messages takes precedence over Prompt when both are set.
type Request struct {
	Model    string
	Prompt   string
	Messages []Message
	Schema   schema.Descriptor
}

type requestBody struct {
	Model          string         `json:"model"`
	Input          any            `json:"input"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type jsonSchemaFormat struct {
	Name   string            `json:"name"`
	Schema schema.Descriptor `json:"schema"`
}

func (r Request) body() requestBody {
	var input any = r.Prompt
	if len(r.Messages) > 0 {
		input = r.Messages
	}
	return requestBody{
		Model: r.Model,
		Input: input,
		ResponseFormat: responseFormat{
			Type:       "json_schema",
			JSONSchema: jsonSchemaFormat{Name: r.Schema.Name, Schema: r.Schema},
		},
	}
}

// Client performs validated provider calls. It holds no per-call state and is
// safe for concurrent use.
type Client struct {
	cfg        Config
	http       *http.Client
	logger     *slog.Logger
	strategies []Strategy
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client. Its Timeout is left untouched.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithStrategies overrides the envelope extraction order.
func WithStrategies(s ...Strategy) ClientOption {
	return func(c *Client) { c.strategies = s }
}

// NewClient creates a Client. Zero values in cfg fall back to defaults.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	c := &Client{
		cfg:        cfg,
		http:       &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default(),
		strategies: DefaultStrategies,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke sends req, extracts the model text and validates it against req.Schema.
func (c *Client) Invoke(ctx context.Context, req Request) (json.RawMessage, error) {
	body, err := c.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	text, strategy, err := ExtractText(body, c.strategies)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("provider output extracted",
		slog.String("schema", req.Schema.Name),
		slog.String("strategy", strategy.String()))
	return Decode(text, req.Schema)
}

// Call performs the HTTP exchange and returns the raw provider body.
// Transport failures, 429 and 5xx are retried up to MaxRetries times.
func (c *Client) Call(ctx context.Context, req Request) ([]byte, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", apperr.ErrProvider)
	}
	if req.Model == "" || req.Schema.Name == "" {
		return nil, errors.New("llm: request needs a model and a schema")
	}
	payload, err := json.Marshal(req.body())
	if err != nil {
		return nil, fmt.Errorf("llm: encode request: %w", err)
	}

	var out []byte
	op := func() error {
		body, err := c.do(ctx, payload)
		if err != nil {
			if retryable(err) && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		out = body
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("provider call failed, retrying",
			slog.String("schema", req.Schema.Name),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	}

	if err := backoff.RetryNotify(op, c.policy(ctx), notify); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if !errors.Is(err, apperr.ErrTransport) {
				return nil, &TransportError{Err: err}
			}
		}
		return nil, err
	}
	return out, nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)
}

func (c *Client) do(ctx context.Context, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{Status: resp.StatusCode, detail: truncate(body)}
	}
	return body, nil
}

func retryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.retryable()
	}
	return errors.Is(err, apperr.ErrTransport)
}
