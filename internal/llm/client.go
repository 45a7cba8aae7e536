// Package llm is a minimal client for OpenAI-compatible chat completion
// APIs (OpenAI, DeepSeek, local servers). It is shared by punctuation
// restoration and report generation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-minutes/internal/apierr"
	"github.com/alnah/go-minutes/internal/logging"
)

// Defaults.
const (
	DefaultBaseURL        = "https://api.openai.com"
	DefaultModel          = "gpt-4o-mini"
	defaultMaxInputTokens = 100000
	defaultHTTPTimeout    = 10 * time.Minute

	// charsPerToken is a conservative estimate (English ~4, French ~3.5,
	// CJK is closer to 1 per rune but 3 bytes per rune in UTF-8).
	charsPerToken = 3

	maxResponseSize = 10 << 20
)

// Completer runs a single system+user chat exchange.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// httpDoer abstracts HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ Completer = (*Client)(nil)

// Client calls <baseURL>/v1/chat/completions.
type Client struct {
	apiKey         string
	baseURL        string
	model          string
	temperature    float64
	maxInputTokens int
	retry          apierr.RetryConfig
	httpClient     httpDoer
	logger         *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (for proxies or compatible providers).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = t
	}
}

// WithMaxInputTokens sets the maximum estimated input size.
func WithMaxInputTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxInputTokens = n
		}
	}
}

// WithRetry sets the retry policy.
func WithRetry(cfg apierr.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(h httpDoer) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithLogger sets the logger used to report retries.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client. apiKey is required.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrEmptyAPIKey
	}
	c := &Client{
		apiKey:         apiKey,
		baseURL:        DefaultBaseURL,
		model:          DefaultModel,
		maxInputTokens: defaultMaxInputTokens,
		retry:          apierr.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	c.logger = logging.OrDiscard(c.logger)
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete sends system and user messages and returns the first choice.
// Transient errors (rate limits, timeouts, server errors) are retried.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if tokens := EstimateTokens(system) + EstimateTokens(user); tokens > c.maxInputTokens {
		return "", fmt.Errorf("%dK tokens estimated, max %dK: %w",
			tokens/1000, c.maxInputTokens/1000, ErrInputTooLong)
	}

	req := chatRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	cfg := c.retry.Notify(func(attempt int, err error) {
		c.logger.Warn("retrying chat completion", "model", c.model, "attempt", attempt, "err", err)
	})

	return apierr.RetryWithBackoff(ctx, cfg, func() (string, error) {
		resp, err := c.call(ctx, req)
		if err != nil {
			return "", classifyError(err)
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyResponse
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}, apierr.IsRetryable)
}

// EstimateTokens estimates the number of tokens in text.
func EstimateTokens(text string) int {
	return len(text) / charsPerToken
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// statusError carries a non-200 response until it is classified.
type statusError struct {
	code int
	body []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("chat API error %d", e.code)
}

func (c *Client) call(ctx context.Context, reqBody chatRequest) (_ *chatResponse, err error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, body: respBody}
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// classifyError maps chat API failures to apierr sentinels. A 400 about
// context length becomes ErrInputTooLong.
func classifyError(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		classified := apierr.FromResponse(se.code, se.body)
		if se.code == http.StatusBadRequest {
			msg := classified.Error()
			if strings.Contains(msg, "context_length") || strings.Contains(msg, "maximum context length") {
				return fmt.Errorf("API rejected: %w", ErrInputTooLong)
			}
		}
		return classified
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", apierr.ErrTimeout, err)
	}
	return err
}
