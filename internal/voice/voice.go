// Package voice asks an external speaker-verification model whether two
// clips contain the same voice.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-minutes/internal/apierr"
	"github.com/alnah/go-minutes/internal/logging"
)

// DefaultThreshold is the similarity threshold used when none is configured.
const DefaultThreshold = 0.5

// ErrServiceURLMissing indicates the comparer has no base URL.
var ErrServiceURLMissing = errors.New("voice similarity service URL not configured")

// ErrMalformedResponse indicates a verification response that is not
// {"text": "yes"|"no", ...}.
var ErrMalformedResponse = errors.New("malformed verification response")

// Comparer decides whether two clips share a speaker.
type Comparer interface {
	Compare(ctx context.Context, clipA, clipB string, threshold float64) (bool, error)
}

// httpDoer abstracts HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ Comparer = (*HTTPComparer)(nil)

// HTTPComparer posts both clips to <base>/verify as multipart fields
// "reference" and "candidate" with the threshold in "thr". The server
// answers {"text": "yes"|"no", "score": 0.73}.
type HTTPComparer struct {
	url    string
	apiKey string
	client httpDoer
	retry  apierr.RetryConfig
	logger *log.Logger
}

// Option configures an HTTPComparer.
type Option func(*HTTPComparer)

// WithAPIKey sets a bearer token.
func WithAPIKey(key string) Option {
	return func(c *HTTPComparer) { c.apiKey = key }
}

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(d httpDoer) Option {
	return func(c *HTTPComparer) { c.client = d }
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg apierr.RetryConfig) Option {
	return func(c *HTTPComparer) { c.retry = cfg }
}

// WithLogger sets the logger used to report retries.
func WithLogger(l *log.Logger) Option {
	return func(c *HTTPComparer) { c.logger = l }
}

// NewHTTPComparer creates an HTTPComparer for the server at baseURL.
func NewHTTPComparer(baseURL string, opts ...Option) (*HTTPComparer, error) {
	if baseURL == "" {
		return nil, ErrServiceURLMissing
	}
	c := &HTTPComparer{
		url:    strings.TrimRight(baseURL, "/") + "/verify",
		client: &http.Client{Timeout: 2 * time.Minute},
		retry:  apierr.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	return c, nil
}

type verifyResponse struct {
	Text  string   `json:"text"`
	Score *float64 `json:"score"`
}

// Compare implements Comparer.
func (c *HTTPComparer) Compare(ctx context.Context, clipA, clipB string, threshold float64) (bool, error) {
	cfg := c.retry.Notify(func(attempt int, err error) {
		c.logger.Warn("retrying voice comparison", "attempt", attempt, "err", err)
	})
	return apierr.RetryWithBackoff(ctx, cfg, func() (bool, error) {
		body, err := c.post(ctx, clipA, clipB, threshold)
		if err != nil {
			return false, err
		}
		var resp verifyResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return false, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if resp.Score != nil {
			c.logger.Debug("voice compared", "a", filepath.Base(clipA), "b", filepath.Base(clipB),
				"score", *resp.Score, "thr", threshold)
		}
		switch strings.ToLower(strings.TrimSpace(resp.Text)) {
		case "yes":
			return true, nil
		case "no":
			return false, nil
		}
		return false, fmt.Errorf("%w: text %q", ErrMalformedResponse, resp.Text)
	}, apierr.IsRetryable)
}

func (c *HTTPComparer) post(ctx context.Context, clipA, clipB string, threshold float64) ([]byte, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := addFile(w, "reference", clipA); err != nil {
		return nil, err
	}
	if err := addFile(w, "candidate", clipB); err != nil {
		return nil, err
	}
	if err := w.WriteField("thr", strconv.FormatFloat(threshold, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("write thr field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", apierr.ErrTimeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apierr.FromResponse(resp.StatusCode, data)
	}
	return data, nil
}

func addFile(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path) // #nosec G304 -- clips are produced by the slicer
	if err != nil {
		return fmt.Errorf("open %s clip: %w", field, err)
	}
	defer func() { _ = f.Close() }()

	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create %s form file: %w", field, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy %s clip: %w", field, err)
	}
	return nil
}
