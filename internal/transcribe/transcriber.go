// Package transcribe turns short audio clips into raw text through the
// OpenAI transcription API.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/go-minutes/internal/apierr"
	"github.com/alnah/go-minutes/internal/lang"
	"github.com/alnah/go-minutes/internal/logging"
)

// ModelGPT4oMiniTranscribe is the cost-effective transcription model ($0.003/min).
// Not yet a constant in go-openai.
const ModelGPT4oMiniTranscribe = "gpt-4o-mini-transcribe"

// MaxRecommendedParallel is the recommended upper limit for concurrent API requests.
// Higher values may trigger rate limiting.
const MaxRecommendedParallel = 10

// Options configures transcription behavior.
type Options struct {
	// Prompt provides context to improve transcription accuracy, such as
	// domain vocabulary or participant names.
	Prompt string

	// Language specifies the audio language.
	// Zero value means auto-detect.
	Language lang.Code
}

// Transcriber transcribes audio files to text.
type Transcriber interface {
	// Transcribe converts an audio file to text. Silence yields "".
	Transcribe(ctx context.Context, audioPath string, opts Options) (string, error)
}

// audioTranscriber is the subset of *openai.Client used here.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

var (
	_ Transcriber      = (*OpenAITranscriber)(nil)
	_ audioTranscriber = (*openai.Client)(nil)
)

// OpenAITranscriber transcribes audio using OpenAI's transcription API.
// Transient errors are retried with exponential backoff.
type OpenAITranscriber struct {
	client audioTranscriber
	model  string
	retry  apierr.RetryConfig
	logger *log.Logger
}

// TranscriberOption configures an OpenAITranscriber.
type TranscriberOption func(*OpenAITranscriber)

// WithRetry sets the retry policy.
func WithRetry(cfg apierr.RetryConfig) TranscriberOption {
	return func(t *OpenAITranscriber) {
		t.retry = cfg
	}
}

// WithModel overrides the transcription model.
func WithModel(model string) TranscriberOption {
	return func(t *OpenAITranscriber) {
		if model != "" {
			t.model = model
		}
	}
}

// WithLogger sets the logger used to report retries.
func WithLogger(l *log.Logger) TranscriberOption {
	return func(t *OpenAITranscriber) {
		t.logger = l
	}
}

// NewOpenAITranscriber creates an OpenAITranscriber authenticated with apiKey.
func NewOpenAITranscriber(apiKey string, opts ...TranscriberOption) (*OpenAITranscriber, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyMissing
	}
	return newTranscriber(openai.NewClient(apiKey), opts...), nil
}

func newTranscriber(client audioTranscriber, opts ...TranscriberOption) *OpenAITranscriber {
	t := &OpenAITranscriber{
		client: client,
		model:  ModelGPT4oMiniTranscribe,
		retry:  apierr.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.OrDiscard(t.logger)
	return t
}

// Transcribe implements Transcriber.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string, opts Options) (string, error) {
	if audioPath == "" {
		return "", ErrEmptyPath
	}

	req := openai.AudioRequest{
		Model:    t.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatJSON,
		Prompt:   opts.Prompt,
		Language: opts.Language.Base(), // the API only accepts ISO 639-1 base codes
	}

	cfg := t.retry.Notify(func(attempt int, err error) {
		t.logger.Warn("retrying transcription", "file", filepath.Base(audioPath), "attempt", attempt, "err", err)
	})

	text, err := apierr.RetryWithBackoff(ctx, cfg, func() (string, error) {
		resp, err := t.client.CreateTranscription(ctx, req)
		if err != nil {
			return "", classifyError(err)
		}
		return resp.Text, nil
	}, apierr.IsRetryable)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// classifyError maps OpenAI API errors to apierr sentinels.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apierr.ClassifyStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return apierr.ClassifyStatus(reqErr.HTTPStatusCode, reqErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}
	return err
}
