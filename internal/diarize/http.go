package diarize

import (
	"bytes"
	"context"
	"encoding/json"
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

// httpDoer abstracts HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var (
	_ Service = (*HTTPService)(nil)
	_ Service = (*OpenAIService)(nil)
)

// defaultHTTPTimeout bounds a single diarization request. Chunks are long,
// so the limit is generous.
const defaultHTTPTimeout = 10 * time.Minute

// ---------------------------------------------------------------------------
// HTTPService - self-hosted diarization model
// ---------------------------------------------------------------------------

// HTTPService posts audio to a diarization server at <base>/diarize.
//
// Two response shapes are accepted:
//
//	{"text": [[start, end, speaker], ...]}                      (modelscope pipeline)
//	{"segments": [{"start": s, "end": e, "speaker": "..."}]}    (object form)
//
// Times are in seconds. Numeric speaker indexes become "speaker<N>".
type HTTPService struct {
	baseURL string
	apiKey  string
	client  httpDoer
	retry   apierr.RetryConfig
	logger  *log.Logger
}

// HTTPOption configures an HTTPService or OpenAIService.
type HTTPOption func(*httpSettings)

type httpSettings struct {
	apiKey string
	client httpDoer
	retry  apierr.RetryConfig
	logger *log.Logger
}

// WithAPIKey sets a bearer token.
func WithAPIKey(key string) HTTPOption {
	return func(s *httpSettings) { s.apiKey = key }
}

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(c httpDoer) HTTPOption {
	return func(s *httpSettings) { s.client = c }
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg apierr.RetryConfig) HTTPOption {
	return func(s *httpSettings) { s.retry = cfg }
}

// WithServiceLogger sets the logger used to report retries.
func WithServiceLogger(l *log.Logger) HTTPOption {
	return func(s *httpSettings) { s.logger = l }
}

func newSettings(opts []HTTPOption) httpSettings {
	s := httpSettings{
		client: &http.Client{Timeout: defaultHTTPTimeout},
		retry:  apierr.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	s.logger = logging.OrDiscard(s.logger)
	return s
}

// NewHTTPService creates an HTTPService for the server at baseURL.
func NewHTTPService(baseURL string, opts ...HTTPOption) (*HTTPService, error) {
	if baseURL == "" {
		return nil, ErrServiceURLMissing
	}
	s := newSettings(opts)
	return &HTTPService{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  s.apiKey,
		client:  s.client,
		retry:   s.retry,
		logger:  s.logger,
	}, nil
}

// Diarize implements Service.
func (s *HTTPService) Diarize(ctx context.Context, audioPath string) ([]LocalInterval, error) {
	cfg := withRetryLog(s.retry, s.logger, audioPath)
	return apierr.RetryWithBackoff(ctx, cfg, func() ([]LocalInterval, error) {
		body, err := postAudio(ctx, s.client, s.baseURL+"/diarize", s.apiKey, audioPath, nil)
		if err != nil {
			return nil, err
		}
		return parseServiceResponse(body)
	}, apierr.IsRetryable)
}

// serviceResponse covers both accepted shapes.
type serviceResponse struct {
	Text     json.RawMessage `json:"text"`
	Segments []struct {
		Start   float64      `json:"start"`
		End     float64      `json:"end"`
		Speaker speakerLabel `json:"speaker"`
	} `json:"segments"`
}

// speakerLabel accepts a JSON string or number.
type speakerLabel string

func (l *speakerLabel) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*l = speakerLabel(numericLabel(n.String()))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("speaker label: %w", err)
	}
	*l = speakerLabel(s)
	return nil
}

func numericLabel(n string) string {
	if i, err := strconv.ParseFloat(n, 64); err == nil {
		return "speaker" + strconv.Itoa(int(i))
	}
	return "speaker" + n
}

func parseServiceResponse(body []byte) ([]LocalInterval, error) {
	var resp serviceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(resp.Segments) > 0 {
		out := make([]LocalInterval, 0, len(resp.Segments))
		for _, seg := range resp.Segments {
			out = append(out, LocalInterval{
				Start:   seconds(seg.Start),
				End:     seconds(seg.End),
				Speaker: string(seg.Speaker),
			})
		}
		return out, nil
	}

	if len(resp.Text) == 0 || string(resp.Text) == "null" {
		if resp.Segments != nil {
			return nil, nil // explicit empty segment list
		}
		return nil, fmt.Errorf("%w: missing text or segments", ErrMalformedResponse)
	}

	// Some pipelines answer silence with an empty string.
	var empty string
	if json.Unmarshal(resp.Text, &empty) == nil && empty == "" {
		return nil, nil
	}

	var rows [][]json.Number
	if err := json.Unmarshal(resp.Text, &rows); err != nil {
		return nil, fmt.Errorf("%w: text: %v", ErrMalformedResponse, err)
	}
	out := make([]LocalInterval, 0, len(rows))
	for i, row := range rows {
		if len(row) < 3 {
			return nil, fmt.Errorf("%w: row %d has %d fields", ErrMalformedResponse, i, len(row))
		}
		start, err1 := row[0].Float64()
		end, err2 := row[1].Float64()
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: row %d times", ErrMalformedResponse, i)
		}
		out = append(out, LocalInterval{
			Start:   seconds(start),
			End:     seconds(end),
			Speaker: numericLabel(row[2].String()),
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// OpenAIService - gpt-4o-transcribe-diarize
// ---------------------------------------------------------------------------

// OpenAI diarization identifiers. go-openai has no support for
// chunking_strategy, which the diarization model requires, so the request
// is built by hand.
const (
	ModelGPT4oTranscribeDiarize = "gpt-4o-transcribe-diarize"
	FormatDiarizedJSON          = "diarized_json"
	ChunkingStrategyAuto        = "auto"

	openAITranscriptionURL = "https://api.openai.com/v1/audio/transcriptions"
)

// OpenAIService diarizes with OpenAI's diarizing transcription model and
// keeps only the speaker turns.
type OpenAIService struct {
	url      string
	apiKey   string
	language string
	client   httpDoer
	retry    apierr.RetryConfig
	logger   *log.Logger
}

// NewOpenAIService creates an OpenAIService. language is an optional
// ISO 639-1 code.
func NewOpenAIService(apiKey, language string, opts ...HTTPOption) (*OpenAIService, error) {
	s := newSettings(append([]HTTPOption{WithAPIKey(apiKey)}, opts...))
	if s.apiKey == "" {
		return nil, ErrAPIKeyMissing
	}
	return &OpenAIService{
		url:      openAITranscriptionURL,
		apiKey:   s.apiKey,
		language: language,
		client:   s.client,
		retry:    s.retry,
		logger:   s.logger,
	}, nil
}

// Diarize implements Service.
func (s *OpenAIService) Diarize(ctx context.Context, audioPath string) ([]LocalInterval, error) {
	fields := [][2]string{
		{"model", ModelGPT4oTranscribeDiarize},
		{"response_format", FormatDiarizedJSON},
		{"chunking_strategy", ChunkingStrategyAuto},
	}
	if s.language != "" {
		fields = append(fields, [2]string{"language", s.language})
	}

	cfg := withRetryLog(s.retry, s.logger, audioPath)
	return apierr.RetryWithBackoff(ctx, cfg, func() ([]LocalInterval, error) {
		body, err := postAudio(ctx, s.client, s.url, s.apiKey, audioPath, fields)
		if err != nil {
			return nil, err
		}
		return parseDiarizedJSON(body)
	}, apierr.IsRetryable)
}

// diarizedJSON is the OpenAI diarized transcription response.
type diarizedJSON struct {
	Segments []struct {
		ID      string  `json:"id"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Text    string  `json:"text"`
		Speaker string  `json:"speaker"`
	} `json:"segments"`
}

func parseDiarizedJSON(body []byte) ([]LocalInterval, error) {
	var resp diarizedJSON
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	out := make([]LocalInterval, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = "unknown"
		}
		out = append(out, LocalInterval{Start: seconds(seg.Start), End: seconds(seg.End), Speaker: speaker})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Shared request plumbing
// ---------------------------------------------------------------------------

// postAudio uploads audioPath as the "file" form field with extra fields and
// returns the body of a 200 response. Other statuses are classified with
// apierr.
func postAudio(ctx context.Context, client httpDoer, url, apiKey, audioPath string, fields [][2]string) ([]byte, error) {
	file, err := os.Open(audioPath) // #nosec G304 -- audioPath is a clip produced by the slicer
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy file to form: %w", err)
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write %s field: %w", f[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", apierr.ErrTimeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apierr.FromResponse(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func withRetryLog(cfg apierr.RetryConfig, logger *log.Logger, audioPath string) apierr.RetryConfig {
	return cfg.Notify(func(attempt int, err error) {
		logger.Warn("retrying diarization", "file", filepath.Base(audioPath), "attempt", attempt, "err", err)
	})
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
