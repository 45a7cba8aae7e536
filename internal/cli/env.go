package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-minutes/internal/apierr"
	"github.com/alnah/go-minutes/internal/config"
	"github.com/alnah/go-minutes/internal/diarize"
	"github.com/alnah/go-minutes/internal/ffmpeg"
	"github.com/alnah/go-minutes/internal/interrupt"
	"github.com/alnah/go-minutes/internal/lang"
	"github.com/alnah/go-minutes/internal/llm"
	"github.com/alnah/go-minutes/internal/pipeline"
	"github.com/alnah/go-minutes/internal/transcribe"
	"github.com/alnah/go-minutes/internal/voice"
)

// Environment variables holding secrets. They are never written to the
// config file.
const (
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvLLMAPIKey     = "MINUTES_LLM_API_KEY"
	EnvServiceAPIKey = "MINUTES_SERVICE_API_KEY"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// Env must not be nil when passed to command functions. Use DefaultEnv()
// or NewEnv() to create a valid instance.
type Env struct {
	// I/O and environment
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	Now    func() time.Time

	// Factories for domain objects
	FFmpegResolver FFmpegResolver
	ConfigLoader   ConfigLoader
	Services       ServiceFactory
	Interrupts     InterruptFactory

	// JobOptions are appended after the options the transcribe command
	// builds, so they win. Tests use them to replace the FFmpeg slicer.
	JobOptions []pipeline.Option
}

// FFmpegResolver resolves the path to the FFmpeg binary.
type FFmpegResolver interface {
	Resolve(ctx context.Context) (string, error)
	CheckVersion(ctx context.Context, ffmpegPath string)
}

// ConfigLoader loads configuration.
type ConfigLoader interface {
	Load() (config.Config, error)
}

// ServiceSettings is what the factories need to build a client.
type ServiceSettings struct {
	Config     config.Config
	OpenAIKey  string
	LLMKey     string
	ServiceKey string
	Language   lang.Code

	// Temperature is the chat sampling temperature.
	Temperature float64
	Logger      *log.Logger
	// Retry returns the retry policy for the named service.
	Retry func(service string) apierr.RetryConfig
}

// ServiceFactory builds the external collaborators.
type ServiceFactory interface {
	NewDiarizer(s ServiceSettings) (diarize.Service, error)
	NewComparer(s ServiceSettings) (voice.Comparer, error)
	NewTranscriber(s ServiceSettings) (transcribe.Transcriber, error)
	NewCompleter(s ServiceSettings) (llm.Completer, error)
}

// Interrupter is the part of interrupt.Handler the commands use.
type Interrupter interface {
	Interrupted() bool
	Decide(message string) interrupt.Decision
	Stop()
}

// InterruptFactory starts interrupt handling for one command run.
type InterruptFactory func(ctx context.Context, logger *log.Logger) (Interrupter, context.Context)

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) { e.Stdout = w }
}

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) { e.Stderr = w }
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) { e.Getenv = fn }
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) { e.Now = fn }
}

// WithFFmpegResolver sets the FFmpeg resolver.
func WithFFmpegResolver(r FFmpegResolver) EnvOption {
	return func(e *Env) { e.FFmpegResolver = r }
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) { e.ConfigLoader = l }
}

// WithServices sets the collaborator factory.
func WithServices(f ServiceFactory) EnvOption {
	return func(e *Env) { e.Services = f }
}

// WithInterrupts sets the interrupt handler factory.
func WithInterrupts(f InterruptFactory) EnvOption {
	return func(e *Env) { e.Interrupts = f }
}

// WithJobOptions appends pipeline options to every job.
func WithJobOptions(opts ...pipeline.Option) EnvOption {
	return func(e *Env) { e.JobOptions = append(e.JobOptions, opts...) }
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
		Getenv:         os.Getenv,
		Now:            time.Now,
		FFmpegResolver: &defaultFFmpegResolver{},
		ConfigLoader:   &defaultConfigLoader{},
		Services:       &defaultServiceFactory{},
		Interrupts:     defaultInterrupts,
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

type defaultFFmpegResolver struct{}

func (defaultFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	return ffmpeg.NewResolver().Resolve(ctx)
}

func (defaultFFmpegResolver) CheckVersion(ctx context.Context, ffmpegPath string) {
	ffmpeg.NewResolver().CheckVersion(ctx, ffmpeg.NewExecutor(), ffmpegPath)
}

type defaultConfigLoader struct{}

func (defaultConfigLoader) Load() (config.Config, error) {
	return config.Load()
}

type defaultServiceFactory struct{}

// NewDiarizer builds the diarization client named by the diarizer setting.
func (defaultServiceFactory) NewDiarizer(s ServiceSettings) (diarize.Service, error) {
	opts := []diarize.HTTPOption{
		diarize.WithRetry(s.Retry("diarize")),
		diarize.WithServiceLogger(s.Logger),
	}
	if s.Config.Diarizer == config.DiarizerOpenAI {
		return diarize.NewOpenAIService(s.OpenAIKey, s.Language.Base(), opts...)
	}
	if s.ServiceKey != "" {
		opts = append(opts, diarize.WithAPIKey(s.ServiceKey))
	}
	return diarize.NewHTTPService(s.Config.DiarizeURL, opts...)
}

func (defaultServiceFactory) NewComparer(s ServiceSettings) (voice.Comparer, error) {
	opts := []voice.Option{
		voice.WithRetry(s.Retry("voice")),
		voice.WithLogger(s.Logger),
	}
	if s.ServiceKey != "" {
		opts = append(opts, voice.WithAPIKey(s.ServiceKey))
	}
	return voice.NewHTTPComparer(s.Config.VoiceURL, opts...)
}

func (defaultServiceFactory) NewTranscriber(s ServiceSettings) (transcribe.Transcriber, error) {
	return transcribe.NewOpenAITranscriber(s.OpenAIKey,
		transcribe.WithRetry(s.Retry("transcribe")),
		transcribe.WithLogger(s.Logger),
	)
}

func (defaultServiceFactory) NewCompleter(s ServiceSettings) (llm.Completer, error) {
	return llm.New(s.LLMKey,
		llm.WithBaseURL(s.Config.LLMBaseURL),
		llm.WithModel(s.Config.LLMModel),
		llm.WithTemperature(s.Temperature),
		llm.WithRetry(s.Retry("llm")),
		llm.WithLogger(s.Logger),
	)
}

func defaultInterrupts(ctx context.Context, logger *log.Logger) (Interrupter, context.Context) {
	return interrupt.New(ctx, logger)
}

// Compile-time interface verification.
var (
	_ FFmpegResolver   = (*defaultFFmpegResolver)(nil)
	_ ConfigLoader     = (*defaultConfigLoader)(nil)
	_ ServiceFactory   = (*defaultServiceFactory)(nil)
	_ Interrupter      = (*interrupt.Handler)(nil)
	_ InterruptFactory = defaultInterrupts
)
