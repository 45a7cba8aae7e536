package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/alnah/go-minutes/internal/apierr"
	"github.com/alnah/go-minutes/internal/config"
	"github.com/alnah/go-minutes/internal/format"
	"github.com/alnah/go-minutes/internal/interrupt"
	"github.com/alnah/go-minutes/internal/lang"
	"github.com/alnah/go-minutes/internal/logging"
	"github.com/alnah/go-minutes/internal/metrics"
	"github.com/alnah/go-minutes/internal/pipeline"
	"github.com/alnah/go-minutes/internal/report"
	"github.com/alnah/go-minutes/internal/speakers"
	"github.com/alnah/go-minutes/internal/textnorm"
	"github.com/alnah/go-minutes/internal/transcribe"
	"github.com/alnah/go-minutes/internal/transcript"
)

// supportedFormats lists audio formats FFmpeg is expected to decode here.
var supportedFormats = map[string]bool{
	".ogg":  true,
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".flac": true,
	".mp4":  true,
	".mpeg": true,
	".mpga": true,
	".webm": true,
	".aac":  true,
	".opus": true,
}

// supportedFormatsList returns a sorted, comma-separated list for error messages.
func supportedFormatsList() string {
	formats := make([]string, 0, len(supportedFormats))
	for ext := range supportedFormats {
		formats = append(formats, strings.TrimPrefix(ext, "."))
	}
	slices.Sort(formats)
	return strings.Join(formats, ", ")
}

// clampParallel constrains parallel request count to valid range [1, MaxRecommendedParallel].
func clampParallel(n int) int {
	return min(max(n, 1), transcribe.MaxRecommendedParallel)
}

// transcribeOptions holds the parsed flags of the transcribe command.
// Zero numeric values mean "use the configured value".
type transcribeOptions struct {
	output       string
	format       string
	language     string
	prompt       string
	reportKind   string
	reportLang   string
	speakersPath string
	metricsAddr  string
	parallel     int
	chunkMinutes int
	threshold    float64
	thresholdSet bool
	diarizer     string
	punctuate    bool
	preview      int
}

// TranscribeCmd creates the transcribe command.
// The env parameter provides injectable dependencies for testing.
func TranscribeCmd(env *Env) *cobra.Command {
	var opts transcribeOptions

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a meeting recording with speaker labels",
		Long: `Transcribe a meeting recording with speaker labels.

The recording is cut into fixed chunks that are diarized concurrently.
Speakers found in each chunk are matched by voice against the speakers
already known, so labels stay stable across the whole meeting. Every
speaker segment is then transcribed, optionally re-punctuated, and split
into sentences.

Press Ctrl+C once to stop and keep the segments finished so far,
twice to abort.

Supported formats: ` + supportedFormatsList(),
		Example: `  minutes transcribe meeting.ogg
  minutes transcribe meeting.ogg -l zh --punctuate -o notes.txt
  minutes transcribe meeting.ogg --speakers names.toml --report concise
  minutes transcribe meeting.ogg -f json --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.thresholdSet = cmd.Flags().Changed("threshold")
			return runTranscribe(cmd.Context(), env, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "Output file path (default: <input>.txt or .json)")
	f.StringVarP(&opts.format, "format", "f", FormatText, "Output format: text, json")
	f.StringVarP(&opts.language, "language", "l", "", "Spoken language (ISO 639-1 code, e.g. en, zh, pt-BR)")
	f.StringVar(&opts.prompt, "prompt", "", "Vocabulary hint passed to the transcription model")
	f.StringVarP(&opts.reportKind, "report", "r", "", "Also write meeting minutes: "+strings.Join(report.Kinds(), ", "))
	f.StringVar(&opts.reportLang, "report-lang", "", "Language of the minutes (default: --language)")
	f.StringVar(&opts.speakersPath, "speakers", "", "TOML file with speaker names and meeting details")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	f.IntVarP(&opts.parallel, "parallel", "p", 0, "Concurrent diarizations and transcriptions, 1-10 (default: config parallel)")
	f.IntVar(&opts.chunkMinutes, "chunk-minutes", 0, "Diarization chunk length in minutes (default: config chunk-minutes)")
	f.Float64Var(&opts.threshold, "threshold", 0, "Voice similarity threshold, 0-1 (default: config threshold)")
	f.StringVar(&opts.diarizer, "diarizer", "", "Diarization backend: http, openai (default: config diarizer)")
	f.BoolVar(&opts.punctuate, "punctuate", false, "Restore punctuation with the chat model")
	f.IntVar(&opts.preview, "preview", 3, "Lines per speaker printed when done (0 disables)")

	return cmd
}

// validated holds everything runTranscribe derived from flags and config
// before any external call.
type validated struct {
	output     string
	language   lang.Code
	reportLang lang.Code
	kind       report.Kind
	names      transcript.Names
	meeting    report.Meeting
	cfg        config.Config
}

// validateTranscribe checks flags and files in fail-fast order:
// input -> format -> output format -> language -> report -> speakers -> config -> output path.
func validateTranscribe(env *Env, inputPath string, opts transcribeOptions) (validated, error) {
	var v validated

	if _, err := os.Stat(inputPath); err != nil {
		if os.IsNotExist(err) {
			return v, fmt.Errorf("%w: %s", ErrFileNotFound, inputPath)
		}
		return v, fmt.Errorf("cannot access input file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(inputPath))
	if !supportedFormats[ext] {
		return v, fmt.Errorf("unsupported format %q (supported: %s): %w",
			ext, supportedFormatsList(), ErrUnsupportedFormat)
	}

	if opts.format != FormatText && opts.format != FormatJSON {
		return v, fmt.Errorf("%w %q (valid: %s, %s)", ErrInvalidOutputFormat, opts.format, FormatText, FormatJSON)
	}

	var err error
	if v.language, err = lang.Parse(opts.language); err != nil {
		return v, err
	}
	if v.reportLang, err = lang.Parse(opts.reportLang); err != nil {
		return v, err
	}
	if v.reportLang.IsZero() {
		v.reportLang = v.language
	}

	if opts.reportKind != "" {
		if v.kind, err = report.ParseKind(opts.reportKind); err != nil {
			return v, err
		}
	} else if opts.reportLang != "" {
		return v, fmt.Errorf("--report-lang requires --report")
	}

	if opts.speakersPath != "" {
		f, err := speakers.Load(opts.speakersPath)
		if err != nil {
			return v, err
		}
		v.names = f.TranscriptNames()
		v.meeting = f.ReportMeeting()
	}

	if v.cfg, err = env.ConfigLoader.Load(); err != nil {
		return v, err
	}
	if opts.chunkMinutes > 0 {
		v.cfg.ChunkMinutes = opts.chunkMinutes
	}
	if opts.thresholdSet {
		if opts.threshold < 0 || opts.threshold > 1 {
			return v, fmt.Errorf("threshold %v: %w", opts.threshold, config.ErrInvalidValue)
		}
		v.cfg.Threshold = opts.threshold
	}
	if opts.parallel > 0 {
		v.cfg.Parallel = opts.parallel
	}
	v.cfg.Parallel = clampParallel(v.cfg.Parallel)
	if opts.diarizer != "" {
		if err := config.Validate(config.KeyDiarizer, opts.diarizer); err != nil {
			return v, err
		}
		v.cfg.Diarizer = opts.diarizer
	}

	defaultOutput := deriveOutputPath(filepath.Base(inputPath), opts.format)
	v.output = config.ResolveOutputPath(opts.output, v.cfg.OutputDir, defaultOutput)
	if err := checkOutputFree(v.output); err != nil {
		return v, err
	}
	if v.cfg.OutputDir != "" && opts.output == "" {
		if err := config.EnsureOutputDir(config.ExpandPath(v.cfg.OutputDir)); err != nil {
			return v, fmt.Errorf("invalid output-dir: %w", err)
		}
	}
	return v, nil
}

// runTranscribe executes the transcription pipeline.
func runTranscribe(ctx context.Context, env *Env, inputPath string, opts transcribeOptions) error {
	// === VALIDATION (fail-fast) ===

	v, err := validateTranscribe(env, inputPath, opts)
	if err != nil {
		return err
	}

	openaiKey := env.Getenv(EnvOpenAIAPIKey)
	if openaiKey == "" {
		return fmt.Errorf("%w (set it with: export %s=sk-...)", ErrAPIKeyMissing, EnvOpenAIAPIKey)
	}

	logger, err := logging.New(env.Stderr, v.cfg.LogLevel)
	if err != nil {
		return err
	}

	// === SETUP ===

	ffmpegPath, err := env.FFmpegResolver.Resolve(ctx)
	if err != nil {
		return err
	}
	env.FFmpegResolver.CheckVersion(ctx, ffmpegPath)

	m := metrics.New()
	if opts.metricsAddr != "" {
		stop := serveMetrics(ctx, m, opts.metricsAddr, logger)
		defer stop()
	}

	settings := serviceSettings(env, v.cfg, openaiKey, v.language, logger, m)
	svc, err := buildServices(env, settings, opts.punctuate)
	if err != nil {
		return err
	}

	intr, jobCtx := env.Interrupts(ctx, logger)
	defer intr.Stop()

	jobOpts := []pipeline.Option{
		pipeline.WithFFmpeg(ffmpegPath),
		pipeline.WithChunkDuration(time.Duration(v.cfg.ChunkMinutes) * time.Minute),
		pipeline.WithParallel(v.cfg.Parallel),
		pipeline.WithSegmentParallel(v.cfg.Parallel),
		pipeline.WithThreshold(v.cfg.Threshold),
		pipeline.WithTranscribeOptions(transcribe.Options{Prompt: opts.prompt, Language: v.language}),
		pipeline.WithProgress(progressPrinter(env.Stderr)),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
	}
	job, err := pipeline.NewJob(svc, append(jobOpts, env.JobOptions...)...)
	if err != nil {
		return err
	}
	defer func() {
		if err := job.Close(); err != nil {
			logger.Warn("failed to clean up work files", "err", err)
		}
	}()

	// === PIPELINE ===

	fmt.Fprintf(env.Stderr, "Processing %s...\n", filepath.Base(inputPath))
	res, err := job.Run(jobCtx, inputPath)
	if err != nil {
		if intr.Interrupted() {
			return fmt.Errorf("%w before transcription: %w", ErrInterrupted, err)
		}
		return err
	}

	interrupted := intr.Interrupted()
	if interrupted {
		if intr.Decide("Interrupted. Writing partial transcript (Ctrl+C again to abort)...") == interrupt.Abort {
			return fmt.Errorf("%w: aborted", ErrInterrupted)
		}
	}

	// === WRITE OUTPUT ===

	content, err := render(res.Records, v.names, opts.format)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(v.output, content); err != nil {
		return err
	}

	summarize(env.Stderr, res)
	if opts.preview > 0 && len(res.Records) > 0 {
		fmt.Fprint(env.Stderr, transcript.Preview(res.Records, v.names, opts.preview))
	}

	if interrupted {
		return fmt.Errorf("%w: partial transcript written to %s", ErrInterrupted, v.output)
	}
	fmt.Fprintf(env.Stderr, "Done: %s\n", v.output)

	// === REPORT (optional) ===

	if v.kind.IsZero() {
		return nil
	}
	if len(res.Records) == res.Records.Failed() {
		return fmt.Errorf("%w: %w", ErrReportFailed, report.ErrEmptyTranscript)
	}

	settings.Temperature = report.Temperature
	completer, err := env.Services.NewCompleter(settings)
	if err != nil {
		return err
	}
	gen := report.NewGenerator(completer,
		report.WithOutputLanguage(v.reportLang),
		report.WithLogger(logger),
		report.WithMetrics(m),
	)
	reportPath := deriveReportPath(v.output, v.kind.String())
	return writeReport(ctx, env, gen, v.kind, v.meeting, transcript.Format(res.Records, v.names), reportPath)
}

// serviceSettings assembles the client settings. Every retry of a client
// is counted in m under its service name.
func serviceSettings(env *Env, cfg config.Config, openaiKey string, language lang.Code, logger *log.Logger, m *metrics.Metrics) ServiceSettings {
	llmKey := env.Getenv(EnvLLMAPIKey)
	if llmKey == "" {
		llmKey = openaiKey
	}
	return ServiceSettings{
		Config:     cfg,
		OpenAIKey:  openaiKey,
		LLMKey:     llmKey,
		ServiceKey: env.Getenv(EnvServiceAPIKey),
		Language:   language,
		Logger:     logger,
		Retry: func(service string) apierr.RetryConfig {
			return apierr.DefaultRetryConfig().Notify(func(int, error) { m.RecordRetry(service) })
		},
	}
}

func buildServices(env *Env, s ServiceSettings, punctuate bool) (pipeline.Services, error) {
	var svc pipeline.Services
	var err error
	if svc.Diarizer, err = env.Services.NewDiarizer(s); err != nil {
		return svc, err
	}
	if svc.Comparer, err = env.Services.NewComparer(s); err != nil {
		return svc, err
	}
	if svc.Transcriber, err = env.Services.NewTranscriber(s); err != nil {
		return svc, err
	}
	if punctuate {
		completer, err := env.Services.NewCompleter(s)
		if err != nil {
			return svc, err
		}
		svc.Punctuator = textnorm.NewChatPunctuator(completer, textnorm.WithLanguage(s.Language))
	}
	return svc, nil
}

// serveMetrics runs the metrics endpoint until the returned stop is called.
func serveMetrics(ctx context.Context, m *metrics.Metrics, addr string, logger *log.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Serve(ctx, addr); err != nil {
			logger.Warn("metrics endpoint stopped", "addr", addr, "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return func() {
		cancel()
		<-done
	}
}

func render(records transcript.Records, names transcript.Names, outputFormat string) (string, error) {
	if outputFormat == FormatJSON {
		var buf bytes.Buffer
		if err := transcript.WriteJSON(&buf, records, names); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
	return transcript.Format(records, names), nil
}

// summarize prints what the job found and what failed.
func summarize(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "Audio %s: %d chunks, %d speakers, %d segments\n",
		format.Duration(res.Source.Duration), res.Chunks, len(res.Speakers), len(res.Records))
	if n := len(res.FailedChunks); n > 0 {
		fmt.Fprintf(w, "Warning: diarization failed for %d chunk(s) %v, treated as silence\n", n, res.FailedChunks)
	}
	if n := res.Records.Failed(); n > 0 {
		fmt.Fprintf(w, "Warning: %d segment(s) failed, marked with [ERROR: ...]\n", n)
	}
}
