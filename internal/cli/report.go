package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alnah/go-minutes/internal/config"
	"github.com/alnah/go-minutes/internal/lang"
	"github.com/alnah/go-minutes/internal/logging"
	"github.com/alnah/go-minutes/internal/metrics"
	"github.com/alnah/go-minutes/internal/report"
	"github.com/alnah/go-minutes/internal/speakers"
)

// reportOptions holds the parsed flags of the report command.
type reportOptions struct {
	output       string
	kind         string
	language     string
	speakersPath string
}

// ReportCmd creates the report command.
func ReportCmd(env *Env) *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:   "report <transcript-file>",
		Short: "Write meeting minutes from a transcript",
		Long: `Write meeting minutes from a transcript produced by "minutes transcribe".

The general report summarizes topics, decisions and action items.
The concise report keeps only the key points.

Meeting time, place and participants are read from the [meeting] table
of the --speakers file when given.`,
		Example: `  minutes report meeting.txt
  minutes report meeting.txt -k concise -l fr
  minutes report meeting.txt --speakers names.toml -o minutes.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), env, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file path (default: <input>.<kind>.md)")
	cmd.Flags().StringVarP(&opts.kind, "kind", "k", report.GeneralKind.String(), "Report kind: "+strings.Join(report.Kinds(), ", "))
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Language of the minutes (default: English)")
	cmd.Flags().StringVar(&opts.speakersPath, "speakers", "", "TOML file with meeting details")

	return cmd
}

// runReport validates in order: input -> kind -> language -> speakers -> output -> API key.
func runReport(ctx context.Context, env *Env, inputPath string, opts reportOptions) error {
	data, err := os.ReadFile(inputPath) // #nosec G304 -- user-specified transcript
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, inputPath)
		}
		return fmt.Errorf("cannot read transcript: %w", err)
	}

	kind, err := report.ParseKind(opts.kind)
	if err != nil {
		return err
	}
	language, err := lang.Parse(opts.language)
	if err != nil {
		return err
	}

	var meeting report.Meeting
	if opts.speakersPath != "" {
		f, err := speakers.Load(opts.speakersPath)
		if err != nil {
			return err
		}
		meeting = f.ReportMeeting()
	}

	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		return err
	}
	defaultOutput := deriveReportPath(inputPath, kind.String())
	if cfg.OutputDir != "" {
		defaultOutput = filepath.Base(defaultOutput)
	}
	output := config.ResolveOutputPath(opts.output, cfg.OutputDir, defaultOutput)
	if err := checkOutputFree(output); err != nil {
		return err
	}

	llmKey := env.Getenv(EnvLLMAPIKey)
	if llmKey == "" {
		llmKey = env.Getenv(EnvOpenAIAPIKey)
	}
	if llmKey == "" {
		return fmt.Errorf("%w (set %s or %s)", ErrAPIKeyMissing, EnvOpenAIAPIKey, EnvLLMAPIKey)
	}

	logger, err := logging.New(env.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	m := metrics.New()
	settings := serviceSettings(env, cfg, llmKey, language, logger, m)
	settings.Temperature = report.Temperature

	completer, err := env.Services.NewCompleter(settings)
	if err != nil {
		return err
	}
	gen := report.NewGenerator(completer,
		report.WithOutputLanguage(language),
		report.WithLogger(logger),
		report.WithMetrics(m),
	)
	return writeReport(ctx, env, gen, kind, meeting, string(data), output)
}

// writeReport generates the report and writes it to path. Any failure is
// wrapped in ErrReportFailed.
func writeReport(ctx context.Context, env *Env, gen *report.Generator, kind report.Kind, meeting report.Meeting, text, path string) error {
	fmt.Fprintf(env.Stderr, "Writing %s report...\n", kind)
	out, err := gen.Generate(ctx, kind, meeting, text)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReportFailed, err)
	}
	if err := writeFileAtomic(path, out+"\n"); err != nil {
		return fmt.Errorf("%w: %w", ErrReportFailed, err)
	}
	fmt.Fprintf(env.Stderr, "Report: %s\n", path)
	return nil
}
