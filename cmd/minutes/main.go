package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alnah/go-minutes/internal/cli"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	env := cli.DefaultEnv()

	rootCmd := &cobra.Command{
		Use:   "minutes",
		Short: "Speaker-labeled transcripts and minutes for meeting recordings",
		Long: `Transcribe long meeting recordings with stable speaker labels,
then optionally turn the transcript into meeting minutes.

Diarization and voice similarity run on external services configured with
"minutes config set diarize-url" and "voice-url". Transcription uses the
OpenAI API (OPENAI_API_KEY); punctuation and minutes use any
OpenAI-compatible chat API (llm-base-url, MINUTES_LLM_API_KEY).`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(cli.TranscribeCmd(env))
	rootCmd.AddCommand(cli.ReportCmd(env))
	rootCmd.AddCommand(cli.ConfigCmd(env))

	// Signals are handled per command by the interrupt handler, so that a
	// first Ctrl+C can still write partial output.
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
