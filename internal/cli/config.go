package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alnah/go-minutes/internal/config"
)

// ConfigCmd creates the config command with subcommands.
// The env parameter provides injectable dependencies for testing.
func ConfigCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long: `Manage persistent configuration settings.

Configuration is stored in ~/.config/go-minutes/config.
A key missing from the file falls back to its environment variable,
then to its default.

Supported settings:
  output-dir      Default directory for output files   (MINUTES_OUTPUT_DIR)
  chunk-minutes   Diarization chunk length, minutes     (MINUTES_CHUNK_MINUTES)
  threshold       Voice similarity threshold, 0-1       (MINUTES_THRESHOLD)
  parallel        Concurrent diarize/transcribe calls   (MINUTES_PARALLEL)
  diarizer        Diarization backend: http, openai     (MINUTES_DIARIZER)
  diarize-url     Diarization service base URL          (MINUTES_DIARIZE_URL)
  voice-url       Voice similarity service base URL     (MINUTES_VOICE_URL)
  llm-base-url    OpenAI-compatible chat API base URL   (MINUTES_LLM_BASE_URL)
  llm-model       Chat model for punctuation, reports   (MINUTES_LLM_MODEL)
  log-level       debug, info, warn, error              (MINUTES_LOG_LEVEL)`,
		Example: `  minutes config set output-dir ~/Documents/minutes
  minutes config set diarize-url http://localhost:8000
  minutes config get threshold
  minutes config list`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Validate and save a configuration value",
			Long: `Validate and save a configuration value.

For output-dir, ~ is expanded and the directory is created if needed.`,
			Example: `  minutes config set llm-base-url https://api.deepseek.com`,
			Args:    cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				return runConfigSet(env, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:     "get <key>",
			Short:   "Print the effective value of a key",
			Example: `  minutes config get threshold`,
			Args:    cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return runConfigGet(env, args[0])
			},
		},
		&cobra.Command{
			Use:     "list",
			Short:   "Print every key with its value and source",
			Example: `  minutes config list`,
			Args:    cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return runConfigList(env)
			},
		},
	)
	return cmd
}

// runConfigSet handles the "config set" command.
func runConfigSet(env *Env, key, value string) error {
	if err := config.Validate(key, value); err != nil {
		return err
	}

	if key == config.KeyOutputDir {
		expanded := config.ExpandPath(value)
		if err := config.EnsureOutputDir(expanded); err != nil {
			return fmt.Errorf("invalid output-dir: %w", err)
		}
		value = expanded
	}

	if err := config.Save(key, value); err != nil {
		return err
	}

	fmt.Fprintf(env.Stderr, "Set %s = %s\n", key, value)
	return nil
}

// runConfigGet handles the "config get" command.
func runConfigGet(env *Env, key string) error {
	value, err := config.Get(key)
	if err != nil {
		return err
	}
	if value == "" {
		value, _ = config.Fallback(key)
	}
	if value != "" {
		fmt.Fprintln(env.Stdout, value)
	}
	return nil
}

// runConfigList handles the "config list" command.
func runConfigList(env *Env) error {
	data, err := config.List()
	if err != nil {
		return err
	}

	for _, key := range config.Keys() {
		if v, ok := data[key]; ok {
			fmt.Fprintf(env.Stdout, "%s=%s\n", key, v)
			continue
		}
		switch v, src := config.Fallback(key); src {
		case "":
			fmt.Fprintf(env.Stdout, "%s=\n", key)
		default:
			fmt.Fprintf(env.Stdout, "%s=%s (%s)\n", key, v, src)
		}
	}
	return nil
}
