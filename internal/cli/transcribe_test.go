package cli

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alnah/go-minutes/internal/apierr"
	"github.com/alnah/go-minutes/internal/config"
	"github.com/alnah/go-minutes/internal/diarize"
	"github.com/alnah/go-minutes/internal/ffmpeg"
	"github.com/alnah/go-minutes/internal/interrupt"
	"github.com/alnah/go-minutes/internal/lang"
	"github.com/alnah/go-minutes/internal/report"
	"github.com/alnah/go-minutes/internal/speakers"
)

const wantTranscript = "00:00:10-00:00:20, speaker0: Hello there.\n" +
	"00:00:30-00:00:40, speaker1: Hello there.\n"

func outputIn(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

func writeSpeakers(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "names.toml")
	content := `[meeting]
time = "2026-01-26 14:00"
place = "Room 4"

[names]
speaker0 = "Alice"
speaker1 = "Bob"
`
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

// ---------------------------------------------------------------------------
// TestRunTranscribe - happy paths
// ---------------------------------------------------------------------------

func TestRunTranscribe_Text(t *testing.T) {
	t.Parallel()

	env, m := testEnv(t, nil)
	input := writeAudio(t, "meeting.ogg")
	output := outputIn(t, "meeting.txt")

	err := RunTranscribe(context.Background(), env, input, TranscribeOptions{
		output:   output,
		format:   FormatText,
		language: "pt-BR",
		prompt:   "Go, errgroup",
		preview:  2,
	})
	if err != nil {
		t.Fatalf("RunTranscribe() error = %v\nstderr:\n%s", err, m.stderr)
	}

	if got := readFile(t, output); got != wantTranscript {
		t.Errorf("transcript =\n%s\nwant\n%s", got, wantTranscript)
	}

	calls := m.transcriber.Calls()
	if len(calls) != 2 {
		t.Fatalf("transcriber calls = %d, want 2", len(calls))
	}
	if calls[0].Prompt != "Go, errgroup" || calls[0].Language != lang.Code("pt-br") {
		t.Errorf("transcribe options = %+v", calls[0])
	}

	stderr := m.stderr.String()
	for _, want := range []string{"Diarized chunk 1/1", "Transcribed 2/2 segments", "=== speaker0 ===", "Done: " + output} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, stderr)
		}
	}
	if !m.slicer.closed.Load() {
		t.Error("job work dir should be closed")
	}
	if !m.interrupter.Stopped() {
		t.Error("interrupt handler should be stopped")
	}
	if m.ffmpeg.ResolveCalls() != 1 {
		t.Errorf("ffmpeg resolved %d times, want 1", m.ffmpeg.ResolveCalls())
	}
}

func TestRunTranscribe_JSONWithNames(t *testing.T) {
	t.Parallel()

	env, _ := testEnv(t, nil)
	input := writeAudio(t, "meeting.wav")
	output := outputIn(t, "meeting.json")

	err := RunTranscribe(context.Background(), env, input, TranscribeOptions{
		output:       output,
		format:       FormatJSON,
		speakersPath: writeSpeakers(t),
	})
	if err != nil {
		t.Fatalf("RunTranscribe() error = %v", err)
	}

	var got []struct {
		Start   float64 `json:"start"`
		Speaker string  `json:"speaker"`
		Name    string  `json:"name"`
		Text    string  `json:"text"`
	}
	if err := json.Unmarshal([]byte(readFile(t, output)), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Alice" || got[1].Name != "Bob" || got[1].Start != 30 {
		t.Errorf("records = %+v", got)
	}
}

func TestRunTranscribe_Punctuate(t *testing.T) {
	t.Parallel()

	env, m := testEnv(t, nil)
	err := RunTranscribe(context.Background(), env, writeAudio(t, "a.ogg"), TranscribeOptions{
		output:    outputIn(t, "a.txt"),
		format:    FormatText,
		punctuate: true,
	})
	if err != nil {
		t.Fatalf("RunTranscribe() error = %v", err)
	}
	if got := m.completer.Calls(); got != 2 {
		t.Errorf("punctuation calls = %d, want 2", got)
	}
}

func TestRunTranscribe_Report(t *testing.T) {
	t.Parallel()

	env, m := testEnv(t, nil)
	m.completer.response = "## Minutes"
	output := outputIn(t, "standup.txt")

	err := RunTranscribe(context.Background(), env, writeAudio(t, "standup.m4a"), TranscribeOptions{
		output:       output,
		format:       FormatText,
		reportKind:   "concise",
		speakersPath: writeSpeakers(t),
	})
	if err != nil {
		t.Fatalf("RunTranscribe() error = %v", err)
	}

	reportPath := strings.TrimSuffix(output, ".txt") + ".concise.md"
	if got := readFile(t, reportPath); got != "## Minutes\n" {
		t.Errorf("report = %q", got)
	}
	user := m.completer.LastUser()
	for _, want := range []string{"Meeting place: Room 4", "Participants: Alice, Bob", "Alice: Hello there."} {
		if !strings.Contains(user, want) {
			t.Errorf("report prompt missing %q:\n%s", want, user)
		}
	}

	settings := m.services.Settings()
	last := settings[len(settings)-1]
	if last.Temperature != report.Temperature {
		t.Errorf("report temperature = %v, want %v", last.Temperature, report.Temperature)
	}
}

func TestRunTranscribe_ReportFailure(t *testing.T) {
	t.Parallel()

	env, m := testEnv(t, nil)
	m.completer.err = apierr.ErrAuthFailed
	output := outputIn(t, "x.txt")

	err := RunTranscribe(context.Background(), env, writeAudio(t, "x.ogg"), TranscribeOptions{
		output:     output,
		format:     FormatText,
		reportKind: "general",
	})
	if !errors.Is(err, ErrReportFailed) {
		t.Fatalf("error = %v, want ErrReportFailed", err)
	}
	if ExitCode(err) != ExitReport {
		t.Errorf("ExitCode() = %d, want %d", ExitCode(err), ExitReport)
	}
	if got := readFile(t, output); got != wantTranscript {
		t.Error("transcript should be written before the report runs")
	}
}

func TestRunTranscribe_ServiceSettings(t *testing.T) {
	t.Parallel()

	env, m := testEnv(t, map[string]string{
		EnvOpenAIAPIKey:  "sk-openai",
		EnvServiceAPIKey: "svc-key",
	})
	err := RunTranscribe(context.Background(), env, writeAudio(t, "a.ogg"), TranscribeOptions{
		output:       outputIn(t, "a.txt"),
		format:       FormatText,
		parallel:     50,
		chunkMinutes: 5,
		threshold:    0.8,
		thresholdSet: true,
		diarizer:     config.DiarizerOpenAI,
	})
	if err != nil {
		t.Fatalf("RunTranscribe() error = %v", err)
	}

	s := m.services.Settings()[0]
	if s.LLMKey != "sk-openai" {
		t.Errorf("LLMKey = %q, want fallback to OpenAI key", s.LLMKey)
	}
	if s.ServiceKey != "svc-key" {
		t.Errorf("ServiceKey = %q", s.ServiceKey)
	}
	if s.Config.Parallel != 10 || s.Config.ChunkMinutes != 5 || s.Config.Threshold != 0.8 {
		t.Errorf("config overrides not applied: %+v", s.Config)
	}
	if s.Config.Diarizer != config.DiarizerOpenAI {
		t.Errorf("Diarizer = %q", s.Config.Diarizer)
	}
	retry := s.Retry("diarize")
	if retry.OnRetry == nil || retry.MaxRetries != apierr.DefaultMaxRetries {
		t.Errorf("retry config = %+v, want defaults with a hook", retry)
	}
}

func TestRunTranscribe_ParallelBoundsDiarization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		parallel int
	}{
		{"one at a time", 1},
		{"three at a time", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env, m := testEnv(t, nil)
			d := &concurrencyDiarizer{hold: 50 * time.Millisecond}
			m.services.diarizer = d

			// 5 minutes of audio in 1-minute chunks gives 5 chunks.
			err := RunTranscribe(context.Background(), env, writeAudio(t, "a.ogg"), TranscribeOptions{
				output:       outputIn(t, "a.txt"),
				format:       FormatText,
				parallel:     tt.parallel,
				chunkMinutes: 1,
			})
			if err != nil {
				t.Fatalf("RunTranscribe() error = %v", err)
			}
			if got := d.Peak(); got != tt.parallel {
				t.Errorf("peak concurrent diarizations = %d, want %d", got, tt.parallel)
			}
		})
	}
}

func TestRunTranscribe_FailedChunkIsSilent(t *testing.T) {
	t.Parallel()

	env, m := testEnv(t, nil)
	m.services.diarizer = fakeDiarizer{err: apierr.ErrTimeout}
	output := outputIn(t, "a.txt")

	err := RunTranscribe(context.Background(), env, writeAudio(t, "a.ogg"), TranscribeOptions{
		output: output,
		format: FormatText,
	})
	if err != nil {
		t.Fatalf("RunTranscribe() error = %v", err)
	}
	if got := readFile(t, output); got != "" {
		t.Errorf("transcript = %q, want empty", got)
	}
	if !strings.Contains(m.stderr.String(), "diarization failed for 1 chunk(s)") {
		t.Errorf("stderr should warn about the failed chunk:\n%s", m.stderr)
	}
}

// ---------------------------------------------------------------------------
// TestRunTranscribe_Validation - fail-fast before any external call
// ---------------------------------------------------------------------------

func TestRunTranscribe_Validation(t *testing.T) {
	t.Parallel()

	existing := outputIn(t, "exists.txt")
	if err := os.WriteFile(existing, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		input   string
		getenv  map[string]string
		mutate  func(*TranscribeOptions)
		wantErr error
	}{
		{"missing input", "missing.ogg", nil, nil, ErrFileNotFound},
		{"unsupported format", "notes.txt", nil, nil, ErrUnsupportedFormat},
		{"bad output format", "", nil, func(o *TranscribeOptions) { o.format = "srt" }, ErrInvalidOutputFormat},
		{"bad language", "", nil, func(o *TranscribeOptions) { o.language = "xx" }, lang.ErrInvalid},
		{"bad report kind", "", nil, func(o *TranscribeOptions) { o.reportKind = "long" }, report.ErrUnknownKind},
		{"missing speakers file", "", nil, func(o *TranscribeOptions) { o.speakersPath = "/nope/names.toml" }, speakers.ErrNotFound},
		{"threshold out of range", "", nil, func(o *TranscribeOptions) { o.threshold, o.thresholdSet = 1.5, true }, config.ErrInvalidValue},
		{"bad diarizer", "", nil, func(o *TranscribeOptions) { o.diarizer = "pyannote" }, config.ErrInvalidValue},
		{"output exists", "", nil, func(o *TranscribeOptions) { o.output = existing }, ErrOutputExists},
		{"no api key", "", map[string]string{}, nil, ErrAPIKeyMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env, m := testEnv(t, tt.getenv)
			input := writeAudio(t, "meeting.ogg")
			switch tt.input {
			case "":
			case "missing.ogg":
				input = filepath.Join(t.TempDir(), tt.input)
			default:
				input = writeAudio(t, tt.input)
			}
			opts := TranscribeOptions{output: outputIn(t, "out.txt"), format: FormatText}
			if tt.mutate != nil {
				tt.mutate(&opts)
			}

			err := RunTranscribe(context.Background(), env, input, opts)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if m.ffmpeg.ResolveCalls() != 0 {
				t.Error("validation errors must be reported before resolving ffmpeg")
			}
		})
	}
}

func TestRunTranscribe_ReportLangRequiresReport(t *testing.T) {
	t.Parallel()

	env, _ := testEnv(t, nil)
	err := RunTranscribe(context.Background(), env, writeAudio(t, "a.ogg"), TranscribeOptions{
		output:     outputIn(t, "a.txt"),
		format:     FormatText,
		reportLang: "fr",
	})
	if err == nil || !strings.Contains(err.Error(), "--report-lang requires --report") {
		t.Errorf("error = %v", err)
	}
}

// ---------------------------------------------------------------------------
// TestRunTranscribe_SetupErrors
// ---------------------------------------------------------------------------

func TestRunTranscribe_FFmpegNotFound(t *testing.T) {
	t.Parallel()

	env, m := testEnv(t, nil)
	m.ffmpeg.ResolveFunc = func(context.Context) (string, error) { return "", ffmpeg.ErrNotFound }

	err := RunTranscribe(context.Background(), env, writeAudio(t, "a.ogg"), TranscribeOptions{
		output: outputIn(t, "a.txt"),
		format: FormatText,
	})
	if ExitCode(err) != ExitSetup {
		t.Errorf("ExitCode(%v) = %d, want %d", err, ExitCode(err), ExitSetup)
	}
}

func TestRunTranscribe_ServiceNotConfigured(t *testing.T) {
	t.Parallel()

	env, m := testEnv(t, nil)
	m.services.DiarizerErr = diarize.ErrServiceURLMissing

	err := RunTranscribe(context.Background(), env, writeAudio(t, "a.ogg"), TranscribeOptions{
		output: outputIn(t, "a.txt"),
		format: FormatText,
	})
	if !errors.Is(err, diarize.ErrServiceURLMissing) {
		t.Errorf("error = %v, want ErrServiceURLMissing", err)
	}
}

// ---------------------------------------------------------------------------
// TestRunTranscribe_Interrupt
// ---------------------------------------------------------------------------

func TestRunTranscribe_InterruptWritesPartial(t *testing.T) {
	t.Parallel()

	env, m := testEnv(t, nil)
	m.transcriber.onCall = m.interrupter.Trigger
	m.config.LoadFunc = func() (config.Config, error) {
		cfg := testConfig()
		cfg.Parallel = 1
		return cfg, nil
	}
	output := outputIn(t, "a.txt")

	err := RunTranscribe(context.Background(), env, writeAudio(t, "a.ogg"), TranscribeOptions{
		output: output,
		format: FormatText,
	})
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("error = %v, want ErrInterrupted", err)
	}
	if ExitCode(err) != ExitInterrupt {
		t.Errorf("ExitCode() = %d, want %d", ExitCode(err), ExitInterrupt)
	}

	got := readFile(t, output)
	if !strings.Contains(got, "Hello there.") || !strings.Contains(got, "[ERROR: context canceled]") {
		t.Errorf("partial transcript =\n%s", got)
	}
	if len(m.interrupter.decided) != 1 {
		t.Errorf("Decide called %d times, want 1", len(m.interrupter.decided))
	}
}

func TestRunTranscribe_InterruptAbort(t *testing.T) {
	t.Parallel()

	env, m := testEnv(t, nil)
	m.interrupter.decision = interrupt.Abort
	m.transcriber.onCall = m.interrupter.Trigger
	output := outputIn(t, "a.txt")

	err := RunTranscribe(context.Background(), env, writeAudio(t, "a.ogg"), TranscribeOptions{
		output: output,
		format: FormatText,
	})
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("error = %v, want ErrInterrupted", err)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Error("aborted run must not write output")
	}
}

// interruptingDiarizer fires the interrupt while the first chunk is diarized.
type interruptingDiarizer struct {
	intr *fakeInterrupter
}

func (d interruptingDiarizer) Diarize(ctx context.Context, _ string) ([]diarize.LocalInterval, error) {
	d.intr.Trigger()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunTranscribe_InterruptDuringDiarization(t *testing.T) {
	t.Parallel()

	env, m := testEnv(t, nil)
	m.services.diarizer = interruptingDiarizer{intr: m.interrupter}
	output := outputIn(t, "a.txt")

	err := RunTranscribe(context.Background(), env, writeAudio(t, "a.ogg"), TranscribeOptions{
		output: output,
		format: FormatText,
	})
	if !errors.Is(err, ErrInterrupted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want ErrInterrupted wrapping context.Canceled", err)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Error("nothing to write before transcription")
	}
}

// ---------------------------------------------------------------------------
// TestClampParallel / TestSupportedFormatsList
// ---------------------------------------------------------------------------

func TestClampParallel(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want int }{{-3, 1}, {0, 1}, {1, 1}, {4, 4}, {10, 10}, {99, 10}}
	for _, tt := range tests {
		if got := ClampParallel(tt.in); got != tt.want {
			t.Errorf("ClampParallel(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSupportedFormatsList(t *testing.T) {
	t.Parallel()

	got := SupportedFormatsList()
	if !strings.HasPrefix(got, "aac, flac, m4a") || strings.Contains(got, ".") {
		t.Errorf("SupportedFormatsList() = %q", got)
	}
}

func TestTranscribeCmd_Flags(t *testing.T) {
	t.Parallel()

	env, _ := testEnv(t, nil)
	cmd := TranscribeCmd(env)
	for _, name := range []string{"output", "format", "language", "prompt", "report", "report-lang",
		"speakers", "metrics-addr", "parallel", "chunk-minutes", "threshold", "diarizer", "punctuate", "preview"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s not defined", name)
		}
	}
}
