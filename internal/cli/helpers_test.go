package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-minutes/internal/pipeline"
)

// ---------------------------------------------------------------------------
// syncBuffer - thread-safe bytes.Buffer for concurrent test output
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Compile-time check that syncBuffer implements io.Writer.
var _ io.Writer = (*syncBuffer)(nil)

// ---------------------------------------------------------------------------
// testMocks - convenience struct for grouping all mocks
// ---------------------------------------------------------------------------

type testMocks struct {
	ffmpeg      *mockFFmpegResolver
	config      *mockConfigLoader
	services    *mockServiceFactory
	transcriber *fakeTranscriber
	completer   *fakeCompleter
	interrupter *fakeInterrupter
	slicer      *fakeSlicer
	stdout      *syncBuffer
	stderr      *syncBuffer
}

// testEnv creates an Env whose collaborators are all fakes. The fake
// recording is five minutes long: one chunk, two speakers.
func testEnv(t *testing.T, getenv map[string]string) (*Env, *testMocks) {
	t.Helper()

	m := &testMocks{
		ffmpeg:      &mockFFmpegResolver{},
		config:      &mockConfigLoader{},
		transcriber: &fakeTranscriber{text: "Hello there."},
		completer:   &fakeCompleter{},
		interrupter: &fakeInterrupter{},
		slicer:      &fakeSlicer{dir: t.TempDir()},
		stdout:      &syncBuffer{},
		stderr:      &syncBuffer{},
	}
	m.services = &mockServiceFactory{
		diarizer:    fakeDiarizer{},
		comparer:    fakeComparer{},
		transcriber: m.transcriber,
		completer:   m.completer,
	}

	if getenv == nil {
		getenv = map[string]string{EnvOpenAIAPIKey: "sk-test"}
	}

	env := NewEnv(
		WithStdout(m.stdout),
		WithStderr(m.stderr),
		WithGetenv(func(k string) string { return getenv[k] }),
		WithNow(func() time.Time { return time.Date(2026, 1, 26, 14, 30, 52, 0, time.UTC) }),
		WithFFmpegResolver(m.ffmpeg),
		WithConfigLoader(m.config),
		WithServices(m.services),
		WithInterrupts(m.interrupter.factory()),
		WithJobOptions(
			pipeline.WithSlicer(m.slicer),
			pipeline.WithProber(fakeProber{duration: 5 * time.Minute}),
		),
	)
	return env, m
}

// writeAudio creates a placeholder recording in a temp dir.
func writeAudio(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("fake audio"), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

// readFile returns the content of path or fails the test.
func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
