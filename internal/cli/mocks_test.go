package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/alnah/go-minutes/internal/audio"
	"github.com/alnah/go-minutes/internal/config"
	"github.com/alnah/go-minutes/internal/diarize"
	"github.com/alnah/go-minutes/internal/interrupt"
	"github.com/alnah/go-minutes/internal/llm"
	"github.com/alnah/go-minutes/internal/transcribe"
	"github.com/alnah/go-minutes/internal/voice"
)

// ---------------------------------------------------------------------------
// Mock FFmpegResolver
// ---------------------------------------------------------------------------

type mockFFmpegResolver struct {
	ResolveFunc func(ctx context.Context) (string, error)

	mu            sync.Mutex
	resolveCalls  int
	checkedBinary string
}

func (m *mockFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()

	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx)
	}
	return "/usr/bin/ffmpeg", nil
}

func (m *mockFFmpegResolver) CheckVersion(_ context.Context, ffmpegPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkedBinary = ffmpegPath
}

func (m *mockFFmpegResolver) ResolveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveCalls
}

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc func() (config.Config, error)
}

// testConfig mirrors the defaults of config.Load.
func testConfig() config.Config {
	return config.Config{
		ChunkMinutes: 20,
		Threshold:    0.5,
		Parallel:     2,
		Diarizer:     config.DiarizerHTTP,
		DiarizeURL:   "http://diarize.test",
		VoiceURL:     "http://voice.test",
		LLMBaseURL:   "https://llm.test",
		LLMModel:     "test-model",
		LogLevel:     "error",
	}
}

func (m *mockConfigLoader) Load() (config.Config, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc()
	}
	return testConfig(), nil
}

// ---------------------------------------------------------------------------
// Mock ServiceFactory
// ---------------------------------------------------------------------------

type mockServiceFactory struct {
	diarizer    diarize.Service
	comparer    voice.Comparer
	transcriber transcribe.Transcriber
	completer   llm.Completer

	DiarizerErr error

	mu       sync.Mutex
	settings []ServiceSettings
}

func (m *mockServiceFactory) record(s ServiceSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = append(m.settings, s)
}

func (m *mockServiceFactory) NewDiarizer(s ServiceSettings) (diarize.Service, error) {
	m.record(s)
	if m.DiarizerErr != nil {
		return nil, m.DiarizerErr
	}
	return m.diarizer, nil
}

func (m *mockServiceFactory) NewComparer(s ServiceSettings) (voice.Comparer, error) {
	m.record(s)
	return m.comparer, nil
}

func (m *mockServiceFactory) NewTranscriber(s ServiceSettings) (transcribe.Transcriber, error) {
	m.record(s)
	return m.transcriber, nil
}

func (m *mockServiceFactory) NewCompleter(s ServiceSettings) (llm.Completer, error) {
	m.record(s)
	return m.completer, nil
}

func (m *mockServiceFactory) Settings() []ServiceSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ServiceSettings(nil), m.settings...)
}

// ---------------------------------------------------------------------------
// Fake collaborators
// ---------------------------------------------------------------------------

// The fakes key their behavior on a clip's absolute start time, which
// fakeSlicer writes into the clip file.

type fakeSlicer struct {
	dir    string
	seq    atomic.Int64
	closed atomic.Bool
}

func (s *fakeSlicer) Slice(_ context.Context, _ audio.Handle, start, end time.Duration) (audio.Clip, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("clip_%d.ogg", s.seq.Add(1)))
	if err := os.WriteFile(path, []byte(strconv.FormatInt(int64(start), 10)), 0o600); err != nil {
		return audio.Clip{}, err
	}
	return audio.Clip{Path: path, Start: start, End: end}, nil
}

func (s *fakeSlicer) Close() error {
	s.closed.Store(true)
	return nil
}

func clipStart(path string) (time.Duration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	return time.Duration(n), err
}

type fakeProber struct {
	duration time.Duration
}

func (p fakeProber) Probe(_ context.Context, path string) (audio.Handle, error) {
	return audio.Handle{Path: path, Duration: p.duration}, nil
}

// fakeDiarizer returns the same two speakers for every chunk.
type fakeDiarizer struct {
	err error
}

func (d fakeDiarizer) Diarize(context.Context, string) ([]diarize.LocalInterval, error) {
	if d.err != nil {
		return nil, d.err
	}
	return []diarize.LocalInterval{
		{Start: 10 * time.Second, End: 20 * time.Second, Speaker: "A"},
		{Start: 30 * time.Second, End: 40 * time.Second, Speaker: "B"},
	}, nil
}

// concurrencyDiarizer holds every call briefly and records the highest
// number of calls in flight at once.
type concurrencyDiarizer struct {
	fakeDiarizer
	hold time.Duration

	inFlight atomic.Int64
	peak     atomic.Int64
}

func (d *concurrencyDiarizer) Diarize(ctx context.Context, path string) ([]diarize.LocalInterval, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-time.After(d.hold):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return d.fakeDiarizer.Diarize(ctx, path)
}

// Peak returns the highest observed concurrency.
func (d *concurrencyDiarizer) Peak() int {
	return int(d.peak.Load())
}

// fakeComparer never matches: every local speaker becomes a new anchor.
type fakeComparer struct{}

func (fakeComparer) Compare(context.Context, string, string, float64) (bool, error) {
	return false, nil
}

type fakeTranscriber struct {
	text   string
	err    error
	onCall func()

	mu    sync.Mutex
	calls []transcribe.Options
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string, opts transcribe.Options) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()
	if _, err := clipStart(path); err != nil {
		return "", err
	}
	if f.onCall != nil {
		f.onCall()
	}
	return f.text, f.err
}

func (f *fakeTranscriber) Calls() []transcribe.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transcribe.Options(nil), f.calls...)
}

type fakeCompleter struct {
	response string
	err      error

	mu     sync.Mutex
	system []string
	user   []string
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	f.system = append(f.system, system)
	f.user = append(f.user, user)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.response == "" {
		// Echo for the punctuator: the text comes back unchanged.
		return user, nil
	}
	return f.response, nil
}

func (f *fakeCompleter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.user)
}

func (f *fakeCompleter) LastUser() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.user) == 0 {
		return ""
	}
	return f.user[len(f.user)-1]
}

// ---------------------------------------------------------------------------
// Fake Interrupter
// ---------------------------------------------------------------------------

type fakeInterrupter struct {
	decision interrupt.Decision

	mu          sync.Mutex
	interrupted bool
	cancel      context.CancelFunc
	decided     []string
	stopped     bool
}

// factory returns an InterruptFactory bound to f.
func (f *fakeInterrupter) factory() InterruptFactory {
	return func(ctx context.Context, _ *log.Logger) (Interrupter, context.Context) {
		ctx, cancel := context.WithCancel(ctx)
		f.mu.Lock()
		f.cancel = cancel
		f.mu.Unlock()
		return f, ctx
	}
}

// Trigger simulates a first Ctrl+C.
func (f *fakeInterrupter) Trigger() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupted = true
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *fakeInterrupter) Interrupted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interrupted
}

func (f *fakeInterrupter) Decide(message string) interrupt.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decided = append(f.decided, message)
	return f.decision
}

func (f *fakeInterrupter) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *fakeInterrupter) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

var errFake = errors.New("fake failure")

// Compile-time interface verification.
var (
	_ FFmpegResolver = (*mockFFmpegResolver)(nil)
	_ ConfigLoader   = (*mockConfigLoader)(nil)
	_ ServiceFactory = (*mockServiceFactory)(nil)
	_ Interrupter    = (*fakeInterrupter)(nil)
)
