package audio

import (
	"context"
	"os"
	"sync"
)

// ParseDurationFromFFmpegOutput exports parseDurationFromFFmpegOutput for testing.
var ParseDurationFromFFmpegOutput = parseDurationFromFFmpegOutput

// ParseTimeComponents exports parseTimeComponents for testing.
var ParseTimeComponents = parseTimeComponents

// FormatFFmpegTime exports formatFFmpegTime for testing.
var FormatFFmpegTime = formatFFmpegTime

// ClipEncodingArgs exports clipEncodingArgs for testing.
var ClipEncodingArgs = clipEncodingArgs

// ---------------------------------------------------------------------------
// Mocks for dependency injection
// ---------------------------------------------------------------------------

// MockCall records one command invocation.
type MockCall struct {
	Name string
	Args []string
}

// MockCommandRunner records calls and delegates to OutputFunc.
type MockCommandRunner struct {
	OutputFunc func(ctx context.Context, name string, args []string) ([]byte, error)

	mu    sync.Mutex
	calls []MockCall
}

func (m *MockCommandRunner) CombinedOutput(ctx context.Context, name string, args []string) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Name: name, Args: args})
	m.mu.Unlock()
	if m.OutputFunc != nil {
		return m.OutputFunc(ctx, name, args)
	}
	return nil, nil
}

// Calls returns a copy of the recorded invocations.
func (m *MockCommandRunner) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// MockTempDirCreator returns Dir or Err.
type MockTempDirCreator struct {
	Dir string
	Err error
}

func (m *MockTempDirCreator) MkdirTemp(string, string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.Dir, nil
}

// MockFileRemover records removals.
type MockFileRemover struct {
	mu         sync.Mutex
	removed    []string
	removedAll []string
}

func (m *MockFileRemover) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, name)
	return nil
}

func (m *MockFileRemover) RemoveAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removedAll = append(m.removedAll, path)
	return nil
}

// Removed returns the paths passed to Remove.
func (m *MockFileRemover) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}

// RemovedAll returns the paths passed to RemoveAll.
func (m *MockFileRemover) RemovedAll() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removedAll...)
}

// MockFileStatter fails with Err when set.
type MockFileStatter struct {
	Err error
}

func (m MockFileStatter) Stat(string) (os.FileInfo, error) {
	return nil, m.Err
}
