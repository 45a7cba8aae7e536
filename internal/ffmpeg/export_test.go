package ffmpeg

import "os"

// ParseMajorVersion exposes parseMajorVersion for testing.
var ParseMajorVersion = parseMajorVersion

// MockEnv implements envProvider and fileStatter for tests.
type MockEnv struct {
	Vars     map[string]string
	Existing map[string]bool
	OnPath   string
}

func (m MockEnv) Getenv(key string) string { return m.Vars[key] }

func (m MockEnv) LookPath(string) (string, error) {
	if m.OnPath == "" {
		return "", os.ErrNotExist
	}
	return m.OnPath, nil
}

func (m MockEnv) Stat(name string) (os.FileInfo, error) {
	if !m.Existing[name] {
		return nil, os.ErrNotExist
	}
	return nil, nil
}

// WithMockEnv installs m as both environment and file statter.
func WithMockEnv(m MockEnv) ResolverOption {
	return func(r *Resolver) {
		r.env = m
		r.fs = m
	}
}
