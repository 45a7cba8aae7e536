package config

import (
	"bufio"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Config keys.
const (
	KeyOutputDir    = "output-dir"
	KeyChunkMinutes = "chunk-minutes"
	KeyThreshold    = "threshold"
	KeyParallel     = "parallel"
	KeyDiarizer     = "diarizer"
	KeyDiarizeURL   = "diarize-url"
	KeyVoiceURL     = "voice-url"
	KeyLLMBaseURL   = "llm-base-url"
	KeyLLMModel     = "llm-model"
	KeyLogLevel     = "log-level"
)

// Environment variable fallbacks.
const (
	EnvOutputDir    = "MINUTES_OUTPUT_DIR"
	EnvChunkMinutes = "MINUTES_CHUNK_MINUTES"
	EnvThreshold    = "MINUTES_THRESHOLD"
	EnvParallel     = "MINUTES_PARALLEL"
	EnvDiarizer     = "MINUTES_DIARIZER"
	EnvDiarizeURL   = "MINUTES_DIARIZE_URL"
	EnvVoiceURL     = "MINUTES_VOICE_URL"
	EnvLLMBaseURL   = "MINUTES_LLM_BASE_URL"
	EnvLLMModel     = "MINUTES_LLM_MODEL"
	EnvLogLevel     = "MINUTES_LOG_LEVEL"
)

// Diarizer backends.
const (
	DiarizerHTTP   = "http"
	DiarizerOpenAI = "openai"
)

var (
	// ErrUnknownKey indicates a key that is not a configuration key.
	ErrUnknownKey = errors.New("unknown config key")

	// ErrInvalidValue indicates a value that does not fit its key.
	ErrInvalidValue = errors.New("invalid config value")
)

// Config holds user configuration loaded from ~/.config/go-minutes/config.
type Config struct {
	OutputDir    string
	ChunkMinutes int
	Threshold    float64
	Parallel     int
	Diarizer     string
	DiarizeURL   string
	VoiceURL     string
	LLMBaseURL   string
	LLMModel     string
	LogLevel     string
}

// entry describes one key: its env fallback, default and value check.
type entry struct {
	env   string
	def   string
	check func(string) error
}

var entries = map[string]entry{
	KeyOutputDir:    {env: EnvOutputDir},
	KeyChunkMinutes: {env: EnvChunkMinutes, def: "20", check: positiveInt},
	KeyThreshold:    {env: EnvThreshold, def: "0.5", check: unitFloat},
	KeyParallel:     {env: EnvParallel, def: "4", check: positiveInt},
	KeyDiarizer:     {env: EnvDiarizer, def: DiarizerHTTP, check: oneOf(DiarizerHTTP, DiarizerOpenAI)},
	KeyDiarizeURL:   {env: EnvDiarizeURL, check: httpURL},
	KeyVoiceURL:     {env: EnvVoiceURL, check: httpURL},
	KeyLLMBaseURL:   {env: EnvLLMBaseURL, def: "https://api.openai.com", check: httpURL},
	KeyLLMModel:     {env: EnvLLMModel, def: "gpt-4o-mini"},
	KeyLogLevel:     {env: EnvLogLevel, def: "info", check: oneOf("debug", "info", "warn", "error")},
}

// Keys returns all configuration keys, sorted.
func Keys() []string {
	return slices.Sorted(maps.Keys(entries))
}

// Validate checks value for key.
func Validate(key, value string) error {
	e, ok := entries[key]
	if !ok {
		return fmt.Errorf("%w: %q (valid: %s)", ErrUnknownKey, key, strings.Join(Keys(), ", "))
	}
	if e.check == nil {
		return nil
	}
	if err := e.check(value); err != nil {
		return fmt.Errorf("%w for %s: %w", ErrInvalidValue, key, err)
	}
	return nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fmt.Errorf("%q is not a positive integer", s)
	}
	return nil
}

func unitFloat(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 1 {
		return fmt.Errorf("%q is not a number between 0 and 1", s)
	}
	return nil
}

func oneOf(valid ...string) func(string) error {
	return func(s string) error {
		if !slices.Contains(valid, s) {
			return fmt.Errorf("%q is not one of %s", s, strings.Join(valid, ", "))
		}
		return nil
	}
}

func httpURL(s string) error {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return fmt.Errorf("%q must start with http:// or https://", s)
	}
	return nil
}

// dir returns the configuration directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/go-minutes.
func dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "go-minutes"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "go-minutes"), nil
}

// path returns the full path to the config file.
func path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config"), nil
}

// Load reads the configuration file and environment variables.
// Precedence: config file values, then environment variables, then defaults.
// A missing file is not an error; an invalid value is.
func Load() (Config, error) {
	var cfg Config

	p, err := path()
	if err != nil {
		return cfg, err
	}

	data, err := parseFile(p)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	values := make(map[string]string, len(entries))
	for key, e := range entries {
		v := data[key]
		if v == "" {
			v = os.Getenv(e.env)
		}
		if v == "" {
			v = e.def
		}
		if v != "" {
			if err := Validate(key, v); err != nil {
				return cfg, err
			}
		}
		values[key] = v
	}

	// Values are validated above, so conversions cannot fail.
	cfg.OutputDir = values[KeyOutputDir]
	cfg.ChunkMinutes, _ = strconv.Atoi(values[KeyChunkMinutes])
	cfg.Threshold, _ = strconv.ParseFloat(values[KeyThreshold], 64)
	cfg.Parallel, _ = strconv.Atoi(values[KeyParallel])
	cfg.Diarizer = values[KeyDiarizer]
	cfg.DiarizeURL = values[KeyDiarizeURL]
	cfg.VoiceURL = values[KeyVoiceURL]
	cfg.LLMBaseURL = values[KeyLLMBaseURL]
	cfg.LLMModel = values[KeyLLMModel]
	cfg.LogLevel = values[KeyLogLevel]
	return cfg, nil
}

// parseFile reads a key=value config file.
// Format: one key=value per line, # comments, empty lines ignored.
func parseFile(p string) (map[string]string, error) {
	f, err := os.Open(p) // #nosec G304 -- config path is constructed from home dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid syntax at line %d: %q", lineNum, line)
		}
		data[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return data, nil
}

// Save validates and writes a single key=value to the config file.
// Creates the config directory and file if they don't exist.
// Preserves existing key=value pairs but discards comments.
func Save(key, value string) error {
	if err := Validate(key, value); err != nil {
		return err
	}

	p, err := path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil { // #nosec G301 -- user config dir
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	existing, _ := parseFile(p)
	if existing == nil {
		existing = make(map[string]string)
	}
	existing[key] = value

	return writeFile(p, existing)
}

// writeFile writes the config map to a file, keys sorted.
func writeFile(p string, data map[string]string) error {
	// #nosec G302 G304 -- config file with standard permissions, path from home dir
	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("cannot write config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, key := range slices.Sorted(maps.Keys(data)) {
		if _, err := fmt.Fprintf(f, "%s=%s\n", key, data[key]); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	return nil
}

// Get reads a single value from the config file.
// Returns empty string if the key doesn't exist.
func Get(key string) (string, error) {
	if _, ok := entries[key]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	p, err := path()
	if err != nil {
		return "", err
	}

	data, err := parseFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	return data[key], nil
}

// Fallback returns the value key takes when the config file does not set
// it, from its environment variable or its default, and names the source
// ("env" or "default"). It returns "", "" when neither applies.
func Fallback(key string) (value, source string) {
	e, ok := entries[key]
	if !ok {
		return "", ""
	}
	if v := os.Getenv(e.env); v != "" {
		return v, "env"
	}
	if e.def != "" {
		return e.def, "default"
	}
	return "", ""
}

// List returns all config file values as a map.
func List() (map[string]string, error) {
	p, err := path()
	if err != nil {
		return nil, err
	}

	data, err := parseFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	return data, nil
}

// ResolveOutputPath resolves the final output path using the following precedence:
//  1. If output is absolute, use it as-is
//  2. If output is relative and outputDir is set, join them
//  3. If output is empty, use defaultName in outputDir (or cwd if no outputDir)
func ResolveOutputPath(output, outputDir, defaultName string) string {
	if output != "" && filepath.IsAbs(output) {
		return filepath.Clean(output)
	}

	if output != "" {
		if outputDir != "" {
			return filepath.Clean(filepath.Join(outputDir, output))
		}
		return filepath.Clean(output)
	}

	if outputDir != "" {
		return filepath.Clean(filepath.Join(outputDir, defaultName))
	}
	return filepath.Clean(defaultName)
}

// EnsureOutputDir checks that d is a writable directory, creating it if
// needed. ~ is expanded.
func EnsureOutputDir(d string) error {
	if d == "" {
		return fmt.Errorf("output-dir cannot be empty")
	}
	d = ExpandPath(d)

	info, err := os.Stat(d)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(d, 0750); err != nil { // #nosec G301 -- user output dir
				return fmt.Errorf("cannot create directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", d)
	}

	testFile := filepath.Join(d, ".go-minutes-write-test")
	f, err := os.Create(testFile) // #nosec G304 -- path is constructed from validated dir
	if err != nil {
		return fmt.Errorf("directory is not writable: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(testFile)
		return fmt.Errorf("directory is not writable: %w", err)
	}
	_ = os.Remove(testFile)

	return nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
	}
	return p
}

// Dir returns the configuration directory path.
func Dir() (string, error) {
	return dir()
}
