package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// EnvPath names the environment variable that overrides ffmpeg discovery.
const EnvPath = "FFMPEG_PATH"

// minMajorVersion is the oldest ffmpeg release known to decode and slice
// reliably with the arguments used by the audio package.
const minMajorVersion = 4

// ---------------------------------------------------------------------------
// Resolver
// ---------------------------------------------------------------------------

// Resolver locates the ffmpeg binary.
type Resolver struct {
	env    envProvider
	fs     fileStatter
	goos   string
	stderr io.Writer
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithEnvProvider sets the environment lookup implementation.
func WithEnvProvider(e envProvider) ResolverOption {
	return func(r *Resolver) { r.env = e }
}

// WithFileStatter sets the file existence check implementation.
func WithFileStatter(fs fileStatter) ResolverOption {
	return func(r *Resolver) { r.fs = fs }
}

// WithPlatform sets the OS used to pick install instructions.
func WithPlatform(goos string) ResolverOption {
	return func(r *Resolver) { r.goos = goos }
}

// WithStderr sets the writer for version warnings.
func WithStderr(w io.Writer) ResolverOption {
	return func(r *Resolver) { r.stderr = w }
}

// NewResolver creates a Resolver with production defaults.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		env:    osEnv{},
		fs:     osEnv{},
		goos:   runtime.GOOS,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve finds ffmpeg using the following precedence:
//  1. FFMPEG_PATH environment variable (error if set but invalid)
//  2. System PATH
//
// When neither yields a binary the error wraps ErrNotFound and carries
// platform-specific install instructions.
func (r *Resolver) Resolve(_ context.Context) (string, error) {
	if p := r.env.Getenv(EnvPath); p != "" {
		if _, err := r.fs.Stat(p); err != nil {
			return "", fmt.Errorf("%w: %s is set to %q but the binary does not exist", ErrNotFound, EnvPath, p)
		}
		return p, nil
	}

	if p, err := r.env.LookPath("ffmpeg"); err == nil {
		return p, nil
	}

	return "", fmt.Errorf("%w\n\n%s", ErrNotFound, r.installInstructions())
}

func (r *Resolver) installInstructions() string {
	var b strings.Builder
	b.WriteString("Install FFmpeg:\n")
	switch r.goos {
	case "darwin":
		b.WriteString("  brew install ffmpeg\n")
	case "linux":
		b.WriteString("  Ubuntu/Debian: sudo apt install ffmpeg\n")
		b.WriteString("  Fedora:        sudo dnf install ffmpeg\n")
		b.WriteString("  Arch:          sudo pacman -S ffmpeg\n")
	case "windows":
		b.WriteString("  winget install ffmpeg\n")
	default:
		b.WriteString("  https://ffmpeg.org/download.html\n")
	}
	fmt.Fprintf(&b, "\nOr set %s to your ffmpeg binary.", EnvPath)
	return b.String()
}

// CheckVersion warns on the resolver's stderr when ffmpeg is older than the
// supported minimum. It returns false if the version could not be parsed.
func (r *Resolver) CheckVersion(ctx context.Context, ex *Executor, ffmpegPath string) bool {
	out, err := ex.RunOutput(ctx, ffmpegPath, []string{"-version"})
	if err != nil && out == "" {
		return false
	}
	major, ok := parseMajorVersion(out)
	if !ok {
		return false
	}
	if major < minMajorVersion {
		fmt.Fprintf(r.stderr, "Warning: ffmpeg version %d detected, version %d+ recommended\n",
			major, minMajorVersion)
	}
	return true
}

// parseMajorVersion reads the major version from the first line of
// `ffmpeg -version`, e.g. "ffmpeg version 6.1.1" or "ffmpeg version n6.1".
func parseMajorVersion(output string) (int, bool) {
	first, _, _ := strings.Cut(output, "\n")
	var major int
	if _, err := fmt.Sscanf(first, "ffmpeg version %d", &major); err == nil {
		return major, true
	}
	if _, err := fmt.Sscanf(first, "ffmpeg version n%d", &major); err == nil {
		return major, true
	}
	return 0, false
}
