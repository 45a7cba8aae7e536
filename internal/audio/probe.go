package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"time"
)

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)
	progressRe = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
)

// Prober reads the duration of a recording with FFmpeg.
type Prober struct {
	ffmpegPath string
	cmd        commandRunner
	files      fileStatter
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProberCommandRunner sets the command runner (for testing).
func WithProberCommandRunner(r commandRunner) ProberOption {
	return func(p *Prober) { p.cmd = r }
}

// WithProberFileStatter sets the file statter (for testing).
func WithProberFileStatter(s fileStatter) ProberOption {
	return func(p *Prober) { p.files = s }
}

// NewProber creates a Prober using the FFmpeg binary at ffmpegPath.
func NewProber(ffmpegPath string, opts ...ProberOption) *Prober {
	p := &Prober{
		ffmpegPath: ffmpegPath,
		cmd:        osCommandRunner{},
		files:      osFileStatter{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe opens path and returns its Handle.
// A missing file wraps both ErrInvalidAudio and ErrFileNotFound; a file
// FFmpeg cannot decode wraps ErrInvalidAudio.
func (p *Prober) Probe(ctx context.Context, path string) (Handle, error) {
	if _, err := p.files.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Handle{}, fmt.Errorf("%w: %w: %s", ErrInvalidAudio, ErrFileNotFound, path)
		}
		return Handle{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}

	// Reading the container header is enough for most formats. ffmpeg exits
	// non-zero without an output file, so the error is ignored when the
	// header was printed.
	out, _ := p.cmd.CombinedOutput(ctx, p.ffmpegPath, []string{"-hide_banner", "-i", path})
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	if d, ok := parseHeaderDuration(string(out)); ok {
		return Handle{Path: path, Duration: d}, nil
	}

	// Streams without a duration header (raw or truncated files) are
	// decoded fully and the last progress timestamp is used.
	out, err := p.cmd.CombinedOutput(ctx, p.ffmpegPath, []string{"-hide_banner", "-i", path, "-f", "null", "-"})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Handle{}, ctxErr
	}
	if err != nil && len(out) == 0 {
		return Handle{}, fmt.Errorf("%w: %s: %v", ErrInvalidAudio, path, err)
	}
	d, err := parseDurationFromFFmpegOutput(string(out))
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %s: %v", ErrInvalidAudio, path, err)
	}
	return Handle{Path: path, Duration: d}, nil
}

func parseHeaderDuration(output string) (time.Duration, bool) {
	m := durationRe.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	return parseTimeComponents(m[1], m[2], m[3], m[4]), true
}

// parseDurationFromFFmpegOutput extracts duration from FFmpeg stderr.
// Looks for: "Duration: HH:MM:SS.ms" or, failing that, the last "time=HH:MM:SS.ms".
func parseDurationFromFFmpegOutput(output string) (time.Duration, error) {
	if d, ok := parseHeaderDuration(output); ok {
		return d, nil
	}

	all := progressRe.FindAllStringSubmatch(output, -1)
	if len(all) > 0 {
		m := all[len(all)-1]
		return parseTimeComponents(m[1], m[2], m[3], m[4]), nil
	}

	return 0, errors.New("could not parse duration from ffmpeg output")
}

// parseTimeComponents converts HH:MM:SS.frac strings to a Duration.
// The fractional part may have any number of digits; precision beyond
// milliseconds is truncated.
func parseTimeComponents(hours, minutes, seconds, fractional string) time.Duration {
	h, _ := strconv.Atoi(hours)
	m, _ := strconv.Atoi(minutes)
	s, _ := strconv.Atoi(seconds)

	if len(fractional) > 3 {
		fractional = fractional[:3]
	}
	ms, _ := strconv.Atoi(fractional)
	for n := len(fractional); n < 3; n++ {
		ms *= 10
	}

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond
}
