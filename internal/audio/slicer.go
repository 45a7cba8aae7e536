package audio

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

var _ ClipSlicer = (*Slicer)(nil)

// Slicer cuts clips out of recordings into a job-scoped work directory.
// It is safe for concurrent use. Each clip is owned by the caller; Close
// removes the work directory and anything still in it.
type Slicer struct {
	ffmpegPath string
	cmd        commandRunner
	tempDir    tempDirCreator
	files      fileRemover
	prefix     string

	mu     sync.Mutex
	dir    string
	seq    int
	closed bool
}

// SlicerOption configures a Slicer.
type SlicerOption func(*Slicer)

// WithSlicerCommandRunner sets the command runner (for testing).
func WithSlicerCommandRunner(r commandRunner) SlicerOption {
	return func(s *Slicer) { s.cmd = r }
}

// WithSlicerTempDir sets the temp directory creator (for testing).
func WithSlicerTempDir(t tempDirCreator) SlicerOption {
	return func(s *Slicer) { s.tempDir = t }
}

// WithSlicerFileRemover sets the file remover (for testing).
func WithSlicerFileRemover(f fileRemover) SlicerOption {
	return func(s *Slicer) { s.files = f }
}

// WithWorkDirPrefix names the work directory, typically after the job id.
func WithWorkDirPrefix(prefix string) SlicerOption {
	return func(s *Slicer) { s.prefix = prefix }
}

// NewSlicer creates a Slicer using the FFmpeg binary at ffmpegPath.
// The work directory is created on first use.
func NewSlicer(ffmpegPath string, opts ...SlicerOption) *Slicer {
	s := &Slicer{
		ffmpegPath: ffmpegPath,
		cmd:        osCommandRunner{},
		tempDir:    osTempDirCreator{},
		files:      osFileRemover{},
		prefix:     "go-minutes",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Slice extracts [start, end) of src into a new clip re-encoded as 16 kHz
// mono OGG Vorbis. end is clamped to the source duration when known.
func (s *Slicer) Slice(ctx context.Context, src Handle, start, end time.Duration) (Clip, error) {
	if src.Duration > 0 {
		end = min(end, src.Duration)
	}
	start = max(start, 0)
	if end <= start {
		return Clip{}, fmt.Errorf("%w: %v-%v", ErrInvalidRange, start, end)
	}

	path, err := s.nextPath()
	if err != nil {
		return Clip{}, err
	}

	if err := s.extract(ctx, src.Path, path, start, end); err != nil {
		_ = s.files.Remove(path) // best-effort; partial output is useless
		return Clip{}, err
	}

	return NewClip(path, start, end, s.files.Remove), nil
}

// Dir returns the work directory, or "" if nothing was sliced yet.
func (s *Slicer) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// Close removes the work directory. Further calls to Slice fail.
func (s *Slicer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.dir == "" {
		return nil
	}
	if err := s.files.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove work dir: %w", err)
	}
	return nil
}

func (s *Slicer) nextPath() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrSlicerClosed
	}
	if s.dir == "" {
		dir, err := s.tempDir.MkdirTemp("", s.prefix+"-*")
		if err != nil {
			return "", fmt.Errorf("create work dir: %w", err)
		}
		s.dir = dir
	}
	s.seq++
	return filepath.Join(s.dir, fmt.Sprintf("clip_%06d.ogg", s.seq)), nil
}

func (s *Slicer) extract(ctx context.Context, srcPath, dstPath string, start, end time.Duration) error {
	// Input seeking keeps slicing late segments of long recordings cheap.
	args := []string{
		"-y",
		"-ss", formatFFmpegTime(start),
		"-t", formatFFmpegTime(end - start),
		"-i", srcPath,
	}
	args = append(args, clipEncodingArgs()...)
	args = append(args, dstPath)

	output, err := s.cmd.CombinedOutput(ctx, s.ffmpegPath, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s [%s-%s]: %v\nOutput: %s",
			ErrSliceFailed, srcPath, formatFFmpegTime(start), formatFFmpegTime(end), err, string(output))
	}
	return nil
}

// clipEncodingArgs re-encodes to OGG Vorbis, 16 kHz mono, the format the
// speech collaborators expect.
func clipEncodingArgs() []string {
	return []string{
		"-c:a", "libvorbis",
		"-ar", "16000",
		"-ac", "1",
		"-q:a", "2",
	}
}

// formatFFmpegTime formats a duration for FFmpeg -ss/-to arguments.
func formatFFmpegTime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := d.Seconds() - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}
