// Package audio models recordings, their fixed-duration chunks and the
// temporary clips cut from them. All decoding and encoding is delegated
// to FFmpeg.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/alnah/go-minutes/internal/format"
)

// Handle identifies a decodable recording and its total duration.
type Handle struct {
	Path     string
	Duration time.Duration
}

// Chunk is a contiguous window of a source recording.
// Offset is absolute within Source; chunks never overlap.
type Chunk struct {
	Index    int
	Source   Handle
	Offset   time.Duration
	Duration time.Duration
}

// End returns the absolute end of the chunk.
func (c Chunk) End() time.Duration {
	return c.Offset + c.Duration
}

// String returns a human-readable representation for logging.
func (c Chunk) String() string {
	return fmt.Sprintf("chunk %d: %s-%s", c.Index, format.Duration(c.Offset), format.Duration(c.End()))
}

// Clip is a temporary audio file cut from a recording.
// Start and End are absolute positions in the source.
type Clip struct {
	Path  string
	Start time.Duration
	End   time.Duration

	remove func(string) error
}

// NewClip returns a clip whose Remove calls remove instead of os.Remove.
// A nil remove means os.Remove.
func NewClip(path string, start, end time.Duration, remove func(string) error) Clip {
	return Clip{Path: path, Start: start, End: end, remove: remove}
}

// IsZero reports whether the clip has no backing file.
func (c Clip) IsZero() bool {
	return c.Path == ""
}

// Remove deletes the clip file. Removing a zero or already removed clip
// is not an error.
func (c Clip) Remove() error {
	if c.Path == "" {
		return nil
	}
	rm := c.remove
	if rm == nil {
		rm = os.Remove
	}
	if err := rm(c.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove clip %s: %w", c.Path, err)
	}
	return nil
}

// ClipSlicer cuts the [start, end) range of src into a temporary clip.
// The caller owns the returned clip and must Remove it.
type ClipSlicer interface {
	Slice(ctx context.Context, src Handle, start, end time.Duration) (Clip, error)
}
