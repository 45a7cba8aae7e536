package audio

import "errors"

// ErrInvalidAudio indicates the input cannot be opened or decoded.
// It is fatal for a job and never retried.
var ErrInvalidAudio = errors.New("invalid audio")

// ErrFileNotFound indicates the specified input file does not exist.
var ErrFileNotFound = errors.New("file not found")

// ErrInvalidChunkDuration indicates a non-positive chunk duration.
var ErrInvalidChunkDuration = errors.New("chunk duration must be positive")

// ErrInvalidRange indicates a slice request whose end is not after its start.
var ErrInvalidRange = errors.New("invalid time range")

// ErrSliceFailed indicates FFmpeg failed to extract a clip.
var ErrSliceFailed = errors.New("audio slicing failed")

// ErrSlicerClosed indicates Slice was called after Close.
var ErrSlicerClosed = errors.New("slicer closed")
