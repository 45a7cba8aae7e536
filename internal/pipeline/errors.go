package pipeline

import "errors"

// ErrNoSlicer indicates a job was built without an FFmpeg path or slicer.
var ErrNoSlicer = errors.New("no audio slicer configured")

// ErrMissingService indicates a required collaborator was not provided.
var ErrMissingService = errors.New("diarizer, comparer and transcriber are required")
