package cli

import "errors"

// CLI-specific sentinel errors.
// These are validation/usage errors that don't belong to domain packages.

var (
	// ErrAPIKeyMissing indicates OPENAI_API_KEY environment variable is not set.
	ErrAPIKeyMissing = errors.New("OPENAI_API_KEY environment variable not set")

	// ErrUnsupportedFormat indicates an audio file has an unsupported extension.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrInvalidOutputFormat indicates an unknown --format value.
	ErrInvalidOutputFormat = errors.New("invalid output format")

	// ErrFileNotFound indicates the specified input file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrOutputExists indicates the output file already exists.
	ErrOutputExists = errors.New("output file already exists")

	// ErrReportFailed wraps any failure of the report stage.
	ErrReportFailed = errors.New("report generation failed")

	// ErrInterrupted indicates the run stopped on Ctrl+C.
	ErrInterrupted = errors.New("interrupted")
)
