package report

import "errors"

var (
	// ErrUnknownKind indicates an invalid report kind was specified.
	ErrUnknownKind = errors.New("unknown report kind")

	// ErrEmptyTranscript indicates there is nothing to summarize.
	ErrEmptyTranscript = errors.New("transcript is empty")
)
