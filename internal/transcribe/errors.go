package transcribe

import "errors"

// ErrAPIKeyMissing indicates OPENAI_API_KEY environment variable is not set.
var ErrAPIKeyMissing = errors.New("OPENAI_API_KEY environment variable not set")

// ErrEmptyPath indicates Transcribe was called without an audio file.
var ErrEmptyPath = errors.New("audio path is empty")
