package diarize

import "errors"

// ErrMalformedResponse indicates the diarization service returned a body
// that matches none of the supported shapes.
var ErrMalformedResponse = errors.New("malformed diarization response")

// ErrAPIKeyMissing indicates the OpenAI diarizer was built without a key.
var ErrAPIKeyMissing = errors.New("OPENAI_API_KEY environment variable not set")

// ErrServiceURLMissing indicates the HTTP diarizer has no base URL.
var ErrServiceURLMissing = errors.New("diarization service URL not configured")
