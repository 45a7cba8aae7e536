package llm

import "errors"

var (
	// ErrEmptyAPIKey indicates that the API key was not provided.
	ErrEmptyAPIKey = errors.New("API key is required")

	// ErrInputTooLong indicates the prompt exceeds the model's input limit.
	ErrInputTooLong = errors.New("input exceeds token limit")

	// ErrEmptyResponse indicates the API returned no choices.
	ErrEmptyResponse = errors.New("no response from API")
)
