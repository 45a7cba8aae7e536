package transcribe

// NewTestTranscriber creates an OpenAITranscriber backed by a mock client.
func NewTestTranscriber(client audioTranscriber, opts ...TranscriberOption) *OpenAITranscriber {
	return newTranscriber(client, opts...)
}

var ClassifyError = classifyError
