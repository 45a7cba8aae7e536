package diarize

// ParseServiceResponse exports parseServiceResponse for testing.
var ParseServiceResponse = parseServiceResponse

// ParseDiarizedJSON exports parseDiarizedJSON for testing.
var ParseDiarizedJSON = parseDiarizedJSON

// NewTestOpenAIService creates an OpenAIService that targets url.
func NewTestOpenAIService(url, apiKey, language string, opts ...HTTPOption) *OpenAIService {
	s, err := NewOpenAIService(apiKey, language, opts...)
	if err != nil {
		panic(err)
	}
	s.url = url
	return s
}
