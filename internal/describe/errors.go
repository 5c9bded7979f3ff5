package describe

import "errors"

var (
	// ErrMissingAPIKey is returned when no OpenAI key is configured.
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY not set")

	// ErrUndecodable marks image bytes that are not a supported image format.
	// It is a per-image failure, not a failure of the run.
	ErrUndecodable = errors.New("image could not be decoded")

	// ErrEmptyResponse is returned when the model answers with no content.
	ErrEmptyResponse = errors.New("describer returned no content")
)
