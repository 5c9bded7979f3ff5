package embedding

import (
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client wraps the OpenAI client shared by embedding and image description.
type Client struct {
	client *openai.Client
}

// NewClient creates a new OpenAI client. An empty apiKey falls back to
// OPENAI_API_KEY and returns an error if neither is set. Extra options are
// passed through, e.g. option.WithBaseURL for a compatible gateway.
func NewClient(apiKey string, opts ...option.RequestOption) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., image description).
func (c *Client) Client() *openai.Client {
	return c.client
}
