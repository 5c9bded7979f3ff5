// Package describe captions images with a vision model and flags the ones
// that carry no information, such as logos and signatures.
package describe

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

// Describer captions one image. informative is false for decorative images;
// the caption is then empty and the image must not be stored.
type Describer interface {
	Describe(ctx context.Context, image []byte, contextText string) (caption string, informative bool, err error)
}

const (
	// DefaultModel is the vision model used when none is configured.
	DefaultModel = "gpt-4o"

	// DefaultMaxTokens caps the caption length.
	DefaultMaxTokens = 500

	invalidMarker = "INVALID IMAGE"
)

const systemPrompt = "You are a document analysis assistant. You describe charts, tables, graphs and diagrams from financial documents precisely, including every number, period and trend shown."

const userPrompt = `Analyze the image using the text that surrounds it in the document as context.

Context:
%s

Respond with:
- Title: the part of the context that matches the image, or a short accurate title.
- Description: a complete description of the image with all numbers, dates, trends and comparisons it shows.

If the image is a logo, a signature or purely decorative, respond with exactly:
INVALID IMAGE`

// OpenAIDescriber describes images with an OpenAI vision chat model.
type OpenAIDescriber struct {
	client    *openai.Client
	model     string
	maxTokens int64
	logger    *slog.Logger
}

// NewOpenAIDescriber creates a describer. An empty model uses DefaultModel;
// a nil logger falls back to slog.Default().
func NewOpenAIDescriber(client *openai.Client, model string, logger *slog.Logger) (*OpenAIDescriber, error) {
	if client == nil {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIDescriber{client: client, model: model, maxTokens: DefaultMaxTokens, logger: logger}, nil
}

// Describe normalises the image and asks the model for a caption.
func (d *OpenAIDescriber) Describe(ctx context.Context, image []byte, contextText string) (string, bool, error) {
	png, err := Normalize(image)
	if err != nil {
		return "", false, err
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	var content string
	operation := func() error {
		resp, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
					openai.TextContentPart(fmt.Sprintf(userPrompt, contextText)),
					openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
				}),
			},
			Model:     openai.ChatModel(d.model),
			MaxTokens: openai.Int(d.maxTokens),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(ErrEmptyResponse)
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", false, fmt.Errorf("vision completion failed: %w", err)
	}

	caption, informative := Classify(content)
	if !informative {
		d.logger.Debug("image rejected as non-informative", "context", contextText)
	}
	return caption, informative, nil
}

// Classify maps a raw model answer to a caption, or to non-informative when
// the answer carries the rejection marker.
func Classify(response string) (string, bool) {
	caption := strings.TrimSpace(response)
	if caption == "" {
		return "", false
	}
	compact := strings.ReplaceAll(caption, "*", "")
	if strings.Contains(compact, invalidMarker) || strings.Contains(strings.ReplaceAll(compact, " ", ""), `"type":"INVALID"`) {
		return "", false
	}
	return caption, true
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
