package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultOpenAIBase  = "https://api.openai.com/v1"
	DefaultOpenAIModel = "gpt-4o-mini"
)

// OpenAI calls an OpenAI-compatible chat completions endpoint. BaseURL can
// point at a local server.
type OpenAI struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

type oaiRequest struct {
	Model       string      `json:"model"`
	Messages    []cfMessage `json:"messages"`
	Temperature float64     `json:"temperature"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
}

type oaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	base := o.BaseURL
	if base == "" {
		base = defaultOpenAIBase
	}
	// Local servers often run without a key; the hosted API does not.
	if o.APIKey == "" && base == defaultOpenAIBase {
		return "", ErrNoCredentials
	}
	model := o.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	var messages []cfMessage
	if req.System != "" {
		messages = append(messages, cfMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, cfMessage{Role: "user", Content: UserContent(req)})

	var res oaiResponse
	if err := postJSON(ctx, o.HTTPClient, strings.TrimRight(base, "/")+"/chat/completions", o.APIKey, oaiRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, &res); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if res.Error != nil {
		return "", fmt.Errorf("openai error %s: %s", res.Error.Type, res.Error.Message)
	}
	if len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(res.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
