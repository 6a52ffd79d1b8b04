package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	DefaultCFModel   = "@cf/meta/llama-4-scout-17b-16e-instruct"
	defaultCFBaseURL = "https://api.cloudflare.com/client/v4"
)

// Cloudflare calls a Workers AI text model.
type Cloudflare struct {
	Creds      *Credentials
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

type cfMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type cfRequest struct {
	Messages    []cfMessage `json:"messages"`
	Temperature float64     `json:"temperature"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
}

type cfResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Response string `json:"response"`
		Text     string `json:"text"`
	} `json:"result"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// UserContent prefixes the prompt with a line naming platform, room and user.
func UserContent(req Request) string {
	return fmt.Sprintf("Контекст: платформа=%s, канал=%s, пользователь=%s.\nСообщение пользователя: %s",
		orDash(req.Meta.Platform), orDash(req.Meta.Room), orDash(req.Meta.User), req.Prompt)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (c *Cloudflare) Generate(ctx context.Context, req Request) (string, error) {
	account, token, err := c.Creds.Get(ctx)
	if err != nil {
		return "", err
	}
	model := c.Model
	if model == "" {
		model = DefaultCFModel
	}
	base := c.BaseURL
	if base == "" {
		base = defaultCFBaseURL
	}
	url := strings.TrimRight(base, "/") + "/accounts/" + account + "/ai/run/" + model

	var messages []cfMessage
	if req.System != "" {
		messages = append(messages, cfMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, cfMessage{Role: "user", Content: UserContent(req)})

	var res cfResponse
	if err := postJSON(ctx, c.HTTPClient, url, token, cfRequest{
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, &res); err != nil {
		return "", fmt.Errorf("workers ai: %w", err)
	}
	if len(res.Errors) > 0 {
		return "", fmt.Errorf("workers ai error %d: %s", res.Errors[0].Code, res.Errors[0].Message)
	}
	text := strings.TrimSpace(res.Result.Response)
	if text == "" {
		text = strings.TrimSpace(res.Result.Text)
	}
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
