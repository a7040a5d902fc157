// Package llm implements the reply generator on an OpenAI-compatible
// chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/talkmeter/server/internal/infra/httpclient"
	"github.com/talkmeter/server/internal/port/outbound"
)

// Config holds the upstream model settings.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// generator implements outbound.GeneratorPort.
type generator struct {
	cfg     Config
	client  *http.Client
	breaker *httpclient.Breaker
}

// NewGenerator creates an OpenAI-compatible generator.
func NewGenerator(cfg Config, client *http.Client, breaker *httpclient.Breaker) (outbound.GeneratorPort, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, errors.New("llm: base url and model are required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = http.DefaultClient
	}
	if breaker == nil {
		breaker = httpclient.NewBreaker("llm", httpclient.BreakerConfig{}, nil)
	}
	return &generator{cfg: cfg, client: client, breaker: breaker}, nil
}

// buildMessages puts the system prompt and history ahead of the user text.
func (g *generator) buildMessages(text, history string) []message {
	msgs := make([]message, 0, 3)
	if g.cfg.SystemPrompt != "" {
		msgs = append(msgs, message{Role: "system", Content: g.cfg.SystemPrompt})
	}
	if strings.TrimSpace(history) != "" {
		msgs = append(msgs, message{Role: "system", Content: "Context:\n" + history})
	}
	return append(msgs, message{Role: "user", Content: text})
}

func (g *generator) Generate(ctx context.Context, text, history string) (string, error) {
	body, err := json.Marshal(chatRequest{Model: g.cfg.Model, Messages: g.buildMessages(text, history)})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	return httpclient.Call(g.breaker, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if g.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
		}

		var out chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if len(out.Choices) == 0 {
			return "", nil
		}
		return out.Choices[0].Message.Content, nil
	})
}

// Compile-time check
var _ outbound.GeneratorPort = (*generator)(nil)
