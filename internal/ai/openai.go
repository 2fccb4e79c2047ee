package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

type openAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

// openAIProvider talks to any OpenAI compatible endpoint. The "openrouter"
// name only changes the default base URL.
type openAIProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIChatMsg `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature float64         `json:"temperature"`
}

type openAIChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func init() {
	Register("openai", openAIFactory("openai", defaultOpenAIBaseURL))
	Register("openrouter", openAIFactory("openrouter", defaultOpenRouterBaseURL))
}

func openAIFactory(name, defaultBaseURL string) ProviderFactory {
	return func(args interface{}) (IProvider, error) {
		cfg := &openAIConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		baseURL := strings.TrimSpace(cfg.BaseURL)
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		return &openAIProvider{
			name:    name,
			apiKey:  strings.TrimSpace(cfg.APIKey),
			baseURL: strings.TrimRight(baseURL, "/"),
			client:  &http.Client{Timeout: 120 * time.Second},
		}, nil
	}
}

func (p *openAIProvider) Name() string {
	return p.name
}

func (p *openAIProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	var out openAIChatResponse
	err := p.postJSON(ctx, "/chat/completions", openAIChatRequest{
		Model:    model,
		Messages: []openAIChatMsg{{Role: "user", Content: prompt}},
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s response has no choices", p.name)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (p *openAIProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	_ = taskType
	var out openAIEmbedResponse
	if err := p.postJSON(ctx, "/embeddings", openAIEmbedRequest{Model: model, Input: text}, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("%s response has no embeddings", p.name)
	}
	return out.Data[0].Embedding, nil
}

func (p *openAIProvider) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	if p.apiKey == "" {
		return ErrUnavailable
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s request failed: %s: %s", p.name, resp.Status, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
