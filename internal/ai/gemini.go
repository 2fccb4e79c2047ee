package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
}

type geminiProvider struct {
	apiKey string

	once      sync.Once
	client    *genai.Client
	clientErr error
}

func init() {
	Register("gemini", createGeminiFactory)
}

func createGeminiFactory(args interface{}) (IProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &geminiProvider{apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	p.once.Do(func() {
		p.client, p.clientErr = genai.NewClient(context.WithoutCancel(ctx), &genai.ClientConfig{
			APIKey:  p.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return p.client, p.clientErr
}

func (p *geminiProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.Models.GenerateContent(
		ctx,
		model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (p *geminiProvider) GenerateWithData(ctx context.Context, model string, prompt string, mimeType string, data []byte) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}
	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
		{Text: prompt},
	}
	resp, err := client.Models.GenerateContent(ctx, model, []*genai.Content{{Role: "user", Parts: parts}}, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (p *geminiProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}
	var config *genai.EmbedContentConfig
	if taskType != "" {
		config = &genai.EmbedContentConfig{TaskType: taskType}
	}
	resp, err := client.Models.EmbedContent(
		ctx,
		model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		config,
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding values returned")
	}
	return resp.Embeddings[0].Values, nil
}
