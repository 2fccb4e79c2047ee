package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnavailable = errors.New("ai provider unavailable")

const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

type IProvider interface {
	Name() string
	Generate(ctx context.Context, model string, prompt string) (string, error)
	Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error)
}

// IMultimodalProvider accepts a binary attachment next to the prompt. The
// cloud OCR engine requires it.
type IMultimodalProvider interface {
	IProvider
	GenerateWithData(ctx context.Context, model string, prompt string, mimeType string, data []byte) (string, error)
}

type IGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type IEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	ModelName() string
}

type generator struct {
	provider IProvider
	model    string
}

func NewGenerator(p IProvider, model string) IGenerator {
	return &generator{provider: p, model: model}
}

func (g *generator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.provider.Generate(ctx, g.model, prompt)
}

type embedder struct {
	provider IProvider
	model    string
}

func NewEmbedder(p IProvider, model string) IEmbedder {
	return &embedder{provider: p, model: model}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return e.provider.Embed(ctx, e.model, text, taskType)
}

func (e *embedder) ModelName() string {
	return e.provider.Name() + ":" + e.model
}

type ProviderFactory func(args interface{}) (IProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
