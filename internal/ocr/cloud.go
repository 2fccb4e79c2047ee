package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxxsen/docvault/internal/ai"
	"github.com/xxxsen/docvault/internal/config"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

const (
	defaultCloudProvider = "gemini"
	defaultCloudModel    = "gemini-2.0-flash"
)

type cloudEngine struct {
	provider ai.IMultimodalProvider
	model    string
}

func init() {
	Register(ModeCloud, createCloudEngine)
}

func createCloudEngine(cfg config.OCRConfig) (Engine, error) {
	name := cfg.Cloud.Provider
	if name == "" {
		name = defaultCloudProvider
	}
	provider, err := ai.NewProvider(name, cfg.Cloud.Data)
	if err != nil {
		return nil, err
	}
	mm, ok := provider.(ai.IMultimodalProvider)
	if !ok {
		return nil, fmt.Errorf("provider %s cannot read documents", name)
	}
	model := cfg.Cloud.Model
	if model == "" {
		model = defaultCloudModel
	}
	return NewCloudEngine(mm, model), nil
}

func NewCloudEngine(provider ai.IMultimodalProvider, model string) Engine {
	return &cloudEngine{provider: provider, model: model}
}

func (e *cloudEngine) Name() string {
	return ModeCloud
}

func (e *cloudEngine) RecognizePage(ctx context.Context, pdf []byte, page int) (string, error) {
	prompt := fmt.Sprintf(`Transcribe all text on page %d of the attached PDF.
- Keep reading order and paragraph breaks.
- Output ONLY the text of that page, no commentary.
- If the page has no text, output nothing.`, page)
	text, err := e.provider.GenerateWithData(ctx, e.model, prompt, "application/pdf", pdf)
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			return "", appErr.Extraction("cloud ocr unavailable", err)
		}
		return "", appErr.TransientExtraction(fmt.Sprintf("cloud ocr page %d", page), err)
	}
	return strings.TrimSpace(text), nil
}
