package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type ManagerConfig struct {
	Timeout       int
	MaxInputChars int
}

// Passage is one numbered piece of retrieved context handed to the
// answer prompt.
type Passage struct {
	Index    int
	Filename string
	Page     int
	Text     string
}

type Manager struct {
	generator IGenerator
	embedder  IEmbedder
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{
		generator: generator,
		embedder:  embedder,
		cfg:       cfg,
	}
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	return m.embedder.Embed(ctx, text, taskType)
}

func (m *Manager) HasGenerator() bool {
	return m.generator != nil
}

func (m *Manager) Answer(ctx context.Context, question string, passages []Passage) (string, error) {
	if m.generator == nil {
		return "", ErrUnavailable
	}
	var sb strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&sb, "[%d] (%s, page %d)\n%s\n\n", p.Index, p.Filename, p.Page, strings.TrimSpace(p.Text))
	}
	prompt := fmt.Sprintf(`You answer questions about contracts using ONLY the numbered context below.
- If the context does not contain the answer, say that the documents do not contain enough information.
- Cite every statement with the number of the passage it comes from, like [1] or [2][3].
- Do not use outside knowledge. Do not invent passages.
- Answer in the language of the question.

CONTEXT:
%s
QUESTION:
%s`, sb.String(), question)
	return m.generateText(ctx, prompt)
}

func (m *Manager) Title(ctx context.Context, text string) (string, error) {
	if m.generator == nil {
		return "", ErrUnavailable
	}
	if limit := m.cfg.MaxInputChars; limit > 0 && len([]rune(text)) > limit {
		text = string([]rune(text)[:limit])
	}
	prompt := fmt.Sprintf(`Give a short descriptive title (at most 10 words) for the document below.
- Use the same language as the document.
- Output ONLY the title, without quotes.

DOCUMENT:
%s`, text)
	title, err := m.generateText(ctx, prompt)
	if err != nil {
		return "", err
	}
	title = strings.Trim(strings.SplitN(title, "\n", 2)[0], " \"'#*")
	if title == "" {
		return "", fmt.Errorf("empty title")
	}
	return title, nil
}

func (m *Manager) generateText(ctx context.Context, prompt string) (string, error) {
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := m.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

func (m *Manager) MaxInputChars() int {
	return m.cfg.MaxInputChars
}

func (m *Manager) EmbeddingModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}
