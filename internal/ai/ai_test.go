package ai

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashProvider_DeterministicAndNormalized(t *testing.T) {
	p, err := NewProvider("hash", map[string]interface{}{"dims": 64})
	require.NoError(t, err)
	ctx := context.Background()

	a, err := p.Embed(ctx, "", "The monthly rent is 1200 EUR", TaskRetrievalDocument)
	require.NoError(t, err)
	b, err := p.Embed(ctx, "", "The monthly rent is 1200 EUR", TaskRetrievalQuery)
	require.NoError(t, err)
	require.Len(t, a, 64)
	require.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	empty, err := p.Embed(ctx, "", "   ", "")
	require.NoError(t, err)
	require.Len(t, empty, 64)

	_, err = p.Generate(ctx, "", "hi")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider("nope", nil)
	require.Error(t, err)
	_, err = NewProvider("", nil)
	require.Error(t, err)
}

type stubGenerator struct {
	out    string
	err    error
	prompt string
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.out, s.err
}

func TestGroupGenerator_FallsBack(t *testing.T) {
	first := &stubGenerator{err: errors.New("down")}
	second := &stubGenerator{out: "ok"}
	g := NewGroupGenerator([]GeneratorEntry{{Name: "a", Generator: first}, {Name: "b", Generator: second}})
	out, err := g.Generate(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "ok", out)

	single := NewGroupGenerator([]GeneratorEntry{{Name: "a", Generator: second}})
	require.Same(t, second, single)
	require.Nil(t, NewGroupGenerator(nil))
}

func TestManager_AnswerPromptNumbersPassages(t *testing.T) {
	gen := &stubGenerator{out: "The rent is 1200 EUR [1]."}
	m := NewManager(gen, nil, ManagerConfig{})
	out, err := m.Answer(context.Background(), "What is the rent?", []Passage{
		{Index: 1, Filename: "lease.pdf", Page: 2, Text: "Rent: 1200 EUR"},
	})
	require.NoError(t, err)
	require.Equal(t, "The rent is 1200 EUR [1].", out)
	require.True(t, strings.Contains(gen.prompt, "[1] (lease.pdf, page 2)"))

	_, err = NewManager(nil, nil, ManagerConfig{}).Answer(context.Background(), "q", nil)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestManager_TitleCleansOutput(t *testing.T) {
	gen := &stubGenerator{out: "\"Residential Lease Agreement\"\nextra"}
	m := NewManager(gen, nil, ManagerConfig{MaxInputChars: 10})
	title, err := m.Title(context.Background(), "a very long document body")
	require.NoError(t, err)
	require.Equal(t, "Residential Lease Agreement", title)
	require.Contains(t, gen.prompt, "a very lon")
	require.NotContains(t, gen.prompt, "a very long")
}
