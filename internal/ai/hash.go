package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashDims = 256

type hashConfig struct {
	Dims int `json:"dims"`
}

// hashProvider embeds text locally by feature hashing lowercase word
// unigrams and bigrams. It needs no network and is fully deterministic,
// which makes it the default embedder for offline deployments and tests.
// It cannot generate text.
type hashProvider struct {
	dims int
}

func init() {
	Register("hash", createHashFactory)
}

func createHashFactory(args interface{}) (IProvider, error) {
	cfg := &hashConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return NewHashProvider(cfg.Dims), nil
}

func NewHashProvider(dims int) IProvider {
	if dims <= 0 {
		dims = defaultHashDims
	}
	return &hashProvider{dims: dims}
}

func (p *hashProvider) Name() string {
	return "hash"
}

func (p *hashProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	return "", ErrUnavailable
}

func (p *hashProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	vec := make([]float64, p.dims)
	words := Tokenize(text)
	for i, w := range words {
		p.add(vec, w, 1)
		if i > 0 {
			p.add(vec, words[i-1]+" "+w, 0.5)
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, p.dims)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (p *hashProvider) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(p.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// Tokenize lowercases text and splits it into letter/digit runs.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
