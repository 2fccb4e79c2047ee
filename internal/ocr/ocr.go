// Package ocr recognizes the text of a single PDF page that carries no
// embedded text layer. Engines are selected per upload by mode.
package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/docvault/internal/config"
)

const (
	ModeCloud = "cloud"
	ModeLocal = "local"
)

// Engine returns the text of the 1-based page of a PDF. Failures that may
// succeed on a second attempt are reported as transient extraction errors.
type Engine interface {
	Name() string
	RecognizePage(ctx context.Context, pdf []byte, page int) (string, error)
}

type Factory func(cfg config.OCRConfig) (Engine, error)

var factories = map[string]Factory{}

func Register(mode string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(mode))
	if key == "" || factory == nil {
		return
	}
	factories[key] = factory
}

// Registry holds the engines that could be built from configuration.
type Registry struct {
	engines map[string]Engine
	errs    map[string]error
}

func NewRegistry(cfg config.OCRConfig) *Registry {
	r := &Registry{engines: map[string]Engine{}, errs: map[string]error{}}
	for mode, factory := range factories {
		engine, err := factory(cfg)
		if err != nil {
			r.errs[mode] = err
			continue
		}
		r.engines[mode] = engine
	}
	return r
}

// NewStaticRegistry wraps prebuilt engines.
func NewStaticRegistry(engines map[string]Engine) *Registry {
	r := &Registry{engines: map[string]Engine{}, errs: map[string]error{}}
	for mode, engine := range engines {
		r.engines[strings.ToLower(mode)] = engine
	}
	return r
}

func (r *Registry) Get(mode string) (Engine, error) {
	key := strings.ToLower(strings.TrimSpace(mode))
	if engine, ok := r.engines[key]; ok {
		return engine, nil
	}
	if err, ok := r.errs[key]; ok {
		return nil, fmt.Errorf("ocr engine %s not available: %w", key, err)
	}
	return nil, fmt.Errorf("ocr engine %s not configured", key)
}

func ModeFor(useCloud bool) string {
	if useCloud {
		return ModeCloud
	}
	return ModeLocal
}
