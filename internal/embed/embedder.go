package embed

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/paperscope/backend/internal/config"
	"github.com/paperscope/backend/internal/platform/logger"
)

// Embedder turns text into fixed-length vectors. Implementations must be
// deterministic for identical input and dimension-stable for the lifetime
// of a collection.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

type constructor func(log *logger.Logger, cfg config.EmbeddingConfig, dim int) (Embedder, error)

// providers is the closed set of embedding backends. Resolution is a plain
// map lookup validated at startup; an unknown tag fails fast instead of at
// first use.
var providers = map[string]constructor{
	"openai": newOpenAI,
	"ollama": newOllama,
}

// Providers returns the known backend tags, sorted, for error messages.
func Providers() []string {
	out := make([]string, 0, len(providers))
	for tag := range providers {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// New resolves the configured backend tag and constructs the embedder.
func New(log *logger.Logger, cfg config.EmbeddingConfig, dim int) (Embedder, error) {
	if log == nil {
		return nil, fmt.Errorf("embed: logger required")
	}
	tag := strings.ToLower(strings.TrimSpace(cfg.Provider))
	build, ok := providers[tag]
	if !ok {
		return nil, fmt.Errorf("embed: unknown provider %q (known: %s)", cfg.Provider, strings.Join(Providers(), ", "))
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embed: embedding dimension must be positive, got %d", dim)
	}
	return build(log, cfg, dim)
}
