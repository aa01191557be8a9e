package embedding

import (
	"fmt"
	"net/http"

	"centroid/internal/config"
	"centroid/internal/observability"
)

// NewRegistryFromConfig builds a Registry from the configured backends,
// wiring each "remote" backend through an otelhttp-instrumented client.
func NewRegistryFromConfig(cfg config.EmbeddingConfig) (*Registry, error) {
	if len(cfg.Backends) == 0 {
		return nil, fmt.Errorf("embedding: no backends configured")
	}
	httpClient := observability.NewHTTPClient(&http.Client{})

	backends := make(map[string]Backend, len(cfg.Backends))
	for name, bc := range cfg.Backends {
		switch bc.Type {
		case "local", "":
			backends[name] = NewLocal(name, bc.Dimensions, 0)
		case "remote":
			backends[name] = NewRemote(name, bc, httpClient)
		default:
			return nil, fmt.Errorf("embedding: unknown backend type %q for %q", bc.Type, name)
		}
	}
	return NewRegistry(backends, cfg.Default)
}
