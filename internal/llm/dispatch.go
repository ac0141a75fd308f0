// Package llm dispatches uniform chat requests to one of the supported
// backends and normalizes every response, streaming or not, back into a
// common shape.
package llm

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/flowise"
	"go.uber.org/zap"
)

// Result is the outcome of a dispatch: exactly one of Response or
// Stream is set. Stream carries raw server-sent-events bytes and the
// receiver takes sole ownership of closing it.
type Result struct {
	Response *core.ChatResponse
	Stream   io.ReadCloser
}

// Dispatcher routes chat requests to provider adapters. It holds no
// per-request state; concurrent Dispatch calls are independent.
type Dispatcher struct {
	cfg     *config.Config
	client  *http.Client
	flowise *flowise.Client
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher over the given configuration.
func NewDispatcher(cfg *config.Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{
		Timeout: 5 * time.Minute, // LLM inference can be slow
	}
	return &Dispatcher{
		cfg:     cfg,
		client:  client,
		flowise: flowise.NewClient(cfg.Flowise.BaseURL, cfg.Flowise.APIKey, client),
		logger:  logger,
	}
}

// HTTPClient exposes the dispatcher's shared HTTP client so callers
// that bypass dispatch, like the Anthropic proxy route, reuse its
// connection pool and timeout.
func (d *Dispatcher) HTTPClient() *http.Client {
	return d.client
}

// Dispatch builds and issues the provider-specific request. An
// unrecognized provider degrades to the configured default rather than
// failing; the substitution is logged so misconfiguration stays visible.
// Streaming requests return the provider's raw SSE byte stream; wrap it
// with NewStream to consume normalized text fragments.
func (d *Dispatcher) Dispatch(ctx context.Context, provider core.Provider, req core.ChatRequest) (*Result, error) {
	if !provider.Valid() {
		fallback := d.cfg.DefaultProvider()
		d.logger.Warn("unknown provider, using default",
			zap.String("provider", string(provider)),
			zap.String("default", string(fallback)),
		)
		provider = fallback
	}

	switch provider {
	case core.ProviderGroq, core.ProviderOpenAI, core.ProviderOpenRouter,
		core.ProviderNeura, core.ProviderGoogle:
		return d.dispatchOpenAICompatible(ctx, provider, req)
	case core.ProviderClaude:
		return d.dispatchClaude(ctx, req)
	case core.ProviderFlowise:
		return d.dispatchFlowise(ctx, req)
	}

	// Unreachable: Valid covers the full enumeration.
	return nil, core.Errorf(core.ErrConfigInvalid, "unhandled provider %q", provider)
}
