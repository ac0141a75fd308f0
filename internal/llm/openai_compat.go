package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/core"
	"github.com/sashabaranov/go-openai"
)

// dispatchOpenAICompatible serves the providers that speak the OpenAI
// chat-completions protocol verbatim (groq, openai, openrouter, neura,
// google). The request passes through essentially unchanged with bearer
// authorization; only the base URL differs per provider.
func (d *Dispatcher) dispatchOpenAICompatible(ctx context.Context, provider core.Provider, req core.ChatRequest) (*Result, error) {
	pc := d.cfg.Provider(provider)
	if pc.APIKey == "" {
		return nil, core.Errorf(core.ErrCredentialMissing, "%s api key not configured", provider)
	}

	model := req.Model
	if model == "" {
		model = pc.Model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	payload := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		Stream:      req.Stream,
	}

	if req.Stream {
		return d.streamOpenAICompatible(ctx, provider, pc, payload)
	}

	clientCfg := openai.DefaultConfig(pc.APIKey)
	if pc.BaseURL != "" {
		clientCfg.BaseURL = pc.BaseURL
	}
	clientCfg.HTTPClient = d.client
	client := openai.NewClientWithConfig(clientCfg)

	resp, err := client.CreateChatCompletion(ctx, payload)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, core.Errorf(core.ErrTransport, "%s status %d: %s",
				provider, apiErr.HTTPStatusCode, apiErr.Message)
		}
		return nil, core.Errorf(core.ErrTransport, "%s: %w", provider, err)
	}

	out := &core.ChatResponse{ID: resp.ID}
	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, core.Choice{
			Index: c.Index,
			Message: core.Message{
				Role:    core.Role(c.Message.Role),
				Content: c.Message.Content,
			},
			FinishReason: string(c.FinishReason),
		})
	}
	return &Result{Response: out}, nil
}

// streamOpenAICompatible issues the streaming request over raw HTTP and
// hands the response body back untouched; the provider already speaks
// the SSE wire format the normalizer consumes.
func (d *Dispatcher) streamOpenAICompatible(ctx context.Context, provider core.Provider, pc config.ProviderConfig, payload openai.ChatCompletionRequest) (*Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimSuffix(pc.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+pc.APIKey)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, core.Errorf(core.ErrTransport, "%s: %w", provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, core.Errorf(core.ErrTransport, "%s status %d: %s",
			provider, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return &Result{Stream: resp.Body}, nil
}
