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

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/parleychat/parley/internal/core"
)

// Anthropic rejects oversized max_tokens; the streaming path gets the
// larger budget since partial output arrives incrementally anyway.
const (
	claudeStreamMaxTokens = 16000
	claudeMaxTokens       = 4096
)

const anthropicVersion = "2023-06-01"

// claudeMessages filters out empty-content messages and maps the system
// role to user; Anthropic's schema has no system-role chat message in
// this mapping and rejects empty content outright.
func claudeMessages(msgs []core.Message) []core.Message {
	out := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		role := m.Role
		if role == core.RoleSystem {
			role = core.RoleUser
		}
		out = append(out, core.Message{Role: role, Content: m.Content})
	}
	return out
}

// dispatchClaude routes through the local proxy endpoint rather than
// the vendor API so the browser never sees the credential and no
// cross-origin request is needed.
func (d *Dispatcher) dispatchClaude(ctx context.Context, req core.ChatRequest) (*Result, error) {
	cc := d.cfg.Claude
	if cc.APIKey == "" {
		return nil, core.Errorf(core.ErrCredentialMissing, "claude api key not configured")
	}

	msgs := claudeMessages(req.Messages)
	if len(msgs) == 0 {
		return nil, core.Errorf(core.ErrEmptyRequest, "no messages with content after filtering")
	}

	model := req.Model
	if model == "" {
		model = cc.Model
	}

	if req.Stream {
		return d.streamClaude(ctx, model, msgs)
	}

	client := anthropic.NewClient(
		option.WithAPIKey(cc.APIKey),
		option.WithBaseURL(cc.ProxyURL),
		option.WithHTTPClient(d.client),
	)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: claudeMaxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(msgs)),
	}
	for _, m := range msgs {
		if m.Role == core.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, core.Errorf(core.ErrTransport, "claude status %d: %v",
				apiErr.StatusCode, err)
		}
		return nil, core.Errorf(core.ErrTransport, "claude: %w", err)
	}

	// Repackage the content-block response into the common shape with
	// the first text block as the assistant message.
	content := ""
	if len(resp.Content) > 0 && resp.Content[0].Type == "text" {
		content = resp.Content[0].Text
	}
	out := &core.ChatResponse{
		ID: resp.ID,
		Choices: []core.Choice{
			{
				Index:        0,
				Message:      core.Message{Role: core.RoleAssistant, Content: content},
				FinishReason: string(resp.StopReason),
			},
		},
	}
	return &Result{Response: out}, nil
}

type claudeStreamRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	Messages  []core.Message `json:"messages"`
	Stream    bool           `json:"stream"`
}

// streamClaude posts the streaming request to the proxy over raw HTTP
// and returns the SSE body as-is; the normalizer understands Anthropic
// content_block_delta events natively.
func (d *Dispatcher) streamClaude(ctx context.Context, model string, msgs []core.Message) (*Result, error) {
	cc := d.cfg.Claude

	body, err := json.Marshal(claudeStreamRequest{
		Model:     model,
		MaxTokens: claudeStreamMaxTokens,
		Messages:  msgs,
		Stream:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimSuffix(cc.ProxyURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", cc.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, core.Errorf(core.ErrTransport, "claude: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, core.Errorf(core.ErrTransport, "claude status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return &Result{Stream: resp.Body}, nil
}
