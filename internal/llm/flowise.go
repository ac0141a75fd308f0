package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/flowise"
	"go.uber.org/zap"
)

// dispatchFlowise serves the flow-engine backend. The most recent user
// message becomes the question; earlier non-system turns become the
// engine's history structure.
func (d *Dispatcher) dispatchFlowise(ctx context.Context, req core.ChatRequest) (*Result, error) {
	fc := d.cfg.Flowise
	if fc.ChatflowID == "" {
		return nil, core.Errorf(core.ErrConfigMissing, "flowise chatflow_id not configured")
	}

	idx := req.LastUserMessage()
	if idx < 0 {
		return nil, core.Errorf(core.ErrNoUserMessage, "flowise requires a user message")
	}

	history := make([]flowise.HistoryMessage, 0, idx)
	for _, m := range req.Messages[:idx] {
		switch m.Role {
		case core.RoleSystem:
			continue
		case core.RoleAssistant:
			history = append(history, flowise.HistoryMessage{Type: "apiMessage", Message: m.Content})
		default:
			history = append(history, flowise.HistoryMessage{Type: "userMessage", Message: m.Content})
		}
	}

	preq := flowise.PredictionRequest{
		Question: req.Messages[idx].Content,
		History:  history,
		OverrideConfig: map[string]any{
			"temperature": req.Temperature,
		},
	}

	if req.Stream {
		ctx, cancel := context.WithCancel(ctx)
		events, errs := d.flowise.PredictStream(ctx, fc.ChatflowID, preq)
		return &Result{Stream: encodeDeltaStream(events, errs, cancel, d.logger)}, nil
	}

	body, err := d.flowise.Predict(ctx, fc.ChatflowID, preq)
	if err != nil {
		return nil, flowiseError(err, fc.BaseURL)
	}

	out := &core.ChatResponse{
		ID: "flowise-" + fc.ChatflowID,
		Choices: []core.Choice{
			{
				Index:        0,
				Message:      core.Message{Role: core.RoleAssistant, Content: extractFlowiseText(body)},
				FinishReason: "stop",
			},
		},
	}
	return &Result{Response: out}, nil
}

// extractFlowiseText pulls the answer out of whichever result field the
// flow produced, in priority order: plain string body, .text, .result,
// stringified .json.
func extractFlowiseText(body []byte) string {
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}

	var obj struct {
		Text   string          `json:"text"`
		Result string          `json:"result"`
		JSON   json.RawMessage `json:"json"`
	}
	if err := json.Unmarshal(body, &obj); err == nil {
		switch {
		case obj.Text != "":
			return obj.Text
		case obj.Result != "":
			return obj.Result
		case len(obj.JSON) > 0:
			return string(obj.JSON)
		}
	}
	return strings.TrimSpace(string(body))
}

// flowiseError rewrites an error whose text carries an HTML document
// signature: that almost always means the configured URL points at the
// Flowise UI instead of the API. Best-effort diagnostic only.
func flowiseError(err error, baseURL string) error {
	text := strings.ToLower(err.Error())
	if strings.Contains(text, "<!doctype html") || strings.Contains(text, "<html") {
		return core.Errorf(core.ErrEndpoint,
			"flowise at %q answered with HTML; base_url likely points at the UI rather than the API", baseURL)
	}
	return core.WrapError(core.ErrTransport, err)
}

// encodeDeltaStream re-encodes flow-engine token events as OpenAI-style
// delta SSE lines so downstream consumers see one uniform wire format.
// A data: [DONE] sentinel is always written before closing, even on
// normal completion or mid-stream failure.
func encodeDeltaStream(events <-chan flowise.Event, errs <-chan error, cancel context.CancelFunc, logger *zap.Logger) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		defer cancel()

		write := func(line string) bool {
			_, err := io.WriteString(pw, line)
			return err == nil
		}

		for ev := range events {
			if ev.Event != "token" || ev.Data == "" {
				continue
			}
			chunk := map[string]any{
				"choices": []map[string]any{
					{"delta": map[string]string{"content": ev.Data}},
				},
			}
			data, err := json.Marshal(chunk)
			if err != nil {
				logger.Warn("skipping unencodable flowise token", zap.Error(err))
				continue
			}
			if !write(fmt.Sprintf("data: %s\n\n", data)) {
				// Reader gone; stop consuming.
				return
			}
		}

		if err := <-errs; err != nil {
			logger.Warn("flowise stream ended with error", zap.Error(err))
		}

		write("data: [DONE]\n\n")
		pw.Close()
	}()

	return pr
}
