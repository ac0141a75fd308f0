// Package flowise is a minimal client for the Flowise prediction API.
// The flow engine is treated as an opaque collaborator: this package
// handles transport and SSE event framing only; interpreting results is
// left to the caller.
package flowise

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HistoryMessage is one prior turn in Flowise's history format.
type HistoryMessage struct {
	Type    string `json:"type"` // "apiMessage" or "userMessage"
	Message string `json:"message"`
}

// PredictionRequest is the body of a prediction call.
type PredictionRequest struct {
	Question       string           `json:"question"`
	History        []HistoryMessage `json:"history,omitempty"`
	OverrideConfig map[string]any   `json:"overrideConfig,omitempty"`
	Streaming      bool             `json:"streaming,omitempty"`
}

// Event is one server-sent event from a streaming prediction. Token
// events carry incremental text in Data; the engine signals completion
// with an "end" event.
type Event struct {
	Event string
	Data  string
}

// Client calls a Flowise instance. The API key is optional; self-hosted
// flows commonly run without one.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a Flowise client. A nil httpClient gets a default
// with a generous timeout.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpClient,
	}
}

func (c *Client) newRequest(ctx context.Context, chatflowID string, req PredictionRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.baseURL + "/api/v1/prediction/" + chatflowID
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return httpReq, nil
}

// Predict runs a non-streaming prediction and returns the raw response
// body. Non-success statuses return an error carrying the status code
// and best-effort body text.
func (c *Client) Predict(ctx context.Context, chatflowID string, req PredictionRequest) ([]byte, error) {
	req.Streaming = false
	httpReq, err := c.newRequest(ctx, chatflowID, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("flowise request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading flowise response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("flowise status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// PredictStream runs a streaming prediction. Events arrive on the
// returned channel in wire order; the channel closes when the engine
// finishes or ctx is cancelled. At most one error is sent on errs.
func (c *Client) PredictStream(ctx context.Context, chatflowID string, req PredictionRequest) (<-chan Event, <-chan error) {
	events := make(chan Event, 16)
	errs := make(chan error, 1)

	req.Streaming = true
	httpReq, err := c.newRequest(ctx, chatflowID, req)
	if err != nil {
		errs <- err
		close(events)
		close(errs)
		return events, errs
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	go func() {
		defer close(events)
		defer close(errs)

		resp, err := c.client.Do(httpReq)
		if err != nil {
			errs <- fmt.Errorf("flowise request: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			errs <- fmt.Errorf("flowise status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			return
		}

		current := ""
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			line = strings.TrimRight(line, "\r\n")

			switch {
			case strings.HasPrefix(line, "event:"):
				current = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				select {
				case events <- Event{Event: current, Data: data}:
				case <-ctx.Done():
					return
				}
			case line == "":
				current = ""
			}

			if err != nil {
				if err != io.EOF {
					errs <- fmt.Errorf("reading flowise stream: %w", err)
				}
				return
			}
		}
	}()

	return events, errs
}
