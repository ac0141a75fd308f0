package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/core"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Store.Driver = "memory"
	return cfg
}

func userRequest(content string) core.ChatRequest {
	return core.ChatRequest{
		Messages: []core.Message{{Role: core.RoleUser, Content: content}},
		Model:    "test-model",
	}
}

func TestDispatch_MissingCredential(t *testing.T) {
	cfg := testConfig()
	d := NewDispatcher(cfg, nil)

	for _, p := range core.Providers() {
		if p == core.ProviderFlowise {
			continue // the flow-engine class tolerates an absent key
		}
		t.Run(string(p), func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), p, userRequest("hi"))
			if !errors.Is(err, core.ErrCredentialMissing) {
				t.Errorf("expected CREDENTIAL_MISSING, got %v", err)
			}
		})
	}
}

func TestDispatch_UnknownProviderFallsBack(t *testing.T) {
	var hit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Default = string(core.ProviderGroq)
	cfg.Providers[string(core.ProviderGroq)] = config.ProviderConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "llama",
	}

	d := NewDispatcher(cfg, nil)
	res, err := d.Dispatch(context.Background(), core.Provider("doesnotexist"), userRequest("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit {
		t.Error("fallback provider endpoint was never called")
	}
	if res.Response.Text() != "hello" {
		t.Errorf("expected \"hello\", got %q", res.Response.Text())
	}
}

func TestDispatch_OpenAICompatible_NonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"chatcmpl-42","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"normalized"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Providers[string(core.ProviderOpenAI)] = config.ProviderConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o",
	}

	d := NewDispatcher(cfg, nil)
	res, err := d.Dispatch(context.Background(), core.ProviderOpenAI, userRequest("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stream != nil {
		t.Error("non-streaming dispatch should not return a stream")
	}
	if res.Response.ID != "chatcmpl-42" {
		t.Errorf("expected id chatcmpl-42, got %q", res.Response.ID)
	}
	if len(res.Response.Choices) != 1 {
		t.Fatalf("expected one choice, got %d", len(res.Response.Choices))
	}
	c := res.Response.Choices[0]
	if c.Message.Role != core.RoleAssistant || c.Message.Content != "normalized" {
		t.Errorf("unexpected choice message: %+v", c.Message)
	}
	if c.FinishReason != "stop" {
		t.Errorf("expected finish_reason stop, got %q", c.FinishReason)
	}
}

func TestDispatch_OpenAICompatible_Streaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer groq-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"str\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"eam\"}}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Providers[string(core.ProviderGroq)] = config.ProviderConfig{
		BaseURL: srv.URL,
		APIKey:  "groq-key",
	}

	d := NewDispatcher(cfg, nil)
	req := userRequest("hi")
	req.Stream = true

	res, err := d.Dispatch(context.Background(), core.ProviderGroq, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stream == nil {
		t.Fatal("streaming dispatch should return a stream")
	}

	s := NewStream(res.Stream, nil)
	defer s.Close()
	frags := collect(t, s)
	if strings.Join(frags, "") != "stream" {
		t.Errorf("expected fragments to join to \"stream\", got %q", frags)
	}
}

func TestDispatch_TransportFailureCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"rate limited","type":"requests"}}`)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Providers[string(core.ProviderOpenRouter)] = config.ProviderConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}

	d := NewDispatcher(cfg, nil)
	_, err := d.Dispatch(context.Background(), core.ProviderOpenRouter, userRequest("hi"))
	if !errors.Is(err, core.ErrTransport) {
		t.Fatalf("expected TRANSPORT_FAILURE, got %v", err)
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestDispatch_StreamingTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream unavailable")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Providers[string(core.ProviderNeura)] = config.ProviderConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}

	d := NewDispatcher(cfg, nil)
	req := userRequest("hi")
	req.Stream = true

	_, err := d.Dispatch(context.Background(), core.ProviderNeura, req)
	if !errors.Is(err, core.ErrTransport) {
		t.Fatalf("expected TRANSPORT_FAILURE, got %v", err)
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "upstream unavailable") {
		t.Errorf("error should carry status and body: %v", err)
	}
}
