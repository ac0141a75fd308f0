package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/parleychat/parley/internal/api/response"
	"github.com/parleychat/parley/internal/core"
	"github.com/parleychat/parley/internal/llm"
	"go.uber.org/zap"
)

// chatRequest is the body the UI posts to /api/chat.
type chatRequest struct {
	Provider       string         `json:"provider"`
	ConversationID string         `json:"conversation_id"`
	Model          string         `json:"model"`
	Temperature    float64        `json:"temperature"`
	Stream         bool           `json:"stream"`
	Messages       []core.Message `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrBadRequest, err))
		return
	}
	if len(body.Messages) == 0 {
		response.Error(w, http.StatusBadRequest,
			core.Errorf(core.ErrBadRequest, "messages must not be empty"))
		return
	}

	provider := core.ParseProvider(body.Provider, s.cfg.DefaultProvider())
	req := core.ChatRequest{
		Messages:    body.Messages,
		Model:       body.Model,
		Temperature: body.Temperature,
		Stream:      body.Stream,
	}

	// Persist the incoming user turn before dispatching so it survives
	// even if the provider call fails.
	if body.ConversationID != "" {
		last := body.Messages[len(body.Messages)-1]
		if last.Role == core.RoleUser {
			if _, err := s.store.AppendMessage(r.Context(), body.ConversationID, last); err != nil {
				response.Error(w, response.StatusFor(err), err)
				return
			}
		}
	}

	start := time.Now()
	result, err := s.dispatcher.Dispatch(r.Context(), provider, req)
	if err != nil {
		s.recordChat(provider, "error", start)
		response.Error(w, response.StatusFor(err), err)
		return
	}

	if result.Stream != nil {
		s.relayStream(w, r, provider, body.ConversationID, result.Stream, start)
		return
	}

	s.recordChat(provider, "success", start)
	s.persistAssistant(r, body.ConversationID, result.Response.Text())
	response.JSON(w, http.StatusOK, result.Response)
}

// relayStream forwards normalized fragments to the browser as SSE
// lines shaped like OpenAI deltas, closing with the uniform sentinel.
func (s *Server) relayStream(w http.ResponseWriter, r *http.Request, provider core.Provider, conversationID string, raw io.ReadCloser, start time.Time) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		raw.Close()
		response.Error(w, http.StatusInternalServerError,
			core.Errorf(core.ErrBadRequest, "streaming unsupported by connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := llm.NewStream(raw, s.logger)
	defer stream.Close()

	var full strings.Builder
	fragments := 0
	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Warn("stream aborted", zap.Error(err))
			break
		}

		full.WriteString(frag)
		fragments++

		data, err := json.Marshal(map[string]string{"content": frag})
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			// Browser went away; the deferred Close releases the
			// provider stream so the transport can reclaim the socket.
			s.recordChat(provider, "abandoned", start)
			s.recordFragments(provider, fragments)
			return
		}
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()

	s.recordChat(provider, "success", start)
	s.recordFragments(provider, fragments)
	s.persistAssistant(r, conversationID, full.String())
}

func (s *Server) persistAssistant(r *http.Request, conversationID, content string) {
	if conversationID == "" || content == "" {
		return
	}
	msg := core.Message{Role: core.RoleAssistant, Content: content}
	if _, err := s.store.AppendMessage(r.Context(), conversationID, msg); err != nil {
		s.logger.Error("persisting assistant message",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

func (s *Server) recordChat(provider core.Provider, outcome string, start time.Time) {
	if s.registry != nil {
		s.registry.RecordChatRequest(string(provider), outcome, time.Since(start).Seconds())
	}
}

func (s *Server) recordFragments(provider core.Provider, n int) {
	if s.registry != nil {
		s.registry.RecordStreamFragments(string(provider), n)
	}
}
