package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/parleychat/parley/internal/api/response"
	"github.com/parleychat/parley/internal/core"
	"go.uber.org/zap"
)

// Headers forwarded verbatim between the browser and the Anthropic API.
var claudeProxyHeaders = []string{
	"Content-Type",
	"X-Api-Key",
	"Anthropic-Version",
	"Anthropic-Beta",
	"Accept",
}

// handleClaudeProxy forwards /api/claude/v1/messages to the Anthropic
// Messages API. The proxy exists so the browser never talks to the
// vendor origin directly; when no x-api-key header arrives, the
// server's configured credential is attached instead.
func (s *Server) handleClaudeProxy(w http.ResponseWriter, r *http.Request) {
	upstream := strings.TrimRight(s.cfg.Claude.UpstreamURL, "/") + "/v1/messages"

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, upstream, r.Body)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, core.WrapError(core.ErrTransport, err))
		return
	}
	for _, h := range claudeProxyHeaders {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	if req.Header.Get("x-api-key") == "" && s.cfg.Claude.APIKey != "" {
		req.Header.Set("x-api-key", s.cfg.Claude.APIKey)
	}

	resp, err := s.dispatcher.HTTPClient().Do(req)
	if err != nil {
		s.logger.Error("claude proxy upstream unreachable",
			zap.String("upstream", upstream),
			zap.Error(err),
		)
		response.Error(w, http.StatusBadGateway, core.WrapError(core.ErrTransport, err))
		return
	}
	defer resp.Body.Close()

	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	// Flush per read so streamed events reach the browser as they
	// arrive rather than after the upstream closes.
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			s.logger.Warn("claude proxy stream interrupted", zap.Error(err))
			return
		}
	}
}
