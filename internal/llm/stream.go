package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"go.uber.org/zap"
)

const doneSentinel = "[DONE]"

// Stream normalizes a raw server-sent-events byte stream into an
// ordered sequence of assistant text fragments, whichever provider
// emitted it. It is a single-consumer pull iterator in the style of the
// go-openai stream API: call Recv until io.EOF, then (or earlier, on
// abandonment) Close. Lines are assembled in an internal buffer, so
// multi-byte sequences split across network reads decode intact.
type Stream struct {
	rc     io.ReadCloser
	reader *bufio.Reader
	logger *zap.Logger
	closed bool
}

// NewStream takes sole ownership of rc. A nil logger discards the
// per-line parse diagnostics.
func NewStream(rc io.ReadCloser, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		rc:     rc,
		reader: bufio.NewReader(rc),
		logger: logger,
	}
}

// Recv returns the next text fragment. It returns io.EOF after the
// [DONE] sentinel or when the underlying stream closes; any other error
// is a transport failure. The underlying reader is released before any
// error return.
func (s *Stream) Recv() (string, error) {
	if s.closed {
		return "", io.EOF
	}

	for {
		line, err := s.reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		payload, ok := dataPayload(line)
		if ok && payload == doneSentinel {
			s.Close()
			return "", io.EOF
		}
		if ok {
			if frag, found := s.extract(payload); found {
				if err == io.EOF {
					// Fragment on the final unterminated line: deliver
					// it now, report EOF on the next call.
					s.Close()
				}
				return frag, nil
			}
		}

		if err != nil {
			s.Close()
			if err == io.EOF {
				return "", io.EOF
			}
			return "", err
		}
	}
}

// Close releases the underlying reader. Safe to call more than once and
// required when abandoning the stream before exhaustion so the
// transport can reclaim the connection.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rc.Close()
}

// dataPayload strips the data: prefix from an SSE line. Blank lines,
// event: lines (including event: ping heartbeats) and anything without
// the prefix are not payload.
func dataPayload(line string) (string, bool) {
	if line == "" || strings.HasPrefix(line, "event:") {
		return "", false
	}
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" {
		return "", false
	}
	return payload, true
}

// streamEvent covers every payload shape the providers emit: Anthropic
// content-block deltas, OpenAI incremental deltas, and complete
// messages some providers unexpectedly place inside a stream.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// extract parses one data payload and pulls at most one fragment from
// it. Malformed JSON is a recoverable anomaly: logged, skipped, never
// fatal to the stream.
func (s *Stream) extract(payload string) (string, bool) {
	var ev streamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		s.logger.Warn("skipping malformed stream line",
			zap.String("payload", payload),
			zap.Error(err),
		)
		return "", false
	}

	if ev.Type == "content_block_delta" && ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
		return ev.Delta.Text, true
	}
	if len(ev.Choices) > 0 {
		if c := ev.Choices[0].Delta.Content; c != "" {
			return c, true
		}
		if c := ev.Choices[0].Message.Content; c != "" {
			return c, true
		}
	}
	return "", false
}
