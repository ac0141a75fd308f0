package llm

import (
	"io"
	"strings"
	"testing"
)

// chunkReader returns one predetermined chunk per Read call, letting
// tests control exactly where the network splits the byte stream.
type chunkReader struct {
	chunks [][]byte
	closed bool
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n < len(c.chunks[0]) {
		c.chunks[0] = c.chunks[0][n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func (c *chunkReader) Close() error {
	c.closed = true
	return nil
}

func sseReader(s string) *chunkReader {
	return &chunkReader{chunks: [][]byte{[]byte(s)}}
}

func collect(t *testing.T, s *Stream) []string {
	t.Helper()
	var frags []string
	for {
		frag, err := s.Recv()
		if err == io.EOF {
			return frags
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		frags = append(frags, frag)
	}
}

func TestStream_OpenAIDelta(t *testing.T) {
	s := NewStream(sseReader(
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n",
	), nil)

	frags := collect(t, s)
	if len(frags) != 1 || frags[0] != "Hi" {
		t.Errorf("expected exactly [\"Hi\"], got %q", frags)
	}
}

func TestStream_AnthropicContentBlockDelta(t *testing.T) {
	s := NewStream(sseReader(
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Yo\"}}\n\n",
	), nil)

	frags := collect(t, s)
	if len(frags) != 1 || frags[0] != "Yo" {
		t.Errorf("expected exactly [\"Yo\"], got %q", frags)
	}
}

func TestStream_CompleteMessageInsideStream(t *testing.T) {
	s := NewStream(sseReader(
		"data: {\"choices\":[{\"message\":{\"content\":\"whole reply\"}}]}\n\ndata: [DONE]\n\n",
	), nil)

	frags := collect(t, s)
	if len(frags) != 1 || frags[0] != "whole reply" {
		t.Errorf("expected [\"whole reply\"], got %q", frags)
	}
}

func TestStream_MalformedLineSkipped(t *testing.T) {
	s := NewStream(sseReader(
		"data: not-json\n\n"+
			"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n"+
			"data: [DONE]\n\n",
	), nil)

	frags := collect(t, s)
	if len(frags) != 1 || frags[0] != "ok" {
		t.Errorf("malformed line should not abort the stream, got %q", frags)
	}
}

func TestStream_SkipsHeartbeatAndEventLines(t *testing.T) {
	s := NewStream(sseReader(
		"event: ping\n\n"+
			"event: content_block_delta\n"+
			"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"a\"}}\n\n"+
			": comment line without prefix\n"+
			"data: [DONE]\n\n",
	), nil)

	frags := collect(t, s)
	if len(frags) != 1 || frags[0] != "a" {
		t.Errorf("expected [\"a\"], got %q", frags)
	}
}

func TestStream_MultiByteSplitAcrossReads(t *testing.T) {
	// "日" is e6 97 a5; split it between two reads.
	line := "data: {\"choices\":[{\"delta\":{\"content\":\"日\"}}]}\n\n"
	raw := []byte(line)
	cut := strings.Index(line, "\xe6") + 1

	s := NewStream(&chunkReader{chunks: [][]byte{raw[:cut], raw[cut:], []byte("data: [DONE]\n\n")}}, nil)

	frags := collect(t, s)
	if len(frags) != 1 || frags[0] != "日" {
		t.Errorf("split codepoint should decode intact, got %q", frags)
	}
}

func TestStream_OrderingMatchesArrival(t *testing.T) {
	s := NewStream(sseReader(
		"data: {\"choices\":[{\"delta\":{\"content\":\"one \"}}]}\n\n"+
			"data: {\"choices\":[{\"delta\":{\"content\":\"two \"}}]}\n\n"+
			"data: {\"choices\":[{\"delta\":{\"content\":\"three\"}}]}\n\n"+
			"data: [DONE]\n\n",
	), nil)

	frags := collect(t, s)
	if strings.Join(frags, "") != "one two three" {
		t.Errorf("fragments out of order: %q", frags)
	}
}

func TestStream_EOFWithoutSentinel(t *testing.T) {
	s := NewStream(sseReader(
		"data: {\"choices\":[{\"delta\":{\"content\":\"tail\"}}]}\n\n",
	), nil)

	frags := collect(t, s)
	if len(frags) != 1 || frags[0] != "tail" {
		t.Errorf("expected [\"tail\"], got %q", frags)
	}
}

func TestStream_FragmentOnFinalUnterminatedLine(t *testing.T) {
	s := NewStream(sseReader(
		"data: {\"choices\":[{\"delta\":{\"content\":\"last\"}}]}",
	), nil)

	frag, err := s.Recv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frag != "last" {
		t.Errorf("expected \"last\", got %q", frag)
	}
	if _, err := s.Recv(); err != io.EOF {
		t.Errorf("expected io.EOF after final fragment, got %v", err)
	}
}

func TestStream_SentinelReleasesReader(t *testing.T) {
	r := sseReader("data: [DONE]\n\n")
	s := NewStream(r, nil)

	if _, err := s.Recv(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if !r.closed {
		t.Error("underlying reader should be closed on sentinel")
	}
}

func TestStream_CloseOnAbandonment(t *testing.T) {
	r := sseReader(
		"data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"never read\"}}]}\n\n",
	)
	s := NewStream(r, nil)

	if _, err := s.Recv(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !r.closed {
		t.Error("underlying reader should be closed on abandonment")
	}
	if _, err := s.Recv(); err != io.EOF {
		t.Errorf("Recv after Close should return io.EOF, got %v", err)
	}

	// Idempotent.
	if err := s.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}
