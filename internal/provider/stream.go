package provider

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// FragmentSource yields incremental pieces of generated text. Recv returns
// io.EOF on normal termination (the [DONE] sentinel or end of data).
type FragmentSource interface {
	Recv() (string, error)
	Close() error
}

// The default bufio.Scanner limit is 64 KiB, too small for long completion
// chunks.
const maxSSELineSize = 1 * 1024 * 1024

// maxResponseBody caps how much of a provider response body is read.
const maxResponseBody int64 = 10 * 1024 * 1024

// doneSentinel terminates an OpenAI-compatible SSE stream.
const doneSentinel = "[DONE]"

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// stream decodes "data: <json>" framed completion chunks from a response
// body. Malformed fragments are skipped rather than aborting the stream.
type stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newStream(body io.ReadCloser) *stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &stream{body: body, scanner: sc}
}

// Recv returns the next non-empty text fragment.
func (s *stream) Recv() (string, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == doneSentinel {
			return "", io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Best-effort decoding: skip the fragment, keep the stream.
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stream: %w", err)
	}
	return "", io.EOF
}

func (s *stream) Close() error {
	return s.body.Close()
}
