package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Stream is a pull-based sequence of text fragments from one generation.
// It is finite and not restartable: the consumer calls Next until it
// returns false, reads each fragment with Current, then checks Err and
// calls Close. Closing early aborts the underlying network read.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	pending  []string // pre-baked fragments (fallback path, tests)
	current  string
	err      error
	done     bool
	fallback bool
}

// streamEvent is the JSON payload carried on a data line.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// newBodyStream wraps a live SSE response body.
func newBodyStream(body io.ReadCloser) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Stream{body: body, scanner: sc}
}

// NewTextStream returns a Stream that yields the given fragments and
// terminates. The client uses it for the fallback apology; tests use it to
// fake generations.
func NewTextStream(fragments ...string) *Stream {
	return &Stream{pending: append([]string(nil), fragments...)}
}

// NewFallbackStream returns a Stream like NewTextStream but marked as
// fallback output: text shown to the visitor in place of a real reply.
// Consumers must not treat it as assistant output worth keeping.
func NewFallbackStream(fragments ...string) *Stream {
	return &Stream{pending: append([]string(nil), fragments...), fallback: true}
}

// NewErrorStream returns a Stream that yields nothing and reports err.
func NewErrorStream(err error) *Stream {
	return &Stream{err: err, done: true}
}

// Next advances to the next fragment. It returns false when the stream is
// exhausted or failed; check Err to distinguish.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}

	if s.body == nil {
		if len(s.pending) == 0 {
			s.done = true
			return false
		}
		s.current = s.pending[0]
		s.pending = s.pending[1:]
		return true
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			s.done = true
			return false
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			// Malformed events are skipped, not fatal
			continue
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Text != "" {
				s.current = ev.Delta.Text
				return true
			}
		case "message_stop":
			s.done = true
			return false
		}
	}

	s.done = true
	s.err = s.scanner.Err()
	return false
}

// Current returns the fragment produced by the last successful Next.
func (s *Stream) Current() string {
	return s.current
}

// Fallback reports whether the stream carries substitute text rather than
// a real generation.
func (s *Stream) Fallback() bool {
	return s.fallback
}

// Err returns the first error encountered while reading the stream.
// A cleanly closed stream returns nil.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the underlying network connection. Safe to call on any
// exit path, including early cancellation.
func (s *Stream) Close() error {
	s.done = true
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}
