package hf

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

// sseStream decodes server-sent "data:" lines into StreamOutput events.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	current StreamOutput
	err     error
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	// Events carry full token detail and can exceed the default line limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{body: body, scanner: scanner}
}

func (s *sseStream) Next() bool {
	if s.err != nil {
		return false
	}
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		data, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		data = bytes.TrimSpace(data)
		if len(data) == 0 || bytes.Equal(data, []byte("[DONE]")) {
			continue
		}
		var out StreamOutput
		if err := json.Unmarshal(data, &out); err != nil {
			s.err = err
			return false
		}
		s.current = out
		return true
	}
	s.err = s.scanner.Err()
	return false
}

func (s *sseStream) Current() StreamOutput { return s.current }

func (s *sseStream) Err() error { return s.err }

func (s *sseStream) Close() error { return s.body.Close() }
