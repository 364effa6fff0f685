package hf

// StaticStream is an in-memory TokenStream backed by a slice of events.
// It stands in for a live SSE stream in tests.
type StaticStream struct {
	Events []StreamOutput
	// FailAfter injects an error once that many events have been consumed.
	FailAfter int
	FailErr   error

	pos    int
	err    error
	closed bool
}

func (s *StaticStream) Next() bool {
	if s.err != nil || s.pos >= len(s.Events) {
		return false
	}
	if s.FailErr != nil && s.pos >= s.FailAfter {
		s.err = s.FailErr
		return false
	}
	s.pos++
	return true
}

func (s *StaticStream) Current() StreamOutput { return s.Events[s.pos-1] }

func (s *StaticStream) Err() error { return s.err }

func (s *StaticStream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *StaticStream) Closed() bool { return s.closed }
