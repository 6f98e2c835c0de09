package backend

// StaticStream replays fixed snapshots, then ends with Fail. It serves
// cached responses and tests.
type StaticStream struct {
	Snapshots []string
	Fail      error
	pos       int
	closed    bool
}

func (s *StaticStream) Next() bool {
	if s.closed || s.pos >= len(s.Snapshots) {
		return false
	}
	s.pos++
	return true
}

func (s *StaticStream) Current() string {
	if s.pos == 0 {
		return ""
	}
	return s.Snapshots[s.pos-1]
}

func (s *StaticStream) Err() error { return s.Fail }

func (s *StaticStream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *StaticStream) Closed() bool { return s.closed }
