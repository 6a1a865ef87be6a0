package panel

import "sync"

// Static holds a snippet set from code, e.g. the host switching animation type.
type Static struct {
	mu      sync.Mutex
	code    string
	changed bool
}

// NewStatic starts with code already consumed.
func NewStatic(code string) *Static {
	return &Static{code: code}
}

// SetCode replaces the snippet. Setting the current snippet is not a change.
func (s *Static) SetCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == s.code {
		return
	}
	s.code = code
	s.changed = true
}

func (s *Static) CodeSnippetChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.changed
	s.changed = false
	return c
}

func (s *Static) CodeSnippet() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}
