// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
)

// StaticTokenSource is a test double for the gateway token source. It
// hands out Token on every call and counts invalidations. RotateTo, when
// set, becomes the token after the first Invalidate.
type StaticTokenSource struct {
	mu            sync.Mutex
	Token         string
	RotateTo      string
	BearerErr     error
	InvalidateErr error
	Invalidations int
}

func (s *StaticTokenSource) Bearer(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.BearerErr != nil {
		return "", s.BearerErr
	}
	return s.Token, nil
}

func (s *StaticTokenSource) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Invalidations++
	if s.InvalidateErr != nil {
		return s.InvalidateErr
	}
	if s.RotateTo != "" {
		s.Token = s.RotateTo
	}
	return nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

