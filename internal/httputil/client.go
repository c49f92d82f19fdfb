// Package httputil holds small HTTP helpers shared by the upload client and
// the status API.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// MockResponse is a canned reply for MockDoer.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    http.Header
	Err        error
}

// MockDoer records requests and replays queued responses. Once the queue is
// empty every request gets 200 OK with an empty body.
type MockDoer struct {
	mu        sync.Mutex
	responses []MockResponse
	requests  []*http.Request
	bodies    [][]byte
}

// NewMockDoer returns a MockDoer replaying responses in order.
func NewMockDoer(responses ...MockResponse) *MockDoer {
	return &MockDoer{responses: responses}
}

// Queue appends a response.
func (m *MockDoer) Queue(r MockResponse) *MockDoer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, r)
	return m
}

func (m *MockDoer) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)

	resp := MockResponse{StatusCode: http.StatusOK}
	if len(m.responses) > 0 {
		resp = m.responses[0]
		m.responses = m.responses[1:]
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	headers := resp.Headers
	if headers == nil {
		headers = make(http.Header)
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Body:       io.NopCloser(bytes.NewBufferString(resp.Body)),
		Header:     headers,
		Request:    req,
	}, nil
}

// Requests returns the recorded requests with the bodies that were sent.
func (m *MockDoer) Requests() ([]*http.Request, [][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...), append([][]byte(nil), m.bodies...)
}
