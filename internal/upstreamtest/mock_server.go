// Package upstreamtest provides a scriptable mock of the upstream
// chat completion API for integration tests.
package upstreamtest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Response is one scripted upstream response.
type Response struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockServer simulates the upstream API. Responses are consumed in
// script order; when the script runs out the last response repeats.
// Every request's bearer token is captured for assertions about which
// credential served it.
type MockServer struct {
	server *httptest.Server

	mu      sync.Mutex
	script  []Response
	served  int
	bearers []string
}

// NewMockServer starts the mock with the given script.
func NewMockServer(script ...Response) *MockServer {
	ms := &MockServer{script: script}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handler))
	return ms
}

// URL returns the mock's base URL.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Close shuts the mock down.
func (ms *MockServer) Close() {
	ms.server.Close()
}

// RequestCount returns how many requests the mock served.
func (ms *MockServer) RequestCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.served
}

// BearerTokens returns the Authorization bearer values seen, in order.
func (ms *MockServer) BearerTokens() []string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]string(nil), ms.bearers...)
}

// Append adds responses to the end of the script.
func (ms *MockServer) Append(responses ...Response) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.script = append(ms.script, responses...)
}

func (ms *MockServer) handler(w http.ResponseWriter, r *http.Request) {
	ms.mu.Lock()
	i := ms.served
	ms.served++
	if i >= len(ms.script) {
		i = len(ms.script) - 1
	}
	ms.bearers = append(ms.bearers, r.Header.Get("Authorization"))
	var resp Response
	if i >= 0 {
		resp = ms.script[i]
	} else {
		resp = Response{StatusCode: http.StatusOK, Body: `{}`}
	}
	ms.mu.Unlock()

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write([]byte(resp.Body))
}
