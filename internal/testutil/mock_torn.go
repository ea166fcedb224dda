// Package testutil provides testing utilities for the Torn target tracker.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock Torn endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockTorn is a configurable mock Torn API server for testing.
type MockTorn struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	LastKey      string
	LastQuery    map[string]string
}

// NewMockTorn creates a new mock Torn server.
func NewMockTorn() *MockTorn {
	mock := &MockTorn{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastKey = r.URL.Query().Get("key")
		mock.LastQuery = map[string]string{}
		for k := range r.URL.Query() {
			mock.LastQuery[k] = r.URL.Query().Get(k)
		}
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockTorn) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockTorn) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockTorn) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastKey = ""
	m.LastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockTorn) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockTorn) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetUserResponse configures the response for a user endpoint.
func (m *MockTorn) SetUserResponse(userID int64, resp MockResponse) {
	m.SetResponse(fmt.Sprintf("/user/%d", userID), resp)
}

// SetUserResponses configures a sequence of responses for a user endpoint;
// the last response repeats once the sequence is exhausted.
func (m *MockTorn) SetUserResponses(userID int64, responses ...MockResponse) {
	var mu sync.Mutex
	calls := 0
	m.SetHandler(fmt.Sprintf("/user/%d", userID), func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		idx := calls
		if idx >= len(responses) {
			idx = len(responses) - 1
		}
		calls++
		mu.Unlock()

		resp := responses[idx]
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockTorn) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// defaultHandler answers any unconfigured path with a minimal healthy user.
func (m *MockTorn) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"name":"Tester","level":1,"status":{"state":"Okay","description":"Okay"}}`))
}

// NewUserResponse creates a 200 OK response with a full user payload.
func NewUserResponse(name string, level int, state, description string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: fmt.Sprintf(`{"name":%q,"level":%d,"status":{"state":%q,"description":%q},"last_action":{"status":"Online","relative":"2 minutes ago"}}`,
			name, level, state, description),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewTornErrorResponse creates a 200 response carrying an embedded Torn
// application error object.
func NewTornErrorResponse(code int, message string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"error":{"code":%d,"error":%q}}`, code, message),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 response, optionally with a
// Retry-After header in seconds (0 omits the header).
func NewRateLimitResponse(retryAfterSeconds int) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":"Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
	if retryAfterSeconds > 0 {
		resp.Headers["Retry-After"] = fmt.Sprintf("%d", retryAfterSeconds)
	}
	return resp
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":"Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
