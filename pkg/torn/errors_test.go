package torn

import "testing"

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorClass
	}{
		{"too many requests", 429, ClassRateLimit},
		{"internal server error", 500, ClassServer},
		{"bad gateway", 502, ClassServer},
		{"service unavailable", 503, ClassServer},
		{"unauthorized", 401, ClassUnauthorized},
		{"forbidden", 403, ClassUnauthorized},
		{"not found", 404, ClassNotFound},
		{"bad request", 400, ClassClient},
		{"teapot", 418, ClassClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.want {
				t.Errorf("classifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus_Deterministic(t *testing.T) {
	// Classification must be stable across repeated calls.
	for i := 0; i < 100; i++ {
		if got := classifyStatus(429); got != ClassRateLimit {
			t.Fatalf("classifyStatus(429) = %v on call %d, want rate_limit", got, i)
		}
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ClassNetwork, true},
		{ClassServer, true},
		{ClassRateLimit, true},
		{ClassUnauthorized, false},
		{ClassNotFound, false},
		{ClassClient, false},
		{ClassApplication, false},
		{ClassCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := retryable(tt.class); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.class, got, tt.want)
			}
		})
	}
}

func TestAPIError_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  APIError
		want bool
	}{
		{
			name: "code 5 too many requests",
			err:  APIError{Code: 5, Message: "Too many requests"},
			want: true,
		},
		{
			name: "code 5 with unrelated message",
			err:  APIError{Code: 5, Message: "whatever"},
			want: true,
		},
		{
			name: "keyword rate limit",
			err:  APIError{Code: 99, Message: "You hit the RATE LIMIT"},
			want: true,
		},
		{
			name: "keyword try again later",
			err:  APIError{Code: 99, Message: "Please try again later"},
			want: true,
		},
		{
			name: "keyword too many requests",
			err:  APIError{Code: 99, Message: "too many requests from your IP"},
			want: true,
		},
		{
			name: "incorrect key is terminal",
			err:  APIError{Code: 2, Message: "Incorrect Key"},
			want: false,
		},
		{
			name: "unknown code plain message",
			err:  APIError{Code: 42, Message: "something odd"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIError_UserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  APIError
		want string
	}{
		{
			name: "known code uses table",
			err:  APIError{Code: 2, Message: "Incorrect Key"},
			want: "API key is invalid or incorrect",
		},
		{
			name: "known code 6",
			err:  APIError{Code: 6, Message: "Incorrect ID"},
			want: "Incorrect user ID",
		},
		{
			name: "unknown code falls back to raw message",
			err:  APIError{Code: 99, Message: "strange failure"},
			want: "strange failure",
		},
		{
			name: "unknown code without message",
			err:  APIError{Code: 99},
			want: "Torn error 99",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.UserMessage(); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: 5, Message: "Too many requests"}
	want := "torn error 5: Too many requests"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestApplicationClass(t *testing.T) {
	tests := []struct {
		code int
		want ErrorClass
	}{
		{2, ClassUnauthorized},
		{13, ClassUnauthorized},
		{18, ClassUnauthorized},
		{6, ClassNotFound},
		{0, ClassApplication},
		{9, ClassApplication},
	}

	for _, tt := range tests {
		if got := applicationClass(tt.code); got != tt.want {
			t.Errorf("applicationClass(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
