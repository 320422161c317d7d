package rewrite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/promptboost/promptboost/internal/errors"
)

func testOptions(endpoint string) Options {
	return Options{
		APIKey:   "sk-test",
		Endpoint: endpoint,
		Model:    "test-model",
		Timeout:  5 * time.Second,
	}
}

func TestRewrite_HappyPath(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"First, ask me clarifying questions about dogs..."}}]}`))
	}))
	defer srv.Close()

	c := NewClient()
	got, err := c.Rewrite(context.Background(), "Tell me about dogs.", "Focus on deep thinking", testOptions(srv.URL))
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	if got != "First, ask me clarifying questions about dogs..." {
		t.Errorf("Rewrite = %q, want service text", got)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want bearer credential", gotAuth)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("Model = %q, want test-model", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 {
		t.Fatalf("Messages = %d, want system + user", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[0].Content != "Focus on deep thinking" {
		t.Errorf("system turn = %+v, want instruction", gotReq.Messages[0])
	}
	if gotReq.Messages[1].Role != "user" || gotReq.Messages[1].Content != "Tell me about dogs." {
		t.Errorf("user turn = %+v, want original draft", gotReq.Messages[1])
	}
}

func TestRewrite_MissingCredential(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.APIKey = "  "

	_, err := NewClient().Rewrite(context.Background(), "draft", "instruction", opts)
	if !errors.Is(err, errors.ErrMissingCredential) {
		t.Errorf("Rewrite = %v, want MISSING_CREDENTIAL", err)
	}
	if called {
		t.Error("no network call may happen without a credential")
	}
}

func TestRewrite_MissingEndpoint(t *testing.T) {
	opts := testOptions("")

	_, err := NewClient().Rewrite(context.Background(), "draft", "instruction", opts)
	if !errors.Is(err, errors.ErrMissingEndpoint) {
		t.Errorf("Rewrite = %v, want MISSING_ENDPOINT", err)
	}
}

func TestRewrite_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient().Rewrite(context.Background(), "draft", "instruction", testOptions(srv.URL))
	if !errors.Is(err, errors.ErrTransport) {
		t.Fatalf("Rewrite = %v, want TRANSPORT", err)
	}
	bErr := err.(*errors.BoostError)
	if bErr.Details["upstream_status"] != http.StatusTooManyRequests {
		t.Errorf("upstream_status = %v, want 429", bErr.Details["upstream_status"])
	}
}

func TestRewrite_NetworkError(t *testing.T) {
	// Point at a closed server
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient().Rewrite(context.Background(), "draft", "instruction", testOptions(url))
	if !errors.Is(err, errors.ErrTransport) {
		t.Errorf("Rewrite = %v, want TRANSPORT", err)
	}
}

func TestRewrite_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	_, err := NewClient().Rewrite(context.Background(), "draft", "instruction", testOptions(srv.URL))
	if !errors.Is(err, errors.ErrTransport) {
		t.Errorf("Rewrite = %v, want TRANSPORT", err)
	}
}

func TestRewrite_EmptyResult(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no choices", `{"choices":[]}`},
		{"blank content", `{"choices":[{"message":{"content":"   "}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient().Rewrite(context.Background(), "draft", "instruction", testOptions(srv.URL))
			if !errors.Is(err, errors.ErrEmptyResult) {
				t.Errorf("Rewrite = %v, want EMPTY_RESULT", err)
			}
		})
	}
}

func TestRewrite_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	opts := testOptions(srv.URL)
	opts.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := NewClient().Rewrite(context.Background(), "draft", "instruction", opts)
	if !errors.Is(err, errors.ErrTransport) {
		t.Errorf("Rewrite = %v, want TRANSPORT on timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Rewrite took %v, want prompt timeout", elapsed)
	}
}
