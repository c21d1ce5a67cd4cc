package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseProviderFlag(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantProv string
		wantMod  string
		wantErr  bool
	}{
		{"empty defaults to openai", "", "openai", "gpt-4o-mini", false},
		{"openai mini", "openai/gpt-4o-mini", "openai", "gpt-4o-mini", false},
		{"openrouter model", "openrouter/deepseek/deepseek-v3.2", "openrouter", "deepseek/deepseek-v3.2", false},
		{"unknown provider", "anthropic/claude-4", "", "", true},
		{"no slash", "gpt-4o-mini", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseProviderFlag(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Provider != tt.wantProv {
				t.Errorf("provider: got %q, want %q", cfg.Provider, tt.wantProv)
			}
			if cfg.Model != tt.wantMod {
				t.Errorf("model: got %q, want %q", cfg.Model, tt.wantMod)
			}
		})
	}
}

func TestNewProviderErrors(t *testing.T) {
	_, err := NewProvider(Config{Provider: "unknown"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}

	t.Setenv("OPENAI_API_KEY", "")
	_, err = NewProvider(Config{Provider: "openai"})
	if err == nil {
		t.Fatal("expected error for openai without API key")
	}

	t.Setenv("OPENROUTER_API_KEY", "")
	_, err = NewProvider(Config{Provider: "openrouter"})
	if err == nil {
		t.Fatal("expected error for openrouter without API key")
	}
}

func TestChatProviderComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("bad auth header: %q", r.Header.Get("Authorization"))
		}

		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-4o-mini" {
			t.Errorf("unexpected model: %q", req.Model)
		}
		if req.Stream {
			t.Error("Complete should not set stream")
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("json format not requested")
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"work\":[]}"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	p := &chatProvider{name: "openai", apiKey: "test-key", model: "gpt-4o-mini", baseURL: server.URL}
	resp, err := p.Complete(context.Background(), "extract this", CompletionOpts{
		MaxTokens: 200,
		Format:    "json",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != `{"work":[]}` {
		t.Errorf("unexpected result: %q", resp.Text())
	}
	if _, ok := resp.(PlainResponse); !ok {
		t.Errorf("expected PlainResponse, got %T", resp)
	}
}

func TestChatProviderReasonedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"the answer","reasoning":"first I considered"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	p := &chatProvider{name: "openrouter", apiKey: "test", model: "test", baseURL: server.URL}
	resp, err := p.Complete(context.Background(), "q", CompletionOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reasoned, ok := resp.(ReasonedResponse)
	if !ok {
		t.Fatalf("expected ReasonedResponse, got %T", resp)
	}
	if reasoned.Content != "the answer" {
		t.Errorf("content: got %q", reasoned.Content)
	}
	if reasoned.Reasoning != "first I considered" {
		t.Errorf("reasoning: got %q", reasoned.Reasoning)
	}
	if resp.Text() != "the answer" {
		t.Errorf("Text() must exclude reasoning, got %q", resp.Text())
	}
}

func TestChatProviderName(t *testing.T) {
	p := &chatProvider{name: "openrouter", model: "deepseek/deepseek-v3.2"}
	if p.Name() != "openrouter/deepseek/deepseek-v3.2" {
		t.Errorf("unexpected name: %q", p.Name())
	}
}

func TestChatProviderSystemPrompt(t *testing.T) {
	var gotMessages int
	var gotSystemRole bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotMessages = len(req.Messages)
		for _, m := range req.Messages {
			if m.Role == "system" {
				gotSystemRole = true
			}
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	p := &chatProvider{name: "openai", apiKey: "test", model: "test", baseURL: server.URL}
	p.Complete(context.Background(), "hello", CompletionOpts{System: "be helpful"})
	if gotMessages != 2 {
		t.Errorf("expected 2 messages (system+user), got %d", gotMessages)
	}
	if !gotSystemRole {
		t.Error("system message not sent")
	}
}

func TestChatProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer server.Close()

	p := &chatProvider{name: "openai", apiKey: "test", model: "test", baseURL: server.URL}
	_, err := p.Complete(context.Background(), "test", CompletionOpts{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestStreamAccumulatesDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("Stream should set stream=true")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := &chatProvider{name: "openai", apiKey: "test", model: "test", baseURL: server.URL}
	resp, err := p.Stream(context.Background(), "greet", CompletionOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Hello world!" {
		t.Errorf("got %q, want %q", resp.Text(), "Hello world!")
	}
}

func TestStreamSkipsMalformedDeltas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		fmt.Fprint(w, "data: {not json at all\n\n")
		fmt.Fprint(w, ": sse comment line\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := &chatProvider{name: "openai", apiKey: "test", model: "test", baseURL: server.URL}
	resp, err := p.Stream(context.Background(), "x", CompletionOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "ab" {
		t.Errorf("got %q, want %q", resp.Text(), "ab")
	}
}

func TestStreamSeparatesReasoning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"reasoning\":\"thinking \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"reasoning\":\"hard\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"answer\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := &chatProvider{name: "openrouter", apiKey: "test", model: "test", baseURL: server.URL}
	resp, err := p.Stream(context.Background(), "x", CompletionOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reasoned, ok := resp.(ReasonedResponse)
	if !ok {
		t.Fatalf("expected ReasonedResponse, got %T", resp)
	}
	if reasoned.Reasoning != "thinking hard" {
		t.Errorf("reasoning: got %q", reasoned.Reasoning)
	}
	if reasoned.Content != "answer" {
		t.Errorf("content: got %q", reasoned.Content)
	}
}

func TestContextCancellation(t *testing.T) {
	serverDone := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-serverDone:
		}
	}))
	defer func() {
		close(serverDone)
		server.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := &chatProvider{name: "openai", apiKey: "test", model: "test", baseURL: server.URL}
	_, err := p.Complete(ctx, "test", CompletionOpts{})
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}
