package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"threat-radar/config"

	"go.uber.org/zap"
)

func newTestClient(baseURL string) *Client {
	cfg := &config.Config{
		OpenRouterAPIKey:  "test-key",
		OpenRouterBaseURL: baseURL,
		DefaultModel:      "test/model",
	}
	return NewClient(cfg, zap.NewNop())
}

func completionBody(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestCompleteSuccess(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq completionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(completionBody("hello world")))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	got, err := client.Complete(context.Background(), "prompt text", "system text", 100, 0.2)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "hello world" {
		t.Errorf("Complete = %q, want %q", got, "hello world")
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer test-key")
	}
	if gotPath != "/chat/completions" {
		t.Errorf("request path = %q, want %q", gotPath, "/chat/completions")
	}
	if gotReq.Model != "test/model" {
		t.Errorf("request model = %q, want %q", gotReq.Model, "test/model")
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("unexpected messages: %+v", gotReq.Messages)
	}
}

func TestCompleteTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), "prompt", "", 100, 0.2)
	if err == nil {
		t.Fatal("expected error on non-200 response")
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error type = %T, want *TransportError", err)
	}
	if transportErr.Status != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want %d", transportErr.Status, http.StatusServiceUnavailable)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Complete(context.Background(), "prompt", "", 100, 0.2)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
}

func TestCompleteJSONStripsFences(t *testing.T) {
	content := "```json\n{\"answer\": 42}\n```"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody(content)))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	var out struct {
		Answer int `json:"answer"`
	}
	if err := client.CompleteJSON(context.Background(), "prompt", "system", 100, 0.2, &out); err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if out.Answer != 42 {
		t.Errorf("Answer = %d, want 42", out.Answer)
	}
}

func TestCompleteJSONDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("I cannot answer that in JSON form.")))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	var out map[string]any
	err := client.CompleteJSON(context.Background(), "prompt", "system", 100, 0.2, &out)
	if err == nil {
		t.Fatal("expected error for non-JSON content")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error type = %T, want *DecodeError", err)
	}
	if decodeErr.Raw != "I cannot answer that in JSON form." {
		t.Errorf("Raw = %q, want original content", decodeErr.Raw)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"{\"a\": 1}", "{\"a\": 1}"},
		{"```json\n{\"a\": 1}\n```", "{\"a\": 1}"},
		{"```\n{\"a\": 1}\n```", "{\"a\": 1}"},
		{"  {\"a\": 1}  ", "{\"a\": 1}"},
	}
	for _, tt := range tests {
		if got := stripFences(tt.input); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
