package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChat(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "review your stops"}},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient("key", WithBaseURL(srv.URL), WithModel("test-model"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	out, err := c.Chat(context.Background(), "you are a trading coach", "how did I do today?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "review your stops" {
		t.Errorf("content = %q", out)
	}
	if gotAuth != "Bearer key" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
}

func TestChatErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient("key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Chat(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error on 502")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer empty.Close()

	c2, _ := NewClient("key", WithBaseURL(empty.URL))
	if _, err := c2.Chat(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error on empty choices")
	}

	if _, err := NewClient(""); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
