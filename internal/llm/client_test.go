package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alphalens/alphalens/internal/adapters/config"
)

func chatServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func completionBody(content string) string {
	resp := map[string]interface{}{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "gpt-4o",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]interface{}{"role": "assistant", "content": content},
		}},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func testConfig(primaryURL, fallbackURL string) *config.AIConfig {
	cfg := &config.AIConfig{
		Primary:        config.AIProviderConfig{APIKey: "test-key", BaseURL: primaryURL},
		Analysis:       config.TaskModelConfig{Model: "gpt-4o", Temperature: 0.7},
		Reflection:     config.TaskModelConfig{Model: "gpt-4o-mini", Temperature: 0.3},
		Chat:           config.TaskModelConfig{Model: "gpt-4o-mini", Temperature: 0.5},
		FallbackModel:  "deepseek-chat",
		RequestTimeout: 5 * time.Second,
	}
	if fallbackURL != "" {
		cfg.Fallback = config.AIProviderConfig{APIKey: "fallback-key", BaseURL: fallbackURL}
	}
	return cfg
}

func TestComplete(t *testing.T) {
	ctx := context.Background()

	t.Run("primary success", func(t *testing.T) {
		var gotModel string
		srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Model string `json:"model"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			gotModel = req.Model
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(completionBody("looks bullish")))
		})

		client, err := New(testConfig(srv.URL, ""))
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		resp, err := client.Complete(ctx, &Request{Task: TaskAnalysis})
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if resp.Content != "looks bullish" {
			t.Errorf("content = %q", resp.Content)
		}
		if resp.WantsTools() {
			t.Error("WantsTools should be false without tool calls")
		}
		if gotModel != "gpt-4o" {
			t.Errorf("analysis task used model %q, want gpt-4o", gotModel)
		}
	})

	t.Run("task selects model", func(t *testing.T) {
		var gotModel string
		srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Model string `json:"model"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			gotModel = req.Model
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(completionBody("critique")))
		})

		client, _ := New(testConfig(srv.URL, ""))
		if _, err := client.Complete(ctx, &Request{Task: TaskReflection}); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if gotModel != "gpt-4o-mini" {
			t.Errorf("reflection task used model %q, want gpt-4o-mini", gotModel)
		}
	})

	t.Run("fallback on primary failure", func(t *testing.T) {
		primary := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusServiceUnavailable)
		})

		var fallbackModel string
		fallback := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Model string        `json:"model"`
				Tools []interface{} `json:"tools"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			fallbackModel = req.Model
			if len(req.Tools) != 0 {
				t.Error("fallback request should not carry tools")
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(completionBody("fallback answer")))
		})

		client, _ := New(testConfig(primary.URL, fallback.URL))
		resp, err := client.Complete(ctx, &Request{Task: TaskAnalysis})
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if resp.Content != "fallback answer" {
			t.Errorf("content = %q", resp.Content)
		}
		if fallbackModel != "deepseek-chat" {
			t.Errorf("fallback used model %q, want deepseek-chat", fallbackModel)
		}
	})

	t.Run("both providers fail", func(t *testing.T) {
		boom := func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error": {"message": "down"}}`, http.StatusInternalServerError)
		}
		primary := chatServer(t, boom)
		fallback := chatServer(t, boom)

		client, _ := New(testConfig(primary.URL, fallback.URL))
		_, err := client.Complete(ctx, &Request{Task: TaskAnalysis})
		if err == nil {
			t.Fatal("expected error when both providers fail")
		}
		if !strings.Contains(err.Error(), "both providers failed") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("missing primary key", func(t *testing.T) {
		if _, err := New(&config.AIConfig{}); err == nil {
			t.Fatal("expected error without primary API key")
		}
	})
}

func streamChunk(content string) string {
	chunk := map[string]interface{}{
		"id":     "chatcmpl-test",
		"object": "chat.completion.chunk",
		"model":  "gpt-4o",
		"choices": []map[string]interface{}{{
			"index": 0,
			"delta": map[string]string{"content": content},
		}},
	}
	b, _ := json.Marshal(chunk)
	return "data: " + string(b) + "\n\n"
}

func TestCompleteStream(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers chunks in order", func(t *testing.T) {
		srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Write([]byte(streamChunk("the outlook ")))
			w.Write([]byte(streamChunk("is mixed")))
			w.Write([]byte("data: [DONE]\n\n"))
		})

		client, _ := New(testConfig(srv.URL, ""))
		var got strings.Builder
		err := client.CompleteStream(ctx, &Request{Task: TaskChat}, func(chunk string) {
			got.WriteString(chunk)
		})
		if err != nil {
			t.Fatalf("CompleteStream: %v", err)
		}
		if got.String() != "the outlook is mixed" {
			t.Errorf("streamed content = %q", got.String())
		}
	})

	t.Run("surfaces provider error", func(t *testing.T) {
		srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusServiceUnavailable)
		})

		client, _ := New(testConfig(srv.URL, ""))
		err := client.CompleteStream(ctx, &Request{Task: TaskChat}, func(string) {})
		if err == nil {
			t.Fatal("expected error from failing provider")
		}
	})
}
