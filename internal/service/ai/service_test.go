package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"jindalchat/internal/config"
)

type fakeChatModel struct {
	mu    sync.Mutex
	calls [][]*schema.Message
	reply *schema.Message
	err   error
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, input)
	f.mu.Unlock()
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not used")
}

func TestCompleteSendsSystemThenUser(t *testing.T) {
	fake := &fakeChatModel{reply: schema.AssistantMessage("Hi there", nil)}
	client := NewClientWithModel(fake, DefaultModel)

	got, err := client.Complete(context.Background(), SystemPrompt, "Hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Hi there" {
		t.Fatalf("Complete = %q", got)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fake.calls))
	}
	input := fake.calls[0]
	if len(input) != 2 {
		t.Fatalf("expected exactly [system, user], got %d messages", len(input))
	}
	if input[0].Role != schema.System || input[0].Content != SystemPrompt {
		t.Fatalf("first message should be the system prompt: %+v", input[0])
	}
	if input[1].Role != schema.User || input[1].Content != "Hello" {
		t.Fatalf("second message should be the user turn: %+v", input[1])
	}
}

func TestCompleteFailures(t *testing.T) {
	ctx := context.Background()

	apiErr := NewClientWithModel(&fakeChatModel{err: errors.New("503 upstream")}, DefaultModel)
	if _, err := apiErr.Complete(ctx, SystemPrompt, "Hello"); err == nil || !strings.Contains(err.Error(), "503 upstream") {
		t.Fatalf("expected wrapped api error, got %v", err)
	}

	empty := NewClientWithModel(&fakeChatModel{reply: schema.AssistantMessage("", nil)}, DefaultModel)
	if _, err := empty.Complete(ctx, SystemPrompt, "Hello"); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}

	missing := NewClientWithModel(&fakeChatModel{}, DefaultModel)
	if _, err := missing.Complete(ctx, SystemPrompt, "Hello"); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion for nil reply, got %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.CompletionConfig{Provider: "openai"}); err == nil {
		t.Fatalf("expected error without api key")
	}
	if _, err := NewClient(ctx, config.CompletionConfig{Provider: "llama", APIKey: "k"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	client, err := NewClient(ctx, config.CompletionConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1/v1"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Model() != DefaultModel {
		t.Fatalf("default model = %q", client.Model())
	}
}

func TestOpenAICompatibleEndpoint(t *testing.T) {
	var (
		mu       sync.Mutex
		received map[string]any
		reply    = "Hi there"
		status   = http.StatusOK
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		_ = json.Unmarshal(body, &received)
		code, content := status, reply
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = io.WriteString(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   DefaultModel,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7},
		})
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), config.CompletionConfig{
		Provider: "openai",
		BaseURL:  srv.URL,
		APIKey:   "test-key",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	got, err := client.Complete(context.Background(), SystemPrompt, "Hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Hi there" {
		t.Fatalf("Complete = %q", got)
	}
	mu.Lock()
	if received["model"] != DefaultModel {
		t.Fatalf("request model = %v", received["model"])
	}
	msgs, _ := received["messages"].([]any)
	mu.Unlock()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 request messages, got %d", len(msgs))
	}

	mu.Lock()
	status = http.StatusInternalServerError
	mu.Unlock()
	if _, err := client.Complete(context.Background(), SystemPrompt, "Hello"); err == nil {
		t.Fatalf("expected error on 500")
	}
}
