package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openalways/openalways/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessMessage(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ask" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		prompt := r.URL.Query().Get("text")
		if !strings.Contains(prompt, "[SYSTEM]") || !strings.Contains(prompt, "[ASSISTANT]") {
			t.Errorf("prompt missing template markers: %q", prompt)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":"hello there"}`))
	}))
	defer upstream.Close()

	svc := NewService(upstream.URL, upstream.Client(), discardLogger(), nil)

	result, err := svc.ProcessMessage(context.Background(), "okitakoy", "hi friend")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Model != "Okitakoy AI" {
		t.Errorf("expected model Okitakoy AI, got %s", result.Model)
	}
	if result.Provider != "Okitakoy Inc." {
		t.Errorf("expected provider Okitakoy Inc., got %s", result.Provider)
	}
	if result.Response != "hello there" {
		t.Errorf("expected response 'hello there', got %q", result.Response)
	}
	// "hi friend" = 2 words, "hello there" = 2 words
	if result.TokensUsed != 4 {
		t.Errorf("expected 4 tokens, got %d", result.TokensUsed)
	}
}

func TestProcessMessageTextFallback(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"fallback reply"}`))
	}))
	defer upstream.Close()

	svc := NewService(upstream.URL, upstream.Client(), discardLogger(), nil)

	result, err := svc.ProcessMessage(context.Background(), "gpt4", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Response != "fallback reply" {
		t.Errorf("expected fallback reply, got %q", result.Response)
	}
}

func TestProcessMessageValidation(t *testing.T) {
	t.Parallel()

	// Any network call would fail against this address.
	svc := NewService("http://127.0.0.1:0", nil, discardLogger(), nil)

	tests := []struct {
		name    string
		modelID string
		message string
		wantErr error
	}{
		{"unknown model", "gpt5", "hello", ErrUnknownModel},
		{"empty message", "gpt4", "", ErrEmptyMessage},
		{"whitespace message", "gpt4", "   \n\t", ErrEmptyMessage},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.ProcessMessage(context.Background(), tt.modelID, tt.message)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestProcessMessageUpstreamErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			"non-200 status",
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			"invalid json",
			func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
		{
			"missing content",
			func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"ok"}`))
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			upstream := httptest.NewServer(tt.handler)
			defer upstream.Close()

			rec := metrics.NewInMemory()
			svc := NewService(upstream.URL, upstream.Client(), discardLogger(), rec)

			_, err := svc.ProcessMessage(context.Background(), "claude", "hello world")
			if !errors.Is(err, ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
			if got := rec.Snapshot().ChatProcessed["upstream_error"]; got != 1 {
				t.Errorf("expected 1 upstream_error, got %d", got)
			}
		})
	}
}

func TestPersonas(t *testing.T) {
	t.Parallel()

	list := Personas()
	if len(list) != 12 {
		t.Fatalf("expected 12 personas, got %d", len(list))
	}
	if list[0].ID != "gpt4" {
		t.Errorf("expected gpt4 first, got %s", list[0].ID)
	}
	for _, p := range list {
		if p.Name == "" || p.Provider == "" {
			t.Errorf("persona %s has empty fields", p.ID)
		}
	}
}

func TestCountTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"one", 1},
		{"  spaced   out  words ", 3},
		{"line\nbreaks\tand tabs", 4},
	}

	for _, tt := range tests {
		if got := CountTokens(tt.in); got != tt.want {
			t.Errorf("CountTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
