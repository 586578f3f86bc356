// Package chat proxies persona conversations to the upstream completion
// endpoint.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openalways/openalways/internal/metrics"
)

// Service errors.
var (
	ErrUnknownModel = errors.New("unsupported model")
	ErrEmptyMessage = errors.New("empty message")
	ErrUpstream     = errors.New("upstream completion failed")
)

// maxResponseBody caps how much of the upstream reply is read.
const maxResponseBody = 1 << 20

// Service calls the upstream completion endpoint with persona prompts.
type Service struct {
	apiURL  string
	client  *http.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewService creates a chat Service. apiURL is the upstream base URL; the
// /ask path is appended here.
func NewService(apiURL string, client *http.Client, logger *slog.Logger, recorder metrics.Recorder) *Service {
	if client == nil {
		client = NewHTTPClient()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Service{
		apiURL:  strings.TrimSuffix(apiURL, "/") + "/ask",
		client:  client,
		logger:  logger,
		metrics: recorder,
	}
}

// Result is one completed chat exchange.
type Result struct {
	Model      string `json:"model"`
	Provider   string `json:"provider"`
	Response   string `json:"response"`
	TokensUsed int    `json:"tokens_used"`
}

// ProcessMessage validates the model and message, calls the upstream with
// the persona's prompt and returns the exchange. The token count is the
// whitespace word count of the message plus the reply.
func (s *Service) ProcessMessage(ctx context.Context, modelID, message string) (*Result, error) {
	persona, ok := LookupPersona(modelID)
	if !ok {
		s.metrics.IncChatProcessed("rejected")
		return nil, ErrUnknownModel
	}

	if strings.TrimSpace(message) == "" {
		s.metrics.IncChatProcessed("rejected")
		return nil, ErrEmptyMessage
	}

	reply, err := s.complete(ctx, persona.SystemPrompt, message)
	if err != nil {
		s.metrics.IncChatProcessed("upstream_error")
		s.logger.Error("upstream completion failed",
			slog.String("model", modelID),
			slog.String("error", err.Error()),
		)
		return nil, ErrUpstream
	}

	s.metrics.IncChatProcessed("success")
	return &Result{
		Model:      persona.Name,
		Provider:   persona.Provider,
		Response:   reply,
		TokensUsed: CountTokens(message) + CountTokens(reply),
	}, nil
}

// complete sends the assembled prompt to the upstream and extracts the reply.
func (s *Service) complete(ctx context.Context, systemPrompt, message string) (string, error) {
	prompt := fmt.Sprintf("[SYSTEM]\n%s\n\n[USER]\n%s\n\n[ASSISTANT]", systemPrompt, message)

	reqURL := s.apiURL + "?" + url.Values{"text": {prompt}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build upstream request: %w", err)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	s.metrics.ObserveUpstreamDuration(time.Since(start))
	if err != nil {
		return "", fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("failed to read upstream response: %w", err)
	}

	var payload struct {
		Response string `json:"response"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to decode upstream response: %w", err)
	}

	reply := payload.Response
	if reply == "" {
		reply = payload.Text
	}
	if reply == "" {
		return "", errors.New("upstream response has no content")
	}

	return reply, nil
}

// CountTokens approximates token usage as the whitespace word count.
func CountTokens(s string) int {
	return len(strings.Fields(s))
}
