package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/config"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/dto"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// StreamPacing is the minimum gap between two forwarded stream fragments.
const StreamPacing = 10 * time.Millisecond

// Completer sends a conversation window to a completion API.
type Completer interface {
	Complete(ctx context.Context, window []dto.ChatTurn) (string, error)
	Stream(ctx context.Context, window []dto.ChatTurn) (FragmentStream, error)
}

// FragmentStream yields reply fragments in arrival order and io.EOF once
// the reply is complete. It cannot be restarted.
type FragmentStream interface {
	Recv() (string, error)
	Close() error
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client       *openai.Client
	streamClient *openai.Client
	model        string
	pacing       time.Duration
}

func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	timeout := cfg.AITimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.OpenAIAPIURL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	// Streams are bounded by the request context instead of a client
	// timeout, which would cut long replies mid-way.
	streamCfg := clientCfg
	streamCfg.HTTPClient = &http.Client{}

	return &OpenAIClient{
		client:       openai.NewClientWithConfig(clientCfg),
		streamClient: openai.NewClientWithConfig(streamCfg),
		model:        cfg.OpenAIModel,
		pacing:       StreamPacing,
	}
}

// WithPacing overrides the gap between forwarded fragments; zero disables it.
func (c *OpenAIClient) WithPacing(d time.Duration) *OpenAIClient {
	c.pacing = d
	return c
}

func (c *OpenAIClient) Complete(ctx context.Context, window []dto.ChatTurn) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(window))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response from API", ErrUpstream)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, window []dto.ChatTurn) (FragmentStream, error) {
	upstream, err := c.streamClient.CreateChatCompletionStream(ctx, c.request(window))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	limit := rate.Inf
	if c.pacing > 0 {
		limit = rate.Every(c.pacing)
	}
	return &CompletionStream{
		ctx:      ctx,
		upstream: upstream,
		pacer:    rate.NewLimiter(limit, 1),
	}, nil
}

func (c *OpenAIClient) request(window []dto.ChatTurn) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(window))
	for _, turn := range window {
		messages = append(messages, openai.ChatCompletionMessage{Role: turn.Role, Content: turn.Content})
	}
	return openai.ChatCompletionRequest{Model: c.model, Messages: messages}
}

// CompletionStream forwards upstream deltas one at a time, never faster
// than its pacer allows.
type CompletionStream struct {
	ctx      context.Context
	upstream *openai.ChatCompletionStream
	pacer    *rate.Limiter
}

func (s *CompletionStream) Recv() (string, error) {
	for {
		resp, err := s.upstream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}

		if err := s.pacer.Wait(s.ctx); err != nil {
			return "", err
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *CompletionStream) Close() error {
	return s.upstream.Close()
}
