// Package completion streams chat replies from an OpenAI-compatible endpoint.
package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"

	"recipechat/internal/domain"
)

// Config configures the completion client.
type Config struct {
	Model   string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Client implements domain.Completer. Calls are never retried.
type Client struct {
	api     *goopenai.Client
	model   string
	timeout time.Duration
	log     zerolog.Logger
}

func NewClient(api *goopenai.Client, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT3Dot5Turbo
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Client{
		api:     api,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		log:     cfg.Logger.With().Str("component", "completion").Logger(),
	}
}

// Complete returns the whole reply as a single payload.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, c.request(req))
	if err != nil {
		return domain.Completion{}, fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, errors.New("completion: response has no choices")
	}
	choice := resp.Choices[0]
	return domain.Completion{
		Kind:         domain.KindPayload,
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// Stream opens a streamed reply. The per-call timeout covers the whole
// stream and is released by Close.
func (c *Client) Stream(ctx context.Context, req domain.CompletionRequest) (domain.CompletionStream, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	r := c.request(req)
	r.Stream = true
	s, err := c.api.CreateChatCompletionStream(ctx, r)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("completion: %w", err)
	}
	c.log.Debug().Str("model", r.Model).Int("messages", len(r.Messages)).Msg("stream opened")
	return &stream{s: s, cancel: cancel}, nil
}

func (c *Client) request(req domain.CompletionRequest) goopenai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	msgs := make([]goopenai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = goopenai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	return goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: req.Temperature,
	}
}

type stream struct {
	s      *goopenai.ChatCompletionStream
	cancel context.CancelFunc
}

// Recv returns the next non-empty fragment, or io.EOF once the reply is done.
func (st *stream) Recv() (domain.Completion, error) {
	for {
		resp, err := st.s.Recv()
		if errors.Is(err, io.EOF) {
			return domain.Completion{}, io.EOF
		}
		if err != nil {
			return domain.Completion{}, fmt.Errorf("completion stream: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		choice := resp.Choices[0]
		return domain.Completion{
			Kind:         domain.KindFragment,
			Text:         choice.Delta.Content,
			FinishReason: string(choice.FinishReason),
		}, nil
	}
}

func (st *stream) Close() {
	st.s.Close()
	st.cancel()
}
