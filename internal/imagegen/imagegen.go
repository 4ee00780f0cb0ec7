// Package imagegen requests dish images from an OpenAI-compatible endpoint.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"

	"recipechat/internal/domain"
	"recipechat/internal/metrics"
)

type Config struct {
	Model   string
	Size    string
	Timeout time.Duration
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Client implements domain.ImageGenerator. It is stateless and never retries.
type Client struct {
	api     *goopenai.Client
	model   string
	size    string
	timeout time.Duration
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewClient(api *goopenai.Client, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = goopenai.CreateImageModelDallE3
	}
	if cfg.Size == "" {
		cfg.Size = goopenai.CreateImageSize1024x1024
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Client{
		api:     api,
		model:   cfg.Model,
		size:    cfg.Size,
		timeout: cfg.Timeout,
		log:     cfg.Logger.With().Str("component", "imagegen").Logger(),
		metrics: cfg.Metrics,
	}
}

// Generate returns one image for prompt, sent as typed. A blank prompt fails
// with domain.ErrEmptyPrompt without contacting the endpoint. An empty size uses
// the configured default.
func (c *Client) Generate(ctx context.Context, prompt, size string) (domain.Image, error) {
	if strings.TrimSpace(prompt) == "" {
		c.metrics.IncImages(metrics.OutcomeRejected)
		return domain.Image{}, domain.ErrEmptyPrompt
	}
	if size == "" {
		size = c.size
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateImage(ctx, goopenai.ImageRequest{
		Prompt:         prompt,
		Model:          c.model,
		N:              1,
		Size:           size,
		ResponseFormat: goopenai.CreateImageResponseFormatURL,
	})
	if err == nil && len(resp.Data) == 0 {
		err = errors.New("response has no images")
	}
	if err != nil {
		c.metrics.IncImages(metrics.OutcomeError)
		return domain.Image{}, fmt.Errorf("image generation: %w", err)
	}
	c.metrics.IncImages(metrics.OutcomeOK)
	c.log.Info().Str("size", size).Dur("took", time.Since(start)).Msg("image generated")

	d := resp.Data[0]
	return domain.Image{URL: d.URL, B64JSON: d.B64JSON, RevisedPrompt: d.RevisedPrompt}, nil
}
