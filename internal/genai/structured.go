// Package genai wraps genkit with a small client for structured generation.
//
// Tools use it to obtain schema-conforming objects from a fast model while
// the main chat loop is mid-stream; generation failures surface as
// *GenerationError so callers can distinguish model trouble from their own.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// ErrEmptyPrompt is returned when a caller passes a blank prompt.
var ErrEmptyPrompt = errors.New("empty prompt")

// GenerationError wraps a model failure with the model and stage it occurred
// in. Stage is "generate" or "decode".
type GenerationError struct {
	Model string
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (model=%s, stage=%s): %v", e.Model, e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Config holds Client dependencies.
type Config struct {
	G         *genkit.Genkit
	ModelName string // provider-qualified, e.g. "googleai/gemini-2.0-flash-lite"
	RPS       float64
	Burst     int
	Logger    *slog.Logger
}

func (c Config) validate() error {
	if c.G == nil {
		return errors.New("genai: genkit instance is required")
	}
	if !strings.Contains(c.ModelName, "/") {
		return fmt.Errorf("genai: model name %q must be provider-qualified", c.ModelName)
	}
	if c.Logger == nil {
		return errors.New("genai: logger is required")
	}
	return nil
}

// Client issues structured generation requests against a single model.
type Client struct {
	g       *genkit.Genkit
	model   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a Client. A zero RPS disables rate limiting.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Client{
		g:       cfg.G,
		model:   cfg.ModelName,
		limiter: limiter,
		logger:  cfg.Logger,
	}, nil
}

// ModelName returns the provider-qualified model this client generates with.
func (c *Client) ModelName() string { return c.model }

// Object generates a value of type T from the prompt. The model is
// constrained to T's JSON schema and the response is decoded into T; a
// response that fails to decode is a *GenerationError, never a partial value.
func Object[T any](ctx context.Context, c *Client, prompt string) (T, error) {
	var out T

	if strings.TrimSpace(prompt) == "" {
		return out, ErrEmptyPrompt
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return out, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.model),
		ai.WithPrompt(prompt),
		ai.WithOutputType(out),
	)
	if err != nil {
		return out, &GenerationError{Model: c.model, Stage: "generate", Err: err}
	}

	if err := resp.Output(&out); err != nil {
		return out, &GenerationError{Model: c.model, Stage: "decode", Err: err}
	}

	c.logger.Debug("structured generation completed", "model", c.model, "type", fmt.Sprintf("%T", out))
	return out, nil
}
