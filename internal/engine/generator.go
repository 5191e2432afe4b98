package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ErrGeneratorUnavailable is returned when the narrative generator keeps
// failing after every retry.
var ErrGeneratorUnavailable = errors.New("narrative generator unavailable")

var errEmptyReply = errors.New("empty reply")

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator is a Generator backed by the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiGenerator{
		client: client,
		model:  client.GenerativeModel(model),
	}, nil
}

func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content returned from Gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("unexpected response type from Gemini")
	}
	return b.String(), nil
}

// RetryPolicy bounds generator calls.
type RetryPolicy struct {
	Attempts uint
	Timeout  time.Duration // per attempt
	Backoff  time.Duration // first wait between attempts
}

// DefaultRetryPolicy matches the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Timeout: 45 * time.Second, Backoff: time.Second}
}

// generate calls the generator with a per-attempt timeout, retrying with
// exponential backoff. kind names the request in logs.
func (e *Engine) generate(ctx context.Context, kind, prompt string) (string, error) {
	op := func() (string, error) {
		actx := ctx
		if e.retry.Timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, e.retry.Timeout)
			defer cancel()
		}
		out, err := e.gen.Generate(actx, prompt)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(out) == "" {
			return "", errEmptyReply
		}
		return out, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(e.retry.Backoff, time.Millisecond)
	b.MaxInterval = 10 * b.InitialInterval

	attempt := 0
	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(max(e.retry.Attempts, 1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			attempt++
			e.logger.Warn("generator call failed, retrying",
				zap.String("kind", kind),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrGeneratorUnavailable, kind, err)
	}
	return out, nil
}
