package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/konecto/actuator-agent/internal/conversation"
	"github.com/konecto/actuator-agent/internal/log"
)

const composePrompt = `You are a product assistant for an electromechanical actuator catalog.
Answer the user's question using ONLY the retrieved catalog records below.
Quote part numbers, context types, and every numeric specification exactly as given.
If the records do not answer the question, say so; never invent a part number or a value.

Retrieved records (JSON):
%s

Conversation so far:
%s

User question: %s`

// RetryConfig configures retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns defaults suited to LLM provider APIs.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups transient-error substrings by category, matched
// case-insensitively. Provider SDKs expose no typed errors for these.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},
	{"500", "502", "503", "504", "unavailable"},
	{"connection reset", "timeout", "temporary"},
}

func retryableError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(lower, sub) {
				return true
			}
		}
	}
	return false
}

// LLMComposer phrases answers with a generative model. Retrieval stays
// deterministic; only the surface wording is delegated, with the retrieved
// records pinned into the prompt so numeric values survive verbatim.
type LLMComposer struct {
	g           *genkit.Genkit
	modelName   string
	retryConfig RetryConfig
	rateLimiter *rate.Limiter
	logger      log.Logger
}

// LLMComposerConfig configures an LLMComposer. Zero values take defaults:
// RateLimiter 10 rps burst 30, retry per DefaultRetryConfig.
type LLMComposerConfig struct {
	ModelName   string
	Retry       RetryConfig
	RateLimiter *rate.Limiter
}

// NewLLMComposer creates an LLMComposer on an initialized genkit instance.
func NewLLMComposer(g *genkit.Genkit, cfg LLMComposerConfig, logger log.Logger) *LLMComposer {
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialInterval == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = rate.NewLimiter(10, 30)
	}
	return &LLMComposer{
		g:           g,
		modelName:   cfg.ModelName,
		retryConfig: cfg.Retry,
		rateLimiter: cfg.RateLimiter,
		logger:      logger,
	}
}

// Compose renders the answer with the model, retrying transient provider
// errors with exponential backoff. Each attempt is rate limited.
func (c *LLMComposer) Compose(ctx context.Context, in ComposeInput) (string, error) {
	if in.Invocation == nil {
		return "", fmt.Errorf("nothing to compose")
	}

	recordsJSON, err := json.MarshalIndent(in.Invocation.Records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling records for prompt: %w", err)
	}
	prompt := fmt.Sprintf(composePrompt, recordsJSON, renderHistory(in.History), in.Message)

	opts := []ai.GenerateOption{ai.WithPrompt(prompt)}
	if c.modelName != "" {
		opts = append(opts, ai.WithModelName(c.modelName))
	}

	resp, err := c.generateWithRetry(ctx, opts)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("model returned empty response")
	}
	return text, nil
}

func (c *LLMComposer) generateWithRetry(ctx context.Context, opts []ai.GenerateOption) (*ai.ModelResponse, error) {
	var lastErr error
	delay := c.retryConfig.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := genkit.Generate(ctx, c.g, opts...)
		if err == nil {
			c.logger.Debug("composition generated",
				"attempts", attempt+1, "elapsed", time.Since(start))
			return resp, nil
		}
		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if attempt == c.retryConfig.MaxRetries {
			break
		}

		c.logger.Debug("retrying generation",
			"attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retryConfig.MaxInterval)
		}
	}
	return nil, fmt.Errorf("generate after %d retries (elapsed %v): %w",
		c.retryConfig.MaxRetries, time.Since(start), lastErr)
}

func renderHistory(turns []conversation.Turn) string {
	if len(turns) == 0 {
		return "(new conversation)"
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
