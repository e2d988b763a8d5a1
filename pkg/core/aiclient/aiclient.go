// Package aiclient implements the AI Client (spec.md §4.9/§4.10): a
// section-narrative generator backed by a primary Gemini provider with a
// fallback to a second, independently-vendored Gemini SDK. The two
// providers are grounded directly on the teacher's own two integrations
// (pkg/core/llm.GeminiProvider for the primary, pkg/core/debate.BaseAgent
// for the fallback) — reused here as the spec's required "primary model,
// same shape on fallback" pair instead of two unrelated vendors.
package aiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	legacygenai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/genai"

	"github.com/ncrc/justdata/pkg/core/engerr"
)

// retry budget for one provider call, per spec.md §4.3: "retry exhaustion
// (timeout/429/5xx, 3 attempts, backoff 1s doubling) falls through to the
// fallback", grounded on census.go's getJSON retry loop.
const (
	maxAttempts      = 3
	retryBackoffBase = 1 * time.Second
)

// Provider generates a narrative section from a prompt pair, matching the
// teacher's llm.Provider shape (spec.md §4.9: "a single narrow interface").
type Provider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// PrimaryProvider wraps google.golang.org/genai, adapted from
// pkg/core/llm/gemini.go's GeminiProvider.GenerateResponse.
type PrimaryProvider struct {
	APIKey      string
	Model       string
	Temperature float32
}

func (p *PrimaryProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if p.APIKey == "" {
		return "", fmt.Errorf("primary AI provider: no API key configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("creating primary AI client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(p.Temperature),
	}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, p.Model, genai.Text(userPrompt), config)
	if err != nil {
		return "", err
	}
	return result.Text(), nil
}

// FallbackProvider wraps github.com/google/generative-ai-go/genai, adapted
// from pkg/core/debate/agents.go's BaseAgent.generateWithGrounding.
type FallbackProvider struct {
	APIKey      string
	Model       string
	Temperature float32
}

func (p *FallbackProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if p.APIKey == "" {
		return "", fmt.Errorf("fallback AI provider: no API key configured")
	}
	client, err := legacygenai.NewClient(ctx, option.WithAPIKey(p.APIKey))
	if err != nil {
		return "", fmt.Errorf("creating fallback AI client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(p.Model)
	model.SetTemperature(p.Temperature)

	fullPrompt := fmt.Sprintf("%s\n\nTask: %s", systemPrompt, userPrompt)
	resp, err := model.GenerateContent(ctx, legacygenai.Text(fullPrompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("fallback AI provider returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(legacygenai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

// Client generates narrative sections, trying the primary provider first
// and falling back to the secondary on any error, each bounded by
// sectionTimeout (spec.md §5: "AI section budget: <= T seconds; on
// exhaustion, fall back, then omit").
type Client struct {
	Primary        Provider
	Fallback       Provider
	SectionTimeout time.Duration
}

// NewClient wires both providers from environment-resolved configuration.
// Either provider may be nil if its API key is absent — Generate degrades
// gracefully in that case (spec.md §7: "AI unavailable -> sections marked
// unavailable, never block the report").
func NewClient(primaryKey, fallbackKey, primaryModel, fallbackModel string, temperature float32, sectionTimeout time.Duration) *Client {
	c := &Client{SectionTimeout: sectionTimeout}
	if primaryKey != "" {
		c.Primary = &PrimaryProvider{APIKey: primaryKey, Model: primaryModel, Temperature: temperature}
	}
	if fallbackKey != "" {
		c.Fallback = &FallbackProvider{APIKey: fallbackKey, Model: fallbackModel, Temperature: temperature}
	}
	return c
}

// Generate produces one narrative section's text, trying the primary
// provider then the fallback, each under its own SectionTimeout. Returns
// *engerr.AIFailure (never fatal to the report) if both are unavailable or
// fail.
func (c *Client) Generate(ctx context.Context, section, systemPrompt, userPrompt string) (string, error) {
	if c.Primary != nil {
		text, err := c.tryWithRetry(ctx, c.Primary, systemPrompt, userPrompt)
		if err == nil {
			return text, nil
		}
	}
	if c.Fallback != nil {
		text, err := c.tryWithRetry(ctx, c.Fallback, systemPrompt, userPrompt)
		if err == nil {
			return text, nil
		} else {
			return "", &engerr.AIFailure{Section: section, Err: err}
		}
	}
	return "", &engerr.AIFailure{Section: section, Err: fmt.Errorf("no AI provider configured")}
}

// tryWithRetry retries one provider up to maxAttempts times with 1s-doubling
// backoff on a retryable failure (request timeout, 429, 5xx), then gives up
// so the caller can fall through to the next provider. Non-retryable
// failures (bad API key, malformed request) return immediately.
func (c *Client) tryWithRetry(ctx context.Context, p Provider, systemPrompt, userPrompt string) (string, error) {
	var lastErr error
	backoff := retryBackoffBase
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		text, err := c.tryOne(ctx, p, systemPrompt, userPrompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("retries exhausted: %w", lastErr)
}

func (c *Client) tryOne(ctx context.Context, p Provider, systemPrompt, userPrompt string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, c.SectionTimeout)
	defer cancel()
	return p.Generate(cctx, systemPrompt, userPrompt)
}

// isRetryable reports whether err is a section timeout or a 429/5xx
// response from either Gemini SDK's googleapi.Error.
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	return false
}
