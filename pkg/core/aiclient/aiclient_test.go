package aiclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/ncrc/justdata/pkg/core/engerr"
)

type fakeProvider struct {
	text string
	err  error

	// failTimes, if set, makes Generate return err this many times before
	// returning text successfully.
	failTimes int
	calls     int
}

func (f *fakeProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	if f.failTimes > 0 && f.calls <= f.failTimes {
		return "", f.err
	}
	if f.err != nil && f.failTimes == 0 {
		return "", f.err
	}
	return f.text, nil
}

func TestGeneratePrefersPrimary(t *testing.T) {
	c := &Client{
		Primary:        &fakeProvider{text: "primary prose"},
		Fallback:       &fakeProvider{text: "fallback prose"},
		SectionTimeout: time.Second,
	}
	text, err := c.Generate(context.Background(), "executive-summary", "sys", "user")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if text != "primary prose" {
		t.Errorf("text = %q, want primary prose", text)
	}
}

func TestGenerateFallsBackOnPrimaryError(t *testing.T) {
	c := &Client{
		Primary:        &fakeProvider{err: errors.New("primary unavailable")},
		Fallback:       &fakeProvider{text: "fallback prose"},
		SectionTimeout: time.Second,
	}
	text, err := c.Generate(context.Background(), "executive-summary", "sys", "user")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if text != "fallback prose" {
		t.Errorf("text = %q, want fallback prose", text)
	}
}

func TestGenerateBothFailReturnsAIFailure(t *testing.T) {
	c := &Client{
		Primary:        &fakeProvider{err: errors.New("primary down")},
		Fallback:       &fakeProvider{err: errors.New("fallback down")},
		SectionTimeout: time.Second,
	}
	_, err := c.Generate(context.Background(), "key-findings", "sys", "user")
	var aiErr *engerr.AIFailure
	if !errors.As(err, &aiErr) {
		t.Fatalf("expected *engerr.AIFailure, got %v", err)
	}
	if aiErr.Section != "key-findings" {
		t.Errorf("section = %q, want key-findings", aiErr.Section)
	}
}

func TestGenerateRetriesRetryableFailureThenSucceeds(t *testing.T) {
	primary := &fakeProvider{
		text:      "primary prose",
		err:       &googleapi.Error{Code: 503},
		failTimes: 1,
	}
	c := &Client{Primary: primary, SectionTimeout: time.Second}
	text, err := c.Generate(context.Background(), "executive-summary", "sys", "user")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if text != "primary prose" {
		t.Errorf("text = %q, want primary prose", text)
	}
	if primary.calls != 2 {
		t.Errorf("expected 2 calls (1 failure + 1 success), got %d", primary.calls)
	}
}

func TestGenerateNonRetryableFailureSkipsRetryAndFallsBack(t *testing.T) {
	primary := &fakeProvider{err: errors.New("invalid api key"), failTimes: 0}
	fallback := &fakeProvider{text: "fallback prose"}
	c := &Client{Primary: primary, Fallback: fallback, SectionTimeout: time.Second}
	text, err := c.Generate(context.Background(), "executive-summary", "sys", "user")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if text != "fallback prose" {
		t.Errorf("text = %q, want fallback prose", text)
	}
	if primary.calls != 1 {
		t.Errorf("expected exactly 1 call for a non-retryable error, got %d", primary.calls)
	}
}

func TestGenerateRetryExhaustionFallsBackToSecondProvider(t *testing.T) {
	primary := &fakeProvider{err: &googleapi.Error{Code: 429}, failTimes: 99}
	fallback := &fakeProvider{text: "fallback prose"}
	c := &Client{Primary: primary, Fallback: fallback, SectionTimeout: time.Second}
	text, err := c.Generate(context.Background(), "executive-summary", "sys", "user")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if text != "fallback prose" {
		t.Errorf("text = %q, want fallback prose", text)
	}
	if primary.calls != maxAttempts {
		t.Errorf("expected %d attempts on the primary before falling back, got %d", maxAttempts, primary.calls)
	}
}

func TestGenerateNoProvidersConfigured(t *testing.T) {
	c := &Client{SectionTimeout: time.Second}
	_, err := c.Generate(context.Background(), "trends", "sys", "user")
	var aiErr *engerr.AIFailure
	if !errors.As(err, &aiErr) {
		t.Fatalf("expected *engerr.AIFailure, got %v", err)
	}
}

func TestNewClientLeavesProvidersNilWithoutKeys(t *testing.T) {
	c := NewClient("", "", "model-a", "model-b", 0.2, time.Second)
	if c.Primary != nil || c.Fallback != nil {
		t.Error("expected both providers nil when no API keys are configured")
	}
}

func TestNewClientWiresConfiguredProviders(t *testing.T) {
	c := NewClient("primary-key", "fallback-key", "model-a", "model-b", 0.2, time.Second)
	if c.Primary == nil || c.Fallback == nil {
		t.Fatal("expected both providers to be wired when both keys are present")
	}
}
