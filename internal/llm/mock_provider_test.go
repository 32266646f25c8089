package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMockProviderCycling(t *testing.T) {
	responses := []*CompletionResponse{
		{Content: "resp-0", Model: "mock-model"},
		{Content: "resp-1", Model: "mock-model"},
	}
	p := NewMockProvider(responses, nil)

	ctx := context.Background()

	r0, err := p.Complete(ctx, &CompletionRequest{Model: "mock-model"})
	if err != nil {
		t.Fatalf("call 0: unexpected error: %v", err)
	}
	if r0.Content != "resp-0" {
		t.Errorf("call 0: got content %q, want %q", r0.Content, "resp-0")
	}

	r1, err := p.Complete(ctx, &CompletionRequest{Model: "mock-model"})
	if err != nil {
		t.Fatalf("call 1: unexpected error: %v", err)
	}
	if r1.Content != "resp-1" {
		t.Errorf("call 1: got content %q, want %q", r1.Content, "resp-1")
	}

	// Third call cycles back to resp-0
	r2, err := p.Complete(ctx, &CompletionRequest{Model: "mock-model"})
	if err != nil {
		t.Fatalf("call 2: unexpected error: %v", err)
	}
	if r2.Content != "resp-0" {
		t.Errorf("call 2 (cycling): got content %q, want %q", r2.Content, "resp-0")
	}

	if p.GetCallCount() != 3 {
		t.Errorf("call count: got %d, want 3", p.GetCallCount())
	}
}

func TestMockProviderReplayMode(t *testing.T) {
	responses := []*CompletionResponse{
		{Content: "first", Model: "mock-model"},
		{Content: "second", Model: "mock-model"},
	}
	p := NewReplayProvider(responses)

	ctx := context.Background()

	r0, err := p.Complete(ctx, &CompletionRequest{})
	if err != nil {
		t.Fatalf("call 0: unexpected error: %v", err)
	}
	if r0.Content != "first" {
		t.Errorf("call 0: got %q, want %q", r0.Content, "first")
	}

	r1, err := p.Complete(ctx, &CompletionRequest{})
	if err != nil {
		t.Fatalf("call 1: unexpected error: %v", err)
	}
	if r1.Content != "second" {
		t.Errorf("call 1: got %q, want %q", r1.Content, "second")
	}

	// Third call exceeds responses — must return error
	_, err = p.Complete(ctx, &CompletionRequest{})
	if err == nil {
		t.Fatal("call 2: expected exhaustion error, got nil")
	}
}

func TestMockProviderErrors(t *testing.T) {
	wantErr := errors.New("transport down")
	p := NewMockProvider(
		[]*CompletionResponse{{Content: "ok", Model: "mock-model"}},
		[]error{wantErr},
	)

	_, err := p.Complete(context.Background(), &CompletionRequest{})
	if !errors.Is(err, wantErr) {
		t.Fatalf("call 0: got err %v, want configured error", err)
	}

	r, err := p.Complete(context.Background(), &CompletionRequest{})
	if err != nil {
		t.Fatalf("call 1: unexpected error: %v", err)
	}
	if r.Content != "ok" {
		t.Errorf("call 1: got %q, want %q", r.Content, "ok")
	}
}

func TestMockProviderMatchFunc(t *testing.T) {
	p := NewMockProvider(nil, nil)
	p.MatchFunc = func(req *CompletionRequest) *CompletionResponse {
		if len(req.Messages) > 0 && strings.Contains(req.Messages[0].Content, "create_issue") {
			return &CompletionResponse{Content: "matched", Model: "mock-model"}
		}
		return nil
	}

	r, err := p.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: "user", Content: "expected tools: create_issue"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Content != "matched" {
		t.Errorf("got %q, want %q", r.Content, "matched")
	}

	// Non-matching request falls through to the default response.
	r, err = p.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: "user", Content: "unrelated"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(r.Content, "verdict") {
		t.Errorf("fallback content %q does not look like a default verdict", r.Content)
	}
}

func TestMockProviderSimulatedLatencyRespectsContext(t *testing.T) {
	p := NewMockProvider(nil, nil)
	p.SimulatedLatency = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, &CompletionRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got err %v, want context.DeadlineExceeded", err)
	}
}
