package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAcquireAdmitsWithinBurst(t *testing.T) {
	g := New(map[string]Config{
		"jira": {Burst: 3, RefillRate: 1, WindowLimit: 100, WindowPeriod: time.Minute},
	})

	for i := 0; i < 3; i++ {
		outcome, err := g.Acquire(context.Background(), "jira", time.Time{})
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if outcome != OutcomeOK {
			t.Fatalf("acquire %d: want OutcomeOK, got %v", i, outcome)
		}
	}
}

func TestAcquireDeadlineExceeded(t *testing.T) {
	g := New(map[string]Config{
		"jira": {Burst: 1, RefillRate: 0.001, WindowLimit: 100, WindowPeriod: time.Minute},
	})

	if outcome, err := g.Acquire(context.Background(), "jira", time.Time{}); err != nil || outcome != OutcomeOK {
		t.Fatalf("first acquire: outcome=%v err=%v", outcome, err)
	}

	deadline := time.Now().Add(5 * time.Millisecond)
	outcome, err := g.Acquire(context.Background(), "jira", deadline)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if outcome != OutcomeDeadlineExceeded {
		t.Fatalf("want OutcomeDeadlineExceeded, got %v", outcome)
	}
}

func TestTokensNeverNegativeOrOverCapacity(t *testing.T) {
	g := New(map[string]Config{
		"web": {Burst: 5, RefillRate: 100, WindowLimit: 1000, WindowPeriod: time.Minute},
	})

	for i := 0; i < 20; i++ {
		if _, err := g.Acquire(context.Background(), "web", time.Time{}); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		tok := g.Tokens("web")
		if tok < 0 {
			t.Fatalf("tokens went negative: %f", tok)
		}
		if tok > 5 {
			t.Fatalf("tokens exceeded burst capacity: %f", tok)
		}
	}
}

func TestPenalizeDelaysNextAdmit(t *testing.T) {
	g := New(map[string]Config{
		"slack": {Burst: 5, RefillRate: 100, WindowLimit: 1000, WindowPeriod: time.Minute},
	})

	g.Penalize("slack", 50*time.Millisecond)

	deadline := time.Now().Add(5 * time.Millisecond)
	outcome, err := g.Acquire(context.Background(), "slack", deadline)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if outcome != OutcomeDeadlineExceeded {
		t.Fatalf("want OutcomeDeadlineExceeded after penalize, got %v", outcome)
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	g := New(map[string]Config{
		"github": {Burst: 1, RefillRate: 0.001, WindowLimit: 100, WindowPeriod: time.Minute},
	})

	if _, err := g.Acquire(context.Background(), "github", time.Time{}); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Acquire(ctx, "github", time.Now().Add(time.Hour))
	if err == nil {
		t.Fatal("want error from cancelled context")
	}
}
