package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

// waitBriefly waits for key with a deadline far shorter than a refill
func waitBriefly(l *Limiter, key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	return l.Wait(ctx, key)
}

func TestLimiter_UnlimitedByDefault(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if err := waitBriefly(limiter, "openai"); err != nil {
			t.Fatalf("request %d rejected by unlimited limiter: %v", i, err)
		}
	}
}

func TestLimiter_RateLimitPerKey(t *testing.T) {
	limiter := NewLimiter(1, 1)

	if err := limiter.Wait(context.Background(), "anthropic"); err != nil {
		t.Errorf("first wait failed: %v", err)
	}
	if err := waitBriefly(limiter, "anthropic"); err == nil {
		t.Errorf("expected wait to fail (exhausted tokens)")
	}
	if err := waitBriefly(limiter, "openai"); err != nil {
		t.Errorf("expected other key to pass: %v", err)
	}
}

func TestLimiter_SetPerMinute(t *testing.T) {
	limiter := NewLimiter(0, 10)
	limiter.SetPerMinute("google", 6)
	limiter.SetPerMinute("ollama", 0)

	if err := waitBriefly(limiter, "google"); err != nil {
		t.Errorf("first request should pass: %v", err)
	}
	if err := waitBriefly(limiter, "google"); err == nil {
		t.Errorf("second request should fail")
	}
	if waitBriefly(limiter, "ollama") != nil || waitBriefly(limiter, "ollama") != nil {
		t.Errorf("rpm 0 must leave the key unlimited")
	}
}

func TestLimiter_WaitWithDelay(t *testing.T) {
	limiter := NewLimiter(100, 1)

	start := time.Now()
	if err := limiter.WaitWithDelay(context.Background(), "example.com", 50*time.Millisecond); err != nil {
		t.Fatalf("WaitWithDelay failed: %v", err)
	}
	if d := time.Since(start); d < 50*time.Millisecond {
		t.Errorf("expected delay >= 50ms, got %v", d)
	}
}

func TestHostKey(t *testing.T) {
	if got := HostKey("https://arxiv.org/abs/2101.00001"); got != "arxiv.org" {
		t.Errorf("expected arxiv.org, got %s", got)
	}
	if got := HostKey("::invalid"); got != "::invalid" {
		t.Errorf("expected raw input for invalid URL, got %s", got)
	}
}
