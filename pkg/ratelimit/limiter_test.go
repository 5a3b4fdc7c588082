package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowWithinBurst(t *testing.T) {
	limiter := NewRateLimiter(10, 5)

	for i := 0; i < 5; i++ {
		if !limiter.Allow() {
			t.Errorf("expected Allow()=true for request %d within burst", i)
		}
	}

	if limiter.Allow() {
		t.Error("expected Allow()=false after burst exhausted")
	}
}

func TestAllowRefills(t *testing.T) {
	limiter := NewRateLimiter(100, 1)

	if !limiter.Allow() {
		t.Fatal("expected first token")
	}
	if limiter.Allow() {
		t.Fatal("expected empty bucket")
	}

	time.Sleep(20 * time.Millisecond) // 100 tok/sec -> ~2 токена за 20ms

	if !limiter.Allow() {
		t.Error("expected token after refill")
	}
}

func TestWaitBlocksUntilToken(t *testing.T) {
	limiter := NewRateLimiter(50, 1)
	limiter.Allow() // опустошаем ведро

	start := time.Now()
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Wait returned too fast: %v", elapsed)
	}
}

func TestWaitContextCancelled(t *testing.T) {
	limiter := NewRateLimiter(0.1, 1)
	limiter.Allow() // опустошаем ведро

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Error("expected context error")
	}
}

func TestNewRateLimiterDefaults(t *testing.T) {
	limiter := NewRateLimiter(0, 0)
	if limiter.Rate() != 10 {
		t.Errorf("expected default rate 10, got %v", limiter.Rate())
	}
}

func TestNewRateLimiterSmallBucket(t *testing.T) {
	// Ведро меньше rate допустимо: частое пополнение, короткие всплески
	limiter := NewRateLimiter(10, 5)
	if tokens := limiter.Tokens(); tokens > 5 {
		t.Errorf("expected bucket capacity 5, got %v tokens", tokens)
	}
}

func TestMultiLimiter(t *testing.T) {
	ml := NewMultiLimiter()
	ml.Add("telegram", 10, 1)

	if !ml.Allow("telegram") {
		t.Error("expected token for telegram")
	}
	if ml.Allow("telegram") {
		t.Error("expected telegram bucket empty")
	}

	// Неизвестный канал не лимитируется
	if !ml.Allow("email") {
		t.Error("expected unknown channel to pass")
	}
	if err := ml.Wait(context.Background(), "email"); err != nil {
		t.Errorf("unexpected error for unlimited channel: %v", err)
	}
}
