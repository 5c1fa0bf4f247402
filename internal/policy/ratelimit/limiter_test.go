package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterWaitThrottlesSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://shop.test/a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://shop.test/b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
	if l.Hosts() != 1 {
		t.Fatalf("expected one host bucket, got %d", l.Hosts())
	}
}

func TestLimiterDifferentHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.test/1"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://b.test/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("host b blocked unexpectedly")
	}
}

func TestLimiterUnlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for i := 0; i < 50; i++ {
		if err := l.Wait(context.Background(), "https://shop.test/"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestLimiterCanceled(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.01, Burst: 1})
	if err := l.Wait(context.Background(), "https://shop.test/"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx, "https://shop.test/")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	if got := hostOf("::bad"); got != "unknown" {
		t.Fatalf("expected unknown, got %s", got)
	}
	if got := hostOf("https://Shop.test:8443/x"); got != "Shop.test" {
		t.Fatalf("unexpected host %s", got)
	}
}
