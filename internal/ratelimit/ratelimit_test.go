package ratelimit

import (
	"testing"
	"time"
)

func TestAllow_WithinBurst(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 5, CleanupInterval: time.Minute})
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.Allow("client") {
			t.Fatalf("request %d should be allowed within burst", i)
		}
	}
}

func TestAllow_BlocksAfterBurst(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 3, CleanupInterval: time.Minute})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		l.Allow("client")
	}
	if l.Allow("client") {
		t.Error("request beyond burst should be blocked")
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l := New(Config{RequestsPerMinute: 6000, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	l.Allow("client")
	if l.Allow("client") {
		t.Fatal("second immediate request should be blocked")
	}

	time.Sleep(20 * time.Millisecond) // 100 tokens/sec refill
	if !l.Allow("client") {
		t.Error("request after refill window should be allowed")
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	l.Allow("a")
	if !l.Allow("b") {
		t.Error("different clients must not share buckets")
	}
}
