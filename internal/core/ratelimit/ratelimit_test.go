package ratelimit

import (
	"fmt"
	"testing"
)

func TestAllowSingleTokenNoRefill(t *testing.T) {
	l := New(Config{MaxTokens: 1, RefillRate: 0})
	if !l.Allow("k") {
		t.Fatal("first call should be allowed")
	}
	for i := 0; i < 5; i++ {
		if l.Allow("k") {
			t.Fatalf("call %d should be denied with no refill", i)
		}
	}
}

func TestAllowBurstCapacity(t *testing.T) {
	l := New(Config{MaxTokens: 10, RefillRate: 0.5})
	for i := 0; i < 10; i++ {
		if !l.Allow("k") {
			t.Fatalf("call %d within burst should be allowed", i)
		}
	}
	if l.Allow("k") {
		t.Fatal("11th immediate call should be denied")
	}
}

func TestBucketsAreIndependentPerKey(t *testing.T) {
	l := New(Config{MaxTokens: 1, RefillRate: 0})
	if !l.Allow("a") {
		t.Fatal("key a should be allowed")
	}
	if !l.Allow("b") {
		t.Fatal("key b should be allowed independently of a")
	}
}

func TestLRUEviction(t *testing.T) {
	l := New(Config{MaxTokens: 1, RefillRate: 0, MaxBuckets: 2})
	l.Allow("a")
	l.Allow("b")
	if l.Len() != 2 {
		t.Fatalf("expected 2 buckets, got %d", l.Len())
	}
	l.Allow("c") // evicts least recently used ("a", since b was touched after)
	if l.Len() != 2 {
		t.Fatalf("expected eviction to cap at 2 buckets, got %d", l.Len())
	}
}

func TestRetryAfterNonNegative(t *testing.T) {
	l := New(Config{MaxTokens: 1, RefillRate: 1})
	l.Allow("k")
	if d := l.RetryAfter("k"); d < 0 {
		t.Fatalf("retry-after should never be negative, got %v", d)
	}
}

func TestManyKeysStayBounded(t *testing.T) {
	l := New(Config{MaxTokens: 1, RefillRate: 0, MaxBuckets: 50})
	for i := 0; i < 500; i++ {
		l.Allow(fmt.Sprintf("key-%d", i))
	}
	if l.Len() > 50 {
		t.Fatalf("expected at most 50 buckets, got %d", l.Len())
	}
}
