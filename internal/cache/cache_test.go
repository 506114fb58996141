package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemoryCache()
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.Set(ctx, "price:SOL", "150.2", 30*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Set(ctx, "forever", "x", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok, _ := c.Get(ctx, "price:SOL"); !ok || v != "150.2" {
		t.Fatalf("expected cached value, got %q %v", v, ok)
	}

	now = now.Add(30 * time.Second)
	if _, ok, _ := c.Get(ctx, "price:SOL"); ok {
		t.Fatalf("expected entry to expire")
	}
	if _, ok, _ := c.Get(ctx, "forever"); !ok {
		t.Fatalf("entry without ttl should not expire")
	}
	if _, ok, _ := c.Get(ctx, "missing"); ok {
		t.Fatalf("unexpected hit for missing key")
	}
}
