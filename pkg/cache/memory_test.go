package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheSetNX(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	ok, err := c.SetNX(ctx, "webhook:stripe:evt_1", "1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX = %v, %v; want true, nil", ok, err)
	}

	ok, _ = c.SetNX(ctx, "webhook:stripe:evt_1", "1", time.Minute)
	if ok {
		t.Fatal("second SetNX claimed an existing key")
	}

	if err := c.Delete(ctx, "webhook:stripe:evt_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, _ = c.SetNX(ctx, "webhook:stripe:evt_1", "1", time.Minute)
	if !ok {
		t.Fatal("SetNX after Delete should succeed")
	}
}

func TestMemoryCacheIncrementWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrementWindow(ctx, "rate:u1", 10*time.Second)
		if err != nil {
			t.Fatalf("IncrementWindow: %v", err)
		}
		if got != want {
			t.Fatalf("count = %d, want %d", got, want)
		}
	}

	now = now.Add(11 * time.Second)
	got, _ := c.IncrementWindow(ctx, "rate:u1", 10*time.Second)
	if got != 1 {
		t.Fatalf("count after window = %d, want 1", got)
	}
}
