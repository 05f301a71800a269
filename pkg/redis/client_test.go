package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/config"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TIE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TIE_TEST_REDIS_ADDR not set")
	}
	cfg := config.Default().Redis
	cfg.Addr = addr
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLookupMissAndHit(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	key := fmt.Sprintf("tie-test:%d", time.Now().UnixNano())

	if _, ok, err := c.Lookup(ctx, key); err != nil || ok {
		t.Fatalf("Lookup(missing) = %v, %v", ok, err)
	}
	if err := c.Set(ctx, key, []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	data, ok, err := c.Lookup(ctx, key)
	if err != nil || !ok || string(data) != "v" {
		t.Fatalf("Lookup = %q, %v, %v", data, ok, err)
	}
}

func TestFlushByPattern(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	prefix := fmt.Sprintf("tie-flush-%d:", time.Now().UnixNano())
	for i := 0; i < 150; i++ {
		if err := c.Set(ctx, fmt.Sprintf("%s%d", prefix, i), []byte("x"), time.Minute); err != nil {
			t.Fatal(err)
		}
	}
	n, err := c.FlushByPattern(ctx, prefix+"*")
	if err != nil {
		t.Fatal(err)
	}
	if n != 150 {
		t.Errorf("deleted %d keys, want 150", n)
	}
}

func TestIsNilError(t *testing.T) {
	if IsNilError(nil) || IsNilError(fmt.Errorf("other")) {
		t.Error("non-nil-reply errors reported as nil reply")
	}
}
