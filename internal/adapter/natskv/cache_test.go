package natskv

import (
	"context"
	"testing"
	"time"
)

func TestBucketKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"conn:id:c1", "conn.id.c1"},
		{"conn:repo:acme/app", "conn.repo.=61636d652f617070"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := bucketKey(tt.key); got != tt.want {
			t.Errorf("bucketKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
		if err := checkKey(bucketKey(tt.key)); err != nil {
			t.Errorf("bucketKey(%q) is not a valid bucket key: %v", tt.key, err)
		}
	}
}

func TestCache_ConnectionKeys(t *testing.T) {
	c := New(newRevKV())
	ctx := context.Background()
	key := "conn:repo:acme/app"

	if err := c.Set(ctx, key, []byte(`{"id":"c1"}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok || string(got) != `{"id":"c1"}` {
		t.Fatalf("get = %q, %v, %v", got, ok, err)
	}

	if err := c.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.Delete(ctx, key); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, ok, err := c.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss after delete, got ok=%v err=%v", ok, err)
	}
}
