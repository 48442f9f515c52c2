package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/TaskForge/internal/adapter/memkv"
	"github.com/Strob0t/TaskForge/internal/config"
	"github.com/Strob0t/TaskForge/internal/domain"
)

func newTestStateStore(t *testing.T) (*OAuthStateStore, *memkv.Store) {
	t.Helper()
	kvs := memkv.New()
	t.Cleanup(kvs.Close)
	return NewOAuthStateStore(kvs, config.OAuth{StateTTL: 15 * time.Minute, ConsumedCap: 1000}), kvs
}

func TestOAuthState_GenerateAndConsume(t *testing.T) {
	s, _ := newTestStateStore(t)
	ctx := context.Background()

	st, err := s.Generate(ctx, "user-1", "proj-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(st.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(st.Token))
	}
	if st.RequestID == "" {
		t.Error("request id is empty")
	}

	got, err := s.ValidateAndConsume(ctx, st.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.UserID != "user-1" || got.ProjectID != "proj-1" || !got.Consumed {
		t.Errorf("unexpected state %+v", got)
	}

	if _, err := s.ValidateAndConsume(ctx, st.Token); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("replay: got %v, want ErrInvalidState", err)
	}
}

func TestOAuthState_GenerateRequiresIDs(t *testing.T) {
	s, _ := newTestStateStore(t)
	if _, err := s.Generate(context.Background(), " ", "proj-1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestOAuthState_SecondGenerateInvalidatesFirst(t *testing.T) {
	s, _ := newTestStateStore(t)
	ctx := context.Background()

	first, err := s.Generate(ctx, "user-1", "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Generate(ctx, "user-1", "proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if first.Token == second.Token {
		t.Fatal("expected distinct tokens")
	}

	if _, err := s.ValidateAndConsume(ctx, first.Token); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("first token: got %v, want ErrInvalidState", err)
	}
	if _, err := s.ValidateAndConsume(ctx, second.Token); err != nil {
		t.Fatalf("second token: %v", err)
	}
}

func TestOAuthState_OtherPairsUnaffected(t *testing.T) {
	s, _ := newTestStateStore(t)
	ctx := context.Background()

	a, _ := s.Generate(ctx, "user-1", "proj-1")
	b, _ := s.Generate(ctx, "user-1", "proj-2")

	if _, err := s.ValidateAndConsume(ctx, a.Token); err != nil {
		t.Fatalf("proj-1: %v", err)
	}
	if _, err := s.ValidateAndConsume(ctx, b.Token); err != nil {
		t.Fatalf("proj-2: %v", err)
	}
}

func TestOAuthState_ExpiredRejected(t *testing.T) {
	s, _ := newTestStateStore(t)
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	st, err := s.Generate(ctx, "user-1", "proj-1")
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(16 * time.Minute)
	if _, err := s.ValidateAndConsume(ctx, st.Token); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
}

func TestOAuthState_RejectsMalformedTokens(t *testing.T) {
	s, _ := newTestStateStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"not hex", "zz"},
		{"unknown", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.ValidateAndConsume(ctx, tt.token); !errors.Is(err, domain.ErrInvalidState) {
				t.Fatalf("got %v, want ErrInvalidState", err)
			}
		})
	}
}

func TestOAuthState_ConcurrentValidateSucceedsOnce(t *testing.T) {
	s, _ := newTestStateStore(t)
	ctx := context.Background()

	st, err := s.Generate(ctx, "user-1", "proj-1")
	if err != nil {
		t.Fatal(err)
	}

	var ok, rejected atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ValidateAndConsume(ctx, st.Token)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrInvalidState):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || rejected.Load() != 31 {
		t.Fatalf("ok=%d rejected=%d, want 1/31", ok.Load(), rejected.Load())
	}
}

func TestOAuthState_ConcurrentGenerateLeavesOneValid(t *testing.T) {
	s, _ := newTestStateStore(t)
	ctx := context.Background()

	tokens := make([]string, 16)
	var wg sync.WaitGroup
	for i := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := s.Generate(ctx, "user-1", "proj-1")
			if err != nil {
				t.Errorf("generate: %v", err)
				return
			}
			tokens[i] = st.Token
		}()
	}
	wg.Wait()

	valid := 0
	for _, tok := range tokens {
		if _, err := s.ValidateAndConsume(ctx, tok); err == nil {
			valid++
		}
	}
	if valid != 1 {
		t.Fatalf("valid tokens = %d, want 1", valid)
	}
}

func TestOAuthState_Cleanup(t *testing.T) {
	kvs := memkv.New()
	defer kvs.Close()
	s := NewOAuthStateStore(kvs, config.OAuth{StateTTL: 15 * time.Minute, ConsumedCap: 1})
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	old, _ := s.Generate(ctx, "user-1", "proj-1")
	a, _ := s.Generate(ctx, "user-2", "proj-1")
	b, _ := s.Generate(ctx, "user-3", "proj-1")
	if _, err := s.ValidateAndConsume(ctx, a.Token); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ValidateAndConsume(ctx, b.Token); err != nil {
		t.Fatal(err)
	}

	// Only the state clock moves; the kv entries are still live.
	now = now.Add(16 * time.Minute)
	stats, err := s.Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if stats.ExpiredStates != 1 {
		t.Errorf("expired = %d, want 1", stats.ExpiredStates)
	}
	if stats.OrphanIndexes != 1 {
		t.Errorf("orphan indexes = %d, want 1", stats.OrphanIndexes)
	}
	if stats.ConsumedCleared != 2 {
		t.Errorf("consumed cleared = %d, want 2", stats.ConsumedCleared)
	}
	if _, err := s.ValidateAndConsume(ctx, old.Token); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
}
