package secrets_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/Strob0t/TaskForge/internal/secrets"
)

func staticLoader(vals map[string]string) secrets.Loader {
	return func() (map[string]string, error) { return vals, nil }
}

func TestNewVault_LoaderError(t *testing.T) {
	_, err := secrets.NewVault(func() (map[string]string, error) {
		return nil, errors.New("connection refused")
	})
	if err == nil {
		t.Fatal("expected error from failing loader")
	}
}

func TestVault_ReloadErrorPreservesValues(t *testing.T) {
	calls := 0
	v, _ := secrets.NewVault(func() (map[string]string, error) {
		calls++
		if calls == 1 {
			return map[string]string{"KEY": "original"}, nil
		}
		return nil, errors.New("unavailable")
	})

	if err := v.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := v.Get("KEY"); got != "original" {
		t.Fatalf("expected 'original' after failed reload, got %q", got)
	}
}

func TestVault_LookupFollowsReload(t *testing.T) {
	current := map[string]string{}
	v, _ := secrets.NewVault(func() (map[string]string, error) { return current, nil })

	secret := v.Lookup(secrets.GitHubClientSecret, "from-config")
	if got := secret(); got != "from-config" {
		t.Fatalf("expected fallback, got %q", got)
	}

	current = map[string]string{secrets.GitHubClientSecret: "rotated"}
	if err := v.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := secret(); got != "rotated" {
		t.Fatalf("expected rotated secret, got %q", got)
	}
}

func TestVault_ConcurrentAccess(t *testing.T) {
	v, _ := secrets.NewVault(staticLoader(map[string]string{"K": "V"}))

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = v.Get("K")
		}()
		go func() {
			defer wg.Done()
			_ = v.Reload()
		}()
	}
	wg.Wait()
}

func TestVault_Redaction(t *testing.T) {
	v, _ := secrets.NewVault(staticLoader(map[string]string{
		"client_secret": "0123456789abcdef",
		"short":         "ab",
	}))

	tests := []struct {
		key, want string
	}{
		{"client_secret", "01****"},
		{"short", "****"},
		{"missing", ""},
	}
	for _, tt := range tests {
		if got := v.Redacted(tt.key); got != tt.want {
			t.Errorf("Redacted(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}

	got := v.RedactString("exchange failed with secret 0123456789abcdef")
	if strings.Contains(got, "0123456789abcdef") {
		t.Fatalf("secret not redacted in %q", got)
	}
	if v.RedactString("nothing here") != "nothing here" {
		t.Fatal("expected string without secrets to be unchanged")
	}
}

func TestVault_KeysSorted(t *testing.T) {
	v, _ := secrets.NewVault(staticLoader(map[string]string{"b": "2", "a": "1"}))
	if keys := v.Keys(); !slices.Equal(keys, []string{"a", "b"}) {
		t.Fatalf("expected [a b], got %v", keys)
	}
}

func TestEnvLoader(t *testing.T) {
	t.Setenv("TF_TEST_SECRET", "mysecret")
	vals, err := secrets.EnvLoader("TF_TEST_SECRET", "TF_MISSING_SECRET")()
	if err != nil {
		t.Fatalf("EnvLoader failed: %v", err)
	}
	if vals["TF_TEST_SECRET"] != "mysecret" {
		t.Fatalf("expected 'mysecret', got %q", vals["TF_TEST_SECRET"])
	}
	if _, ok := vals["TF_MISSING_SECRET"]; ok {
		t.Fatal("expected missing env var to be omitted")
	}
}

func TestDirLoader(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("client_secret", "s3cr3t\n")
	write("empty", "")
	write(".hidden", "x")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o700); err != nil {
		t.Fatal(err)
	}

	vals, err := secrets.DirLoader(dir)()
	if err != nil {
		t.Fatalf("DirLoader failed: %v", err)
	}
	if len(vals) != 1 || vals["client_secret"] != "s3cr3t" {
		t.Fatalf("unexpected secrets %v", vals)
	}
}

func TestDirLoader_MissingDir(t *testing.T) {
	if _, err := secrets.DirLoader(filepath.Join(t.TempDir(), "nope"))(); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
