package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const maxSecretFileSize = 64 << 10

// EnvLoader returns a Loader that reads the specified environment variables.
// Missing variables are silently omitted from the result map.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// DirLoader returns a Loader that reads every regular file in dir as one
// secret named after the file. Trailing newlines are trimmed. Hidden entries
// are skipped, which covers the ..data symlinks of Kubernetes secret volumes.
func DirLoader(dir string) Loader {
	return func() (map[string]string, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read secrets dir: %w", err)
		}
		vals := make(map[string]string, len(entries))
		for _, e := range entries {
			name := e.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			path := filepath.Join(dir, name)
			info, err := os.Stat(path) // follows symlinks
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("stat secret %s: %w", name, err)
			}
			if !info.Mode().IsRegular() {
				continue
			}
			if info.Size() > maxSecretFileSize {
				return nil, fmt.Errorf("secret %s exceeds %d bytes", name, maxSecretFileSize)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read secret %s: %w", name, err)
			}
			if v := strings.TrimRight(string(data), "\r\n"); v != "" {
				vals[name] = v
			}
		}
		return vals, nil
	}
}
