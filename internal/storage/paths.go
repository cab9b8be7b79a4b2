package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// SharedDirEnv names the directory both the application and the test
	// process can reach. When unset, storage falls back to a process-local
	// cache directory and cross-process visibility is not guaranteed.
	SharedDirEnv = "HTTPSPY_SHARED_DIR"

	// RequestsCollection holds captured exchanges.
	RequestsCollection = "Requests"
	// ContextCollection holds the key-value sidecar.
	ContextCollection = "Context"

	appName = "httpspy"
)

// Root is a resolved storage root.
type Root struct {
	Path   string
	Shared bool // false when the process-local fallback was used
}

// ResolveRoot picks the storage root.
// Resolution order:
//  1. configured (config file or HTTPSPY_STORAGE_ROOT)
//  2. HTTPSPY_SHARED_DIR
//  3. DefaultStoragePath() (process-local fallback)
func ResolveRoot(configured string) (Root, error) {
	if p := strings.TrimSpace(configured); p != "" {
		abs, err := filepath.Abs(p)
		if err != nil {
			return Root{}, fmt.Errorf("resolve storage root %q: %w", p, err)
		}
		return Root{Path: abs, Shared: true}, nil
	}

	if p := strings.TrimSpace(os.Getenv(SharedDirEnv)); p != "" {
		abs, err := filepath.Abs(p)
		if err != nil {
			return Root{}, fmt.Errorf("resolve %s %q: %w", SharedDirEnv, p, err)
		}
		return Root{Path: abs, Shared: true}, nil
	}

	p, err := DefaultStoragePath()
	if err != nil {
		return Root{}, err
	}
	return Root{Path: p}, nil
}

// DefaultStoragePath returns the process-local fallback location.
// Platform-specific paths:
//   - macOS:   ~/Library/Caches/httpspy
//   - Linux:   $XDG_CACHE_HOME/httpspy or ~/.cache/httpspy
//   - Windows: %LocalAppData%\httpspy
func DefaultStoragePath() (string, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user cache directory: %w", err)
	}
	return filepath.Join(cache, appName), nil
}
