// Package cachedir resolves the process-local cache directory used for
// retrieved sample datasets.
package cachedir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Resolve returns the cache directory for the given application name,
// creating it if absent. The location is derived from the host's
// user-level cache directory, so repeated calls return the same path.
func Resolve(appName string) (string, error) {
	if appName == "" {
		return "", fmt.Errorf("empty application name")
	}

	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving user cache directory: %w", err)
	}

	dir := filepath.Join(base, appName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory %s: %w", dir, err)
	}
	return dir, nil
}
