package file

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SafeJoin resolves a client-supplied relative path against root and
// rejects any result that escapes root. The returned path is absolute.
func SafeJoin(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("root path is required")
	}
	cleanRoot, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", err
	}

	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths are not allowed")
	}

	joined := filepath.Join(cleanRoot, filepath.Clean("/"+rel))
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes library root")
	}
	return joined, nil
}
