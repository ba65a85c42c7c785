package dirhashtree

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CanonicalPath resolves a path to its absolute, symlink-independent form.
// Cache keys always go through this so that the same directory reached via
// different working directories or symlinks maps to one cache entry.
func CanonicalPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to make path absolute %s: %w", path, err)
	}
	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	return filepath.Clean(realPath), nil
}

// isPathUnder checks if childPath is under (or equal to) parentPath.
// Both paths must already be clean and absolute.
func isPathUnder(childPath, parentPath string) bool {
	if childPath == parentPath {
		return true
	}
	if parentPath == string(filepath.Separator) {
		return strings.HasPrefix(childPath, parentPath)
	}
	return strings.HasPrefix(childPath, parentPath+string(filepath.Separator))
}

// FindRepoRoot searches upward from startDir for a directory containing a
// .dhtree state directory and returns that directory's canonical path
func FindRepoRoot(startDir string) (string, error) {
	dir, err := CanonicalPath(startDir)
	if err != nil {
		return "", err
	}

	// Starting inside the state directory itself counts as its parent
	if filepath.Base(dir) == StateDirName {
		return filepath.Dir(dir), nil
	}

	for {
		statePath := filepath.Join(dir, StateDirName)
		if info, err := os.Stat(statePath); err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("not a dhtree repository (or any of the parent directories): %s directory not found", StateDirName)
}

// ParseHumanSize parses human-readable size strings (e.g., "2M", "512k", "1G")
func ParseHumanSize(sizeStr string) (int, error) {
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	sizeStr = strings.ToUpper(strings.TrimSpace(sizeStr))

	var numPart string
	var suffix string
	for i, char := range sizeStr {
		if char >= '0' && char <= '9' || char == '.' {
			numPart += string(char)
		} else {
			suffix = sizeStr[i:]
			break
		}
	}

	if numPart == "" {
		return 0, fmt.Errorf("no numeric part in size string: %s", sizeStr)
	}

	num, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric part in size string %s: %w", sizeStr, err)
	}

	var multiplier int64 = 1
	switch suffix {
	case "", "B":
		multiplier = 1
	case "K", "KB":
		multiplier = 1024
	case "M", "MB":
		multiplier = 1024 * 1024
	case "G", "GB":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown size suffix: %s", suffix)
	}

	result := int64(num * float64(multiplier))
	if result <= 0 {
		return 0, fmt.Errorf("size must be positive: %s", sizeStr)
	}
	if result > int64(^uint(0)>>1) {
		return 0, fmt.Errorf("size too large: %s", sizeStr)
	}

	return int(result), nil
}
