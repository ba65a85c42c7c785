package dirhashtree

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseHumanSize(t *testing.T) {
	testCases := []struct {
		input    string
		expected int
		wantErr  bool
	}{
		{"1024", 1024, false},
		{"512B", 512, false},
		{"2K", 2048, false},
		{"2KB", 2048, false},
		{"512k", 512 * 1024, false},
		{"2M", 2 * 1024 * 1024, false},
		{"1.5M", 1536 * 1024, false},
		{"1G", 1024 * 1024 * 1024, false},
		{" 4M ", 4 * 1024 * 1024, false},
		{"", 0, true},
		{"M", 0, true},
		{"2X", 0, true},
		{"0", 0, true},
		{"-1K", 0, true},
	}

	for _, tc := range testCases {
		result, err := ParseHumanSize(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseHumanSize(%q) should fail, got %d", tc.input, result)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHumanSize(%q) failed: %v", tc.input, err)
			continue
		}
		if result != tc.expected {
			t.Errorf("ParseHumanSize(%q) = %d, expected %d", tc.input, result, tc.expected)
		}
	}
}

func TestIsPathUnder(t *testing.T) {
	testCases := []struct {
		child    string
		parent   string
		expected bool
	}{
		{"/data/projects/app", "/data/projects", true},
		{"/data/projects", "/data/projects", true},
		{"/data/projects-other", "/data/projects", false},
		{"/data", "/data/projects", false},
		{"/data/projects", "/", true},
		{"/", "/", true},
	}

	for _, tc := range testCases {
		if got := isPathUnder(tc.child, tc.parent); got != tc.expected {
			t.Errorf("isPathUnder(%q, %q) = %v, expected %v", tc.child, tc.parent, got, tc.expected)
		}
	}
}

func TestCanonicalPath(t *testing.T) {
	t.Run("ResolvesSymlinks", func(t *testing.T) {
		tempDir := t.TempDir()
		realDir := filepath.Join(tempDir, "real")
		if err := os.MkdirAll(realDir, 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		linkPath := filepath.Join(tempDir, "link")
		if err := os.Symlink(realDir, linkPath); err != nil {
			t.Skipf("Cannot create symlinks here: %v", err)
		}

		viaLink, err := CanonicalPath(linkPath)
		if err != nil {
			t.Fatalf("CanonicalPath failed: %v", err)
		}
		direct, err := CanonicalPath(realDir)
		if err != nil {
			t.Fatalf("CanonicalPath failed: %v", err)
		}
		if viaLink != direct {
			t.Errorf("Symlinked and direct paths must canonicalize identically: %s != %s", viaLink, direct)
		}
	})

	t.Run("RelativePath", func(t *testing.T) {
		resolved, err := CanonicalPath(".")
		if err != nil {
			t.Fatalf("CanonicalPath failed: %v", err)
		}
		if !filepath.IsAbs(resolved) {
			t.Errorf("Canonical path must be absolute, got %s", resolved)
		}
	})

	t.Run("MissingPath", func(t *testing.T) {
		if _, err := CanonicalPath(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
			t.Error("CanonicalPath should fail for missing paths")
		}
	})
}

func TestFindRepoRoot(t *testing.T) {
	tempDir := t.TempDir()
	repoRoot := filepath.Join(tempDir, "repo")
	nested := filepath.Join(repoRoot, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("Failed to create directories: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(repoRoot, StateDirName), 0755); err != nil {
		t.Fatalf("Failed to create state directory: %v", err)
	}

	expected, err := CanonicalPath(repoRoot)
	if err != nil {
		t.Fatalf("CanonicalPath failed: %v", err)
	}

	t.Run("FromRoot", func(t *testing.T) {
		found, err := FindRepoRoot(repoRoot)
		if err != nil {
			t.Fatalf("FindRepoRoot failed: %v", err)
		}
		if found != expected {
			t.Errorf("Expected %s, got %s", expected, found)
		}
	})

	t.Run("FromNestedDirectory", func(t *testing.T) {
		found, err := FindRepoRoot(nested)
		if err != nil {
			t.Fatalf("FindRepoRoot failed: %v", err)
		}
		if found != expected {
			t.Errorf("Expected %s, got %s", expected, found)
		}
	})

	t.Run("FromInsideStateDir", func(t *testing.T) {
		found, err := FindRepoRoot(filepath.Join(repoRoot, StateDirName))
		if err != nil {
			t.Fatalf("FindRepoRoot failed: %v", err)
		}
		if found != expected {
			t.Errorf("Expected %s, got %s", expected, found)
		}
	})

	t.Run("NoRepository", func(t *testing.T) {
		if _, err := FindRepoRoot(t.TempDir()); err == nil {
			t.Error("FindRepoRoot should fail outside any repository")
		}
	})
}
