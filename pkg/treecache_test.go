package dirhashtree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestTreeCacheLifecycle(t *testing.T) {
	testDir := t.TempDir()

	testFiles := map[string]string{
		"file1.txt":        "content of file 1",
		"file2.txt":        "content of file 2",
		"subdir/file4.txt": "content of file 4",
	}
	writeTree(t, testDir, testFiles)

	tc := NewTreeCache(testDir, "")

	t.Run("StateDirCreated", func(t *testing.T) {
		info, err := os.Stat(filepath.Join(testDir, StateDirName))
		if err != nil || !info.IsDir() {
			t.Fatalf("State directory should exist after NewTreeCache: %v", err)
		}
		if _, err := os.Stat(filepath.Join(testDir, StateDirName, ConfigFileName)); err != nil {
			t.Errorf("Default config should be written: %v", err)
		}
	})

	t.Run("InitialChangedIsRootOnly", func(t *testing.T) {
		changed, err := tc.GetChangedDirectories(testDir)
		if err != nil {
			t.Fatalf("GetChangedDirectories failed: %v", err)
		}

		expected, err := CanonicalPath(testDir)
		if err != nil {
			t.Fatalf("CanonicalPath failed: %v", err)
		}
		if len(changed) != 1 || changed[0] != expected {
			t.Errorf("Expected {%s} with no cache, got %v", expected, changed)
		}
	})

	t.Run("RefreshThenClean", func(t *testing.T) {
		if err := tc.RefreshCache(testDir); err != nil {
			t.Fatalf("RefreshCache failed: %v", err)
		}

		if _, err := os.Stat(tc.CacheFile); err != nil {
			t.Errorf("Cache document should exist after refresh: %v", err)
		}

		changed, err := tc.GetChangedDirectories(testDir)
		if err != nil {
			t.Fatalf("GetChangedDirectories failed: %v", err)
		}
		if len(changed) != 0 {
			t.Errorf("Expected no changes after refresh, got %v", changed)
		}
	})

	t.Run("ModifyThenDetect", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(testDir, "subdir", "file4.txt"), []byte("MODIFIED"), 0644); err != nil {
			t.Fatalf("Failed to modify test file: %v", err)
		}

		changed, err := tc.GetChangedDirectories(testDir)
		if err != nil {
			t.Fatalf("GetChangedDirectories failed: %v", err)
		}

		expected, err := CanonicalPath(filepath.Join(testDir, "subdir"))
		if err != nil {
			t.Fatalf("CanonicalPath failed: %v", err)
		}
		if len(changed) != 1 || changed[0] != expected {
			t.Errorf("Expected {%s}, got %v", expected, changed)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		roots, files, err := tc.Stats()
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if roots != 1 {
			t.Errorf("Expected 1 cached root, got %d", roots)
		}
		if files != len(testFiles) {
			t.Errorf("Expected %d tracked files, got %d", len(testFiles), files)
		}
	})
}

func TestTreeCacheProcessChanged(t *testing.T) {
	t.Run("SuccessRefreshesCache", func(t *testing.T) {
		testDir := t.TempDir()
		writeTree(t, testDir, map[string]string{"a.txt": "x", "sub/b.txt": "y"})
		tc := NewTreeCache(testDir, "")

		var processed []string
		changed, err := tc.ProcessChanged(testDir, map[string]string{"recursive": "true"}, func(dc DirectoryConfig) error {
			if dc.Options["recursive"] != "true" {
				t.Errorf("Options should pass through opaquely, got %v", dc.Options)
			}
			processed = append(processed, dc.Path)
			return nil
		})
		if err != nil {
			t.Fatalf("ProcessChanged failed: %v", err)
		}
		if len(processed) != len(changed) {
			t.Errorf("Callback ran for %d of %d changed directories", len(processed), len(changed))
		}

		// Everything clean now, and the callback must not run again
		again, err := tc.ProcessChanged(testDir, nil, func(dc DirectoryConfig) error {
			t.Errorf("Callback should not run for a clean tree, got %s", dc.Path)
			return nil
		})
		if err != nil {
			t.Fatalf("Second ProcessChanged failed: %v", err)
		}
		if len(again) != 0 {
			t.Errorf("Expected clean tree after successful processing, got %v", again)
		}
	})

	t.Run("FailureLeavesCacheStale", func(t *testing.T) {
		testDir := t.TempDir()
		writeTree(t, testDir, map[string]string{"a.txt": "x"})
		tc := NewTreeCache(testDir, "")

		procErr := fmt.Errorf("transform blew up")
		_, err := tc.ProcessChanged(testDir, nil, func(dc DirectoryConfig) error {
			return procErr
		})
		if err == nil {
			t.Fatal("ProcessChanged should surface processing failures")
		}
		if !errors.Is(err, procErr) {
			t.Errorf("Returned error should wrap the processing error, got: %v", err)
		}

		// The failed directory stays changed on the next run
		changed, err := tc.GetChangedDirectories(testDir)
		if err != nil {
			t.Fatalf("GetChangedDirectories failed: %v", err)
		}
		if len(changed) != 1 {
			t.Errorf("Failed directory must remain changed, got %v", changed)
		}
	})

	t.Run("PartialFailureSkipsRefresh", func(t *testing.T) {
		testDir := t.TempDir()
		writeTree(t, testDir, map[string]string{"S1/a.txt": "1", "S2/b.txt": "2"})
		tc := NewTreeCache(testDir, "")
		if err := tc.RefreshCache(testDir); err != nil {
			t.Fatalf("RefreshCache failed: %v", err)
		}

		// Change both subtrees, then fail one of them
		writeTree(t, testDir, map[string]string{"S1/a.txt": "1x", "S2/b.txt": "2x"})

		failPath, err := CanonicalPath(filepath.Join(testDir, "S2"))
		if err != nil {
			t.Fatalf("CanonicalPath failed: %v", err)
		}
		changed, err := tc.ProcessChanged(testDir, nil, func(dc DirectoryConfig) error {
			if dc.Path == failPath {
				return fmt.Errorf("no luck")
			}
			return nil
		})
		if err == nil {
			t.Fatal("Partial failure should surface an error")
		}
		if len(changed) != 2 {
			t.Errorf("Expected both subdirectories attempted, got %v", changed)
		}

		// Nothing was refreshed: both remain changed, at-least-once semantics
		still, err := tc.GetChangedDirectories(testDir)
		if err != nil {
			t.Fatalf("GetChangedDirectories failed: %v", err)
		}
		if len(still) != 2 {
			t.Errorf("Cache must not be refreshed on partial failure, got %v", still)
		}
	})
}

func TestTreeCacheDefaultRoot(t *testing.T) {
	testDir := t.TempDir()
	writeTree(t, testDir, map[string]string{"a.txt": "x", "sub/b.txt": "y"})

	tc := NewTreeCache(testDir, "")

	// An empty root path falls back to the instance's root directory
	changed, err := tc.GetChangedDirectories("")
	if err != nil {
		t.Fatalf("GetChangedDirectories failed: %v", err)
	}
	expected, err := CanonicalPath(testDir)
	if err != nil {
		t.Fatalf("CanonicalPath failed: %v", err)
	}
	if len(changed) != 1 || changed[0] != expected {
		t.Errorf("Expected {%s} for the default root, got %v", expected, changed)
	}

	if err := tc.RefreshCache(""); err != nil {
		t.Fatalf("RefreshCache failed: %v", err)
	}
	clean, err := tc.GetChangedDirectories("")
	if err != nil {
		t.Fatalf("GetChangedDirectories failed: %v", err)
	}
	if len(clean) != 0 {
		t.Errorf("Expected clean tree after default-root refresh, got %v", clean)
	}

	node, err := tc.ComputeDirectoryHashes("")
	if err != nil {
		t.Fatalf("ComputeDirectoryHashes failed: %v", err)
	}
	if node.Path != expected {
		t.Errorf("Default-root walk should cover %s, got %s", expected, node.Path)
	}
}

func TestTreeCachePrune(t *testing.T) {
	baseDir := t.TempDir()
	keepRoot := filepath.Join(baseDir, "keep")
	goneRoot := filepath.Join(baseDir, "gone")
	writeTree(t, keepRoot, map[string]string{"a.txt": "x"})
	writeTree(t, goneRoot, map[string]string{"b.txt": "y"})

	stateDir := filepath.Join(baseDir, "state")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		t.Fatalf("Failed to create state dir: %v", err)
	}

	tc := NewTreeCache(keepRoot, stateDir)
	if err := tc.RefreshCache(keepRoot); err != nil {
		t.Fatalf("RefreshCache failed: %v", err)
	}
	if err := tc.RefreshCache(goneRoot); err != nil {
		t.Fatalf("RefreshCache failed: %v", err)
	}

	goneCanonical, err := CanonicalPath(goneRoot)
	if err != nil {
		t.Fatalf("CanonicalPath failed: %v", err)
	}
	if err := os.RemoveAll(goneRoot); err != nil {
		t.Fatalf("Failed to remove root: %v", err)
	}

	removed, err := tc.Prune()
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if len(removed) != 1 || removed[0] != goneCanonical {
		t.Errorf("Expected {%s} pruned, got %v", goneCanonical, removed)
	}

	roots, _, err := tc.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if roots != 1 {
		t.Errorf("Expected 1 root after prune, got %d", roots)
	}
}

func TestTreeCacheSeparateStateDir(t *testing.T) {
	rootDir := t.TempDir()
	stateDir := t.TempDir()
	writeTree(t, rootDir, map[string]string{"a.txt": "x"})

	tc := NewTreeCache(rootDir, stateDir)
	if err := tc.RefreshCache(rootDir); err != nil {
		t.Fatalf("RefreshCache failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(stateDir, StateDirName, CacheFileName)); err != nil {
		t.Errorf("Cache should live under the separate state dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(rootDir, StateDirName)); !os.IsNotExist(err) {
		t.Error("No state directory should be created under the root")
	}
}

func TestTreeCacheCorruptCacheDegradesToFullReprocess(t *testing.T) {
	testDir := t.TempDir()
	writeTree(t, testDir, map[string]string{"a.txt": "x"})

	tc := NewTreeCache(testDir, "")
	if err := tc.RefreshCache(testDir); err != nil {
		t.Fatalf("RefreshCache failed: %v", err)
	}

	// Scribble over the document
	if err := os.WriteFile(tc.CacheFile, []byte("garbage"), 0644); err != nil {
		t.Fatalf("Failed to corrupt cache: %v", err)
	}

	changed, err := tc.GetChangedDirectories(testDir)
	if err != nil {
		t.Fatalf("GetChangedDirectories should tolerate a corrupt cache: %v", err)
	}

	expected, err := CanonicalPath(testDir)
	if err != nil {
		t.Fatalf("CanonicalPath failed: %v", err)
	}
	if len(changed) != 1 || changed[0] != expected {
		t.Errorf("Corruption must degrade to full reprocessing {%s}, got %v", expected, changed)
	}
}

func TestTreeCacheApplyConfigOverrides(t *testing.T) {
	testDir := t.TempDir()
	tc := NewTreeCache(testDir, "")

	t.Run("ValidOverrides", func(t *testing.T) {
		err := tc.ApplyConfigOverrides(map[string]string{
			"filehash":     "xxh64",
			"symlinks":     SymlinkModeContained,
			"hash_workers": "8",
		})
		if err != nil {
			t.Fatalf("ApplyConfigOverrides failed: %v", err)
		}

		algo, err := tc.GetCurrentHashAlgorithm()
		if err != nil {
			t.Fatalf("GetCurrentHashAlgorithm failed: %v", err)
		}
		if algo.Name != "xxh64" {
			t.Errorf("Expected xxh64 after override, got %s", algo.Name)
		}
	})

	t.Run("InvalidWorkerCount", func(t *testing.T) {
		if err := tc.ApplyConfigOverrides(map[string]string{"hash_workers": "0"}); err == nil {
			t.Error("Zero hash workers should be rejected")
		}
		if err := tc.ApplyConfigOverrides(map[string]string{"hash_workers": "lots"}); err == nil {
			t.Error("Non-numeric hash workers should be rejected")
		}
	})

	t.Run("InvalidAlgorithm", func(t *testing.T) {
		if err := tc.ApplyConfigOverrides(map[string]string{"filehash": "md5"}); err == nil {
			t.Error("Unsupported hash algorithm should be rejected")
		}
	})
}
