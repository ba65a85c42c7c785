package dirhashtree

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TreeCache manages the hash trees and on-disk cache document for a directory.
// The cache document is injected state, not a hidden singleton: separate
// TreeCache instances with separate state directories coexist in one process
// without coordination.
type TreeCache struct {
	RootDir   string
	StateDir  string
	CacheFile string

	config      *Config
	store       *CacheStore
	symlinkMode string
	hashWorkers int
}

// DirectoryConfig is handed to the caller's processing callback for each
// changed directory. Options are opaque to the core.
type DirectoryConfig struct {
	Path    string
	Options map[string]string
}

// ProcessFunc is the caller-supplied per-directory processing callback. The
// core never interprets what processing does; a nil error means the directory
// was processed successfully.
type ProcessFunc func(DirectoryConfig) error

// NewTreeCache creates a tree cache instance
// rootDir: the directory tree to be fingerprinted
// stateDir: the directory containing the .dhtree state (if empty, uses rootDir)
// Automatically creates the .dhtree directory and default config if they don't exist
func NewTreeCache(rootDir, stateDir string) *TreeCache {
	if stateDir == "" {
		stateDir = rootDir
	}

	statePath := filepath.Join(stateDir, StateDirName)
	cacheFile := filepath.Join(statePath, CacheFileName)

	tc := &TreeCache{
		RootDir:     rootDir,
		StateDir:    statePath,
		CacheFile:   cacheFile,
		store:       NewCacheStore(cacheFile),
		symlinkMode: SymlinkModeNone,
		hashWorkers: DefaultHashWorkers,
	}

	// Refuse to nest one state directory inside another
	dir := stateDir
	for {
		if filepath.Base(dir) == StateDirName {
			fmt.Fprintf(os.Stderr, "Error: Cannot create %s state inside another %s directory tree: %s\n", StateDirName, StateDirName, stateDir)
			return tc
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	if err := os.MkdirAll(statePath, 0755); err != nil {
		// Non-fatal here; operations that need the state dir will fail loudly
		fmt.Fprintf(os.Stderr, "Warning: Failed to create %s directory %s: %v\n", StateDirName, statePath, err)
		return tc
	}

	config, err := LoadConfig(statePath)
	if err != nil {
		// Non-fatal error - log but continue with default config
		fmt.Fprintf(os.Stderr, "Warning: Failed to load config from %s: %v\n", statePath, err)
	}
	tc.config = config

	if config != nil {
		tc.hashWorkers = config.GetPerformanceConfig().HashWorkers
		tc.symlinkMode = config.GetSymlinkConfig().Mode
	}

	return tc
}

// ApplyConfigOverrides applies configuration overrides from the flags map
func (tc *TreeCache) ApplyConfigOverrides(flags map[string]string) error {
	if tc.config == nil {
		return fmt.Errorf("no configuration loaded, cannot apply overrides")
	}

	var allOverrides []string

	if algorithm, exists := flags["filehash"]; exists {
		allOverrides = append(allOverrides, "algorithm:"+algorithm)
	}

	if symlinkMode, exists := flags["symlinks"]; exists {
		tc.symlinkMode = symlinkMode
		allOverrides = append(allOverrides, "mode:"+symlinkMode)
	}

	if hashWorkersStr, exists := flags["hash_workers"]; exists {
		hashWorkers, err := strconv.Atoi(hashWorkersStr)
		if err != nil {
			return fmt.Errorf("invalid hash workers value '%s': %w", hashWorkersStr, err)
		}
		if err := ValidateHashWorkers(hashWorkers); err != nil {
			return fmt.Errorf("invalid hash workers configuration: %w", err)
		}
		tc.hashWorkers = hashWorkers
		allOverrides = append(allOverrides, "hash_workers:"+hashWorkersStr)
	}

	if len(allOverrides) > 0 {
		if err := tc.config.ApplyOverrides(allOverrides); err != nil {
			return fmt.Errorf("failed to apply configuration overrides: %w", err)
		}
		if err := tc.validateAllConfigs(); err != nil {
			return fmt.Errorf("invalid configuration after overrides: %w", err)
		}
	}

	return nil
}

// validateAllConfigs validates all configuration options
func (tc *TreeCache) validateAllConfigs() error {
	allConfig := tc.config.GetAllConfig()

	if err := ValidateHashAlgorithm(allConfig.TreeHash.Algorithm); err != nil {
		return err
	}
	if err := ValidateOutputFormat(allConfig.Output.Format); err != nil {
		return err
	}
	if err := ValidateVerboseLevel(allConfig.Verbose.Level); err != nil {
		return err
	}
	if err := ValidateSymlinkMode(allConfig.Symlink.Mode); err != nil {
		return err
	}
	if err := ValidateHashWorkers(allConfig.Performance.HashWorkers); err != nil {
		return err
	}

	return nil
}

// GetConfig returns the configuration instance
func (tc *TreeCache) GetConfig() *Config {
	return tc.config
}

// GetCurrentHashAlgorithm returns the configured hash algorithm, defaulting
// to SHA256 when no config is loaded
func (tc *TreeCache) GetCurrentHashAlgorithm() (*HashAlgorithm, error) {
	name := "sha256"
	if tc.config != nil {
		if configured := tc.config.GetTreeHashConfig().Algorithm; configured != "" {
			name = configured
		}
	}
	return GetHashAlgorithm(name)
}

// rootOrDefault substitutes the instance's root directory for an empty
// rootPath, so callers working on the configured tree need not repeat it
func (tc *TreeCache) rootOrDefault(rootPath string) string {
	if rootPath == "" {
		return tc.RootDir
	}
	return rootPath
}

// newBuilder assembles a tree builder from the current configuration
func (tc *TreeCache) newBuilder() (*TreeBuilder, error) {
	algorithm, err := tc.GetCurrentHashAlgorithm()
	if err != nil {
		return nil, fmt.Errorf("failed to get hash algorithm: %w", err)
	}

	bufferSize := 0
	if tc.config != nil {
		bufferSize, err = ParseHumanSize(tc.config.GetPerformanceConfig().HashBuffer)
		if err != nil {
			return nil, fmt.Errorf("invalid hash buffer size: %w", err)
		}
	}

	return NewTreeBuilder(algorithm, tc.hashWorkers, bufferSize, tc.symlinkMode), nil
}

// ComputeDirectoryHashes builds a fresh hash tree for rootPath (empty means
// the instance's root directory) using the configured algorithm and symlink
// mode
func (tc *TreeCache) ComputeDirectoryHashes(rootPath string) (*DirHashNode, error) {
	builder, err := tc.newBuilder()
	if err != nil {
		return nil, err
	}
	return builder.ComputeDirectoryHashes(tc.rootOrDefault(rootPath))
}

// GetChangedDirectories re-walks rootPath (empty means the instance's root
// directory) and returns the minimal sorted set of directories whose contents
// changed since the cache was last refreshed. A missing or corrupt cache
// document yields exactly the root path, so cache trouble degrades to
// "process everything", never to "process nothing".
func (tc *TreeCache) GetChangedDirectories(rootPath string) ([]string, error) {
	builder, err := tc.newBuilder()
	if err != nil {
		return nil, err
	}
	cache := tc.store.LoadOrEmpty()
	return NewChangeDetector(builder).FindChangedDirectories(tc.rootOrDefault(rootPath), cache)
}

// RefreshCache recomputes the hash tree for rootPath (empty means the
// instance's root directory) and persists it,
// replacing the previous tree for that root. Call it only after processing
// succeeded; a stale cache reprocesses too much, a prematurely refreshed one
// silently skips work.
func (tc *TreeCache) RefreshCache(rootPath string) error {
	builder, err := tc.newBuilder()
	if err != nil {
		return err
	}
	tree, err := builder.ComputeDirectoryHashes(tc.rootOrDefault(rootPath))
	if err != nil {
		return err
	}

	if err := tc.store.Lock(); err != nil {
		return err
	}
	defer tc.store.Unlock()

	cache := tc.store.LoadOrEmpty()
	cache[tree.Path] = tree
	if err := tc.store.Save(cache); err != nil {
		return err
	}

	VerboseLog(2, "refreshed cache for %s (%d files tracked)", tree.Path, tree.FileCount())
	return nil
}

// ProcessChanged finds the changed directories under rootPath, invokes the
// caller's processing callback for each, and refreshes the cache only when
// every invocation succeeded. On partial failure the cache is left untouched
// so the failed directories stay "changed" on the next run: at-least-once
// reprocessing, never a silent clean mark. Returns the changed set that was
// attempted.
func (tc *TreeCache) ProcessChanged(rootPath string, options map[string]string, process ProcessFunc) ([]string, error) {
	changed, err := tc.GetChangedDirectories(rootPath)
	if err != nil {
		return nil, err
	}

	var failed []string
	var firstErr error
	for _, dir := range changed {
		if err := process(DirectoryConfig{Path: dir, Options: options}); err != nil {
			VerboseLog(1, "processing failed for %s: %v", dir, err)
			failed = append(failed, dir)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if len(failed) > 0 {
		return changed, fmt.Errorf("processing failed for %d of %d changed directories (%s), cache not refreshed: %w",
			len(failed), len(changed), strings.Join(failed, ", "), firstErr)
	}

	if len(changed) > 0 {
		if err := tc.RefreshCache(rootPath); err != nil {
			return changed, fmt.Errorf("processing succeeded but cache refresh failed: %w", err)
		}
	}

	return changed, nil
}

// Prune drops cached roots whose directory no longer exists on disk and
// returns the removed root paths. Stale roots are harmless for correctness;
// this just keeps the document from growing without bound.
func (tc *TreeCache) Prune() ([]string, error) {
	if err := tc.store.Lock(); err != nil {
		return nil, err
	}
	defer tc.store.Unlock()

	cache := tc.store.LoadOrEmpty()

	var removed []string
	for root := range cache {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			delete(cache, root)
			removed = append(removed, root)
		}
	}

	if len(removed) == 0 {
		return nil, nil
	}
	if err := tc.store.Save(cache); err != nil {
		return nil, err
	}
	return removed, nil
}

// Stats returns the number of cached roots and the total number of tracked
// file entries across all of them
func (tc *TreeCache) Stats() (int, int, error) {
	cache := tc.store.LoadOrEmpty()

	files := 0
	for _, tree := range cache {
		files += tree.FileCount()
	}
	return len(cache), files, nil
}

// Store returns the underlying cache store
func (tc *TreeCache) Store() *CacheStore {
	return tc.store
}
