package dirhashtree

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"
)

// TreeBuilder walks a directory recursively and assembles a tree of
// per-directory fingerprints. Builders are stateless between calls and safe
// for concurrent use.
type TreeBuilder struct {
	algorithm   *HashAlgorithm
	symlinkMode string
	hashWorkers int
	bufferSize  int
}

// NewTreeBuilder creates a tree builder. Zero or invalid workers/buffer fall
// back to the package defaults, an empty symlink mode falls back to "none".
func NewTreeBuilder(algorithm *HashAlgorithm, hashWorkers int, bufferSize int, symlinkMode string) *TreeBuilder {
	if hashWorkers < 1 {
		hashWorkers = DefaultHashWorkers
	}
	if bufferSize < 1 {
		bufferSize, _ = ParseHumanSize(DefaultHashBuffer)
	}
	if symlinkMode == "" {
		symlinkMode = SymlinkModeNone
	}
	return &TreeBuilder{
		algorithm:   algorithm,
		symlinkMode: symlinkMode,
		hashWorkers: hashWorkers,
		bufferSize:  bufferSize,
	}
}

// ComputeDirectoryHashes canonicalises rootPath and builds the full hash tree
// for it. The root must exist and be a directory; anything else is a caller
// configuration error reported via ErrNotDirectory. Unreadable files and
// subdirectories below the root are skipped with a deterministic sentinel
// digest so one bad entry never aborts the whole fingerprinting pass.
func (tb *TreeBuilder) ComputeDirectoryHashes(rootPath string) (*DirHashNode, error) {
	defer VerboseEnter()()

	canonical, err := CanonicalPath(rootPath)
	if err != nil {
		return nil, fmt.Errorf("root %s: %w", rootPath, ErrNotDirectory)
	}
	info, err := os.Stat(canonical)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("root %s: %w", rootPath, ErrNotDirectory)
	}

	return tb.buildNode(canonical, canonical, []string{canonical}, 0)
}

// buildNode assembles the fingerprint node for one directory and recurses
// into its subdirectories. chain carries the resolved identity of every
// directory from the root down to dirPath, for symlink cycle detection.
func (tb *TreeBuilder) buildNode(dirPath, root string, chain []string, depth int) (*DirHashNode, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if depth == 0 {
			return nil, fmt.Errorf("failed to list root directory %s: %w", dirPath, err)
		}
		VerboseLog(1, "skipping unreadable directory %s: %v", dirPath, err)
		return tb.unreadableNode(dirPath), nil
	}

	node := &DirHashNode{
		Path:         dirPath,
		FileHashes:   make(map[string]FileDigest),
		SubdirHashes: make(map[string]*DirHashNode),
	}

	// Partition the listing. Symlinks are classified per the configured mode;
	// a followed directory symlink carries its resolved identity for the
	// cycle guard.
	var fileNames []string
	var subdirNames []string
	subdirIdents := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		fullPath := filepath.Join(dirPath, name)

		switch {
		case entry.Type()&os.ModeSymlink != 0:
			asDir, ident := tb.classifySymlink(node, name, fullPath, root, chain)
			if asDir {
				subdirNames = append(subdirNames, name)
				subdirIdents[name] = ident
			}
		case entry.IsDir():
			if name == StateDirName {
				// Never fingerprint our own state; a refresh would otherwise
				// perturb the very tree it just hashed
				continue
			}
			subdirNames = append(subdirNames, name)
			subdirIdents[name] = fullPath
		case entry.Type().IsRegular():
			fileNames = append(fileNames, name)
		default:
			// Sockets, pipes, devices: not file content, not a subtree
			if IsDebugEnabled("walk") {
				VerboseLog(3, "buildNode: ignoring special file %s", fullPath)
			}
		}
	}

	// Hash immediate files with a bounded worker pool sized by the
	// hash_workers setting. Failures record the skip sentinel instead of
	// aborting; the map write is safe because every worker owns its own name.
	sort.Strings(fileNames)
	digests := make([]FileDigest, len(fileNames))
	var group errgroup.Group
	group.SetLimit(tb.hashWorkers)
	for i, name := range fileNames {
		i, name := i, name
		group.Go(func() error {
			digest, err := ComputeFileHash(filepath.Join(dirPath, name), tb.algorithm, tb.bufferSize)
			if err != nil {
				VerboseLog(1, "skipping unreadable file %s: %v", filepath.Join(dirPath, name), err)
				digest = SkippedFileDigest
			}
			digests[i] = digest
			return nil
		})
	}
	group.Wait()
	for i, name := range fileNames {
		node.FileHashes[name] = digests[i]
	}

	// Recurse into subdirectories in sorted order
	sort.Strings(subdirNames)
	for _, name := range subdirNames {
		child, err := tb.buildNode(filepath.Join(dirPath, name), root, append(chain, subdirIdents[name]), depth+1)
		if err != nil {
			return nil, err
		}
		node.SubdirHashes[name] = child
	}

	tb.foldHashes(node)

	if IsDebugEnabled("walk") {
		VerboseLog(3, "buildNode: %s local=%s recursive=%s files=%d subdirs=%d",
			dirPath, node.LocalHash, node.RecursiveHash, len(node.FileHashes), len(node.SubdirHashes))
	}

	return node, nil
}

// classifySymlink records a symlink entry on node per the configured mode.
// It returns true with the resolved identity when the link should be walked
// as a subdirectory.
func (tb *TreeBuilder) classifySymlink(node *DirHashNode, name, fullPath, root string, chain []string) (bool, string) {
	opaqueLeaf := func() {
		// Hash the target path string rather than the target content, so a
		// retargeted link still shows up as a change.
		target, err := os.Readlink(fullPath)
		if err != nil {
			VerboseLog(1, "skipping unreadable symlink %s: %v", fullPath, err)
			node.FileHashes[name] = SkippedFileDigest
			return
		}
		node.FileHashes[name] = FileDigest(hashString(tb.algorithm, "symlink\x00"+target))
	}

	if tb.symlinkMode == SymlinkModeNone {
		opaqueLeaf()
		return false, ""
	}

	resolved, err := CanonicalPath(fullPath)
	if err != nil {
		// Dangling link; treat like an unreadable entry
		VerboseLog(1, "skipping dangling symlink %s: %v", fullPath, err)
		node.FileHashes[name] = SkippedFileDigest
		return false, ""
	}

	if tb.symlinkMode == SymlinkModeContained && !isPathUnder(resolved, root) {
		opaqueLeaf()
		return false, ""
	}

	info, err := os.Stat(resolved)
	if err != nil {
		VerboseLog(1, "skipping unstatable symlink target %s: %v", resolved, err)
		node.FileHashes[name] = SkippedFileDigest
		return false, ""
	}

	if info.IsDir() {
		for _, ancestor := range chain {
			if ancestor == resolved {
				VerboseLog(1, "skipping symlink cycle at %s (target %s already on walk path)", fullPath, resolved)
				opaqueLeaf()
				return false, ""
			}
		}
		return true, resolved
	}

	if info.Mode().IsRegular() {
		digest, err := ComputeFileHash(resolved, tb.algorithm, tb.bufferSize)
		if err != nil {
			VerboseLog(1, "skipping unreadable symlink target %s: %v", resolved, err)
			digest = SkippedFileDigest
		}
		node.FileHashes[name] = digest
		return false, ""
	}

	opaqueLeaf()
	return false, ""
}

// foldHashes computes LocalHash and RecursiveHash from the node's maps.
// Both folds run over name-sorted pairs so directory listing order never
// affects a fingerprint. The recursive fold seeds the pair list with a "."
// entry for the directory's own local hash; "." can never collide with a real
// child name since directory listings exclude it.
func (tb *TreeBuilder) foldHashes(node *DirHashNode) {
	filePairs := make([]hashPair, 0, len(node.FileHashes))
	for _, name := range node.sortedFileNames() {
		filePairs = append(filePairs, hashPair{name: name, value: string(node.FileHashes[name])})
	}
	node.LocalHash = hashPairs(tb.algorithm, filePairs)

	recursivePairs := make([]hashPair, 0, len(node.SubdirHashes)+1)
	recursivePairs = append(recursivePairs, hashPair{name: ".", value: node.LocalHash})
	for _, name := range node.sortedSubdirNames() {
		recursivePairs = append(recursivePairs, hashPair{name: name, value: node.SubdirHashes[name].RecursiveHash})
	}
	node.RecursiveHash = hashPairs(tb.algorithm, recursivePairs)
}

// unreadableNode stands in for a directory whose listing failed. The sentinel
// local hash is deterministic, so the skip itself is stable across runs and
// flips to "changed" once the directory becomes readable.
func (tb *TreeBuilder) unreadableNode(dirPath string) *DirHashNode {
	node := &DirHashNode{
		Path:         dirPath,
		LocalHash:    hashString(tb.algorithm, "unreadable"),
		FileHashes:   make(map[string]FileDigest),
		SubdirHashes: make(map[string]*DirHashNode),
	}
	node.RecursiveHash = hashPairs(tb.algorithm, []hashPair{{name: ".", value: node.LocalHash}})
	return node
}
