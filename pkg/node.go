package dirhashtree

import "sort"

// FileDigest is a fixed-length hex digest of one file's byte content, or the
// SkippedFileDigest sentinel when the file could not be read.
type FileDigest string

// DirHashNode is one directory's fingerprint state. A node exclusively owns
// its children; the tree mirrors the filesystem hierarchy at build time and
// is never mutated in place. A fresh tree supersedes the old one.
type DirHashNode struct {
	// Path is the canonical absolute path of the directory.
	Path string `json:"path"`

	// LocalHash is derived only from the names and digests of files directly
	// in this directory, folded in sorted name order.
	LocalHash string `json:"local_hash"`

	// RecursiveHash is derived from LocalHash plus each immediate child's
	// (name, RecursiveHash) pair, folded in sorted name order. It changes if
	// and only if something anywhere in the subtree changed.
	RecursiveHash string `json:"recursive_hash"`

	// FileHashes maps file name (not path) to digest for files directly in
	// this directory.
	FileHashes map[string]FileDigest `json:"file_hashes"`

	// SubdirHashes maps immediate child directory name to its node.
	SubdirHashes map[string]*DirHashNode `json:"subdir_hashes"`
}

// HashCache maps absolute root path to the most recently persisted hash tree
// for that root. It is loaded once per run, consulted for diffing, and
// overwritten (not merged) per root on refresh.
type HashCache map[string]*DirHashNode

// Equal reports structural equality at every depth
func (n *DirHashNode) Equal(other *DirHashNode) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.Path != other.Path || n.LocalHash != other.LocalHash || n.RecursiveHash != other.RecursiveHash {
		return false
	}
	if len(n.FileHashes) != len(other.FileHashes) || len(n.SubdirHashes) != len(other.SubdirHashes) {
		return false
	}
	for name, digest := range n.FileHashes {
		if other.FileHashes[name] != digest {
			return false
		}
	}
	for name, child := range n.SubdirHashes {
		if !child.Equal(other.SubdirHashes[name]) {
			return false
		}
	}
	return true
}

// FileCount returns the number of file entries in the subtree, skipped
// entries included
func (n *DirHashNode) FileCount() int {
	if n == nil {
		return 0
	}
	count := len(n.FileHashes)
	for _, child := range n.SubdirHashes {
		count += child.FileCount()
	}
	return count
}

// sortedFileNames returns the node's file names in ascending byte-wise order
func (n *DirHashNode) sortedFileNames() []string {
	names := make([]string, 0, len(n.FileHashes))
	for name := range n.FileHashes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sortedSubdirNames returns the node's child directory names in ascending
// byte-wise order
func (n *DirHashNode) sortedSubdirNames() []string {
	names := make([]string, 0, len(n.SubdirHashes))
	for name := range n.SubdirHashes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
