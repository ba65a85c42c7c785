// Package dirhashtree provides incremental change detection for directory
// trees, backed by a durable hash cache so that batch processing pipelines can
// skip subtrees whose contents have not changed since the last run.
//
// # Core API
//
// The main entry point is TreeCache, which manages hashing and the on-disk
// cache for a directory:
//
//	tc := dirhashtree.NewTreeCache("/path/to/dir", "")
//
// # Basic Operations
//
// Find directories whose contents changed since the last refresh:
//
//	changed, err := tc.GetChangedDirectories("/path/to/dir")
//
// Recompute and persist the hash tree after processing succeeded:
//
//	err := tc.RefreshCache("/path/to/dir")
//
// Or let the orchestrator drive a caller-supplied processing callback and
// refresh the cache only when every directory processed cleanly:
//
//	changed, err := tc.ProcessChanged("/path/to/dir", nil, func(dc dirhashtree.DirectoryConfig) error {
//		return rebuild(dc.Path)
//	})
//
// # Fingerprint Model
//
// Every directory gets two digests: a local hash over the names and content
// digests of its immediate files, and a recursive hash over the local hash
// plus each child directory's recursive hash. Entries are always folded in
// sorted name order, so directory listing order never affects a fingerprint.
// Equal recursive hashes mean the whole subtree is unchanged.
//
// # Configuration
//
// Settings live in an INI file under the .dhtree state directory; see Config.
// Verbose output and debug flags:
//
//	dirhashtree.SetVerboseLevel(2)
//	dirhashtree.SetDebugFlags("walk,diff")
//
// # Note on Internal API
//
// External consumers should primarily use TreeCache, DirHashNode, HashCache
// and the configuration functions. TreeBuilder, ChangeDetector and CacheStore
// are exported for callers that need to wire the pieces themselves (for
// example to diff without touching the configured cache file), but their
// signatures may change between versions.
package dirhashtree
