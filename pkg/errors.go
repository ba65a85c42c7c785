package dirhashtree

import "errors"

// Sentinel errors for the failure classes callers need to branch on.
// Everything else is wrapped I/O and surfaces via errors.Unwrap.
var (
	// ErrNotDirectory reports a root path that does not exist or is not a
	// directory. This is a caller configuration error and is never swallowed.
	ErrNotDirectory = errors.New("path does not exist or is not a directory")

	// ErrCacheFormat reports a cache document that is corrupt or unparseable.
	// CacheStore.LoadOrEmpty recovers from it by returning an empty cache,
	// which the change detector treats as "everything changed".
	ErrCacheFormat = errors.New("invalid cache document format")

	// ErrCacheLocked reports that another process holds the cache lock.
	ErrCacheLocked = errors.New("cache file is locked by another process")
)
