package dirhashtree

// Hash algorithm type IDs recorded in the cache document
const (
	HashTypeSHA1   uint16 = 1
	HashTypeSHA256 uint16 = 2
	HashTypeSHA512 uint16 = 3
	HashTypeXXH64  uint16 = 4
)

// Hash digest sizes in bytes
const (
	HashSizeSHA1   = 20
	HashSizeSHA256 = 32
	HashSizeSHA512 = 64
	HashSizeXXH64  = 8
)

// State directory layout
const (
	StateDirName   = ".dhtree"
	CacheFileName  = "cache.dhtc"
	LockSuffix     = ".lock"
	ConfigFileName = "config"
)

// Cache document framing: magic, format version, payload length header
// followed by the JSON payload and a SHA-256 payload checksum trailer.
const (
	CacheMagic         = "dhtc"
	CacheFormatVersion = uint32(1)
	CacheHeaderSize    = 16 // magic(4) + version(4) + payload length(8)
	CacheChecksumSize  = 32
)

// SkippedFileDigest is recorded in a node's file hash map when a file could
// not be read. The skip is deterministic: the entry stays "unreadable" until a
// later walk reads the file successfully, which then shows up as a change.
const SkippedFileDigest = FileDigest("unreadable")

// Symlink handling modes (same set as dircachefilehash)
const (
	SymlinkModeNone      = "none"      // never follow; hash the target path string
	SymlinkModeContained = "contained" // follow only targets inside the root
	SymlinkModeAll       = "all"       // follow everything, with a cycle guard
)

// Performance defaults
const (
	DefaultHashWorkers = 4
	DefaultHashBuffer  = "2M"
)
