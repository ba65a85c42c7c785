package dirhashtree

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/vectorio"
	"golang.org/x/sys/unix"
)

// CacheStore serialises and deserialises a HashCache to a durable document.
//
// The on-disk layout is a 16-byte header (magic, format version, payload
// length), the JSON payload, and a SHA-256 checksum of the payload. Document
// integrity always uses SHA-256 regardless of the configured tree hash
// algorithm. Writes go to a temp file in the same directory via a single
// writev pass, then replace the document atomically by rename, so a crash
// never leaves a half-written cache behind.
type CacheStore struct {
	path     string
	lockPath string
	lockFile *os.File
}

// NewCacheStore creates a store for the cache document at path
func NewCacheStore(path string) *CacheStore {
	return &CacheStore{
		path:     path,
		lockPath: path + LockSuffix,
	}
}

// Path returns the cache document location
func (cs *CacheStore) Path() string {
	return cs.path
}

// Lock takes the single-writer lock for this cache document. Concurrent runs
// against the same document are not supported; a second locker gets
// ErrCacheLocked instead of blocking.
func (cs *CacheStore) Lock() error {
	if cs.lockFile != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cs.lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	file, err := os.OpenFile(cs.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file %s: %w", cs.lockPath, err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if err == unix.EWOULDBLOCK {
			return fmt.Errorf("%s: %w", cs.lockPath, ErrCacheLocked)
		}
		return fmt.Errorf("failed to lock %s: %w", cs.lockPath, err)
	}
	cs.lockFile = file
	return nil
}

// Unlock releases the single-writer lock
func (cs *CacheStore) Unlock() {
	if cs.lockFile == nil {
		return
	}
	unix.Flock(int(cs.lockFile.Fd()), unix.LOCK_UN)
	cs.lockFile.Close()
	cs.lockFile = nil
}

// Save serialises the entire cache, nested subdir nodes included, and
// atomically replaces the document on disk
func (cs *CacheStore) Save(cache HashCache) error {
	defer VerboseEnter()()

	payload, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("failed to serialise cache: %w", err)
	}

	header := make([]byte, CacheHeaderSize)
	copy(header[0:4], CacheMagic)
	binary.LittleEndian.PutUint32(header[4:8], CacheFormatVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(payload)))

	checksum := sha256.Sum256(payload)

	if err := os.MkdirAll(filepath.Dir(cs.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(cs.path), "tmp-*.dhtc")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpPath := tmpFile.Name()
	cleanup := func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}

	// One writev pass for header, payload and checksum
	iovecs := []syscall.Iovec{
		{Base: &header[0], Len: uint64(len(header))},
		{Base: &payload[0], Len: uint64(len(payload))},
		{Base: &checksum[0], Len: uint64(len(checksum))},
	}
	expected := len(header) + len(payload) + len(checksum)
	if nw, err := vectorio.WritevRaw(uintptr(tmpFile.Fd()), iovecs); err != nil {
		cleanup()
		return fmt.Errorf("failed to write cache document with vectorio: %w", err)
	} else if nw != expected {
		cleanup()
		return fmt.Errorf("cache write incomplete: wrote %d bytes, expected %d", nw, expected)
	}

	if err := tmpFile.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync cache document: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}

	if err := os.Rename(tmpPath, cs.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace cache document %s: %w", cs.path, err)
	}

	if IsDebugEnabled("store") {
		VerboseLog(3, "Save: wrote %d roots, %d payload bytes to %s", len(cache), len(payload), cs.path)
	}

	return nil
}

// Load reads the cache document back, reconstructing nested nodes
// recursively. Framing, checksum or JSON failures return ErrCacheFormat; a
// missing document surfaces as fs.ErrNotExist. Most callers want LoadOrEmpty
// instead.
func (cs *CacheStore) Load() (HashCache, error) {
	defer VerboseEnter()()

	data, err := os.ReadFile(cs.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache document %s: %w", cs.path, err)
	}

	if len(data) < CacheHeaderSize+CacheChecksumSize {
		return nil, fmt.Errorf("cache document %s truncated (%d bytes): %w", cs.path, len(data), ErrCacheFormat)
	}
	if string(data[0:4]) != CacheMagic {
		return nil, fmt.Errorf("cache document %s has bad magic: %w", cs.path, ErrCacheFormat)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != CacheFormatVersion {
		return nil, fmt.Errorf("cache document %s has unsupported format version %d: %w", cs.path, version, ErrCacheFormat)
	}
	payloadLen := binary.LittleEndian.Uint64(data[8:16])
	if uint64(len(data)) != uint64(CacheHeaderSize+CacheChecksumSize)+payloadLen {
		return nil, fmt.Errorf("cache document %s has inconsistent payload length: %w", cs.path, ErrCacheFormat)
	}

	payload := data[CacheHeaderSize : CacheHeaderSize+payloadLen]
	stored := data[CacheHeaderSize+payloadLen:]
	checksum := sha256.Sum256(payload)
	if subtle.ConstantTimeCompare(stored, checksum[:]) != 1 {
		return nil, fmt.Errorf("cache document %s failed checksum: %w", cs.path, ErrCacheFormat)
	}

	var cache HashCache
	if err := json.Unmarshal(payload, &cache); err != nil {
		return nil, fmt.Errorf("cache document %s unparseable: %w", cs.path, ErrCacheFormat)
	}
	if cache == nil {
		cache = HashCache{}
	}

	if IsDebugEnabled("store") {
		VerboseLog(3, "Load: read %d roots from %s", len(cache), cs.path)
	}

	return cache, nil
}

// LoadOrEmpty loads the cache document, degrading a missing or corrupt
// document to "no prior knowledge". The change detector then reports
// everything as changed, which reprocesses too much rather than too little.
func (cs *CacheStore) LoadOrEmpty() HashCache {
	cache, err := cs.Load()
	if err == nil {
		return cache
	}
	if errors.Is(err, fs.ErrNotExist) {
		VerboseLog(2, "no cache document at %s, starting fresh", cs.path)
	} else {
		VerboseLog(1, "ignoring unusable cache document: %v", err)
	}
	return HashCache{}
}
