package dirhashtree

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// HashAlgorithm represents a hash algorithm configuration
type HashAlgorithm struct {
	Name    string
	TypeID  uint16
	Size    int
	NewFunc func() hash.Hash
}

// GetHashAlgorithm returns the hash algorithm configuration for the given name
func GetHashAlgorithm(name string) (*HashAlgorithm, error) {
	switch strings.ToLower(name) {
	case "sha1":
		return &HashAlgorithm{
			Name:    "sha1",
			TypeID:  HashTypeSHA1,
			Size:    HashSizeSHA1,
			NewFunc: func() hash.Hash { return sha1.New() },
		}, nil
	case "sha256":
		return &HashAlgorithm{
			Name:    "sha256",
			TypeID:  HashTypeSHA256,
			Size:    HashSizeSHA256,
			NewFunc: func() hash.Hash { return sha256.New() },
		}, nil
	case "sha512":
		return &HashAlgorithm{
			Name:    "sha512",
			TypeID:  HashTypeSHA512,
			Size:    HashSizeSHA512,
			NewFunc: func() hash.Hash { return sha512.New() },
		}, nil
	case "xxh64":
		// Non-cryptographic but fast; fine for change detection where
		// collisions are treated as acceptably improbable.
		return &HashAlgorithm{
			Name:    "xxh64",
			TypeID:  HashTypeXXH64,
			Size:    HashSizeXXH64,
			NewFunc: func() hash.Hash { return xxhash.New() },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", name)
	}
}

// GetHashAlgorithmByType returns the hash algorithm configuration for the given type ID
func GetHashAlgorithmByType(typeID uint16) (*HashAlgorithm, error) {
	switch typeID {
	case HashTypeSHA1:
		return GetHashAlgorithm("sha1")
	case HashTypeSHA256:
		return GetHashAlgorithm("sha256")
	case HashTypeSHA512:
		return GetHashAlgorithm("sha512")
	case HashTypeXXH64:
		return GetHashAlgorithm("xxh64")
	default:
		return nil, fmt.Errorf("unsupported hash type ID: %d", typeID)
	}
}

// ComputeFileHash calculates the digest of a file's full byte content using a
// buffered read loop with the given buffer size. The file handle is not
// retained past the call.
func ComputeFileHash(filePath string, algorithm *HashAlgorithm, bufferSize int) (FileDigest, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat file %s: %w", filePath, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file: %s", filePath)
	}

	hasher := algorithm.NewFunc()
	buffer := make([]byte, bufferSize)

	for {
		n, err := file.Read(buffer)
		if n > 0 {
			hasher.Write(buffer[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read from file %s: %w", filePath, err)
		}
	}

	return FileDigest(hex.EncodeToString(hasher.Sum(nil))), nil
}

// hashPair is one (name, value) contribution to a directory fingerprint.
type hashPair struct {
	name  string
	value string
}

// hashPairs folds (name, value) pairs into a single digest. Callers must pass
// the pairs already sorted by name; the fold itself just concatenates with
// NUL separators (file names cannot contain NUL) so the result is a pure
// function of the sorted pair list. An empty list yields the well-defined
// empty-set digest for the algorithm.
func hashPairs(algorithm *HashAlgorithm, pairs []hashPair) string {
	hasher := algorithm.NewFunc()
	for _, p := range pairs {
		hasher.Write([]byte(p.name))
		hasher.Write([]byte{0})
		hasher.Write([]byte(p.value))
		hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// hashString returns the hex digest of a string
func hashString(algorithm *HashAlgorithm, data string) string {
	hasher := algorithm.NewFunc()
	hasher.Write([]byte(data))
	return hex.EncodeToString(hasher.Sum(nil))
}
