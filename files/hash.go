package files

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

var hashes = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// CalculateFileHash returns the hex digest of the file at path. algorithm is
// one of md5, sha1, sha256 or sha512; empty selects sha256.
func CalculateFileHash(path, algorithm string) (string, error) {
	if algorithm == "" {
		algorithm = "sha256"
	}
	newHash, ok := hashes[strings.ToLower(algorithm)]
	if !ok {
		return "", fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := newHash()
	if _, err := io.CopyBuffer(h, f, make([]byte, DefaultChunkSize)); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
