package fp

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Mode selects what a replication identity is derived from.
type Mode string

const (
	// ModePath keys identities by path only. A file rewritten in place with new
	// content keeps its identity and is not replicated again.
	ModePath Mode = "path"
	// ModeContent keys identities by path and content digest.
	ModeContent Mode = "content"
)

// ParseMode converts a config value into a Mode. Empty defaults to ModeContent.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeContent:
		return ModeContent, nil
	case ModePath:
		return ModePath, nil
	default:
		return "", fmt.Errorf("unknown identity mode %q", s)
	}
}

// NormalizePath trims whitespace, cleans the path and makes it absolute when
// possible. Case is preserved.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// Identity computes a stable hex-encoded SHA-256 replication identity. In
// ModePath the digest is ignored.
func Identity(mode Mode, path, digest string) string {
	h := sha256.New()
	h.Write([]byte(NormalizePath(path)))
	if mode != ModePath {
		// NUL cannot appear in a path, so it separates unambiguously.
		h.Write([]byte{0})
		h.Write([]byte(digest))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewHash returns the hash used for content digests.
func NewHash() hash.Hash { return sha256.New() }

// Digest hashes everything read from r and returns the hex digest and the
// number of bytes consumed.
func Digest(r io.Reader) (string, int64, error) {
	h := NewHash()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// FileDigest opens path and returns its content digest and size.
func FileDigest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	return Digest(f)
}
