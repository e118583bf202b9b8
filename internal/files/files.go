// Package files implements the managed document file store. Keys are logical
// slash-separated paths under a single root; writes are atomic via a temp
// file and rename, and every write returns the content's SHA-256.
package files

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/doctrack/doctrack/internal/types"
)

// Store is a file store rooted at a single directory.
type Store struct {
	root string
	lock *flock.Flock
}

// NewStore opens (creating if needed) a file store at root.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("file store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create file store root: %w", err)
	}
	return &Store{
		root: abs,
		lock: flock.New(filepath.Join(abs, ".lock")),
	}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// OriginalKey is the logical key for a document version's uploaded file.
func OriginalKey(docID, version, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("documents/%s/%s/original.%s", docID, version, ext)
}

// SignedKey is the logical key for a document version's signed release PDF.
func SignedKey(docID, version string) string {
	return fmt.Sprintf("documents/%s/%s/signed.pdf", docID, version)
}

// resolve maps a logical key to an on-disk path, rejecting traversal.
func (s *Store) resolve(key string) (string, error) {
	if key == "" {
		return "", types.MissingField("file key")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid file key: %s", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Write stores data under key atomically and returns its SHA-256 hex digest.
// An existing file under the same key is replaced.
func (s *Store) Write(key string, data []byte) (string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("failed to create file store directory: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return "", fmt.Errorf("failed to acquire file store lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	h := sha256.New()
	if _, err := io.MultiWriter(tmp, h).Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("failed to link file into place: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Read returns the content stored under key.
func (s *Store) Read(key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, types.NotFound("file", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Exists reports whether key holds a file.
func (s *Store) Exists(key string) bool {
	path, err := s.resolve(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Checksum returns the SHA-256 hex digest of the content under key.
func (s *Store) Checksum(key string) (string, error) {
	data, err := s.Read(key)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
