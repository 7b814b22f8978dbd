package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrBlobNotFound is returned when a blob reference is unknown.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore holds immutable byte blobs: uploaded media, extracted
// audio and cached export artifacts. There is no mutation API; an
// update is a new Put plus a pointer swap on the owning job record,
// so a partially written blob can never be observed under an existing
// reference.
type BlobStore interface {
	// Put stores the bytes and returns their reference. The extension
	// is kept in the reference so tools that care about container
	// hints (ffmpeg) see it.
	Put(data []byte, ext string) (string, error)

	// Get returns the blob bytes, or ErrBlobNotFound.
	Get(ref string) ([]byte, error)

	// Exists reports whether the reference is known.
	Exists(ref string) bool

	// Path returns a local filesystem path for the blob, for tools
	// that read files rather than byte slices.
	Path(ref string) (string, error)
}

// FSBlobStore is a content-addressed blob store on the local
// filesystem. The reference is the sha256 of the content plus the
// original extension, so identical uploads dedupe and a reference can
// never point at different bytes over time.
type FSBlobStore struct {
	dir string
}

// NewFSBlobStore creates the blob directory if needed.
func NewFSBlobStore(dir string) (*FSBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &FSBlobStore{dir: dir}, nil
}

// Put writes the blob under its content hash. The write goes to a
// temp file first and is renamed into place, so a crash mid-write
// leaves no partial blob under the final name.
func (bs *FSBlobStore) Put(data []byte, ext string) (string, error) {
	sum := sha256.Sum256(data)
	ref := hex.EncodeToString(sum[:]) + normalizeExt(ext)

	path := filepath.Join(bs.dir, ref)
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	tmp, err := os.CreateTemp(bs.dir, "put-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store blob: %w", err)
	}

	return ref, nil
}

// Get reads the blob bytes.
func (bs *FSBlobStore) Get(ref string) ([]byte, error) {
	path, err := bs.Path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// Exists reports whether the blob file is present.
func (bs *FSBlobStore) Exists(ref string) bool {
	path, err := bs.Path(ref)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Path validates the reference and returns the blob's absolute path.
func (bs *FSBlobStore) Path(ref string) (string, error) {
	// A reference is a hex digest plus optional extension; reject
	// anything that could escape the blob directory.
	if ref == "" || strings.ContainsAny(ref, "/\\") || strings.Contains(ref, "..") {
		return "", ErrBlobNotFound
	}
	path := filepath.Join(bs.dir, ref)
	if _, err := os.Stat(path); err != nil {
		return "", ErrBlobNotFound
	}
	return path, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
