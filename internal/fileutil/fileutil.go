package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Written describes a file produced by StreamAtomic.
type Written struct {
	Path   string
	Bytes  int64
	SHA256 string
}

// WriteAtomic writes data to a temp file beside path and renames it into
// place, so readers never observe a partially written file.
func WriteAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := createTemp(path)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	return finish(tmp, path, mode)
}

// StreamAtomic copies r into path through a temp file, hashing as it goes.
// When expectedSize is >= 0 a short or long copy is rejected. The temp file
// is removed on any failure.
func StreamAtomic(path string, r io.Reader, expectedSize int64, mode os.FileMode) (Written, error) {
	tmp, err := createTemp(path)
	if err != nil {
		return Written{}, err
	}
	tmpPath := tmp.Name()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return Written{}, fmt.Errorf("copy into %s: %w", path, err)
	}
	if expectedSize >= 0 && written != expectedSize {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return Written{}, fmt.Errorf("size mismatch for %s: expected %d bytes, got %d", path, expectedSize, written)
	}
	if err := finish(tmp, path, mode); err != nil {
		return Written{}, err
	}
	return Written{Path: path, Bytes: written, SHA256: hex.EncodeToString(hasher.Sum(nil))}, nil
}

func createTemp(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return nil, fmt.Errorf("create temp file for %s: %w", path, err)
	}
	return tmp, nil
}

func finish(tmp *os.File, path string, mode os.FileMode) error {
	tmpPath := tmp.Name()
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
