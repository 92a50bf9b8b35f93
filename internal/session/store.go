package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"technotaggr/internal/fileutil"
	"technotaggr/internal/services"
)

// LockFileName is created in an output directory while a run writes to it.
const LockFileName = ".technotaggr.lock"

const fileTimeLayout = "20060102_150405"

// FileName returns the session file name for a session started at t.
func FileName(t time.Time) string {
	return "results_" + t.Format(fileTimeLayout) + ".json"
}

// Save writes doc into dir as results_YYYYMMDD_HHMMSS.json and returns the
// path. The timestamp comes from the document; a numeric suffix is added
// when a file with that name already exists.
func Save(dir string, doc *Document) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	started, err := time.Parse(time.RFC3339, doc.SessionTimestamp)
	if err != nil {
		started = time.Now()
	}
	name := FileName(started)
	path := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.json", name[:len(name)-len(".json")], i))
	}
	if err := Write(path, doc); err != nil {
		return "", err
	}
	return path, nil
}

// Write replaces path with doc atomically.
func Write(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Load reads a session document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "session", "load", path, err)
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, services.Wrap(services.ErrValidation, "session", "load", "parse "+path, err)
	}
	return &doc, nil
}

// Lock is an exclusive hold on an output directory.
type Lock struct {
	path  string
	flock *flock.Flock
}

// AcquireLock takes the output directory lock without blocking. It fails
// when another run holds it.
func AcquireLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, LockFileName)
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "session", "lock",
			fmt.Sprintf("another run is writing to %s", dir), nil)
	}
	return &Lock{path: path, flock: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}
